//go:generate go run github.com/golang/mock/mockgen -destination=./mocks/proxy.go -package=mocks . Proxy

// Package device talks to the boiler controller.
//
// Proxy is the seam between the polling pipeline and the wire protocol. The
// pipeline only relies on the sentinel errors below to tell a slow device
// from a broken request.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTimeout means the device did not answer in time
	ErrTimeout = errors.New("device timeout")
	// ErrTransport covers every other failure to exchange a frame
	ErrTransport = errors.New("device transport error")
	// ErrRejected means the device answered a write with a non-zero status
	ErrRejected = errors.New("rejected by device")
	// ErrUnresolvable means no device could be located at setup time
	ErrUnresolvable = errors.New("device could not be resolved")
)

// Proxy fetches and writes datapoints on the boiler.
//
// Fetch returns "key=value" items. An empty result is valid.
type Proxy interface {
	Fetch(ctx context.Context, path string) ([]string, error)
	Write(ctx context.Context, path, value string) error
}

// IsTimeout reports whether err is a soft, retry-next-cycle failure
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// request describes how a datapoint path maps to a protocol function
type request struct {
	function function
	payload  string
	// root is prepended to returned keys
	root string
	// single means the reply is one bare value for root
	single bool
}

// readRequest maps a path such as "settings/boiler/" or
// "consumption_data/total_days" to a read request.
func readRequest(path string) (request, error) {
	switch {
	case path == "operating_data/":
		return request{function: fnReadOperating, payload: "*", root: path}, nil
	case path == "advanced_data/":
		return request{function: fnReadAdvanced, payload: "*", root: path}, nil
	case strings.HasPrefix(path, "consumption_data/"):
		name := strings.TrimPrefix(path, "consumption_data/")
		if name == "" || strings.Contains(name, "/") {
			return request{}, fmt.Errorf("invalid consumption path %q", path)
		}
		return request{function: fnReadConsumption, payload: name, root: path, single: true}, nil
	case strings.HasPrefix(path, "settings/") && strings.HasSuffix(path, "/"):
		category := strings.TrimSuffix(strings.TrimPrefix(path, "settings/"), "/")
		if category == "" || strings.Contains(category, "/") {
			return request{}, fmt.Errorf("invalid settings path %q", path)
		}
		return request{function: fnReadSetup, payload: category + ".*", root: path}, nil
	default:
		return request{}, fmt.Errorf("unsupported path %q", path)
	}
}

// writeRequest maps "settings/<category>/<item>" to a set-setup request
func writeRequest(path, value string) (request, error) {
	parts := strings.Split(strings.TrimPrefix(path, "settings/"), "/")
	if !strings.HasPrefix(path, "settings/") || len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return request{}, fmt.Errorf("unsupported write path %q", path)
	}
	return request{
		function: fnSetSetup,
		payload:  parts[0] + "." + parts[1] + "=" + value,
		root:     path,
	}, nil
}

// items converts a reply payload into "key=value" strings under req.root
func (r request) items(payload string) []string {
	if r.single {
		if payload == "" {
			return nil
		}
		return []string{strings.TrimSuffix(r.root, "/") + "=" + payload}
	}

	var out []string
	for _, item := range strings.Split(payload, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, r.root+item)
	}
	return out
}
