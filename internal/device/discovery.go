package device

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	discoveryPayload  = "NBE Discovery"
	defaultBroadcast  = "255.255.255.255"
	defaultDiscovery  = 5
	discoveryListenMs = 1500
)

// Controller is a controller that answered a discovery broadcast
type Controller struct {
	Addr   *net.UDPAddr
	Serial string
}

// Discover broadcasts a discovery frame and returns the first controller
// that answers, or the one matching opts.Serial. Attempts are retried with
// exponential backoff up to opts.DiscoveryRetries times.
func Discover(ctx context.Context, opts Options, logger *logrus.Entry) (Controller, error) {
	broadcast := opts.BroadcastAddress
	if broadcast == "" {
		broadcast = defaultBroadcast
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	retries := opts.DiscoveryRetries
	if retries == 0 {
		retries = defaultDiscovery
	}

	target, err := net.ResolveUDPAddr("udp", net.JoinHostPort(broadcast, strconv.Itoa(port)))
	if err != nil {
		return Controller{}, errors.Wrapf(ErrUnresolvable, "broadcast address: %v", err)
	}

	var found Controller
	attempt := 0
	operation := func() error {
		attempt++
		c, err := discoverOnce(ctx, target, opts)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"serial":  opts.Serial,
			}).WithError(err).Debug("discovery attempt failed")
			return err
		}
		found = c
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries-1),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return Controller{}, errors.Wrapf(ErrUnresolvable, "no controller answered after %d attempts: %v", attempt, err)
	}
	return found, nil
}

func discoverOnce(ctx context.Context, target *net.UDPAddr, opts Options) (Controller, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return Controller{}, err
	}
	defer conn.Close()

	appID := opts.AppID
	if appID == "" {
		appID = defaultAppID
	}
	out, err := frame{
		appID:    appID,
		serial:   opts.Serial,
		function: fnDiscovery,
		pin:      opts.Password,
		time:     time.Now(),
		payload:  discoveryPayload,
	}.encode()
	if err != nil {
		return Controller{}, err
	}

	deadline := time.Now().Add(discoveryListenMs * time.Millisecond)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return Controller{}, err
	}
	if _, err := conn.WriteToUDP(out, target); err != nil {
		return Controller{}, err
	}

	buf := make([]byte, readBufferSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return Controller{}, err
		}
		resp, err := decodeResponse(buf[:n])
		if err != nil || resp.function != fnDiscovery {
			continue
		}

		info := parseDiscovery(resp.payload)
		serial := info["serial"]
		if serial == "" {
			serial = resp.serial
		}
		if opts.Serial != "" && serial != opts.Serial {
			continue
		}

		addr := &net.UDPAddr{IP: from.IP, Port: target.Port}
		if ip := net.ParseIP(info["ip"]); ip != nil {
			addr.IP = ip
		}
		return Controller{Addr: addr, Serial: serial}, nil
	}
}

// parseDiscovery reads "Serial=123456;IP=10.0.0.5;..." into lower-cased keys
func parseDiscovery(payload string) map[string]string {
	info := make(map[string]string)
	for _, item := range strings.Split(payload, ";") {
		k, v, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		info[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return info
}
