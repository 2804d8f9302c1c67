// Package commands is the write side of the boiler: setting values and
// pressing the start, stop and reset buttons.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/nbeconnect/internal/classifier"
	"github.com/tejusbharadwaj/nbeconnect/internal/device"
	"github.com/tejusbharadwaj/nbeconnect/internal/sensors"
	"github.com/tejusbharadwaj/nbeconnect/internal/store"
)

// ErrWriteRejected is returned for writes that never reach the device
var ErrWriteRejected = errors.New("write rejected")

// DefaultPendingSize bounds the number of unconfirmed writes remembered
const DefaultPendingSize = 128

// Command is a named fire-and-forget write
type Command struct {
	Name  string
	Path  string
	Value string
}

var namedCommands = map[string]Command{
	"start":       {Name: "start", Path: "settings/misc/start", Value: "1"},
	"stop":        {Name: "stop", Path: "settings/misc/stop", Value: "1"},
	"reset_alarm": {Name: "reset_alarm", Path: "settings/misc/reset_alarm", Value: "1"},
}

// Commands returns the names of the available commands
func Commands() []string {
	names := make([]string, 0, len(namedCommands))
	for name := range namedCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetRequest addresses a value either by key or by sensor id
type SetRequest struct {
	Key      string
	SensorID string
	Value    string
}

// Commander validates writes and forwards them to the device
type Commander struct {
	proxy   device.Proxy
	store   *store.DatapointStore
	pending *lru.Cache
	logger  *logrus.Entry
}

// NewCommander creates a commander. pendingSize bounds the write
// confirmation tracker.
func NewCommander(proxy device.Proxy, st *store.DatapointStore, pendingSize int, logger *logrus.Entry) (*Commander, error) {
	if pendingSize <= 0 {
		pendingSize = DefaultPendingSize
	}
	cache, err := lru.New(pendingSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create pending write cache: %w", err)
	}
	return &Commander{
		proxy:   proxy,
		store:   st,
		pending: cache,
		logger:  logger,
	}, nil
}

// SetValue writes value to key. Keys outside settings/ are rejected before
// anything is sent. The store only reflects the write after the next poll.
func (c *Commander) SetValue(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("%w: must provide either a sensor id or a key", ErrWriteRejected)
	}
	if !classifier.Classify(key).Writable {
		return fmt.Errorf("%w: %s is read-only", ErrWriteRejected, key)
	}

	log := c.logger.WithFields(logrus.Fields{"key": key, "value": value})
	log.Info("setting value")
	if err := c.proxy.Write(ctx, key, value); err != nil {
		log.WithError(err).Error("error setting value")
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	c.pending.Add(key, value)
	log.Info("value set")
	return nil
}

// Set resolves the request to a key and writes it
func (c *Commander) Set(ctx context.Context, req SetRequest) error {
	key, err := c.Resolve(req)
	if err != nil {
		return err
	}
	return c.SetValue(ctx, key, req.Value)
}

// Resolve returns the key a request addresses. An explicit key wins, a
// sensor id is looked up in the catalog of the current snapshot.
func (c *Commander) Resolve(req SetRequest) (string, error) {
	if req.Key != "" {
		return req.Key, nil
	}
	if req.SensorID == "" {
		return "", fmt.Errorf("%w: must provide either a sensor id or a key", ErrWriteRejected)
	}

	sensor, ok := sensors.Build(c.store.ListKeys()).Lookup(req.SensorID)
	if !ok {
		return "", fmt.Errorf("%w: could not find datapoint path for %s", ErrWriteRejected, req.SensorID)
	}
	if !sensor.Definition.Writable {
		return "", fmt.Errorf("%w: %s is read-only, select a boiler setting sensor instead", ErrWriteRejected, req.SensorID)
	}
	return sensor.Definition.Key, nil
}

// Run executes a named command
func (c *Commander) Run(ctx context.Context, name string) error {
	cmd, ok := namedCommands[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", ErrWriteRejected, name)
	}
	c.logger.WithField("command", name).Debug("pressing")
	return c.SetValue(ctx, cmd.Path, cmd.Value)
}

// Pending returns the writes not yet confirmed by a poll
func (c *Commander) Pending() map[string]string {
	out := make(map[string]string)
	for _, k := range c.pending.Keys() {
		if v, ok := c.pending.Peek(k); ok {
			out[k.(string)] = v.(string)
		}
	}
	return out
}

// OnSnapshot checks pending writes against a freshly committed snapshot and
// drops the confirmed ones.
func (c *Commander) OnSnapshot(_ context.Context, snap *store.Snapshot) {
	for _, k := range c.pending.Keys() {
		key := k.(string)
		want, ok := c.pending.Peek(key)
		if !ok {
			continue
		}
		got, present := snap.Get(key)
		log := c.logger.WithFields(logrus.Fields{"key": key, "written": want})
		if present && got == want.(string) {
			c.pending.Remove(key)
			log.Debug("write confirmed by poll")
			continue
		}
		log.WithField("polled", got).Debug("write not yet reflected")
	}
}
