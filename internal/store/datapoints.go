// Package store holds the latest committed poll of the boiler.
//
// The store keeps a pointer to an immutable Snapshot. A poll cycle builds a
// complete new Snapshot and swaps the pointer, so readers never lock and never
// observe a half-updated map.
package store

import (
	"errors"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/nbeconnect/internal/models"
)

// ErrMalformedDatapoint marks an item without a '=' separator. Set only
// logs it, malformed items never fail a commit.
var ErrMalformedDatapoint = errors.New("malformed datapoint")

// ParseDatapoint splits a "key=value" item on its first '='
func ParseDatapoint(item string) (models.Datapoint, error) {
	key, value, ok := strings.Cut(item, "=")
	if !ok {
		return models.Datapoint{}, ErrMalformedDatapoint
	}
	return models.Datapoint{Key: key, Value: value}, nil
}

// Snapshot is one committed poll result. It is never mutated after creation.
type Snapshot struct {
	values    map[string]string
	takenAt   time.Time
	malformed int
}

// Get returns the raw value for key
func (s *Snapshot) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[key]
	return v, ok
}

// GetAllStartingWith returns a copy of every entry whose key has prefix
func (s *Snapshot) GetAllStartingWith(prefix string) map[string]string {
	result := make(map[string]string)
	if s == nil {
		return result
	}
	for k, v := range s.values {
		if strings.HasPrefix(k, prefix) {
			result[k] = v
		}
	}
	return result
}

// Keys returns all keys, sorted
func (s *Snapshot) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of datapoints in the snapshot
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// TakenAt is the commit time of the snapshot
func (s *Snapshot) TakenAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.takenAt
}

// Malformed is the number of items dropped while building the snapshot
func (s *Snapshot) Malformed() int {
	if s == nil {
		return 0
	}
	return s.malformed
}

// DatapointStore is the single source of truth for the latest poll
type DatapointStore struct {
	current atomic.Pointer[Snapshot]
	logger  *logrus.Entry
	now     func() time.Time
}

// NewDatapointStore creates an unset store
func NewDatapointStore(logger *logrus.Entry) *DatapointStore {
	return &DatapointStore{
		logger: logger,
		now:    time.Now,
	}
}

// Set parses "key=value" items and replaces the whole map in one swap.
// An empty batch is ignored so a failed poll never wipes good data.
// It reports whether a new snapshot was committed.
func (s *DatapointStore) Set(items []string) bool {
	if len(items) == 0 {
		s.logger.Warn("set called with empty data, keeping previous snapshot")
		return false
	}

	snap := &Snapshot{
		values:  make(map[string]string, len(items)),
		takenAt: s.now(),
	}
	for _, item := range items {
		dp, err := ParseDatapoint(item)
		if err != nil {
			snap.malformed++
			s.logger.WithFields(logrus.Fields{
				"item":  item,
				"error": err,
			}).Debug("skipping keyless item")
			continue
		}
		snap.values[dp.Key] = dp.Value
	}

	s.current.Store(snap)
	s.logger.WithField("keys", len(snap.values)).Debug("datapoint store updated")
	return true
}

// Snapshot returns the current snapshot, nil while the store is unset
func (s *DatapointStore) Snapshot() *Snapshot {
	return s.current.Load()
}

// Loaded reports whether any snapshot has been committed
func (s *DatapointStore) Loaded() bool {
	return s.current.Load() != nil
}

// Get returns the value for key from the current snapshot
func (s *DatapointStore) Get(key string) (string, bool) {
	v, ok := s.Snapshot().Get(key)
	if !ok {
		s.logger.WithField("key", key).Trace("key not found")
	}
	return v, ok
}

// GetAllStartingWith returns the entries under prefix from the current snapshot
func (s *DatapointStore) GetAllStartingWith(prefix string) map[string]string {
	return s.Snapshot().GetAllStartingWith(prefix)
}

// ListKeys returns every known key, sorted
func (s *DatapointStore) ListKeys() []string {
	return s.Snapshot().Keys()
}
