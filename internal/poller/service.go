package poller

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/nbeconnect/internal/classifier"
	"github.com/tejusbharadwaj/nbeconnect/internal/models"
	"github.com/tejusbharadwaj/nbeconnect/internal/sensors"
	"github.com/tejusbharadwaj/nbeconnect/internal/series"
	"github.com/tejusbharadwaj/nbeconnect/internal/store"
)

var (
	// ErrUnknownKey is returned for keys absent from the current snapshot
	ErrUnknownKey = errors.New("unknown key")
	// ErrNotHistory is returned when a series is requested for a key that is
	// not a cumulative-history buffer
	ErrNotHistory = errors.New("key is not a consumption history")
)

// Service is the read surface consumers use. Every call recomputes from the
// current snapshot.
type Service struct {
	store    *store.DatapointStore
	location *time.Location
	now      func() time.Time
	logger   *logrus.Entry
}

// NewService creates a read facade. loc is the boiler's timezone, used as the
// anchor for series reconstruction.
func NewService(st *store.DatapointStore, loc *time.Location, logger *logrus.Entry) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		store:    st,
		location: loc,
		now:      time.Now,
		logger:   logger,
	}
}

// Ready reports whether at least one cycle has committed
func (s *Service) Ready() bool {
	return s.store.Loaded()
}

func (s *Service) GetValue(key string) (string, bool) {
	return s.store.Get(key)
}

func (s *Service) GetPrefix(prefix string) map[string]string {
	return s.store.GetAllStartingWith(prefix)
}

func (s *Service) ListKeys() []string {
	return s.store.ListKeys()
}

func (s *Service) Classify(key string) models.SensorDefinition {
	return classifier.Classify(key)
}

// Anchor returns the current wall-clock time in the boiler's timezone
func (s *Service) Anchor() time.Time {
	return s.now().In(s.location)
}

// ReconstructSeries restores the history buffer stored at key. A malformed
// buffer yields ErrDataQuality with an empty series.
func (s *Service) ReconstructSeries(key string) (models.ConsumptionSeries, error) {
	period, ok := classifier.PeriodFor(key)
	if !ok {
		return models.ConsumptionSeries{}, fmt.Errorf("%w: %s", ErrNotHistory, key)
	}
	raw, ok := s.store.Get(key)
	if !ok {
		return models.ConsumptionSeries{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	result, err := series.Reconstruct(raw, period, s.Anchor())
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("discarding consumption history")
		return result, err
	}
	return result, nil
}

// Sensors returns the catalog built from the current keys
func (s *Service) Sensors() *sensors.Catalog {
	return sensors.Build(s.store.ListKeys())
}

// SensorStates reads every sensor of the current catalog. Sensors whose
// history cannot be reconstructed are reported unavailable.
func (s *Service) SensorStates() []sensors.State {
	snap := s.store.Snapshot()
	anchor := s.Anchor()
	catalog := sensors.Build(snap.Keys())

	states := make([]sensors.State, 0, catalog.Len())
	for _, sensor := range catalog.Sensors() {
		st, err := sensor.State(snap, anchor)
		if err != nil {
			if errors.Is(err, series.ErrDataQuality) {
				s.logger.WithError(err).WithField("sensor", sensor.ID).Warn("discarding consumption history")
			} else {
				s.logger.WithError(err).WithField("sensor", sensor.ID).Error("error reading sensor")
			}
		}
		states = append(states, st)
	}
	return states
}
