package database

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/nbeconnect/internal/models"
	"github.com/tejusbharadwaj/nbeconnect/internal/sensors"
	"github.com/tejusbharadwaj/nbeconnect/internal/store"
)

const insertTimeout = 10 * time.Second

// Sink writes the numeric sensor states of every committed snapshot
type Sink struct {
	repo   ReadingRepository
	states func() []sensors.State
	logger *logrus.Entry
}

// NewSink creates a sink. states is read after each commit.
func NewSink(repo ReadingRepository, states func() []sensors.State, logger *logrus.Entry) *Sink {
	return &Sink{repo: repo, states: states, logger: logger}
}

// Readings converts the available numeric states to rows stamped at t
func Readings(states []sensors.State, t time.Time) []models.TimeSeriesData {
	var out []models.TimeSeriesData
	for _, st := range states {
		if !st.Available || st.Numeric == nil {
			continue
		}
		out = append(out, models.TimeSeriesData{
			Time:  t,
			Key:   st.Key,
			Value: *st.Numeric,
		})
	}
	return out
}

func (s *Sink) OnSnapshot(ctx context.Context, snap *store.Snapshot) {
	data := Readings(s.states(), snap.TakenAt())
	if len(data) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, insertTimeout)
	defer cancel()

	if err := s.repo.BatchInsert(ctx, data); err != nil {
		s.logger.WithError(err).Error("failed to store readings")
		return
	}
	s.logger.WithField("readings", len(data)).Debug("stored readings")
}
