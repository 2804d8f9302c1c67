// Package poller runs the polling cycle against the boiler.
//
// A cycle walks the fixed endpoint plan sequentially, tolerates the failure
// of any endpoint and commits everything it gathered to the datapoint store
// in a single swap.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/nbeconnect/internal/device"
	"github.com/tejusbharadwaj/nbeconnect/internal/store"
)

var (
	// ErrCycleFailed means every endpoint failed and the store was left untouched
	ErrCycleFailed = errors.New("poll cycle produced no data")
	// ErrCycleTimeout means the cycle budget ran out before the plan completed
	ErrCycleTimeout = errors.New("poll cycle timed out")
	// ErrCycleInProgress is returned when a cycle is already running
	ErrCycleInProgress = errors.New("poll cycle already in progress")
)

// SnapshotListener is notified after every committed snapshot
type SnapshotListener interface {
	OnSnapshot(ctx context.Context, snap *store.Snapshot)
}

// ListenerFunc adapts a function to SnapshotListener
type ListenerFunc func(ctx context.Context, snap *store.Snapshot)

func (f ListenerFunc) OnSnapshot(ctx context.Context, snap *store.Snapshot) {
	f(ctx, snap)
}

// Recorder receives cycle observations, typically for metrics
type Recorder interface {
	ObserveEndpoint(res FetchResult)
	ObserveCycle(report CycleReport)
}

// Recorders fans observations out to several recorders
type Recorders []Recorder

func (rs Recorders) ObserveEndpoint(res FetchResult) {
	for _, r := range rs {
		r.ObserveEndpoint(res)
	}
}

func (rs Recorders) ObserveCycle(report CycleReport) {
	for _, r := range rs {
		r.ObserveCycle(report)
	}
}

// Config holds the cycle budgets
type Config struct {
	EndpointTimeout time.Duration
	CycleTimeout    time.Duration
	Plan            []Endpoint
}

// Coordinator runs poll cycles. At most one cycle runs at a time.
type Coordinator struct {
	proxy  device.Proxy
	store  *store.DatapointStore
	config Config
	logger *logrus.Entry

	recorder  Recorder
	listeners []SnapshotListener

	running sync.Mutex
	last    atomic.Pointer[CycleReport]
}

// NewCoordinator creates a coordinator for the given proxy and store
func NewCoordinator(proxy device.Proxy, st *store.DatapointStore, config Config, logger *logrus.Entry) *Coordinator {
	if len(config.Plan) == 0 {
		config.Plan = DefaultPlan()
	}
	return &Coordinator{
		proxy:  proxy,
		store:  st,
		config: config,
		logger: logger,
	}
}

// SetRecorder attaches a metrics recorder
func (c *Coordinator) SetRecorder(r Recorder) {
	c.recorder = r
}

// AddListener registers l for committed snapshots. Not safe to call while
// cycles are running.
func (c *Coordinator) AddListener(l SnapshotListener) {
	c.listeners = append(c.listeners, l)
}

// Store returns the store the coordinator commits to
func (c *Coordinator) Store() *store.DatapointStore {
	return c.store
}

// LastReport returns the report of the most recent completed cycle
func (c *Coordinator) LastReport() (CycleReport, bool) {
	r := c.last.Load()
	if r == nil {
		return CycleReport{}, false
	}
	return *r, true
}

// Run executes one cycle. It returns ErrCycleFailed when nothing was
// fetched, ErrCycleTimeout when the cycle budget expired (partial results
// are still committed) and ErrCycleInProgress when another cycle is running.
func (c *Coordinator) Run(ctx context.Context) (CycleReport, error) {
	if !c.running.TryLock() {
		return CycleReport{}, ErrCycleInProgress
	}
	defer c.running.Unlock()

	report := CycleReport{
		ID:      uuid.NewString(),
		Started: time.Now(),
	}
	log := c.logger.WithField("cycle_id", report.ID)
	log.Info("fetching all data from boiler")

	cycleCtx := ctx
	if c.config.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, c.config.CycleTimeout)
		defer cancel()
	}

	acc := make([]string, 0, 512)
	for _, ep := range c.config.Plan {
		var res FetchResult
		if err := cycleCtx.Err(); err != nil {
			res = FetchResult{Endpoint: ep, Outcome: OutcomeSoftFailure, Err: err}
		} else {
			res = c.fetch(cycleCtx, ep)
		}
		acc = report.fold(acc, res)
		c.logResult(log, res)
		if c.recorder != nil {
			c.recorder.ObserveEndpoint(res)
		}
	}

	report.Duration = time.Since(report.Started)
	report.TimedOut = errors.Is(cycleCtx.Err(), context.DeadlineExceeded)

	var err error
	if len(acc) == 0 {
		err = ErrCycleFailed
		if report.TimedOut {
			err = fmt.Errorf("%w: %w", ErrCycleFailed, ErrCycleTimeout)
		}
		log.WithField("endpoints", len(c.config.Plan)).Warn("every endpoint failed, keeping previous snapshot")
	} else {
		report.Committed = c.store.Set(acc)
		snap := c.store.Snapshot()
		report.Datapoints = snap.Len()
		if report.TimedOut {
			err = ErrCycleTimeout
		}
		log.WithFields(logrus.Fields{
			"datapoints": report.Datapoints,
			"failed":     len(c.config.Plan) - report.Count(OutcomeSuccess),
			"duration":   report.Duration.String(),
		}).Info("fetched data points")

		if report.Committed {
			for _, l := range c.listeners {
				l.OnSnapshot(ctx, snap)
			}
		}
	}

	if c.recorder != nil {
		c.recorder.ObserveCycle(report)
	}
	c.last.Store(&report)
	return report, err
}

func (c *Coordinator) fetch(ctx context.Context, ep Endpoint) FetchResult {
	fetchCtx := ctx
	if c.config.EndpointTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.config.EndpointTimeout)
		defer cancel()
	}

	start := time.Now()
	items, err := c.proxy.Fetch(fetchCtx, ep.Path)
	res := FetchResult{
		Endpoint:   ep,
		Datapoints: items,
		Err:        err,
		Duration:   time.Since(start),
	}
	switch {
	case err == nil:
		res.Outcome = OutcomeSuccess
	case device.IsTimeout(err):
		res.Outcome = OutcomeSoftFailure
		res.Datapoints = nil
	default:
		res.Outcome = OutcomeHardFailure
		res.Datapoints = nil
	}
	return res
}

func (c *Coordinator) logResult(log *logrus.Entry, res FetchResult) {
	entry := log.WithFields(logrus.Fields{
		"endpoint": res.Endpoint.Path,
		"outcome":  res.Outcome.String(),
	})
	switch res.Outcome {
	case OutcomeSuccess:
		entry.WithField("items", len(res.Datapoints)).Debug("endpoint fetched")
	case OutcomeSoftFailure:
		entry.WithError(res.Err).Debug("endpoint timed out")
	default:
		entry.WithError(res.Err).Warn("endpoint fetch failed")
	}
}
