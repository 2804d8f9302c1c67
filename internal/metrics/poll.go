// Package metrics exposes poll, sensor and request metrics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tejusbharadwaj/nbeconnect/internal/poller"
)

const namespace = "nbe"

// PollMetrics records poll cycles. It implements poller.Recorder.
type PollMetrics struct {
	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	fetches         *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	datapoints      prometheus.Gauge
	lastCommit      prometheus.Gauge
	lastCycleFailed prometheus.Gauge
}

// NewPollMetrics creates and registers the poll metrics on reg
func NewPollMetrics(reg prometheus.Registerer) *PollMetrics {
	m := &PollMetrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles by result",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Duration of a poll cycle",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60},
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "endpoint_fetches_total",
			Help:      "Endpoint fetches by group and outcome",
		}, []string{"group", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "endpoint_fetch_duration_seconds",
			Help:      "Duration of a single endpoint fetch",
			Buckets:   prometheus.DefBuckets,
		}, []string{"group"}),
		datapoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "datapoints",
			Help:      "Datapoints in the last committed snapshot",
		}),
		lastCommit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_commit_timestamp_seconds",
			Help:      "Unix time of the last committed snapshot",
		}),
		lastCycleFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_failed",
			Help:      "1 if the last cycle committed nothing",
		}),
	}

	reg.MustRegister(
		m.cycles,
		m.cycleDuration,
		m.fetches,
		m.fetchDuration,
		m.datapoints,
		m.lastCommit,
		m.lastCycleFailed,
	)
	return m
}

func (m *PollMetrics) ObserveEndpoint(res poller.FetchResult) {
	group := string(res.Endpoint.Group)
	m.fetches.WithLabelValues(group, res.Outcome.String()).Inc()
	m.fetchDuration.WithLabelValues(group).Observe(res.Duration.Seconds())
}

func (m *PollMetrics) ObserveCycle(report poller.CycleReport) {
	m.cycleDuration.Observe(report.Duration.Seconds())

	switch {
	case !report.Committed:
		m.cycles.WithLabelValues("failed").Inc()
		m.lastCycleFailed.Set(1)
		return
	case report.TimedOut:
		m.cycles.WithLabelValues("partial").Inc()
	default:
		m.cycles.WithLabelValues("committed").Inc()
	}
	m.lastCycleFailed.Set(0)
	m.datapoints.Set(float64(report.Datapoints))
	m.lastCommit.Set(float64(report.Started.Add(report.Duration).Unix()))
}

var _ poller.Recorder = (*PollMetrics)(nil)
