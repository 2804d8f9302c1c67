package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/nbeconnect/internal/poller"
	"github.com/tejusbharadwaj/nbeconnect/internal/sensors"
)

func TestPollMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPollMetrics(reg)

	m.ObserveEndpoint(poller.FetchResult{
		Endpoint: poller.Endpoint{Path: "operating_data/", Group: poller.GroupBulk},
		Outcome:  poller.OutcomeSuccess,
		Duration: 20 * time.Millisecond,
	})
	m.ObserveEndpoint(poller.FetchResult{
		Endpoint: poller.Endpoint{Path: "advanced_data/", Group: poller.GroupBulk},
		Outcome:  poller.OutcomeHardFailure,
		Err:      errors.New("boom"),
	})

	started := time.Unix(1700000000, 0)
	m.ObserveCycle(poller.CycleReport{Started: started, Duration: 2 * time.Second, Committed: true, Datapoints: 42})
	m.ObserveCycle(poller.CycleReport{Started: started, Duration: time.Second})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("bulk", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("bulk", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("failed")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.datapoints))
	assert.Equal(t, 1700000002.0, testutil.ToFloat64(m.lastCommit))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lastCycleFailed))
}

type staticStates []sensors.State

func (s staticStates) SensorStates() []sensors.State { return s }

func TestSensorCollector(t *testing.T) {
	on := true
	temp := 61.5
	collector := NewSensorCollector(staticStates{
		{SensorID: "v2_boiler_running", Key: "operating_data/power_pct", Available: true, On: &on},
		{SensorID: "v2_operating_data_boiler_temp", Key: "operating_data/boiler_temp", Available: true, Numeric: &temp},
		{SensorID: "v2_operating_data_state_text", Key: "operating_data/state_text", Available: true, Value: "Idle"},
		{SensorID: "v2_consumption_daily", Key: "consumption_data/total_days"},
	})

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(collector))

	expected := `
# HELP nbe_sensor_on Current binary sensor state
# TYPE nbe_sensor_on gauge
nbe_sensor_on{key="operating_data/power_pct",sensor="v2_boiler_running"} 1
# HELP nbe_sensor_value Current numeric sensor value
# TYPE nbe_sensor_value gauge
nbe_sensor_value{key="operating_data/boiler_temp",sensor="v2_operating_data_boiler_temp"} 61.5
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
	assert.Equal(t, 2, testutil.CollectAndCount(collector))
}

func TestRequestMetricsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRequestMetrics(reg)
	m.Requests.WithLabelValues("GetValue", "OK").Inc()
	assert.Equal(t, 1, testutil.CollectAndCount(m.Requests))
	assert.Panics(t, func() { NewRequestMetrics(reg) })
}
