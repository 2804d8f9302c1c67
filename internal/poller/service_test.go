package poller

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/nbeconnect/internal/logging"
	"github.com/tejusbharadwaj/nbeconnect/internal/models"
	"github.com/tejusbharadwaj/nbeconnect/internal/series"
	"github.com/tejusbharadwaj/nbeconnect/internal/store"
)

func hourBuffer() string {
	parts := make([]string, 24)
	for i := range parts {
		parts[i] = strconv.Itoa(i)
	}
	return strings.Join(parts, ",")
}

func newTestService(t *testing.T, items ...string) *Service {
	t.Helper()
	logger := logging.Discard()
	st := store.NewDatapointStore(logging.Get(logger, "store"))
	if len(items) > 0 {
		require.True(t, st.Set(items))
	}
	loc := time.FixedZone("CET", 3600)
	svc := NewService(st, loc, logging.Get(logger, "service"))
	// 05:30 local
	svc.now = func() time.Time { return time.Date(2024, 3, 10, 4, 30, 0, 0, time.UTC) }
	return svc
}

func TestServiceReads(t *testing.T) {
	svc := newTestService(t,
		"operating_data/boiler_temp=61.2",
		"operating_data/power_pct=40",
		"settings/boiler/temp=70",
	)

	assert.True(t, svc.Ready())

	v, ok := svc.GetValue("operating_data/boiler_temp")
	assert.True(t, ok)
	assert.Equal(t, "61.2", v)

	_, ok = svc.GetValue("nope")
	assert.False(t, ok)

	assert.Len(t, svc.GetPrefix("operating_data/"), 2)
	assert.Equal(t, []string{
		"operating_data/boiler_temp",
		"operating_data/power_pct",
		"settings/boiler/temp",
	}, svc.ListKeys())

	def := svc.Classify("settings/boiler/temp")
	assert.True(t, def.Writable)
	assert.Equal(t, models.ClassTemperature, def.SemanticClass)
}

func TestServiceNotReady(t *testing.T) {
	svc := newTestService(t)
	assert.False(t, svc.Ready())
	assert.Empty(t, svc.ListKeys())
}

func TestReconstructSeriesUsesTimezone(t *testing.T) {
	svc := newTestService(t, "consumption_data/total_hours="+hourBuffer())

	got, err := svc.ReconstructSeries("consumption_data/total_hours")
	require.NoError(t, err)
	assert.Equal(t, models.PeriodHourly, got.Period)
	assert.Equal(t, []float64{5, 4, 3, 2, 1, 0, 23, 22}, got.Values[:8])
}

func TestReconstructSeriesErrors(t *testing.T) {
	svc := newTestService(t,
		"consumption_data/counter=1234",
		"consumption_data/total_days=1,x,3",
	)

	tests := []struct {
		name string
		key  string
		want error
	}{
		{"counter is scalar", "consumption_data/counter", ErrNotHistory},
		{"not history", "operating_data/boiler_temp", ErrNotHistory},
		{"missing buffer", "consumption_data/total_months", ErrUnknownKey},
		{"malformed buffer", "consumption_data/total_days", series.ErrDataQuality},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ReconstructSeries(tt.key)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Empty(t, got.Values)
		})
	}
}

func TestSensorStatesIsolateBadHistory(t *testing.T) {
	svc := newTestService(t,
		"operating_data/power_pct=40",
		"operating_data/boiler_temp=61",
		"consumption_data/total_hours="+hourBuffer(),
		"consumption_data/total_days=1,x,3",
	)

	states := svc.SensorStates()
	byID := make(map[string]bool)
	for _, st := range states {
		byID[st.SensorID] = st.Available
	}

	assert.True(t, byID["v2_boiler_running"])
	assert.True(t, byID["v2_consumption_hourly"])
	assert.False(t, byID["v2_consumption_daily"])
	assert.True(t, byID["v2_operating_data_boiler_temp"])
	assert.Equal(t, 6+8+1, svc.Sensors().Len())
}
