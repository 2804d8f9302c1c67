package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/nbeconnect/internal/database"
	"github.com/tejusbharadwaj/nbeconnect/internal/database/mocks"
	"github.com/tejusbharadwaj/nbeconnect/internal/logging"
	"github.com/tejusbharadwaj/nbeconnect/internal/models"
	"github.com/tejusbharadwaj/nbeconnect/internal/sensors"
	"github.com/tejusbharadwaj/nbeconnect/internal/store"
)

func float(v float64) *float64 { return &v }

func testStates() []sensors.State {
	on := true
	return []sensors.State{
		{SensorID: "v2_operating_data_boiler_temp", Key: "operating_data/boiler_temp", Available: true, Numeric: float(61.5)},
		{SensorID: "v2_boiler_running", Key: "operating_data/power_pct", Available: true, On: &on},
		{SensorID: "v2_operating_data_state_text", Key: "operating_data/state_text", Available: true, Value: "Idle"},
		{SensorID: "v2_consumption_hourly", Key: "consumption_data/total_hours", Available: true, Numeric: float(1.2)},
		{SensorID: "v2_operating_data_o2", Key: "operating_data/o2", Numeric: float(9)},
	}
}

func TestReadings(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	got := database.Readings(testStates(), ts)

	assert.Equal(t, []models.TimeSeriesData{
		{Time: ts, Key: "operating_data/boiler_temp", Value: 61.5},
		{Time: ts, Key: "consumption_data/total_hours", Value: 1.2},
	}, got)
}

func TestSinkInsertsSnapshot(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockReadingRepository(ctrl)
	st := store.NewDatapointStore(logging.Get(logging.Discard(), "store"))
	require.True(t, st.Set([]string{"operating_data/boiler_temp=61.5"}))

	repo.EXPECT().
		BatchInsert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, data []models.TimeSeriesData) error {
			require.Len(t, data, 2)
			assert.Equal(t, st.Snapshot().TakenAt(), data[0].Time)
			return nil
		})

	sink := database.NewSink(repo, testStates, logging.Get(logging.Discard(), "database"))
	sink.OnSnapshot(context.Background(), st.Snapshot())
}

func TestSinkSurvivesInsertError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockReadingRepository(ctrl)
	repo.EXPECT().BatchInsert(gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))

	st := store.NewDatapointStore(logging.Get(logging.Discard(), "store"))
	st.Set([]string{"a=1"})

	sink := database.NewSink(repo, testStates, logging.Get(logging.Discard(), "database"))
	assert.NotPanics(t, func() { sink.OnSnapshot(context.Background(), st.Snapshot()) })
}

func TestSinkSkipsEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockReadingRepository(ctrl)
	st := store.NewDatapointStore(logging.Get(logging.Discard(), "store"))
	st.Set([]string{"a=1"})

	sink := database.NewSink(repo, func() []sensors.State { return nil }, logging.Get(logging.Discard(), "database"))
	sink.OnSnapshot(context.Background(), st.Snapshot())
}
