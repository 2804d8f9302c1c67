package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/nbeconnect/internal/device"
	"github.com/tejusbharadwaj/nbeconnect/internal/device/mocks"
	"github.com/tejusbharadwaj/nbeconnect/internal/logging"
	"github.com/tejusbharadwaj/nbeconnect/internal/store"
)

func newTestCommander(t *testing.T, proxy device.Proxy) (*Commander, *store.DatapointStore) {
	t.Helper()
	logger := logging.Discard()
	st := store.NewDatapointStore(logging.Get(logger, "store"))
	c, err := NewCommander(proxy, st, 4, logging.Get(logger, "commands"))
	require.NoError(t, err)
	return c, st
}

func TestSetValueWritabilityGate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	proxy := mocks.NewMockProxy(ctrl)
	proxy.EXPECT().Write(gomock.Any(), "settings/boiler/setpoint", "30").Return(nil).Times(1)

	c, _ := newTestCommander(t, proxy)

	err := c.SetValue(context.Background(), "operating_data/temp_boiler", "30")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriteRejected))

	require.NoError(t, c.SetValue(context.Background(), "settings/boiler/setpoint", "30"))
	assert.Equal(t, map[string]string{"settings/boiler/setpoint": "30"}, c.Pending())
}

func TestSetValueDeviceErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	proxy := mocks.NewMockProxy(ctrl)
	proxy.EXPECT().Write(gomock.Any(), "settings/boiler/temp", "99").Return(device.ErrRejected)

	c, _ := newTestCommander(t, proxy)

	err := c.SetValue(context.Background(), "settings/boiler/temp", "99")
	assert.True(t, errors.Is(err, device.ErrRejected))
	assert.False(t, errors.Is(err, ErrWriteRejected))
	assert.Empty(t, c.Pending())
}

func TestSetBySensorID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	proxy := mocks.NewMockProxy(ctrl)
	proxy.EXPECT().Write(gomock.Any(), "settings/hot_water/temp", "55").Return(nil)

	c, st := newTestCommander(t, proxy)
	st.Set([]string{
		"settings/hot_water/temp=50",
		"operating_data/boiler_temp=61",
	})

	tests := []struct {
		name    string
		req     SetRequest
		wantErr bool
	}{
		{"writable sensor", SetRequest{SensorID: "v2_settings_hot_water_temp", Value: "55"}, false},
		{"read-only sensor", SetRequest{SensorID: "v2_operating_data_boiler_temp", Value: "1"}, true},
		{"binary sensor", SetRequest{SensorID: "v2_boiler_running", Value: "1"}, true},
		{"unknown sensor", SetRequest{SensorID: "v2_nope", Value: "1"}, true},
		{"neither key nor sensor", SetRequest{Value: "1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Set(context.Background(), tt.req)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrWriteRejected))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRunCommand(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	proxy := mocks.NewMockProxy(ctrl)
	gomock.InOrder(
		proxy.EXPECT().Write(gomock.Any(), "settings/misc/start", "1").Return(nil),
		proxy.EXPECT().Write(gomock.Any(), "settings/misc/reset_alarm", "1").Return(nil),
	)

	c, _ := newTestCommander(t, proxy)

	require.NoError(t, c.Run(context.Background(), "start"))
	require.NoError(t, c.Run(context.Background(), "reset_alarm"))

	err := c.Run(context.Background(), "self_destruct")
	assert.True(t, errors.Is(err, ErrWriteRejected))

	assert.Equal(t, []string{"reset_alarm", "start", "stop"}, Commands())
}

func TestPendingWritesConfirmedByPoll(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	proxy := mocks.NewMockProxy(ctrl)
	proxy.EXPECT().Write(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	c, st := newTestCommander(t, proxy)
	ctx := context.Background()

	require.NoError(t, c.SetValue(ctx, "settings/boiler/temp", "70"))
	require.NoError(t, c.SetValue(ctx, "settings/hot_water/temp", "55"))

	st.Set([]string{"settings/boiler/temp=70", "settings/hot_water/temp=50"})
	c.OnSnapshot(ctx, st.Snapshot())

	assert.Equal(t, map[string]string{"settings/hot_water/temp": "55"}, c.Pending())
}

func TestPendingIsBounded(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	proxy := mocks.NewMockProxy(ctrl)
	proxy.EXPECT().Write(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	c, _ := newTestCommander(t, proxy)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, c.SetValue(context.Background(), "settings/boiler/"+k, "1"))
	}

	pending := c.Pending()
	assert.Len(t, pending, 4)
	_, ok := pending["settings/boiler/a"]
	assert.False(t, ok, "oldest write should be evicted")
}
