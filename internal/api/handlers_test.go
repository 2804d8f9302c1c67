package api

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/nbeconnect/internal/commands"
	"github.com/tejusbharadwaj/nbeconnect/internal/device"
	"github.com/tejusbharadwaj/nbeconnect/internal/device/mocks"
	"github.com/tejusbharadwaj/nbeconnect/internal/logging"
	"github.com/tejusbharadwaj/nbeconnect/internal/poller"
	"github.com/tejusbharadwaj/nbeconnect/internal/store"
)

type fakeCycles struct {
	report poller.CycleReport
	ok     bool
}

func (f fakeCycles) LastReport() (poller.CycleReport, bool) { return f.report, f.ok }

type testServer struct {
	handler http.Handler
	store   *store.DatapointStore
	proxy   *mocks.MockProxy
}

func newTestServer(t *testing.T, cycles fakeCycles) *testServer {
	t.Helper()
	ctrl := gomock.NewController(t)
	logger := logging.Discard()

	st := store.NewDatapointStore(logging.Get(logger, "store"))
	proxy := mocks.NewMockProxy(ctrl)
	cmd, err := commands.NewCommander(proxy, st, 8, logging.Get(logger, "commands"))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "nbe_test_total", Help: "test"}))

	h := NewHandler(poller.NewService(st, time.UTC, logging.Get(logger, "service")), cmd, cycles, logging.Get(logger, "api"))
	return &testServer{
		handler: SetupRouter(h, reg, logging.Get(logger, "http")),
		store:   st,
		proxy:   proxy,
	}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, fakeCycles{})

	rec := srv.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"starting","ready":false,"last_cycle_committed":false,"datapoints":0}`, rec.Body.String())

	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	srv = newTestServer(t, fakeCycles{ok: true, report: poller.CycleReport{Started: started, Committed: true, Datapoints: 2}})
	srv.store.Set([]string{"a=1", "b=2"})

	rec = srv.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"status":"ok","ready":true,"last_cycle":"2024-03-01T12:00:00Z","last_cycle_committed":true,"datapoints":2}`,
		rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, fakeCycles{})
	rec := srv.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nbe_test_total 0")
}

func TestValues(t *testing.T) {
	srv := newTestServer(t, fakeCycles{})
	srv.store.Set([]string{
		"operating_data/boiler_temp=61",
		"settings/boiler/temp=70",
	})

	rec := srv.do(http.MethodGet, "/api/v1/values?prefix=settings/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"settings/boiler/temp":"70"}`, rec.Body.String())

	rec = srv.do(http.MethodGet, "/api/v1/values", "")
	assert.JSONEq(t, `{"settings/boiler/temp":"70","operating_data/boiler_temp":"61"}`, rec.Body.String())
}

func TestSensors(t *testing.T) {
	srv := newTestServer(t, fakeCycles{})
	srv.store.Set([]string{
		"operating_data/boiler_temp=61",
		"operating_data/power_pct=0",
	})

	rec := srv.do(http.MethodGet, "/api/v1/sensors", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []struct {
		ID    string `json:"id"`
		Kind  string `json:"kind"`
		State struct {
			Available bool   `json:"available"`
			Value     string `json:"value"`
		} `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 15)

	assert.Equal(t, "v2_boiler_running", got[0].ID)
	assert.Equal(t, "binary", got[0].Kind)
	assert.True(t, got[0].State.Available)
	assert.Equal(t, "false", got[0].State.Value)

	last := got[len(got)-1]
	assert.Equal(t, "v2_operating_data_boiler_temp", last.ID)
	assert.Equal(t, "61", last.State.Value)
}

func TestSensorsWithNonFiniteValue(t *testing.T) {
	srv := newTestServer(t, fakeCycles{})
	srv.store.Set([]string{
		"operating_data/boiler_temp=nan",
		"operating_data/power_pct=5",
	})

	rec := srv.do(http.MethodGet, "/api/v1/sensors", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []struct {
		ID    string `json:"id"`
		State struct {
			Available bool     `json:"available"`
			Value     string   `json:"value"`
			Numeric   *float64 `json:"numeric"`
		} `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))

	byID := make(map[string]int, len(got))
	for i, s := range got {
		byID[s.ID] = i
	}
	temp := got[byID["v2_operating_data_boiler_temp"]]
	assert.True(t, temp.State.Available)
	assert.Equal(t, "nan", temp.State.Value)
	assert.Nil(t, temp.State.Numeric)

	power := got[byID["v2_operating_data_power_pct"]]
	require.NotNil(t, power.State.Numeric)
	assert.Equal(t, 5.0, *power.State.Numeric)
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	h := NewHandler(nil, nil, nil, logging.Get(logging.Discard(), "api"))

	rec := httptest.NewRecorder()
	h.writeJSON(rec, http.StatusOK, map[string]float64{"value": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to encode response")
}

func TestSetValue(t *testing.T) {
	srv := newTestServer(t, fakeCycles{})
	srv.proxy.EXPECT().Write(gomock.Any(), "settings/boiler/temp", "72").Return(nil)
	srv.proxy.EXPECT().Write(gomock.Any(), "settings/boiler/stop_temp", "90").Return(device.ErrRejected)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"accepted", `{"key":"settings/boiler/temp","value":"72"}`, http.StatusNoContent},
		{"rejected by device", `{"key":"settings/boiler/stop_temp","value":"90"}`, http.StatusConflict},
		{"read-only", `{"key":"operating_data/boiler_temp","value":"1"}`, http.StatusForbidden},
		{"bad body", `{"key":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(http.MethodPost, "/api/v1/values", tt.body)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestRunCommand(t *testing.T) {
	srv := newTestServer(t, fakeCycles{})
	srv.proxy.EXPECT().Write(gomock.Any(), "settings/misc/reset_alarm", "1").Return(nil)
	srv.proxy.EXPECT().Write(gomock.Any(), "settings/misc/start", "1").Return(device.ErrTransport)

	assert.Equal(t, http.StatusNoContent, srv.do(http.MethodPost, "/api/v1/commands/reset_alarm", "").Code)
	assert.Equal(t, http.StatusBadGateway, srv.do(http.MethodPost, "/api/v1/commands/start", "").Code)
	assert.Equal(t, http.StatusForbidden, srv.do(http.MethodPost, "/api/v1/commands/nope", "").Code)
}
