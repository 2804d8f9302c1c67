package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/nbeconnect/internal/commands"
	"github.com/tejusbharadwaj/nbeconnect/internal/device"
	"github.com/tejusbharadwaj/nbeconnect/internal/poller"
	"github.com/tejusbharadwaj/nbeconnect/internal/sensors"
)

// Reader is the read side the handlers use
type Reader interface {
	Ready() bool
	GetPrefix(prefix string) map[string]string
	SensorStates() []sensors.State
	Sensors() *sensors.Catalog
}

// Writer is the write side the handlers use
type Writer interface {
	Set(ctx context.Context, req commands.SetRequest) error
	Run(ctx context.Context, name string) error
}

// CycleReporter exposes the last poll cycle
type CycleReporter interface {
	LastReport() (poller.CycleReport, bool)
}

type Handler struct {
	reader Reader
	writer Writer
	cycles CycleReporter
	logger *logrus.Entry
}

func NewHandler(reader Reader, writer Writer, cycles CycleReporter, logger *logrus.Entry) *Handler {
	return &Handler{reader: reader, writer: writer, cycles: cycles, logger: logger}
}

type healthResponse struct {
	Status     string     `json:"status"`
	Ready      bool       `json:"ready"`
	LastCycle  *time.Time `json:"last_cycle,omitempty"`
	Committed  bool       `json:"last_cycle_committed"`
	Datapoints int        `json:"datapoints"`
}

type sensorResponse struct {
	sensors.Sensor
	State sensors.State `json:"state"`
}

type setRequest struct {
	Key      string `json:"key"`
	SensorID string `json:"sensor_id"`
	Value    string `json:"value"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		h.logger.WithError(err).Error("failed to encode response")
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.WithError(err).Debug("failed to write response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, commands.ErrWriteRejected):
		code = http.StatusForbidden
	case errors.Is(err, device.ErrRejected):
		code = http.StatusConflict
	case device.IsTimeout(err):
		code = http.StatusGatewayTimeout
	case errors.Is(err, device.ErrTransport):
		code = http.StatusBadGateway
	}
	h.writeJSON(w, code, map[string]string{"error": err.Error()})
}

// Health reports 200 once a snapshot has been committed, 503 before
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "starting", Ready: h.reader.Ready()}
	if report, ok := h.cycles.LastReport(); ok {
		t := report.Started
		resp.LastCycle = &t
		resp.Committed = report.Committed
		resp.Datapoints = report.Datapoints
	}

	code := http.StatusServiceUnavailable
	if resp.Ready {
		resp.Status = "ok"
		code = http.StatusOK
	}
	h.writeJSON(w, code, resp)
}

func (h *Handler) Sensors(w http.ResponseWriter, r *http.Request) {
	catalog := h.reader.Sensors()
	states := make(map[string]sensors.State)
	for _, st := range h.reader.SensorStates() {
		states[st.SensorID] = st
	}

	out := make([]sensorResponse, 0, catalog.Len())
	for _, s := range catalog.Sensors() {
		out = append(out, sensorResponse{Sensor: s, State: states[s.ID]})
	}
	h.writeJSON(w, http.StatusOK, out)
}

// Values returns every key/value pair under ?prefix= (all when empty)
func (h *Handler) Values(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.reader.GetPrefix(r.URL.Query().Get("prefix")))
}

func (h *Handler) SetValue(w http.ResponseWriter, r *http.Request) {
	var req setRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	err := h.writer.Set(r.Context(), commands.SetRequest{Key: req.Key, SensorID: req.SensorID, Value: req.Value})
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RunCommand(w http.ResponseWriter, r *http.Request) {
	if err := h.writer.Run(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
