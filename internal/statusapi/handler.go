// Package statusapi is the local HTTP surface a view layer uses to read
// session state, issue commands and stream position updates.
package statusapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"robotfleet/internal/apperrors"
	"robotfleet/internal/health"
	"robotfleet/internal/robotapi"
	"robotfleet/internal/session"
	"robotfleet/internal/validation"
)

// maxRequestBodySize limits request bodies; commands carry a few numbers.
const maxRequestBodySize = 64 << 10

// Handler contains HTTP handlers for the status API
type Handler struct {
	session *session.Session
	health  *health.Checker
	logger  *slog.Logger
}

// NewHandler creates a new API handler
func NewHandler(s *session.Session, healthChecker *health.Checker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.With("component", "statusapi")
	}
	return &Handler{session: s, health: healthChecker, logger: logger}
}

// PositionsResponse is the body of position-returning endpoints.
type PositionsResponse struct {
	Robots robotapi.PositionSet `json:"robots"`
	Count  int                  `json:"count"`
}

// AutoRunResponse reports the auto-run flag after a command.
type AutoRunResponse struct {
	AutoRunning bool `json:"autoRunning"`
}

// PollingRequest is the body of PUT /v1/polling.
type PollingRequest struct {
	Enabled    bool     `json:"enabled"`
	IntervalMs *float64 `json:"intervalMs,omitempty"`
}

// PollingResponse reports the poller after a change.
type PollingResponse struct {
	Polling        bool  `json:"polling"`
	PollIntervalMs int64 `json:"pollIntervalMs"`
}

// ResetRequest is the body of POST /v1/reset.
type ResetRequest struct {
	Count *float64 `json:"count,omitempty"`
}

type errorResponse struct {
	Error          string               `json:"error"`
	Field          validation.Field     `json:"field,omitempty"`
	CorrectedValue *float64             `json:"correctedValue,omitempty"`
	Step           session.Step         `json:"step,omitempty"`
	Report         *session.ApplyReport `json:"report,omitempty"`
}

// Positions handles GET /v1/positions
func (h *Handler) Positions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, positions(h.session.Positions()))
}

// State handles GET /v1/state
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.State())
}

// Move handles POST /v1/move
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	var req session.SettingsUpdate
	if !h.decode(w, r, &req) {
		return
	}
	set, err := h.session.Move(r.Context(), session.SettingsUpdate{Meters: req.Meters})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positions(set))
}

// Reset handles POST /v1/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if !h.decode(w, r, &req) {
		return
	}
	set, err := h.session.Reset(r.Context(), session.SettingsUpdate{RobotCount: req.Count})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positions(set))
}

// StartAuto handles POST /v1/auto/start
func (h *Handler) StartAuto(w http.ResponseWriter, r *http.Request) {
	var req session.SettingsUpdate
	if !h.decode(w, r, &req) {
		return
	}
	u := session.SettingsUpdate{Meters: req.Meters, IntervalMs: req.IntervalMs}
	if err := h.session.StartAuto(r.Context(), u); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AutoRunResponse{AutoRunning: h.session.AutoRunning()})
}

// StopAuto handles POST /v1/auto/stop
func (h *Handler) StopAuto(w http.ResponseWriter, r *http.Request) {
	if err := h.session.StopAuto(r.Context()); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AutoRunResponse{AutoRunning: h.session.AutoRunning()})
}

// ToggleAuto handles POST /v1/auto/toggle
func (h *Handler) ToggleAuto(w http.ResponseWriter, r *http.Request) {
	running, err := h.session.ToggleAuto(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AutoRunResponse{AutoRunning: running})
}

// Apply handles POST /v1/apply
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	var req session.SettingsUpdate
	if !h.decode(w, r, &req) {
		return
	}
	report, err := h.session.ApplyChanges(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err, withReport(report))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Polling handles PUT /v1/polling
func (h *Handler) Polling(w http.ResponseWriter, r *http.Request) {
	var req PollingRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.IntervalMs != nil {
		if err := h.session.SetPollInterval(*req.IntervalMs); err != nil {
			h.handleError(w, r, err)
			return
		}
	}
	if req.Enabled {
		if !h.session.Polling() {
			h.session.EnablePolling()
		}
	} else {
		h.session.DisablePolling()
	}
	writeJSON(w, http.StatusOK, PollingResponse{
		Polling:        h.session.Polling(),
		PollIntervalMs: h.session.PollInterval().Milliseconds(),
	})
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.health.Liveness(r.Context()))
}

// Readyz handles GET /readyz - readiness probe.
// Returns 503 while the latest poll of the robot service failed.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func positions(set robotapi.PositionSet) PositionsResponse {
	if set == nil {
		set = robotapi.PositionSet{}
	}
	return PositionsResponse{Robots: set, Count: len(set)}
}

// decode reads an optional JSON body. An empty body leaves v untouched.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body: " + err.Error()})
		return false
	}
	return true
}

type errorOption func(*errorResponse)

func withReport(report session.ApplyReport) errorOption {
	return func(e *errorResponse) {
		e.Report = &report
	}
}

// handleError maps session errors to HTTP status codes and bodies.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, opts ...errorOption) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		h.logger.Error("Command failed", "error", err, "path", r.URL.Path, "status", status)
	} else {
		h.logger.Warn("Command rejected", "error", err, "path", r.URL.Path, "status", status)
	}

	resp := errorResponse{Error: err.Error()}
	var fe *validation.FieldError
	if errors.As(err, &fe) {
		resp.Field = fe.Field
		resp.CorrectedValue = &fe.CorrectedValue
	}
	var se *session.StepError
	if errors.As(err, &se) {
		resp.Step = se.Step
		for _, opt := range opts {
			opt(&resp)
		}
	}
	writeJSON(w, status, resp)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
