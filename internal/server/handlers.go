package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/dayroll/internal/cause"
	"git.home.luguber.info/inful/dayroll/internal/daemon"
	derrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
	"git.home.luguber.info/inful/dayroll/internal/logfields"
	"git.home.luguber.info/inful/dayroll/internal/version"
)

// maxBodyBytes bounds request bodies on the admin API.
const maxBodyBytes = 64 << 10

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status    string    `json:"status"`
	Uptime    string    `json:"uptime,omitempty"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// TriggerRequest is the body of POST /api/trigger.
type TriggerRequest struct {
	Cause string `json:"cause"`
}

// TriggerResponse acknowledges an accepted trigger.
type TriggerResponse struct {
	Cause cause.Cause `json:"cause"`
}

// DebugWakeRequest is the body of POST /api/debug/wake.
type DebugWakeRequest struct {
	Seconds int `json:"seconds"`
}

// ProgressRequest is the body of PUT /api/progress.
type ProgressRequest struct {
	Percent int  `json:"percent"`
	HasGoal bool `json:"hasGoal"`
}

// ClearResponse reports what DELETE /api/diagnostics removed.
type ClearResponse struct {
	Cleared string `json:"cleared"`
}

// writeJSON serializes v into a buffer first so a failed encode never
// sends a partial response.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("failed writing JSON response body", logfields.Error(err))
		return err
	}
	return nil
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := writeJSON(w, status, v); err != nil {
		s.errorAdapter.WriteErrorResponse(w, r,
			derrors.WrapError(err, derrors.CategoryInternal, "failed to write response").Build())
	}
}

func (s *Server) requireMethod(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	for _, m := range allowed {
		if r.Method == m {
			return true
		}
	}
	err := derrors.ValidationError("invalid HTTP method").
		WithContext("method", r.Method).
		WithContext("allowed_methods", allowed).
		Build()
	s.errorAdapter.WriteErrorResponse(w, r, err)
	return false
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w, r,
			derrors.WrapError(err, derrors.CategoryValidation, "failed to read request body").Build())
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		s.errorAdapter.WriteErrorResponse(w, r,
			derrors.WrapError(err, derrors.CategoryValidation, "invalid JSON body").Build())
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	status := s.runtime.GetStatus()
	resp := HealthResponse{Status: string(status), Version: version.Version, Timestamp: time.Now().UTC()}
	if start := s.runtime.GetStartTime(); !start.IsZero() {
		resp.Uptime = time.Since(start).Round(time.Second).String()
	}
	code := http.StatusOK
	if status != daemon.StatusRunning {
		code = http.StatusServiceUnavailable
	}
	s.respond(w, r, code, resp)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	if r.Method == http.MethodGet {
		s.respond(w, r, http.StatusOK, s.runtime.GetDiagnosticState(r.Context()))
		return
	}
	if all := r.URL.Query().Get("all"); all == "1" || all == "true" {
		s.runtime.ClearAll(r.Context())
		s.respond(w, r, http.StatusOK, ClearResponse{Cleared: "all"})
		return
	}
	s.runtime.ClearDiagnostics(r.Context())
	s.respond(w, r, http.StatusOK, ClearResponse{Cleared: "diagnostics"})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var req TriggerRequest
	if !s.decode(w, r, &req) {
		return
	}
	c, err := cause.Parse(req.Cause)
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	s.runtime.TriggerReconciliation(r.Context(), c)
	s.respond(w, r, http.StatusAccepted, TriggerResponse{Cause: c})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	s.runtime.RequestImmediateRefresh(r.Context())
	s.respond(w, r, http.StatusAccepted, TriggerResponse{Cause: cause.ManualForce})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.runtime.ArmSchedule(r.Context()); err != nil {
		s.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, s.runtime.GetDiagnosticState(r.Context()))
}

func (s *Server) handleDebugWake(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var req DebugWakeRequest
	if !s.decode(w, r, &req) {
		return
	}
	wake, err := s.runtime.ScheduleDebugWake(r.Context(), req.Seconds)
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, wake)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPut) {
		return
	}
	var req ProgressRequest
	if !s.decode(w, r, &req) {
		return
	}
	saved, err := s.runtime.SetDailyProgress(r.Context(), req.Percent, req.HasGoal)
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, saved)
}
