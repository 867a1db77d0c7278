// Package server exposes the daemon's boundary operations over an admin
// HTTP API and provides the matching client used by the CLI.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"git.home.luguber.info/inful/dayroll/internal/cause"
	"git.home.luguber.info/inful/dayroll/internal/daemon"
	derrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
	"git.home.luguber.info/inful/dayroll/internal/logfields"
	"git.home.luguber.info/inful/dayroll/internal/schedule"
	smw "git.home.luguber.info/inful/dayroll/internal/server/middleware"
	"git.home.luguber.info/inful/dayroll/internal/state"
)

// Runtime is the subset of the daemon the admin API drives.
type Runtime interface {
	GetStatus() daemon.Status
	GetStartTime() time.Time
	TriggerReconciliation(ctx context.Context, c cause.Cause)
	ArmSchedule(ctx context.Context) error
	RequestImmediateRefresh(ctx context.Context)
	ScheduleDebugWake(ctx context.Context, seconds int) (schedule.WakeRequest, error)
	GetDiagnosticState(ctx context.Context) daemon.DiagnosticState
	ClearDiagnostics(ctx context.Context)
	ClearAll(ctx context.Context)
	SetDailyProgress(ctx context.Context, percent int, hasGoal bool) (state.DailyState, error)
}

// Server manages the admin HTTP endpoint.
type Server struct {
	addr         string
	runtime      Runtime
	metrics      http.Handler
	errorAdapter *derrors.HTTPErrorAdapter
	httpServer   *http.Server
	listener     net.Listener

	// middleware chain
	mchain func(http.Handler) http.Handler
}

// New constructs the admin server. metrics may be nil.
func New(addr string, runtime Runtime, metrics http.Handler) *Server {
	s := &Server{
		addr:         addr,
		runtime:      runtime,
		metrics:      metrics,
		errorAdapter: derrors.NewHTTPErrorAdapter(slog.Default()),
	}
	s.mchain = smw.Chain(slog.Default(), s.errorAdapter)
	return s
}

// Handler returns the routed and wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	mux.HandleFunc("/api/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("/api/trigger", s.handleTrigger)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	mux.HandleFunc("/api/schedule", s.handleSchedule)
	mux.HandleFunc("/api/debug/wake", s.handleDebugWake)
	mux.HandleFunc("/api/progress", s.handleProgress)

	return s.mchain(mux)
}

// Start binds the listen address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryTransport, "failed to bind admin address").
			WithContext("addr", s.addr).
			Build()
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Admin server failed", logfields.Error(err))
		}
	}()
	slog.Info("Admin server listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin server shutdown: %w", err)
	}
	return nil
}
