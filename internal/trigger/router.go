// Package trigger is the single entry point every trigger source calls.
// It maps raw signals onto causes, runs a reconciliation, and re-arms the
// schedule for causes that imply it may be stale.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/dayroll/internal/cause"
	ferrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
	"git.home.luguber.info/inful/dayroll/internal/logfields"
	"git.home.luguber.info/inful/dayroll/internal/metrics"
	"git.home.luguber.info/inful/dayroll/internal/reconcile"
	"git.home.luguber.info/inful/dayroll/internal/schedule"
)

// Reconciler runs one reconciliation.
type Reconciler interface {
	Reconcile(ctx context.Context, c cause.Cause) (reconcile.Outcome, error)
}

// Armer re-arms the boundary wake-ups.
type Armer interface {
	Arm(ctx context.Context) (primary, fallback schedule.WakeRequest, err error)
}

// Registrar re-registers the periodic job.
type Registrar interface {
	Register(ctx context.Context) (schedule.JobStatus, error)
}

// Router normalizes trigger causes into reconciliation calls.
type Router struct {
	engine   Reconciler
	wake     Armer
	periodic Registrar
	recorder metrics.Recorder
}

// NewRouter creates a router around engine.
func NewRouter(engine Reconciler) *Router {
	return &Router{engine: engine, recorder: metrics.NoopRecorder{}}
}

// SetArmer injects the wake scheduler.
func (r *Router) SetArmer(a Armer) { r.wake = a }

// SetRegistrar injects the periodic job registrar.
func (r *Router) SetRegistrar(p Registrar) { r.periodic = p }

// SetRecorder injects a metrics recorder.
func (r *Router) SetRecorder(rec metrics.Recorder) { r.recorder = metrics.OrNoop(rec) }

// Trigger reconciles for c. It never fails and never panics.
func (r *Router) Trigger(ctx context.Context, c cause.Cause) {
	_ = r.Dispatch(ctx, c)
}

// HandleSignal maps a raw external signal name onto a cause and triggers
// it. Unknown signals are logged and dropped.
func (r *Router) HandleSignal(ctx context.Context, raw string) (cause.Cause, bool) {
	c, err := cause.Parse(raw)
	if err != nil {
		slog.Warn("Ignoring unknown trigger signal", logfields.Signal(raw))
		return "", false
	}
	r.Trigger(ctx, c)
	return c, true
}

// Dispatch is Trigger for callers that must report success or failure,
// such as the periodic job. Errors are already logged when returned.
func (r *Router) Dispatch(ctx context.Context, c cause.Cause) (err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = ferrors.RuntimeError("trigger path panicked").
				WithContext("cause", string(c)).
				WithContext(logfields.KeyPanic, fmt.Sprint(rec)).
				Build()
			slog.Error("Recovered panic in trigger path", logfields.Cause(string(c)), logfields.Error(err))
		}
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultFailed
		}
		r.recorder.IncTrigger(string(c), result)
	}()

	if !c.Valid() {
		err = ferrors.ValidationError("unknown trigger cause").WithContext("cause", string(c)).Build()
		slog.Warn("Rejected trigger", logfields.Cause(string(c)))
		return err
	}

	out, err := r.engine.Reconcile(ctx, c)
	if err != nil {
		slog.Warn("Reconciliation degraded",
			logfields.Cause(string(c)), logfields.Phase(string(out.Phase)), logfields.Error(err))
	}

	if c.IsBoundary() {
		r.rearm(ctx, c)
	}

	slog.Debug("Trigger handled",
		logfields.Cause(string(c)),
		logfields.Phase(string(out.Phase)),
		logfields.Today(out.Today),
		logfields.DurationMS(float64(time.Since(start).Microseconds())/1000))
	return err
}

// rearm refreshes the schedule. Scheduler failures leave the system
// degraded but correct, so they are logged only.
func (r *Router) rearm(ctx context.Context, c cause.Cause) {
	if r.wake != nil {
		if _, _, err := r.wake.Arm(ctx); err != nil {
			slog.Warn("Re-arming wake-ups failed", logfields.Cause(string(c)), logfields.Error(err))
		}
	}
	// Armed requests do not survive a restart; the periodic job is
	// re-registered as well.
	if c == cause.Boot && r.periodic != nil {
		if _, err := r.periodic.Register(ctx); err != nil {
			slog.Warn("Re-registering periodic job failed", logfields.Cause(string(c)), logfields.Error(err))
		}
	}
}
