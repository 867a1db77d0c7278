package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/dayroll/internal/cause"
	"git.home.luguber.info/inful/dayroll/internal/diagnostics"
	"git.home.luguber.info/inful/dayroll/internal/logfields"
	"git.home.luguber.info/inful/dayroll/internal/schedule"
	"git.home.luguber.info/inful/dayroll/internal/state"
)

// DiagnosticState is a read-only snapshot for debugging surfaces.
type DiagnosticState struct {
	Status   Status `json:"status"`
	Today    string `json:"today"`
	Timezone string `json:"timezone"`

	DailyState      *state.DailyState `json:"daily_state,omitempty"`
	Namespace       string            `json:"namespace,omitempty"`
	DailyStateValid bool              `json:"daily_state_valid"`

	LastReconciliation *diagnostics.ReconciliationRecord `json:"last_reconciliation,omitempty"`
	LastSchedule       *diagnostics.ScheduleRecord       `json:"last_schedule,omitempty"`

	PeriodicJob       schedule.JobStatus     `json:"periodic_job"`
	Armed             []schedule.WakeRequest `json:"armed"`
	NextBoundary      time.Time              `json:"next_boundary"`
	PendingRecomputes int                    `json:"pending_recomputes"`
}

// TriggerReconciliation reconciles for c. It never fails.
func (d *Daemon) TriggerReconciliation(ctx context.Context, c cause.Cause) {
	d.router.Trigger(ctx, c)
}

// HandleSignal maps a raw external signal onto a cause and reconciles.
func (d *Daemon) HandleSignal(ctx context.Context, raw string) (cause.Cause, bool) {
	return d.router.HandleSignal(ctx, raw)
}

// ArmSchedule arms the primary and fallback wake-ups and registers the
// periodic job. Repeated calls converge on one of each. Failures are
// logged and returned; the system stays correct without them.
func (d *Daemon) ArmSchedule(ctx context.Context) error {
	var errs []error
	if _, _, err := d.wake.Arm(ctx); err != nil {
		slog.Warn("Arming wake-ups failed", logfields.Error(err))
		errs = append(errs, err)
	}
	if _, err := d.periodic.Register(ctx); err != nil {
		slog.Warn("Registering periodic job failed", logfields.Error(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RequestImmediateRefresh reconciles with cause manual_force, which also
// re-arms the wake-ups.
func (d *Daemon) RequestImmediateRefresh(ctx context.Context) {
	d.router.Trigger(ctx, cause.ManualForce)
}

// ScheduleDebugWake arms a one-shot manual_debug wake after seconds.
func (d *Daemon) ScheduleDebugWake(ctx context.Context, seconds int) (schedule.WakeRequest, error) {
	return d.wake.ArmDebug(ctx, seconds)
}

// GetDiagnosticState snapshots the persisted and scheduled state.
func (d *Daemon) GetDiagnosticState(ctx context.Context) DiagnosticState {
	ds := DiagnosticState{
		Status:            d.GetStatus(),
		Today:             d.engine.Today(),
		Timezone:          d.zone.Location().String(),
		PeriodicJob:       d.periodic.Status(),
		Armed:             d.wake.Armed(),
		NextBoundary:      d.wake.NextBoundary(),
		PendingRecomputes: d.handoff.Pending(),
	}
	if l := d.store.LoadDailyState(ctx); l.Found {
		ds.Namespace = l.Namespace
		ds.DailyStateValid = l.Valid
		if l.Valid {
			st := l.State
			ds.DailyState = &st
		}
	}
	if rec, ok := d.diag.LatestReconciliation(ctx); ok {
		ds.LastReconciliation = &rec
	}
	if rec, ok := d.diag.LatestSchedule(ctx); ok {
		ds.LastSchedule = &rec
	}
	return ds
}

// ClearDiagnostics removes the diagnostic records. The daily state is kept.
func (d *Daemon) ClearDiagnostics(ctx context.Context) {
	d.diag.Clear(ctx)
}

// ClearAll removes the diagnostic records and the daily state, then
// refreshes the display.
func (d *Daemon) ClearAll(ctx context.Context) {
	d.store.Purge(ctx, append([]string{state.KeyDailyState}, state.DiagnosticKeys...)...)
	d.refresher.Refresh(ctx, "clear_all")
}

// SetDailyProgress writes an authoritative value for today.
func (d *Daemon) SetDailyProgress(ctx context.Context, percent int, hasGoal bool) (state.DailyState, error) {
	return d.engine.SetProgress(ctx, percent, hasGoal)
}
