package reconcile

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/dayroll/internal/cause"
	"git.home.luguber.info/inful/dayroll/internal/diagnostics"
	"git.home.luguber.info/inful/dayroll/internal/display"
	"git.home.luguber.info/inful/dayroll/internal/localtime"
	"git.home.luguber.info/inful/dayroll/internal/logfields"
	"git.home.luguber.info/inful/dayroll/internal/metrics"
	"git.home.luguber.info/inful/dayroll/internal/recompute"
	"git.home.luguber.info/inful/dayroll/internal/state"
)

// Requester issues authoritative recompute requests.
type Requester interface {
	Request(ctx context.Context, day string, c cause.Cause) recompute.Request
}

// Outcome describes what a single reconciliation did.
type Outcome struct {
	Cause        cause.Cause
	Phase        diagnostics.Phase
	Today        string
	PriorHasGoal bool
	// Namespace the prior state was read from; empty when absent.
	Namespace string
	// RequestID of the recompute issued on the reset path.
	RequestID string
}

// Reset reports whether the reset branch was taken.
func (o Outcome) Reset() bool { return o.Phase == diagnostics.PhaseOptimisticReset }

// Engine is the reconciliation state machine.
type Engine struct {
	store    *state.Store
	diag     *diagnostics.Recorder
	zone     *localtime.Zone
	clock    clockwork.Clock
	notifier display.Notifier
	requests Requester
	recorder metrics.Recorder
}

// NewEngine wires an engine. Notifier and recompute requester are optional
// and injected with their setters.
func NewEngine(store *state.Store, diag *diagnostics.Recorder, zone *localtime.Zone, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if zone == nil {
		zone = localtime.NewZone(nil)
	}
	return &Engine{
		store:    store,
		diag:     diag,
		zone:     zone,
		clock:    clock,
		recorder: metrics.NoopRecorder{},
	}
}

// SetNotifier injects the display-refresh collaborator.
func (e *Engine) SetNotifier(n display.Notifier) { e.notifier = n }

// SetRequester injects the authoritative recompute handoff.
func (e *Engine) SetRequester(r Requester) { e.requests = r }

// SetRecorder injects a metrics recorder.
func (e *Engine) SetRecorder(r metrics.Recorder) { e.recorder = metrics.OrNoop(r) }

// Today returns the current local date stamp.
func (e *Engine) Today() string { return e.zone.DayStamp(e.clock.Now()) }

// Reconcile runs one reconciliation for cause. A store write failure is
// returned after the remaining steps ran; the caller decides whether to
// surface it.
func (e *Engine) Reconcile(ctx context.Context, c cause.Cause) (Outcome, error) {
	now := e.clock.Now()
	today := e.zone.DayStamp(now)

	l := e.store.LoadDailyState(ctx)
	needsReset, prior := decide(l, today)
	out := Outcome{Cause: c, Today: today, PriorHasGoal: prior, Namespace: l.Namespace}

	if !needsReset {
		out.Phase = diagnostics.PhaseAlreadyToday
		e.diag.RecordReconciliation(ctx, diagnostics.NewNoopRecord(c, today, now))
		e.recorder.IncReconciliation(string(c), string(out.Phase))
		slog.Debug("State already current",
			logfields.Cause(string(c)),
			logfields.Today(today),
			logfields.Namespace(l.Namespace))
		return out, nil
	}

	out.Phase = diagnostics.PhaseOptimisticReset
	_, writeErr := e.store.SaveDailyState(ctx, state.NewDailyState(0, prior, today, now))
	if writeErr != nil {
		slog.Warn("Optimistic reset write failed",
			logfields.Cause(string(c)),
			logfields.Today(today),
			logfields.Error(writeErr))
	}
	e.diag.RecordReconciliation(ctx, diagnostics.NewResetRecord(c, today, prior, now))
	e.recorder.IncReconciliation(string(c), string(out.Phase))
	slog.Info("Daily progress reset",
		logfields.Cause(string(c)),
		logfields.Day(l.State.Day),
		logfields.Today(today),
		logfields.HasGoal(prior))

	if e.notifier != nil {
		e.notifier.Refresh(ctx, string(c))
	}
	if e.requests != nil {
		out.RequestID = e.requests.Request(ctx, today, c).ID
	}
	return out, writeErr
}

// decide returns whether a reset is due and the hasGoal value to carry.
func decide(l state.Lookup, today string) (needsReset, priorHasGoal bool) {
	if !l.Found {
		return true, false
	}
	if !l.Valid {
		return true, false
	}
	if !l.State.HasValidDay() {
		return true, l.State.HasGoal
	}
	return l.State.Day != today, l.State.HasGoal
}

// ApplyRecompute writes an authoritative result. Results must name the day
// they were computed for; untagged results and results for any day other
// than the current local date are discarded.
func (e *Engine) ApplyRecompute(ctx context.Context, res recompute.Result) error {
	now := e.clock.Now()
	today := e.zone.DayStamp(now)
	if res.Day != today {
		e.recorder.IncRecompute(recompute.OutcomeDiscarded)
		slog.Info("Discarding stale recompute result",
			logfields.RequestID(res.RequestID),
			logfields.Day(res.Day),
			logfields.Today(today))
		return nil
	}

	saved, err := e.store.SaveDailyState(ctx, state.NewDailyState(res.Percent, res.HasGoal, today, now))
	if err != nil {
		return err
	}
	slog.Info("Authoritative progress applied",
		logfields.RequestID(res.RequestID),
		logfields.Percent(saved.Percent),
		logfields.HasGoal(saved.HasGoal),
		logfields.Today(today))
	if e.notifier != nil {
		e.notifier.Refresh(ctx, "recompute")
	}
	return nil
}

// SetProgress is the authoritative write used by the surrounding app when it
// computes progress itself. The value is clamped and stamped with today.
func (e *Engine) SetProgress(ctx context.Context, percent int, hasGoal bool) (state.DailyState, error) {
	now := e.clock.Now()
	saved, err := e.store.SaveDailyState(ctx, state.NewDailyState(percent, hasGoal, e.zone.DayStamp(now), now))
	if err != nil {
		return saved, err
	}
	slog.Info("Daily progress set",
		logfields.Percent(saved.Percent),
		logfields.HasGoal(saved.HasGoal),
		logfields.Day(saved.Day))
	if e.notifier != nil {
		e.notifier.Refresh(ctx, "set_progress")
	}
	return saved, nil
}
