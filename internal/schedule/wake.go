package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/dayroll/internal/cause"
	"git.home.luguber.info/inful/dayroll/internal/diagnostics"
	ferrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
	"git.home.luguber.info/inful/dayroll/internal/localtime"
	"git.home.luguber.info/inful/dayroll/internal/logfields"
	"git.home.luguber.info/inful/dayroll/internal/metrics"
)

// Kind distinguishes wake requests.
type Kind string

const (
	KindPrimary  Kind = "primary"
	KindFallback Kind = "fallback"
	KindDebug    Kind = "debug"
)

// Fixed job names; re-arming replaces by name.
const (
	JobWakePrimary  = "wake-primary"
	JobWakeFallback = "wake-fallback"
	JobWakeDebug    = "wake-debug"
)

// Defaults for WakeConfig.
const (
	DefaultToleranceWindow = 15 * time.Minute
	DefaultFallbackOffset  = 60 * time.Second
	DefaultDebugMax        = time.Hour
)

// WakeConfig tunes the wake scheduler.
type WakeConfig struct {
	// ToleranceWindow is how late a delivery may be before it is logged
	// as late. Delivery is never refused.
	ToleranceWindow time.Duration
	FallbackOffset  time.Duration
	DebugMax        time.Duration
}

func (c WakeConfig) withDefaults() WakeConfig {
	if c.ToleranceWindow <= 0 {
		c.ToleranceWindow = DefaultToleranceWindow
	}
	if c.FallbackOffset <= 0 {
		c.FallbackOffset = DefaultFallbackOffset
	}
	if c.DebugMax <= 0 {
		c.DebugMax = DefaultDebugMax
	}
	return c
}

// WakeRequest is one armed point-in-time wake-up.
type WakeRequest struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Kind    Kind          `json:"kind"`
	Target  time.Time     `json:"target"`
	Window  time.Duration `json:"window"`
	ArmedAt time.Time     `json:"armed_at"`
}

// Handler receives fired wake-ups. The trigger router implements it.
type Handler interface {
	Trigger(ctx context.Context, c cause.Cause)
}

// WakeScheduler arms the primary, fallback and debug wake-ups.
type WakeScheduler struct {
	sched    *Scheduler
	zone     *localtime.Zone
	diag     *diagnostics.Recorder
	cfg      WakeConfig
	handler  Handler
	recorder metrics.Recorder

	mu    sync.Mutex
	armed map[Kind]WakeRequest
}

// NewWakeScheduler creates a wake scheduler on sched.
func NewWakeScheduler(sched *Scheduler, zone *localtime.Zone, diag *diagnostics.Recorder, cfg WakeConfig) *WakeScheduler {
	if zone == nil {
		zone = localtime.NewZone(nil)
	}
	return &WakeScheduler{
		sched:    sched,
		zone:     zone,
		diag:     diag,
		cfg:      cfg.withDefaults(),
		recorder: metrics.NoopRecorder{},
		armed:    make(map[Kind]WakeRequest),
	}
}

// SetHandler injects the receiver of fired wake-ups.
func (w *WakeScheduler) SetHandler(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = h
}

// SetRecorder injects a metrics recorder.
func (w *WakeScheduler) SetRecorder(r metrics.Recorder) { w.recorder = metrics.OrNoop(r) }

// Config returns the effective configuration.
func (w *WakeScheduler) Config() WakeConfig { return w.cfg }

// NextBoundary returns the local midnight strictly after the current time.
func (w *WakeScheduler) NextBoundary() time.Time {
	return w.zone.NextMidnight(w.sched.Clock().Now())
}

// Arm (re)arms the primary and fallback wake-ups for the next boundary and
// records the schedule. It is safe to call any number of times.
func (w *WakeScheduler) Arm(ctx context.Context) (primary, fallback WakeRequest, err error) {
	now := w.sched.Clock().Now()
	boundary := w.zone.NextMidnight(now)
	fallbackAt := boundary.Add(w.cfg.FallbackOffset)

	primary, perr := w.arm(KindPrimary, JobWakePrimary, boundary, now, cause.BoundaryAlarm)
	fallback, ferr := w.arm(KindFallback, JobWakeFallback, fallbackAt, now, cause.BoundaryAlarm)

	w.diag.RecordSchedule(ctx, diagnostics.NewScheduleRecord(now, boundary, fallbackAt, w.cfg.ToleranceWindow))
	slog.Info("Boundary wake-ups armed",
		logfields.Target(boundary),
		slog.Time("fallback", fallbackAt),
		slog.Duration("window", w.cfg.ToleranceWindow))

	if perr != nil {
		return primary, fallback, perr
	}
	return primary, fallback, ferr
}

// ArmDebug arms a one-off wake-up seconds from now delivering manual_debug.
func (w *WakeScheduler) ArmDebug(_ context.Context, seconds int) (WakeRequest, error) {
	d := time.Duration(seconds) * time.Second
	if seconds < 1 || d > w.cfg.DebugMax {
		return WakeRequest{}, ferrors.ValidationError(
			fmt.Sprintf("debug wake delay must be between 1 and %d seconds", int(w.cfg.DebugMax/time.Second))).
			WithContext("seconds", seconds).
			Build()
	}
	now := w.sched.Clock().Now()
	return w.arm(KindDebug, JobWakeDebug, now.Add(d), now, cause.ManualDebug)
}

func (w *WakeScheduler) arm(kind Kind, name string, target, now time.Time, c cause.Cause) (WakeRequest, error) {
	req := WakeRequest{Name: name, Kind: kind, Target: target, Window: w.cfg.ToleranceWindow, ArmedAt: now}

	// The registry is updated under the same lock as the scheduler so the
	// two never disagree about which request is live.
	w.mu.Lock()
	defer w.mu.Unlock()

	job, err := w.sched.Replace(name,
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(target)),
		gocron.NewTask(func() { w.fire(name, c) }),
	)
	if err != nil {
		delete(w.armed, kind)
		slog.Warn("Failed to arm wake-up",
			logfields.JobName(name), logfields.Target(target), logfields.Error(err))
		return req, err
	}
	req.ID = job.ID().String()
	w.armed[kind] = req
	w.recorder.IncWakeArmed(string(kind))
	return req, nil
}

// fire runs on a gocron worker goroutine.
func (w *WakeScheduler) fire(name string, c cause.Cause) {
	now := w.sched.Clock().Now()

	w.mu.Lock()
	var req WakeRequest
	var found bool
	for k, r := range w.armed {
		if r.Name == name {
			req, found = r, true
			delete(w.armed, k)
			break
		}
	}
	h := w.handler
	w.mu.Unlock()

	if found {
		// One-time jobs are gone from gocron once they run.
		if id, err := uuid.Parse(req.ID); err == nil {
			w.sched.Forget(name, id)
		}
	}

	late := found && now.After(req.Target.Add(req.Window))
	kind := string(req.Kind)
	if !found {
		kind = name
	}
	w.recorder.IncWakeFired(kind, late)
	if late {
		slog.Warn("Wake-up delivered outside tolerance window",
			logfields.JobName(name), logfields.Target(req.Target), slog.Duration("delay", now.Sub(req.Target)))
	} else {
		slog.Info("Wake-up fired", logfields.JobName(name), logfields.Cause(string(c)))
	}

	if h == nil {
		slog.Error("Wake scheduler handler not set", logfields.JobName(name))
		return
	}
	h.Trigger(context.Background(), c)
}

// Armed lists live wake requests ordered by target.
func (w *WakeScheduler) Armed() []WakeRequest {
	w.mu.Lock()
	out := make([]WakeRequest, 0, len(w.armed))
	for _, r := range w.armed {
		out = append(out, r)
	}
	w.mu.Unlock()
	slices.SortFunc(out, func(a, b WakeRequest) int { return a.Target.Compare(b.Target) })
	return out
}
