// Package daemon wires the reconciliation components into one process and
// exposes the boundary operations used by the CLI and the admin API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/dayroll/internal/cause"
	"git.home.luguber.info/inful/dayroll/internal/config"
	"git.home.luguber.info/inful/dayroll/internal/diagnostics"
	"git.home.luguber.info/inful/dayroll/internal/display"
	"git.home.luguber.info/inful/dayroll/internal/localtime"
	"git.home.luguber.info/inful/dayroll/internal/logfields"
	"git.home.luguber.info/inful/dayroll/internal/metrics"
	"git.home.luguber.info/inful/dayroll/internal/natsbus"
	"git.home.luguber.info/inful/dayroll/internal/recompute"
	"git.home.luguber.info/inful/dayroll/internal/reconcile"
	"git.home.luguber.info/inful/dayroll/internal/schedule"
	"git.home.luguber.info/inful/dayroll/internal/state"
	"git.home.luguber.info/inful/dayroll/internal/trigger"
	"git.home.luguber.info/inful/dayroll/internal/watch"
)

// Status represents the current state of the daemon
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// Daemon owns every component of one dayroll process.
type Daemon struct {
	cfg       *config.Config
	clock     clockwork.Clock
	offline   bool
	closed    bool
	status    atomic.Value // Status
	startTime time.Time
	mu        sync.Mutex

	zone      *localtime.Zone
	store     *state.Store
	diag      *diagnostics.Recorder
	refresher *display.Refresher
	handoff   *recompute.Handoff
	engine    *reconcile.Engine
	sched     *schedule.Scheduler
	wake      *schedule.WakeScheduler
	periodic  *schedule.PeriodicRegistrar
	router    *trigger.Router

	clockWatcher *watch.ClockWatcher
	tzWatcher    *watch.TimezoneWatcher

	bus         *natsbus.Client
	natsSurface *recompute.NATSSurface
	triggerSub  *nats.Subscription

	registry *prom.Registry
	recorder metrics.Recorder

	// injected through options
	backend state.Backend
	surface recompute.Surface
	sinks   []display.Sink
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(d *Daemon) { d.clock = c }
}

// WithBackend replaces the configured storage backend.
func WithBackend(b state.Backend) Option {
	return func(d *Daemon) { d.backend = b }
}

// WithSurface replaces the configured recompute surface.
func WithSurface(s recompute.Surface) Option {
	return func(d *Daemon) { d.surface = s }
}

// WithSinks replaces the configured display sinks.
func WithSinks(sinks ...display.Sink) Option {
	return func(d *Daemon) { d.sinks = sinks }
}

// WithOffline builds a one-shot instance for CLI use: no watchers, no
// trigger subscription and no re-arming, since wake-ups registered in a
// short-lived process would never fire.
func WithOffline() Option {
	return func(d *Daemon) { d.offline = true }
}

// New creates a daemon from cfg. Nothing runs until Start.
func New(cfg *config.Config, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	d := &Daemon{cfg: cfg}
	for _, opt := range opts {
		opt(d)
	}
	if d.clock == nil {
		d.clock = clockwork.NewRealClock()
	}
	d.status.Store(StatusStopped)

	zone, err := localtime.Load(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone: %w", err)
	}
	d.zone = zone

	d.recorder = metrics.NoopRecorder{}
	if config.Enabled(cfg.Metrics.Enabled, true) {
		d.registry = prom.NewRegistry()
		d.recorder = metrics.NewPrometheusRecorder(d.registry)
	}

	if err := d.connectBus(); err != nil {
		return nil, err
	}
	if err := d.openStore(); err != nil {
		d.closeBus()
		return nil, err
	}

	d.diag = diagnostics.NewRecorder(d.store)
	d.refresher = display.NewRefresher(d.store, d.clock, d.displaySinks()...)

	surface, err := d.recomputeSurface()
	if err != nil {
		d.closeResources()
		return nil, err
	}
	d.handoff = recompute.NewHandoff(surface, d.clock, cfg.Recompute.Deadline.D())
	d.handoff.SetRecorder(d.recorder)

	d.engine = reconcile.NewEngine(d.store, d.diag, d.zone, d.clock)
	d.engine.SetNotifier(d.refresher)
	d.engine.SetRequester(d.handoff)
	d.engine.SetRecorder(d.recorder)
	d.handoff.SetSink(d.engine)

	if err := d.buildScheduling(); err != nil {
		d.closeResources()
		return nil, err
	}

	d.router = trigger.NewRouter(d.engine)
	d.router.SetRecorder(d.recorder)
	if !d.offline {
		d.router.SetArmer(d.wake)
		d.router.SetRegistrar(d.periodic)
	}
	d.wake.SetHandler(d.router)
	d.periodic.SetDispatcher(d.router)

	if !d.offline {
		d.buildWatchers()
	}
	return d, nil
}

func (d *Daemon) buildScheduling() error {
	cfg := d.cfg
	sched, err := schedule.NewScheduler(d.clock, d.zone.Location())
	if err != nil {
		return err
	}
	d.sched = sched

	d.wake = schedule.NewWakeScheduler(sched, d.zone, d.diag, schedule.WakeConfig{
		ToleranceWindow: cfg.Schedule.ToleranceWindow.D(),
		FallbackOffset:  cfg.Schedule.FallbackOffset.D(),
		DebugMax:        time.Duration(cfg.Schedule.DebugMaxSeconds) * time.Second,
	})
	d.wake.SetRecorder(d.recorder)

	policy, err := config.RetryPolicy(cfg)
	if err != nil {
		return err
	}
	d.periodic = schedule.NewPeriodicRegistrar(sched, d.zone, schedule.PeriodicConfig{
		Name:   cfg.Schedule.PeriodicJobName,
		Period: cfg.Schedule.PeriodicInterval.D(),
		Retry:  policy,
	})
	d.periodic.SetNotifier(d.refresher)
	d.periodic.SetRecorder(d.recorder)
	return nil
}

func (d *Daemon) buildWatchers() {
	w := d.cfg.Watch
	if config.Enabled(w.Clock, true) {
		d.clockWatcher = watch.NewClockWatcher(d.clock, d.zone, w.ClockInterval.D(), w.ClockSkewThreshold.D(), d.router)
	}
	if config.Enabled(w.Timezone, true) {
		tw, err := watch.NewTimezoneWatcher(w.TimezoneFile, d.zone, d.clock, d.router)
		if err != nil {
			slog.Warn("Timezone watcher unavailable", logfields.Path(w.TimezoneFile), logfields.Error(err))
			return
		}
		d.tzWatcher = tw
	}
}

// Start starts the scheduler, watchers and subscriptions, then reconciles
// with cause boot, which also arms the wake-ups and the periodic job.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.closed || d.GetStatus() != StatusStopped {
		d.mu.Unlock()
		return fmt.Errorf("daemon cannot start from state %s", d.GetStatus())
	}
	d.status.Store(StatusStarting)
	d.startTime = d.clock.Now()
	slog.Info("Starting dayroll daemon",
		slog.String("timezone", d.zone.Location().String()),
		logfields.Namespace(d.store.Canonical()),
		slog.Bool("offline", d.offline))

	d.sched.Start(ctx)

	if d.natsSurface != nil {
		if err := d.natsSurface.Listen(d.handoff); err != nil {
			slog.Warn("Recompute result subscription failed", logfields.Error(err))
		}
	}
	if !d.offline {
		d.subscribeTriggers()
		if d.clockWatcher != nil {
			d.clockWatcher.Start(ctx)
		}
		if d.tzWatcher != nil {
			if err := d.tzWatcher.Start(ctx); err != nil {
				slog.Warn("Failed to start timezone watcher", logfields.Error(err))
			}
		}
	}

	d.status.Store(StatusRunning)
	d.mu.Unlock()

	if !d.offline {
		d.router.Trigger(ctx, cause.Boot)
	}
	slog.Info("dayroll daemon started")
	return nil
}

func (d *Daemon) subscribeTriggers() {
	if d.bus == nil || !d.cfg.NATS.Triggers {
		return
	}
	sub, err := d.router.Subscribe(d.bus.Conn(), d.bus.Subject(natsbus.SubjectTrigger))
	if err != nil {
		slog.Warn("Trigger subscription failed", logfields.Error(err))
		return
	}
	d.triggerSub = sub
}

// Stop gracefully shuts down the daemon. In-flight recomputes get until
// their deadline to finish before they are terminated.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.status.Store(StatusStopping)
	slog.Info("Stopping dayroll daemon")

	var errs []error
	if d.clockWatcher != nil {
		d.clockWatcher.Stop()
	}
	if d.tzWatcher != nil {
		if err := d.tzWatcher.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.triggerSub != nil {
		if err := d.triggerSub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
		d.triggerSub = nil
	}
	if err := d.sched.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	d.settle(ctx)
	d.handoff.Close()
	if d.natsSurface != nil {
		if err := d.natsSurface.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if d.bus != nil {
		if err := d.bus.Drain(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	d.status.Store(StatusStopped)
	if !d.startTime.IsZero() {
		slog.Info("dayroll daemon stopped", slog.Duration("uptime", d.clock.Since(d.startTime)))
	}
	return errors.Join(errs...)
}

// settle waits for in-flight recompute requests, bounded by the deadline.
func (d *Daemon) settle(ctx context.Context) {
	if _, never := d.handoff.Surface().(recompute.NoopSurface); never || d.handoff.Pending() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.handoff.Deadline())
	defer cancel()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for d.handoff.Pending() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// GetStatus returns the current daemon status
func (d *Daemon) GetStatus() Status {
	status, ok := d.status.Load().(Status)
	if !ok {
		return StatusError
	}
	return status
}

// GetStartTime returns the daemon start time
func (d *Daemon) GetStartTime() time.Time {
	return d.startTime
}

// MetricsHandler serves the Prometheus registry, or nil when metrics are disabled.
func (d *Daemon) MetricsHandler() http.Handler {
	if d.registry == nil {
		return nil
	}
	return metrics.HTTPHandler(d.registry)
}
