package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/dayroll/internal/cause"
	"git.home.luguber.info/inful/dayroll/internal/display"
	"git.home.luguber.info/inful/dayroll/internal/localtime"
	"git.home.luguber.info/inful/dayroll/internal/logfields"
	"git.home.luguber.info/inful/dayroll/internal/metrics"
	"git.home.luguber.info/inful/dayroll/internal/retry"
)

// Periodic job defaults.
const (
	DefaultPeriodicJobName = "daily-reconcile"
	DefaultPeriod          = 24 * time.Hour
	MinInitialDelay        = 5 * time.Minute
	MaxInitialDelay        = 23 * time.Hour
)

// JobState is the lifecycle state of the periodic job.
type JobState string

const (
	JobEnqueued  JobState = "enqueued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobRetrying  JobState = "retrying"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
	JobUnknown   JobState = "not_registered"
)

// JobStatus is the live status of the periodic job.
type JobStatus struct {
	ID           string        `json:"id,omitempty"`
	Name         string        `json:"name"`
	State        JobState      `json:"state"`
	Attempts     int           `json:"attempts"`
	Period       time.Duration `json:"period"`
	InitialDelay time.Duration `json:"initial_delay"`
	RegisteredAt time.Time     `json:"registered_at,omitzero"`
	LastRun      time.Time     `json:"last_run,omitzero"`
	NextRun      time.Time     `json:"next_run,omitzero"`
	LastError    string        `json:"last_error,omitempty"`
	QueriedAt    time.Time     `json:"queried_at"`
}

// Dispatcher runs one reconciliation and reports whether it succeeded.
type Dispatcher interface {
	Dispatch(ctx context.Context, c cause.Cause) error
}

// PeriodicConfig tunes the periodic registrar.
type PeriodicConfig struct {
	Name   string
	Period time.Duration
	Retry  retry.Policy
}

// InitialDelay returns the time until the next boundary, clamped to
// [MinInitialDelay, MaxInitialDelay].
func InitialDelay(zone *localtime.Zone, now time.Time) time.Duration {
	return clampInitialDelay(zone.NextMidnight(now).Sub(now))
}

func clampInitialDelay(d time.Duration) time.Duration {
	if d < 0 {
		return MinInitialDelay
	}
	if d >= 24*time.Hour {
		return MaxInitialDelay
	}
	return d
}

// PeriodicRegistrar keeps exactly one recurring reconciliation job.
type PeriodicRegistrar struct {
	sched    *Scheduler
	zone     *localtime.Zone
	cfg      PeriodicConfig
	runner   Dispatcher
	notifier display.Notifier
	recorder metrics.Recorder

	// regMu serializes registrations; mu guards status only.
	regMu  sync.Mutex
	mu     sync.Mutex
	status JobStatus
}

// NewPeriodicRegistrar creates a registrar on sched.
func NewPeriodicRegistrar(sched *Scheduler, zone *localtime.Zone, cfg PeriodicConfig) *PeriodicRegistrar {
	if cfg.Name == "" {
		cfg.Name = DefaultPeriodicJobName
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Retry.Validate() != nil {
		cfg.Retry = retry.DefaultPolicy()
	}
	if zone == nil {
		zone = localtime.NewZone(nil)
	}
	return &PeriodicRegistrar{
		sched:    sched,
		zone:     zone,
		cfg:      cfg,
		recorder: metrics.NoopRecorder{},
		status:   JobStatus{Name: cfg.Name, State: JobUnknown, Period: cfg.Period},
	}
}

// SetDispatcher injects the reconciliation entry point.
func (p *PeriodicRegistrar) SetDispatcher(d Dispatcher) { p.runner = d }

// SetNotifier injects the display-refresh collaborator.
func (p *PeriodicRegistrar) SetNotifier(n display.Notifier) { p.notifier = n }

// SetRecorder injects a metrics recorder.
func (p *PeriodicRegistrar) SetRecorder(r metrics.Recorder) { p.recorder = metrics.OrNoop(r) }

func (p *PeriodicRegistrar) retryName() string { return p.cfg.Name + "-retry" }

// Register (re)registers the recurring job, superseding any pending
// registration and retry under the same name.
func (p *PeriodicRegistrar) Register(_ context.Context) (JobStatus, error) {
	now := p.sched.Clock().Now()
	delay := InitialDelay(p.zone, now)

	p.regMu.Lock()
	defer p.regMu.Unlock()

	p.sched.Remove(p.retryName())
	job, err := p.sched.Replace(p.cfg.Name,
		gocron.DurationJob(p.cfg.Period),
		gocron.NewTask(p.run),
		gocron.WithStartAt(gocron.WithStartDateTime(now.Add(delay))),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithEventListeners(
			gocron.BeforeJobRuns(p.beforeRun),
		),
	)
	if err != nil {
		slog.Warn("Failed to register periodic job", logfields.JobName(p.cfg.Name), logfields.Error(err))
		return p.Status(), err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = JobStatus{
		ID:           job.ID().String(),
		Name:         p.cfg.Name,
		State:        JobEnqueued,
		Period:       p.cfg.Period,
		InitialDelay: delay,
		RegisteredAt: now,
		NextRun:      now.Add(delay),
	}
	slog.Info("Periodic job registered",
		logfields.JobName(p.cfg.Name),
		logfields.JobID(p.status.ID),
		slog.Duration("initial_delay", delay),
		slog.Duration("period", p.cfg.Period))
	return p.snapshotLocked(now), nil
}

// Cancel removes the job and any pending retry.
func (p *PeriodicRegistrar) Cancel() {
	p.regMu.Lock()
	defer p.regMu.Unlock()
	p.sched.Remove(p.cfg.Name)
	p.sched.Remove(p.retryName())
	p.mu.Lock()
	p.status.State = JobCancelled
	p.mu.Unlock()
}

// Status returns the live job status.
func (p *PeriodicRegistrar) Status() JobStatus {
	now := p.sched.Clock().Now()
	if j, ok := p.sched.Job(p.cfg.Name); ok {
		if next, err := j.NextRun(); err == nil && !next.IsZero() {
			p.mu.Lock()
			if p.status.State != JobRetrying {
				p.status.NextRun = next
			}
			p.mu.Unlock()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked(now)
}

func (p *PeriodicRegistrar) snapshotLocked(now time.Time) JobStatus {
	s := p.status
	s.QueriedAt = now
	return s
}

func (p *PeriodicRegistrar) beforeRun(jobID uuid.UUID, jobName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.State = JobRunning
	slog.Debug("Periodic job starting", logfields.JobName(jobName), logfields.JobID(jobID.String()))
}

// run is the gocron task for both the recurring job and its retries.
func (p *PeriodicRegistrar) run() error {
	return p.execute(context.Background())
}

// execute is the job body: reconcile, refresh the display, report.
func (p *PeriodicRegistrar) execute(ctx context.Context) error {
	now := p.sched.Clock().Now()
	p.mu.Lock()
	p.status.State = JobRunning
	p.status.LastRun = now
	p.mu.Unlock()

	var err error
	if p.runner == nil {
		err = fmt.Errorf("periodic job has no dispatcher")
	} else {
		err = p.runner.Dispatch(ctx, cause.PeriodicJob)
	}
	if p.notifier != nil {
		p.notifier.Refresh(ctx, string(cause.PeriodicJob))
	}

	p.mu.Lock()
	if err == nil {
		p.status.State = JobSucceeded
		p.status.Attempts = 0
		p.status.LastError = ""
		p.mu.Unlock()
		p.recorder.IncPeriodicRun(metrics.ResultSuccess)
		return nil
	}

	p.status.Attempts++
	p.status.LastError = err.Error()
	if p.cfg.Retry.Exhausted(p.status.Attempts) {
		p.status.State = JobFailed
		attempts := p.status.Attempts
		p.mu.Unlock()
		p.recorder.IncPeriodicRun(metrics.ResultFailed)
		slog.Error("Periodic job failed, retries exhausted",
			logfields.JobName(p.cfg.Name), logfields.Attempt(attempts), logfields.Error(err))
		return err
	}

	attempts := p.status.Attempts
	delay := p.cfg.Retry.Delay(attempts)
	p.status.State = JobRetrying
	p.status.NextRun = now.Add(delay)
	p.mu.Unlock()

	p.recorder.IncPeriodicRun(metrics.ResultRetry)
	slog.Warn("Periodic job failed, retry scheduled",
		logfields.JobName(p.cfg.Name),
		logfields.Attempt(attempts),
		slog.Duration("delay", delay),
		logfields.Error(err))
	if _, rerr := p.sched.Replace(p.retryName(),
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(now.Add(delay))),
		gocron.NewTask(p.run),
	); rerr != nil {
		slog.Warn("Failed to schedule periodic retry", logfields.JobName(p.retryName()), logfields.Error(rerr))
	}
	return err
}
