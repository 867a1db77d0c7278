package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	ferrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
	"git.home.luguber.info/inful/dayroll/internal/logfields"
)

// Scheduler wraps a gocron scheduler and enforces one job per name.
type Scheduler struct {
	scheduler gocron.Scheduler
	clock     clockwork.Clock

	mu    sync.Mutex
	names map[string]uuid.UUID
}

// NewScheduler creates a scheduler driven by clock.
func NewScheduler(clock clockwork.Clock, loc *time.Location) (*Scheduler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	opts := []gocron.SchedulerOption{gocron.WithClock(clock)}
	if loc != nil {
		opts = append(opts, gocron.WithLocation(loc))
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryScheduler, "failed to create gocron scheduler").Build()
	}

	return &Scheduler{
		scheduler: s,
		clock:     clock,
		names:     make(map[string]uuid.UUID),
	}, nil
}

// Clock returns the scheduler's clock.
func (s *Scheduler) Clock() clockwork.Clock { return s.clock }

// Start begins the scheduler.
func (s *Scheduler) Start(_ context.Context) {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop(_ context.Context) error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// Replace registers a job under name, superseding any job previously
// registered under the same name. Concurrent calls for one name converge on
// the last registration.
func (s *Scheduler) Replace(name string, def gocron.JobDefinition, task gocron.Task, opts ...gocron.JobOption) (gocron.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(name)

	opts = append([]gocron.JobOption{gocron.WithName(name), gocron.WithTags(name)}, opts...)
	job, err := s.scheduler.NewJob(def, task, opts...)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryScheduler, "failed to register job").
			WithContext("job", name).
			Build()
	}
	s.names[name] = job.ID()
	slog.Debug("Job registered", logfields.JobName(name), logfields.JobID(job.ID().String()))
	return job, nil
}

// Remove drops the job registered under name, if any.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
}

// Forget drops the name mapping when it still points at id. Wake-ups call
// it after they fire so a later Replace does not chase a finished job.
func (s *Scheduler) Forget(name string, id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.names[name]; ok && cur == id {
		delete(s.names, name)
	}
}

func (s *Scheduler) removeLocked(name string) {
	id, ok := s.names[name]
	if !ok {
		return
	}
	delete(s.names, name)
	if err := s.scheduler.RemoveJob(id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		slog.Warn("Failed to remove superseded job",
			logfields.JobName(name), logfields.JobID(id.String()), logfields.Error(err))
	}
}

// Job returns the live job registered under name.
func (s *Scheduler) Job(name string) (gocron.Job, bool) {
	s.mu.Lock()
	id, ok := s.names[name]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	for _, j := range s.scheduler.Jobs() {
		if j.ID() == id {
			return j, true
		}
	}
	return nil, false
}

// Count returns how many gocron jobs carry name.
func (s *Scheduler) Count(name string) int {
	n := 0
	for _, j := range s.scheduler.Jobs() {
		if j.Name() == name {
			n++
		}
	}
	return n
}
