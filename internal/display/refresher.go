package display

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/dayroll/internal/logfields"
	"git.home.luguber.info/inful/dayroll/internal/state"
)

// Frame is what a display surface renders.
type Frame struct {
	Percent    int       `json:"percent"`
	HasGoal    bool      `json:"hasGoal"`
	Day        string    `json:"day,omitempty"`
	Reason     string    `json:"reason"`
	Namespace  string    `json:"namespace,omitempty"`
	RenderedAt time.Time `json:"rendered_at"`
}

// Sink renders a frame.
type Sink interface {
	Name() string
	Show(ctx context.Context, f Frame) error
}

// Notifier is the display-refresh collaborator used by the reconciliation
// engine and the periodic job.
type Notifier interface {
	Refresh(ctx context.Context, reason string)
}

// Refresher implements Notifier on top of the state store.
type Refresher struct {
	store *state.Store
	clock clockwork.Clock
	sinks []Sink
}

// NewRefresher builds a Refresher. With no sinks it logs frames only.
func NewRefresher(store *state.Store, clock clockwork.Clock, sinks ...Sink) *Refresher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if len(sinks) == 0 {
		sinks = []Sink{LogSink{}}
	}
	return &Refresher{store: store, clock: clock, sinks: sinks}
}

// Refresh renders the persisted state on every sink.
func (r *Refresher) Refresh(ctx context.Context, reason string) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Display refresh panicked", logfields.Panic(rec))
		}
	}()

	f := r.Frame(ctx, reason)
	for _, s := range r.sinks {
		if err := s.Show(ctx, f); err != nil {
			slog.Warn("Display sink failed",
				slog.String("sink", s.Name()),
				logfields.Error(err))
		}
	}
}

// Frame reads the state and builds the frame a refresh would render.
// Absent or undecodable state renders as 0% without a goal.
func (r *Refresher) Frame(ctx context.Context, reason string) Frame {
	f := Frame{Reason: reason, RenderedAt: r.clock.Now()}
	l := r.store.LoadDailyState(ctx)
	if !l.Found || !l.Valid {
		return f
	}
	f.Percent = state.ClampPercent(l.State.Percent)
	f.HasGoal = l.State.HasGoal
	f.Day = l.State.Day
	f.Namespace = l.Namespace
	return f
}
