package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/dayroll/internal/cause"
	"git.home.luguber.info/inful/dayroll/internal/localtime"
	"git.home.luguber.info/inful/dayroll/internal/logfields"
)

// Clock watcher defaults.
const (
	DefaultClockInterval = 30 * time.Second
	DefaultSkewThreshold = 5 * time.Second
)

// ClockWatcher detects wall-clock jumps and date changes.
type ClockWatcher struct {
	clock     clockwork.Clock
	zone      *localtime.Zone
	interval  time.Duration
	threshold time.Duration
	handler   Handler

	mu       sync.Mutex
	lastWall time.Time
	lastMono time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewClockWatcher creates a watcher sampling every interval.
func NewClockWatcher(clock clockwork.Clock, zone *localtime.Zone, interval, threshold time.Duration, h Handler) *ClockWatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultClockInterval
	}
	if threshold <= 0 {
		threshold = DefaultSkewThreshold
	}
	return &ClockWatcher{clock: clock, zone: zone, interval: interval, threshold: threshold, handler: h}
}

// Start samples the clock until Stop or ctx cancellation.
func (w *ClockWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	now := w.clock.Now()
	w.lastWall, w.lastMono = now, time.Now()

	slog.Info("Starting clock watcher", slog.Duration("interval", w.interval))
	go w.loop(ctx, w.done)
}

// Stop ends sampling and waits for the loop to exit.
func (w *ClockWatcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *ClockWatcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			w.sample(ctx)
		}
	}
}

// sample compares the wall clock against the monotonic clock since the
// previous sample.
func (w *ClockWatcher) sample(ctx context.Context) {
	now := w.clock.Now()
	mono := time.Now()

	w.mu.Lock()
	prevWall, prevMono := w.lastWall, w.lastMono
	w.lastWall, w.lastMono = now, mono
	w.mu.Unlock()

	elapsed := mono.Sub(prevMono)
	if _, fake := w.clock.(*clockwork.FakeClock); fake {
		// A fake clock has no independent monotonic source.
		elapsed = now.Sub(prevWall)
	}
	for _, c := range Detect(w.zone, prevWall, now, elapsed, w.threshold) {
		slog.Info("Clock change detected",
			logfields.Cause(string(c)),
			logfields.Day(w.zone.DayStamp(prevWall)),
			logfields.Today(w.zone.DayStamp(now)))
		if w.handler != nil {
			w.handler.Trigger(ctx, c)
		}
	}
}

// Detect reports the causes implied by the wall clock moving from prev to
// now while elapsed real time passed. A difference above threshold is a
// time change; a different calendar date is a date change.
func Detect(zone *localtime.Zone, prev, now time.Time, elapsed, threshold time.Duration) []cause.Cause {
	var out []cause.Cause
	skew := now.Round(0).Sub(prev.Round(0)) - elapsed
	if skew < 0 {
		skew = -skew
	}
	if skew > threshold {
		out = append(out, cause.TimeChanged)
	}
	if zone.DayStamp(prev) != zone.DayStamp(now) {
		out = append(out, cause.DateChanged)
	}
	return out
}
