package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/dayroll/internal/cause"
	"git.home.luguber.info/inful/dayroll/internal/localtime"
	"git.home.luguber.info/inful/dayroll/internal/logfields"
)

// DefaultZoneinfoPath is the host timezone file on most Linux systems.
const DefaultZoneinfoPath = "/etc/localtime"

// TimezoneWatcher monitors the zoneinfo file and reloads the process zone
// when it changes.
type TimezoneWatcher struct {
	path     string
	zone     *localtime.Zone
	clock    clockwork.Clock
	handler  Handler
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu       sync.Mutex
	timer    clockwork.Timer
	stopChan chan struct{}
	stopped  bool
}

// NewTimezoneWatcher creates a watcher for path.
func NewTimezoneWatcher(path string, zone *localtime.Zone, clock clockwork.Clock, h Handler) (*TimezoneWatcher, error) {
	if path == "" {
		path = DefaultZoneinfoPath
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to resolve zoneinfo path: %w", err)
	}

	return &TimezoneWatcher{
		path:     absPath,
		zone:     zone,
		clock:    clock,
		handler:  h,
		watcher:  watcher,
		debounce: time.Second,
		stopChan: make(chan struct{}),
	}, nil
}

// SetDebounce overrides the delay between the last file event and the reload.
func (tw *TimezoneWatcher) SetDebounce(d time.Duration) { tw.debounce = d }

// Start begins monitoring. The directory is watched rather than the file:
// timezone tools replace /etc/localtime instead of writing to it.
func (tw *TimezoneWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(tw.path)
	if err := tw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch zoneinfo directory %s: %w", dir, err)
	}
	slog.Info("Starting timezone watcher", logfields.Path(tw.path))
	go tw.watchLoop(ctx)
	return nil
}

// Stop stops the watcher.
func (tw *TimezoneWatcher) Stop() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.stopped {
		return nil
	}
	tw.stopped = true
	close(tw.stopChan)
	if tw.timer != nil {
		tw.timer.Stop()
	}
	return tw.watcher.Close()
}

func (tw *TimezoneWatcher) watchLoop(ctx context.Context) {
	file := filepath.Base(tw.path)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tw.stopChan:
			return
		case event, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != file {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				slog.Debug("Zoneinfo change detected", logfields.Path(event.Name), slog.String("op", event.Op.String()))
				tw.schedule(ctx)
			}
		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Timezone watcher error", logfields.Error(err))
		}
	}
}

// schedule (re)starts the debounce timer.
func (tw *TimezoneWatcher) schedule(ctx context.Context) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.stopped {
		return
	}
	if tw.timer != nil {
		tw.timer.Stop()
	}
	tw.timer = tw.clock.AfterFunc(tw.debounce, func() { tw.reload(ctx) })
}

// reload swaps the zone and triggers timezone_changed when the offset or
// name actually changed.
func (tw *TimezoneWatcher) reload(ctx context.Context) {
	before := tw.zone.Location()
	now := tw.clock.Now()
	_, beforeOffset := now.In(before).Zone()

	loc, err := tw.zone.ReloadFromFile(tw.path)
	if err != nil {
		slog.Warn("Failed to reload timezone", logfields.Path(tw.path), logfields.Error(err))
		return
	}
	name, offset := now.In(loc).Zone()
	if offset == beforeOffset && name == zoneName(before, now) {
		slog.Debug("Zoneinfo rewritten without an effective change", slog.String("zone", name))
		return
	}

	slog.Info("Timezone changed",
		slog.String("zone", name),
		slog.Int("offset_seconds", offset),
		logfields.Today(tw.zone.DayStamp(now)))
	if tw.handler != nil {
		tw.handler.Trigger(ctx, cause.TimezoneChanged)
	}
}

func zoneName(loc *time.Location, at time.Time) string {
	name, _ := at.In(loc).Zone()
	return name
}
