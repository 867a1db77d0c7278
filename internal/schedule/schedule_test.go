package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dayroll/internal/cause"
	"git.home.luguber.info/inful/dayroll/internal/diagnostics"
	ferrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
	"git.home.luguber.info/inful/dayroll/internal/localtime"
	"git.home.luguber.info/inful/dayroll/internal/metrics"
	"git.home.luguber.info/inful/dayroll/internal/retry"
	"git.home.luguber.info/inful/dayroll/internal/state"
)

type recordingHandler struct {
	mu     sync.Mutex
	causes []cause.Cause
}

func (h *recordingHandler) Trigger(_ context.Context, c cause.Cause) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.causes = append(h.causes, c)
}

func (h *recordingHandler) seen() []cause.Cause {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]cause.Cause(nil), h.causes...)
}

type countingRecorder struct {
	metrics.NoopRecorder
	mu    sync.Mutex
	fired map[string]int
	late  int
	runs  map[metrics.ResultLabel]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{fired: map[string]int{}, runs: map[metrics.ResultLabel]int{}}
}

func (c *countingRecorder) IncWakeFired(kind string, late bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fired[kind]++
	if late {
		c.late++
	}
}

func (c *countingRecorder) IncPeriodicRun(r metrics.ResultLabel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs[r]++
}

type harness struct {
	sched *Scheduler
	clock clockwork.Clock
	zone  *localtime.Zone
	diag  *diagnostics.Recorder
}

// newHarness uses a fake clock set to the real current time; gocron
// rejects start times that are in the past.
func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Now().Truncate(time.Second))
	return newHarnessWithClock(t, clock)
}

func newHarnessWithClock(t *testing.T, clock clockwork.Clock) *harness {
	t.Helper()
	sched, err := NewScheduler(clock, time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })
	store := state.NewStore(state.NewMemoryBackend(), "progress")
	return &harness{sched: sched, clock: clock, zone: localtime.NewZone(time.UTC), diag: diagnostics.NewRecorder(store)}
}

func TestInitialDelay(t *testing.T) {
	zone := localtime.NewZone(time.UTC)
	cases := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{"evening", time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC), time.Hour},
		{"just after midnight", time.Date(2024, 1, 2, 0, 0, 1, 0, time.UTC), 23*time.Hour + 59*time.Minute + 59*time.Second},
		{"exactly midnight clamps to ceiling", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), MaxInitialDelay},
		{"one second before midnight", time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC), time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, InitialDelay(zone, tc.now))
		})
	}

	assert.Equal(t, MinInitialDelay, clampInitialDelay(-time.Minute))
	assert.Equal(t, MaxInitialDelay, clampInitialDelay(25*time.Hour))
	assert.Equal(t, time.Hour, clampInitialDelay(time.Hour))
}

func TestWakeScheduler_ArmConverges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	w := NewWakeScheduler(h.sched, h.zone, h.diag, WakeConfig{})

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := w.Arm(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	armed := w.Armed()
	require.Len(t, armed, 2)
	boundary := h.zone.NextMidnight(h.clock.Now())
	assert.Equal(t, KindPrimary, armed[0].Kind)
	assert.True(t, armed[0].Target.Equal(boundary))
	assert.Equal(t, KindFallback, armed[1].Kind)
	assert.True(t, armed[1].Target.Equal(boundary.Add(60*time.Second)))
	assert.NotEqual(t, armed[0].ID, armed[1].ID)
	for _, r := range armed {
		assert.Equal(t, 15*time.Minute, r.Window)
	}

	require.Eventually(t, func() bool {
		return h.sched.Count(JobWakePrimary) == 1 && h.sched.Count(JobWakeFallback) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec, ok := h.diag.LatestSchedule(ctx)
	require.True(t, ok)
	assert.True(t, rec.ForcedWindow)
	assert.Equal(t, boundary.UnixMilli(), rec.BoundaryAt)
	assert.Equal(t, boundary.Add(time.Minute).UnixMilli(), rec.FallbackAt)
}

func TestWakeScheduler_BoundaryAlwaysFromNow(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Now().Truncate(time.Second))
	h := newHarnessWithClock(t, clock)
	w := NewWakeScheduler(h.sched, h.zone, h.diag, WakeConfig{})

	first, _, err := w.Arm(ctx)
	require.NoError(t, err)

	clock.Advance(36 * time.Hour)
	second, _, err := w.Arm(ctx)
	require.NoError(t, err)
	assert.True(t, second.Target.After(clock.Now()))
	assert.True(t, second.Target.After(first.Target))
	assert.Equal(t, h.zone.NextMidnight(clock.Now()), second.Target)
}

func TestWakeScheduler_FireDeliversAndDetectsLateness(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Now().Truncate(time.Second))
	h := newHarnessWithClock(t, clock)
	rec := newCountingRecorder()
	handler := &recordingHandler{}
	w := NewWakeScheduler(h.sched, h.zone, h.diag, WakeConfig{})
	w.SetHandler(handler)
	w.SetRecorder(rec)

	primary, fallback, err := w.Arm(ctx)
	require.NoError(t, err)

	clock.Advance(primary.Target.Sub(clock.Now()) + time.Minute)
	w.fire(JobWakePrimary, cause.BoundaryAlarm)

	clock.Advance(fallback.Target.Sub(clock.Now()) + time.Hour)
	w.fire(JobWakeFallback, cause.BoundaryAlarm)

	assert.Equal(t, []cause.Cause{cause.BoundaryAlarm, cause.BoundaryAlarm}, handler.seen())
	assert.Equal(t, 1, rec.fired[string(KindPrimary)])
	assert.Equal(t, 1, rec.fired[string(KindFallback)])
	assert.Equal(t, 1, rec.late, "only the fallback was outside the window")
	assert.Empty(t, w.Armed())

	// Fired one-time jobs no longer hold their names.
	_, ok := h.sched.Job(JobWakePrimary)
	assert.False(t, ok)
	_, ok = h.sched.Job(JobWakeFallback)
	assert.False(t, ok)
}

func TestScheduler_ForgetOnlyDropsMatchingID(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	w := NewWakeScheduler(h.sched, h.zone, h.diag, WakeConfig{})

	req, err := w.ArmDebug(ctx, 30)
	require.NoError(t, err)

	h.sched.Forget(JobWakeDebug, uuid.New())
	h.sched.mu.Lock()
	_, kept := h.sched.names[JobWakeDebug]
	h.sched.mu.Unlock()
	assert.True(t, kept, "a stale id must not drop the live mapping")

	h.sched.Forget(JobWakeDebug, uuid.MustParse(req.ID))
	h.sched.mu.Lock()
	_, kept = h.sched.names[JobWakeDebug]
	h.sched.mu.Unlock()
	assert.False(t, kept)
}

func TestWakeScheduler_ArmDebugValidates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	w := NewWakeScheduler(h.sched, h.zone, h.diag, WakeConfig{DebugMax: time.Minute})

	for _, secs := range []int{0, -3, 61} {
		_, err := w.ArmDebug(ctx, secs)
		require.Error(t, err, "seconds=%d", secs)
		assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
	}

	req, err := w.ArmDebug(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, KindDebug, req.Kind)
	assert.Equal(t, h.clock.Now().Add(30*time.Second), req.Target)
}

func TestWakeScheduler_DebugWakeEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("uses the real clock")
	}
	ctx := context.Background()
	h := newHarnessWithClock(t, clockwork.NewRealClock())
	handler := &recordingHandler{}
	w := NewWakeScheduler(h.sched, h.zone, h.diag, WakeConfig{})
	w.SetHandler(handler)
	h.sched.Start(ctx)

	_, err := w.ArmDebug(ctx, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		seen := handler.seen()
		return len(seen) == 1 && seen[0] == cause.ManualDebug
	}, 5*time.Second, 20*time.Millisecond)
}

type scriptedDispatcher struct {
	errs  []error
	calls atomic.Int32
}

func (d *scriptedDispatcher) Dispatch(context.Context, cause.Cause) error {
	i := int(d.calls.Add(1)) - 1
	if i < len(d.errs) {
		return d.errs[i]
	}
	return nil
}

type countingNotifier struct{ n atomic.Int32 }

func (c *countingNotifier) Refresh(context.Context, string) { c.n.Add(1) }

func TestPeriodicRegistrar_RegisterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := NewPeriodicRegistrar(h.sched, h.zone, PeriodicConfig{})

	var ids []string
	for i := 0; i < 5; i++ {
		st, err := p.Register(ctx)
		require.NoError(t, err)
		ids = append(ids, st.ID)
	}

	st := p.Status()
	assert.Equal(t, JobEnqueued, st.State)
	assert.Equal(t, DefaultPeriod, st.Period)
	assert.Equal(t, ids[len(ids)-1], st.ID, "the last registration supersedes the rest")
	assert.Equal(t, InitialDelay(h.zone, h.clock.Now()), st.InitialDelay)
	assert.Zero(t, st.Attempts)

	require.Eventually(t, func() bool { return h.sched.Count(DefaultPeriodicJobName) == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestPeriodicRegistrar_ExecuteReportsSuccessAndRetry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	disp := &scriptedDispatcher{errs: []error{errors.New("store busy"), errors.New("store busy"), nil}}
	notifier := &countingNotifier{}
	rec := newCountingRecorder()
	p := NewPeriodicRegistrar(h.sched, h.zone, PeriodicConfig{
		Retry: retry.NewPolicy(retry.ModeFixed, time.Minute, time.Minute, 3),
	})
	p.SetDispatcher(disp)
	p.SetNotifier(notifier)
	p.SetRecorder(rec)
	_, err := p.Register(ctx)
	require.NoError(t, err)

	require.Error(t, p.execute(ctx))
	st := p.Status()
	assert.Equal(t, JobRetrying, st.State)
	assert.Equal(t, 1, st.Attempts)
	assert.Equal(t, "store busy", st.LastError)
	require.Eventually(t, func() bool { return h.sched.Count(p.retryName()) == 1 },
		2*time.Second, 10*time.Millisecond)

	require.Error(t, p.execute(ctx))
	assert.Equal(t, 2, p.Status().Attempts)

	require.NoError(t, p.execute(ctx))
	st = p.Status()
	assert.Equal(t, JobSucceeded, st.State)
	assert.Zero(t, st.Attempts)
	assert.Empty(t, st.LastError, "the job body owns LastError and clears it on success")
	assert.False(t, st.LastRun.IsZero())

	assert.Equal(t, int32(3), notifier.n.Load(), "display refreshed after every run")
	assert.Equal(t, 2, rec.runs[metrics.ResultRetry])
	assert.Equal(t, 1, rec.runs[metrics.ResultSuccess])

	// Re-registering drops a pending retry.
	_, err = p.Register(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.sched.Count(p.retryName()) == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestPeriodicRegistrar_RetriesExhausted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	boom := errors.New("boom")
	p := NewPeriodicRegistrar(h.sched, h.zone, PeriodicConfig{
		Retry: retry.NewPolicy(retry.ModeFixed, time.Second, time.Second, 1),
	})
	p.SetDispatcher(&scriptedDispatcher{errs: []error{boom, boom}})

	require.Error(t, p.execute(ctx))
	assert.Equal(t, JobRetrying, p.Status().State)
	require.Error(t, p.execute(ctx))
	assert.Equal(t, JobFailed, p.Status().State)
	assert.Equal(t, 2, p.Status().Attempts)
}

func TestPeriodicRegistrar_CancelAndUnregistered(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := NewPeriodicRegistrar(h.sched, h.zone, PeriodicConfig{Name: "custom"})
	assert.Equal(t, JobUnknown, p.Status().State)

	_, err := p.Register(ctx)
	require.NoError(t, err)
	p.Cancel()
	assert.Equal(t, JobCancelled, p.Status().State)
	require.Eventually(t, func() bool { return h.sched.Count("custom") == 0 },
		2*time.Second, 10*time.Millisecond)
}
