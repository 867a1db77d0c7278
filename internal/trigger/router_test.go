package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dayroll/internal/cause"
	"git.home.luguber.info/inful/dayroll/internal/diagnostics"
	ferrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
	"git.home.luguber.info/inful/dayroll/internal/localtime"
	"git.home.luguber.info/inful/dayroll/internal/reconcile"
	"git.home.luguber.info/inful/dayroll/internal/schedule"
	"git.home.luguber.info/inful/dayroll/internal/state"
)

type stubEngine struct {
	mu     sync.Mutex
	causes []cause.Cause
	err    error
	panic  bool
}

func (s *stubEngine) Reconcile(_ context.Context, c cause.Cause) (reconcile.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panic {
		panic("engine exploded")
	}
	s.causes = append(s.causes, c)
	return reconcile.Outcome{Cause: c, Phase: diagnostics.PhaseAlreadyToday}, s.err
}

type stubArmer struct {
	calls int
	err   error
}

func (a *stubArmer) Arm(context.Context) (schedule.WakeRequest, schedule.WakeRequest, error) {
	a.calls++
	return schedule.WakeRequest{}, schedule.WakeRequest{}, a.err
}

type stubRegistrar struct{ calls int }

func (r *stubRegistrar) Register(context.Context) (schedule.JobStatus, error) {
	r.calls++
	return schedule.JobStatus{}, errors.New("job service unavailable")
}

func newRouter() (*Router, *stubEngine, *stubArmer, *stubRegistrar) {
	e := &stubEngine{}
	a := &stubArmer{}
	p := &stubRegistrar{}
	r := NewRouter(e)
	r.SetArmer(a)
	r.SetRegistrar(p)
	return r, e, a, p
}

func TestRouter_RearmsOnlyForBoundaryCauses(t *testing.T) {
	cases := []struct {
		cause      cause.Cause
		rearm      bool
		reregister bool
	}{
		{cause.BoundaryAlarm, true, false},
		{cause.DateChanged, true, false},
		{cause.TimeChanged, true, false},
		{cause.TimezoneChanged, true, false},
		{cause.Boot, true, true},
		{cause.ManualForce, true, false},
		{cause.UserForegrounded, false, false},
		{cause.PeriodicJob, false, false},
		{cause.ManualDebug, false, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.cause), func(t *testing.T) {
			r, e, a, p := newRouter()
			r.Trigger(context.Background(), tc.cause)

			assert.Equal(t, []cause.Cause{tc.cause}, e.causes)
			assert.Equal(t, tc.rearm, a.calls == 1)
			assert.Equal(t, tc.reregister, p.calls == 1)
		})
	}
}

func TestRouter_NeverPropagatesFailures(t *testing.T) {
	r, e, a, _ := newRouter()
	e.err = errors.New("store offline")
	a.err = errors.New("scheduler offline")

	assert.NotPanics(t, func() { r.Trigger(context.Background(), cause.Boot) })
	assert.Equal(t, 1, a.calls)

	e.panic = true
	assert.NotPanics(t, func() { r.Trigger(context.Background(), cause.BoundaryAlarm) })

	err := r.Dispatch(context.Background(), cause.PeriodicJob)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryRuntime))
}

func TestRouter_DispatchReportsEngineFailure(t *testing.T) {
	r, e, _, _ := newRouter()
	e.err = errors.New("store offline")
	require.Error(t, r.Dispatch(context.Background(), cause.PeriodicJob))

	e.err = nil
	require.NoError(t, r.Dispatch(context.Background(), cause.PeriodicJob))

	err := r.Dispatch(context.Background(), cause.Cause("bogus"))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestRouter_HandleSignal(t *testing.T) {
	r, e, a, _ := newRouter()

	c, ok := r.HandleSignal(context.Background(), "BOOT_COMPLETED")
	require.True(t, ok)
	assert.Equal(t, cause.Boot, c)

	_, ok = r.HandleSignal(context.Background(), "android.intent.action.SOMETHING")
	assert.False(t, ok)
	assert.Equal(t, []cause.Cause{cause.Boot}, e.causes)
	assert.Equal(t, 1, a.calls)
}

func TestParseSignalMessage(t *testing.T) {
	assert.Equal(t, "boot", ParseSignalMessage([]byte(`{"cause":"boot"}`)))
	assert.Equal(t, "user_present", ParseSignalMessage([]byte(`{"signal":"user_present"}`)))
	assert.Equal(t, "date_changed", ParseSignalMessage([]byte(" date_changed\n")))
	assert.Equal(t, "time", ParseSignalMessage([]byte(`"time"`)))
}

type fakeSubscriber struct {
	handlers map[string]nats.MsgHandler
}

func (f *fakeSubscriber) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	if f.handlers == nil {
		f.handlers = map[string]nats.MsgHandler{}
	}
	f.handlers[subject] = cb
	return nil, nil
}

func TestRouter_Subscribe(t *testing.T) {
	r, e, _, _ := newRouter()
	sub := &fakeSubscriber{}
	_, err := r.Subscribe(sub, "dayroll.trigger")
	require.NoError(t, err)

	sub.handlers["dayroll.trigger"](&nats.Msg{Data: []byte(`{"cause":"user_foregrounded"}`)})
	sub.handlers["dayroll.trigger"](&nats.Msg{Data: []byte(`nonsense`)})
	assert.Equal(t, []cause.Cause{cause.UserForegrounded}, e.causes)
}

// TestRouter_EndToEndBoundary wires the real engine, store and wake
// scheduler and checks a boundary trigger resets the state and re-arms.
func TestRouter_EndToEndBoundary(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Now().Truncate(time.Second))
	zone := localtime.NewZone(time.UTC)
	backend := state.NewMemoryBackend()
	store := state.NewStore(backend, "progress")
	diag := diagnostics.NewRecorder(store)
	engine := reconcile.NewEngine(store, diag, zone, clock)

	sched, err := schedule.NewScheduler(clock, time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Stop(ctx) })
	wake := schedule.NewWakeScheduler(sched, zone, diag, schedule.WakeConfig{})

	router := NewRouter(engine)
	router.SetArmer(wake)
	wake.SetHandler(router)

	yesterday := zone.DayStamp(clock.Now().AddDate(0, 0, -1))
	require.NoError(t, backend.Put(ctx, "progress", state.KeyDailyState,
		[]byte(`{"percent":42,"hasGoal":true,"day":"`+yesterday+`"}`)))

	router.Trigger(ctx, cause.BoundaryAlarm)

	st := store.LoadDailyState(ctx).State
	assert.Equal(t, 0, st.Percent)
	assert.True(t, st.HasGoal)
	assert.Equal(t, zone.DayStamp(clock.Now()), st.Day)
	assert.Len(t, wake.Armed(), 2)

	router.Trigger(ctx, cause.BoundaryAlarm)
	rec, ok := diag.LatestReconciliation(ctx)
	require.True(t, ok)
	assert.Equal(t, diagnostics.PhaseAlreadyToday, rec.Phase)
	assert.Len(t, wake.Armed(), 2)
}
