package display

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dayroll/internal/state"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs map[string][][]byte
	err  error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.msgs == nil {
		p.msgs = make(map[string][][]byte)
	}
	p.msgs[subject] = append(p.msgs[subject], data)
	return nil
}

func TestRefresher_PublishesClampedFrame(t *testing.T) {
	ctx := context.Background()
	backend := state.NewMemoryBackend()
	store := state.NewStore(backend, "progress", "legacy")
	// A legacy writer that never clamped.
	require.NoError(t, backend.Put(ctx, "legacy", state.KeyDailyState, []byte(`{"percent":180,"hasGoal":true,"day":"2024-01-01"}`)))

	pub := &fakePublisher{}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	r := NewRefresher(store, clock, NewNATSSink(pub, "dayroll.display.refresh"))

	r.Refresh(ctx, "periodic_job")

	require.Len(t, pub.msgs["dayroll.display.refresh"], 1)
	var f Frame
	require.NoError(t, json.Unmarshal(pub.msgs["dayroll.display.refresh"][0], &f))
	assert.Equal(t, 100, f.Percent)
	assert.True(t, f.HasGoal)
	assert.Equal(t, "legacy", f.Namespace)
	assert.Equal(t, "periodic_job", f.Reason)
}

func TestRefresher_AbsentStateRendersZero(t *testing.T) {
	store := state.NewStore(state.NewMemoryBackend(), "progress")
	r := NewRefresher(store, clockwork.NewFakeClock())

	f := r.Frame(context.Background(), "boot")
	assert.Equal(t, 0, f.Percent)
	assert.False(t, f.HasGoal)
	assert.Empty(t, f.Day)
}

func TestRefresher_SinkFailuresAreContained(t *testing.T) {
	store := state.NewStore(state.NewMemoryBackend(), "progress")
	var shown int
	r := NewRefresher(store, clockwork.NewFakeClock(),
		NewNATSSink(&fakePublisher{err: errors.New("no responders")}, "x"),
		FuncSink(func(context.Context, Frame) error { panic("renderer crashed") }),
	)
	assert.NotPanics(t, func() { r.Refresh(context.Background(), "boot") })

	r = NewRefresher(store, clockwork.NewFakeClock(),
		NewNATSSink(nil, "x"),
		FuncSink(func(context.Context, Frame) error { shown++; return nil }),
	)
	r.Refresh(context.Background(), "boot")
	assert.Equal(t, 1, shown, "a failing sink does not stop later sinks")
}
