package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
)

// flakyBackend fails (or panics) for selected namespaces.
type flakyBackend struct {
	*MemoryBackend
	mu       sync.Mutex
	failGet  map[string]bool
	panicGet map[string]bool
	failPut  bool
}

func newFlakyBackend() *flakyBackend {
	return &flakyBackend{MemoryBackend: NewMemoryBackend(), failGet: map[string]bool{}, panicGet: map[string]bool{}}
}

func (f *flakyBackend) Get(ctx context.Context, ns, key string) ([]byte, bool, error) {
	f.mu.Lock()
	fail, boom := f.failGet[ns], f.panicGet[ns]
	f.mu.Unlock()
	if boom {
		panic("namespace exploded")
	}
	if fail {
		return nil, false, errors.New("namespace unavailable")
	}
	return f.MemoryBackend.Get(ctx, ns, key)
}

func (f *flakyBackend) Put(ctx context.Context, ns, key string, v []byte) error {
	if f.failPut {
		return errors.New("disk full")
	}
	return f.MemoryBackend.Put(ctx, ns, key, v)
}

func TestStore_ScanOrder(t *testing.T) {
	s := NewStore(NewMemoryBackend(), "progress", "progress_native", "progress", "", "preferences")
	assert.Equal(t, []string{"progress", "progress_native", "preferences"}, s.Namespaces())
	assert.Equal(t, "progress", s.Canonical())
}

func TestStore_SelfHealing(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	s := NewStore(b, "progress", "progress_native", "preferences")

	// Written by an older version under a legacy namespace only.
	require.NoError(t, b.Put(ctx, "preferences", KeyDailyState, []byte(`{"percent":42,"hasGoal":true,"day":"2024-01-01"}`)))

	v, ns, ok := s.Read(ctx, KeyDailyState)
	require.True(t, ok)
	assert.Equal(t, "preferences", ns)
	assert.Contains(t, string(v), `"percent":42`)

	_, err := s.SaveDailyState(ctx, NewDailyState(0, true, "2024-01-02", time.Now()))
	require.NoError(t, err)

	_, ok, _ = b.Get(ctx, "progress", KeyDailyState)
	assert.True(t, ok, "write lands in canonical namespace")

	l := s.LoadDailyState(ctx)
	require.True(t, l.Found)
	assert.Equal(t, "progress", l.Namespace, "subsequent read finds canonical first")
	assert.Equal(t, "2024-01-02", l.State.Day)
}

func TestStore_FailingNamespaceTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	b := newFlakyBackend()
	s := NewStore(b, "progress", "progress_native", "preferences")
	require.NoError(t, b.MemoryBackend.Put(ctx, "preferences", KeyDailyState, []byte(`{"percent":5,"day":"2024-01-01"}`)))

	b.failGet["progress"] = true
	b.panicGet["progress_native"] = true

	_, ns, ok := s.Read(ctx, KeyDailyState)
	require.True(t, ok, "scan continues past failing namespaces")
	assert.Equal(t, "preferences", ns)

	b.failGet["preferences"] = true
	_, _, ok = s.Read(ctx, KeyDailyState)
	assert.False(t, ok)
}

func TestStore_WriteFailureIsClassified(t *testing.T) {
	b := newFlakyBackend()
	b.failPut = true
	s := NewStore(b, "progress")

	_, err := s.SaveDailyState(context.Background(), DailyState{Percent: 10})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryStore))
}

func TestStore_ClampOnWrite(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), "progress")

	cases := []struct {
		in, want int
	}{
		{137, 100},
		{-5, 0},
		{55, 55},
	}
	for _, tc := range cases {
		saved, err := s.SaveDailyState(ctx, DailyState{Percent: tc.in, Day: "2024-01-02"})
		require.NoError(t, err)
		assert.Equal(t, tc.want, saved.Percent)
		assert.Equal(t, tc.want, s.LoadDailyState(ctx).State.Percent)
	}
}

func TestStore_ClearKeepsDailyState(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	s := NewStore(b, "progress", "legacy")
	require.NoError(t, s.Write(ctx, KeyDailyState, []byte(`{}`)))
	require.NoError(t, s.Write(ctx, KeyLastReconciliation, []byte(`{}`)))
	require.NoError(t, b.Put(ctx, "legacy", KeyLastSchedule, []byte(`{}`)))

	s.Clear(ctx, append(DiagnosticKeys, KeyDailyState)...)

	_, _, ok := s.Read(ctx, KeyDailyState)
	assert.True(t, ok)
	_, _, ok = s.Read(ctx, KeyLastReconciliation)
	assert.False(t, ok)
	_, _, ok = s.Read(ctx, KeyLastSchedule)
	assert.False(t, ok, "diagnostics are cleared from legacy namespaces too")

	s.Purge(ctx, KeyDailyState)
	_, _, ok = s.Read(ctx, KeyDailyState)
	assert.False(t, ok)
}

func TestStore_LoadMalformed(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), "progress")
	require.NoError(t, s.Write(ctx, KeyDailyState, []byte(`{{{`)))

	l := s.LoadDailyState(ctx)
	assert.True(t, l.Found)
	assert.False(t, l.Valid)
}

func TestStore_JSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), "progress")
	type rec struct {
		Phase string `json:"phase"`
	}
	require.NoError(t, s.WriteJSON(ctx, KeyLastReconciliation, rec{Phase: "already_today"}))

	var got rec
	require.True(t, s.ReadJSON(ctx, KeyLastReconciliation, &got))
	assert.Equal(t, "already_today", got.Phase)
	assert.False(t, s.ReadJSON(ctx, KeyLastSchedule, &got))
}
