package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backendContract exercises behaviour every Backend must share.
func backendContract(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := b.Get(ctx, "progress", KeyDailyState)
	require.NoError(t, err)
	assert.False(t, ok, "fresh backend must be empty")

	require.NoError(t, b.Put(ctx, "progress", KeyDailyState, []byte(`{"percent":1}`)))
	require.NoError(t, b.Put(ctx, "legacy", KeyDailyState, []byte(`{"percent":2}`)))

	v, ok, err := b.Get(ctx, "progress", KeyDailyState)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"percent":1}`, string(v))

	v, ok, err = b.Get(ctx, "legacy", KeyDailyState)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"percent":2}`, string(v), "namespaces are isolated")

	require.NoError(t, b.Put(ctx, "progress", KeyDailyState, []byte(`{"percent":3}`)))
	v, _, _ = b.Get(ctx, "progress", KeyDailyState)
	assert.JSONEq(t, `{"percent":3}`, string(v), "put overwrites")

	require.NoError(t, b.Delete(ctx, "progress", KeyDailyState))
	_, ok, err = b.Get(ctx, "progress", KeyDailyState)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, b.Delete(ctx, "progress", "never-written"), "deleting a missing key is a no-op")

	// Malformed payloads are stored verbatim; decoding is the Store's concern.
	require.NoError(t, b.Put(ctx, "progress", KeyDailyState, []byte(`not json`)))
	v, ok, err = b.Get(ctx, "progress", KeyDailyState)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "not json", string(v))

	require.NoError(t, b.Close())
	_, _, err = b.Get(ctx, "progress", KeyDailyState)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryBackend(t *testing.T) {
	backendContract(t, NewMemoryBackend())
}

func TestJSONBackend(t *testing.T) {
	b, err := NewJSONBackend(t.TempDir())
	require.NoError(t, err)
	backendContract(t, b)
}

func TestSQLiteBackend(t *testing.T) {
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	backendContract(t, b)
}

func TestSQLiteBackend_InMemory(t *testing.T) {
	b, err := NewSQLiteBackend(":memory:")
	require.NoError(t, err)
	backendContract(t, b)
}

func TestJSONBackend_VisibleAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	writer, err := NewJSONBackend(dir)
	require.NoError(t, err)
	reader, err := NewJSONBackend(dir)
	require.NoError(t, err)

	require.NoError(t, writer.Put(ctx, "progress", KeyDailyState, []byte(`{"percent":9}`)))
	v, ok, err := reader.Get(ctx, "progress", KeyDailyState)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"percent":9}`, string(v))

	_, err = os.Stat(filepath.Join(dir, "progress.json"))
	require.NoError(t, err)
}

func TestJSONBackend_CorruptNamespaceFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.json"), []byte("{broken"), 0o644))

	b, err := NewJSONBackend(dir)
	require.NoError(t, err)

	_, _, err = b.Get(ctx, "legacy", KeyDailyState)
	require.Error(t, err)

	// Writes replace a corrupt file instead of failing forever.
	require.NoError(t, b.Put(ctx, "legacy", KeyDailyState, []byte(`{}`)))
	_, ok, err := b.Get(ctx, "legacy", KeyDailyState)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestJSONBackend_RejectsPathNamespaces(t *testing.T) {
	b, err := NewJSONBackend(t.TempDir())
	require.NoError(t, err)
	err = b.Put(context.Background(), "../escape", KeyDailyState, []byte(`{}`))
	require.Error(t, err)
}
