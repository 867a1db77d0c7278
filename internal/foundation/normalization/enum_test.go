package normalization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
)

type backend string

const (
	backendJSON   backend = "json"
	backendSQLite backend = "sqlite"
)

func newBackends() *Enum[backend] {
	return NewEnum("store backend", backendJSON, map[string]backend{
		"json":     backendJSON,
		"file":     backendJSON,
		"sqlite":   backendSQLite,
		"SQLite-3": backendSQLite,
	})
}

func TestFold(t *testing.T) {
	assert.Equal(t, "user_present", Fold("  User-Present "))
	assert.Equal(t, "boot_completed", Fold("boot completed"))
}

func TestLookupAndOr(t *testing.T) {
	e := newBackends()

	v, ok := e.Lookup(" SQLITE ")
	require.True(t, ok)
	assert.Equal(t, backendSQLite, v)

	v, ok = e.Lookup("sqlite_3")
	require.True(t, ok)
	assert.Equal(t, backendSQLite, v)

	_, ok = e.Lookup("postgres")
	assert.False(t, ok)
	assert.Equal(t, backendJSON, e.Or("postgres"))
}

func TestParseReportsValidKeys(t *testing.T) {
	e := newBackends()

	_, err := e.Parse("postgres")
	require.Error(t, err)
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.CategoryValidation, ce.Category())
	assert.Equal(t, []string{"file", "json", "sqlite", "sqlite_3"}, ce.Context()["valid"])
}

func TestCanonicalize(t *testing.T) {
	e := newBackends()

	b := backend("File")
	note, changed := e.Canonicalize("store.backend", &b)
	require.True(t, changed)
	assert.Equal(t, backendJSON, b)
	assert.Contains(t, note, `"File"`)

	b = backendSQLite
	_, changed = e.Canonicalize("store.backend", &b)
	assert.False(t, changed)

	b = "postgres"
	_, changed = e.Canonicalize("store.backend", &b)
	assert.False(t, changed)
	assert.Equal(t, backend("postgres"), b)

	b = ""
	_, changed = e.Canonicalize("store.backend", &b)
	assert.False(t, changed)
}
