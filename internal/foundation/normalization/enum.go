// Package normalization maps loosely written enum values onto canonical
// constants. Case, surrounding whitespace and '-'/' ' separators are
// ignored, and aliases resolve to the same constant.
package normalization

import (
	"fmt"
	"sort"
	"strings"

	ferrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
)

var folder = strings.NewReplacer("-", "_", " ", "_")

// Fold is the key form every lookup goes through.
func Fold(s string) string {
	return folder.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// Enum resolves raw strings into values of T.
type Enum[T ~string] struct {
	name   string
	values map[string]T
	def    T
	keys   []string
}

// NewEnum builds an Enum. Keys of values are folded; def is returned by Or
// for unknown input.
func NewEnum[T ~string](name string, def T, values map[string]T) *Enum[T] {
	e := &Enum[T]{name: name, values: make(map[string]T, len(values)), def: def}
	for k, v := range values {
		fk := Fold(k)
		e.values[fk] = v
		e.keys = append(e.keys, fk)
	}
	sort.Strings(e.keys)
	return e
}

// Lookup resolves raw, reporting whether it was known.
func (e *Enum[T]) Lookup(raw string) (T, bool) {
	v, ok := e.values[Fold(raw)]
	return v, ok
}

// Or resolves raw, falling back to the default.
func (e *Enum[T]) Or(raw string) T {
	if v, ok := e.Lookup(raw); ok {
		return v
	}
	return e.def
}

// Parse resolves raw or returns a validation error listing the accepted keys.
func (e *Enum[T]) Parse(raw string) (T, error) {
	if v, ok := e.Lookup(raw); ok {
		return v, nil
	}
	var zero T
	return zero, ferrors.ValidationError(fmt.Sprintf("invalid %s", e.name)).
		WithContext("value", raw).
		WithContext("valid", e.Keys()).
		Build()
}

// Keys returns the accepted folded keys, sorted.
func (e *Enum[T]) Keys() []string {
	return append([]string(nil), e.keys...)
}

// Canonicalize rewrites *p to its canonical constant when it is known.
// It returns a human readable note when the stored value changed.
// Unknown values are left untouched for validation to reject.
func (e *Enum[T]) Canonicalize(field string, p *T) (string, bool) {
	raw := string(*p)
	if raw == "" {
		return "", false
	}
	v, ok := e.Lookup(raw)
	if !ok || v == *p {
		return "", false
	}
	*p = v
	return fmt.Sprintf("%s %q normalized to %q", field, raw, v), true
}
