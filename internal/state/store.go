package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	ferrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
	"git.home.luguber.info/inful/dayroll/internal/logfields"
	"git.home.luguber.info/inful/dayroll/internal/metrics"
)

// Store scans candidate namespaces on read and writes to one canonical
// namespace.
type Store struct {
	backend    Backend
	canonical  string
	candidates []string
	recorder   metrics.Recorder
}

// NewStore builds a Store. The canonical namespace is always scanned first,
// followed by legacy namespaces in the given order (duplicates dropped).
func NewStore(backend Backend, canonical string, legacy ...string) *Store {
	candidates := []string{canonical}
	for _, ns := range legacy {
		if ns != "" && !slices.Contains(candidates, ns) {
			candidates = append(candidates, ns)
		}
	}
	return &Store{
		backend:    backend,
		canonical:  canonical,
		candidates: candidates,
		recorder:   metrics.NoopRecorder{},
	}
}

// SetRecorder injects a metrics recorder.
func (s *Store) SetRecorder(r metrics.Recorder) { s.recorder = metrics.OrNoop(r) }

// Canonical returns the namespace every write targets.
func (s *Store) Canonical() string { return s.canonical }

// Namespaces returns the read scan order.
func (s *Store) Namespaces() []string { return slices.Clone(s.candidates) }

// Read returns the first value found for key, scanning namespaces in
// priority order. A failing namespace is treated as absent.
func (s *Store) Read(ctx context.Context, key string) ([]byte, string, bool) {
	for _, ns := range s.candidates {
		v, ok, err := s.get(ctx, ns, key)
		if err != nil {
			s.recorder.IncStoreError(ns, "get")
			slog.Warn("Namespace read failed, treating as absent",
				logfields.Namespace(ns), logfields.Key(key), logfields.Error(err))
			continue
		}
		if ok {
			return v, ns, true
		}
	}
	return nil, "", false
}

// Write stores value under key in the canonical namespace.
func (s *Store) Write(ctx context.Context, key string, value []byte) error {
	if err := s.put(ctx, s.canonical, key, value); err != nil {
		s.recorder.IncStoreError(s.canonical, "put")
		return ferrors.WrapError(err, ferrors.CategoryStore, "write failed").
			Warning().
			Retryable().
			WithContext("namespace", s.canonical).
			WithContext("key", key).
			Build()
	}
	return nil
}

// Clear removes diagnostic keys from every candidate namespace. The daily
// state key is never removed here; see Purge.
func (s *Store) Clear(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if key == KeyDailyState {
			slog.Debug("Refusing to clear daily state through diagnostics clear", logfields.Key(key))
			continue
		}
		s.deleteEverywhere(ctx, key)
	}
}

// Purge removes keys, including the daily state, from every namespace.
// It backs the explicit debug "clear everything" operation only.
func (s *Store) Purge(ctx context.Context, keys ...string) {
	for _, key := range keys {
		s.deleteEverywhere(ctx, key)
	}
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) deleteEverywhere(ctx context.Context, key string) {
	for _, ns := range s.candidates {
		if err := s.del(ctx, ns, key); err != nil {
			s.recorder.IncStoreError(ns, "delete")
			slog.Warn("Namespace delete failed",
				logfields.Namespace(ns), logfields.Key(key), logfields.Error(err))
		}
	}
}

// get, put and del convert backend panics into errors so a misbehaving
// namespace can never take down a trigger path.
func (s *Store) get(ctx context.Context, ns, key string) (v []byte, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, ok, err = nil, false, fmt.Errorf("backend panic: %v", r)
		}
	}()
	return s.backend.Get(ctx, ns, key)
}

func (s *Store) put(ctx context.Context, ns, key string, value []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()
	return s.backend.Put(ctx, ns, key, value)
}

func (s *Store) del(ctx context.Context, ns, key string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()
	return s.backend.Delete(ctx, ns, key)
}

// Lookup is the result of reading the daily state.
type Lookup struct {
	State     DailyState
	Namespace string
	Found     bool
	// Valid is false when a payload was found but could not be decoded.
	Valid bool
	Raw   []byte
}

// LoadDailyState reads and decodes the daily state. Decoding failures are
// reported through Lookup.Valid, never as an error.
func (s *Store) LoadDailyState(ctx context.Context) Lookup {
	raw, ns, ok := s.Read(ctx, KeyDailyState)
	if !ok {
		return Lookup{}
	}
	l := Lookup{Namespace: ns, Found: true, Raw: raw}
	st, err := ParseDailyState(raw)
	if err != nil {
		slog.Warn("Malformed daily state payload", logfields.Namespace(ns), logfields.Error(err))
		return l
	}
	l.State = st
	l.Valid = true
	return l
}

// SaveDailyState clamps and writes the daily state to the canonical namespace.
func (s *Store) SaveDailyState(ctx context.Context, st DailyState) (DailyState, error) {
	st = st.Clamped()
	data, err := json.Marshal(st)
	if err != nil {
		return st, ferrors.WrapError(err, ferrors.CategoryInternal, "encode daily state").Build()
	}
	return st, s.Write(ctx, KeyDailyState, data)
}

// ReadJSON decodes the value stored under key into out. It reports false
// when the key is absent or undecodable.
func (s *Store) ReadJSON(ctx context.Context, key string, out any) bool {
	raw, ns, ok := s.Read(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		slog.Warn("Malformed payload", logfields.Namespace(ns), logfields.Key(key), logfields.Error(err))
		return false
	}
	return true
}

// WriteJSON encodes v and writes it under key.
func (s *Store) WriteJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "encode payload").WithContext("key", key).Build()
	}
	return s.Write(ctx, key, data)
}
