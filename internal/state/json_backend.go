package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// JSONBackend persists each namespace as <dataDir>/<namespace>.json holding a
// flat key → payload object. Files are re-read on every access so values
// written by another process are observed; writes go through a temporary
// file and an atomic rename.
type JSONBackend struct {
	dataDir string
	mu      sync.Mutex
	closed  bool
}

// NewJSONBackend creates the data directory if needed.
func NewJSONBackend(dataDir string) (*JSONBackend, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	return &JSONBackend{dataDir: dataDir}, nil
}

// Dir returns the data directory.
func (b *JSONBackend) Dir() string { return b.dataDir }

func (b *JSONBackend) path(namespace string) (string, error) {
	if !namespacePattern.MatchString(namespace) {
		return "", fmt.Errorf("invalid namespace %q", namespace)
	}
	return filepath.Join(b.dataDir, namespace+".json"), nil
}

func (b *JSONBackend) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false, ErrClosed
	}
	entries, err := b.loadUnsafe(namespace)
	if err != nil {
		return nil, false, err
	}
	v, ok := entries[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

func (b *JSONBackend) Put(_ context.Context, namespace, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	entries, err := b.loadUnsafe(namespace)
	if err != nil {
		// A corrupt namespace file is replaced rather than blocking writes.
		entries = make(map[string]string)
	}
	entries[key] = string(value)
	return b.saveUnsafe(namespace, entries)
}

func (b *JSONBackend) Delete(_ context.Context, namespace, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	entries, err := b.loadUnsafe(namespace)
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return b.saveUnsafe(namespace, entries)
}

func (b *JSONBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// loadUnsafe reads a namespace file without acquiring the lock.
func (b *JSONBackend) loadUnsafe(namespace string) (map[string]string, error) {
	p, err := b.path(namespace)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("failed to read namespace file: %w", err)
	}
	entries := make(map[string]string)
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal namespace %s: %w", namespace, err)
	}
	return entries, nil
}

// saveUnsafe writes a namespace file without acquiring the lock.
func (b *JSONBackend) saveUnsafe(namespace string, entries map[string]string) error {
	p, err := b.path(namespace)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal namespace %s: %w", namespace, err)
	}

	tmp, err := os.CreateTemp(b.dataDir, namespace+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary namespace file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary namespace file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary namespace file: %w", err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace namespace file: %w", err)
	}
	return nil
}
