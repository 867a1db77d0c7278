package state

import (
	"context"
	"errors"
)

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("state backend closed")

// Backend is the raw namespaced key-value persistence a Store scans.
// Implementations must be safe for concurrent use; they serialize single
// operations only and offer no read-modify-write transactions.
type Backend interface {
	// Get returns the value and true, or nil and false when the key is absent.
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Put(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
	Close() error
}
