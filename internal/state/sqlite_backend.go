package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend implements Backend on a single kv table.
type SQLiteBackend struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteBackend opens (or creates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and avoids
	// SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)

	b := &SQLiteBackend{db: db}
	if err := b.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) initialize() error {
	schema := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS kv (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (namespace, key)
	);
	`
	_, err := b.db.Exec(schema)
	return err
}

func (b *SQLiteBackend) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, false, ErrClosed
	}

	var value []byte
	err := b.db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE namespace = ? AND key = ?",
		namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query kv: %w", err)
	}
	return value, true, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, namespace, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	_, err := b.db.ExecContext(ctx,
		`INSERT INTO kv (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		namespace, key, value, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert kv: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, namespace, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	if _, err := b.db.ExecContext(ctx, "DELETE FROM kv WHERE namespace = ? AND key = ?", namespace, key); err != nil {
		return fmt.Errorf("delete kv: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}
