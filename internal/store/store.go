// Package store implements SQLite persistence for the alif core: lemmas,
// memory states, the sentence pool, review logs, grammar exposure and the
// activity log. The memory store is the only mutable shared state of the
// engine; writes to one canonical lemma are serialized by a keyed lock.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"alif/internal/logging"
)

// Store wraps the SQLite database.
type Store struct {
	db    *sql.DB
	path  string
	locks *keyedLocks
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so the query helpers can run
// inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open initializes the SQLite database at the given path, creating the
// directory and migrating the schema as needed.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	s := &Store{db: db, path: path, locks: newKeyedLocks(64)}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("store opened at %s", path)
	return s, nil
}

// OpenInMemory opens a private in-memory database; used by tests.
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// A single connection keeps the shared cache alive for the store's life.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: ":memory:", locks: newKeyedLocks(64)}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn inside a transaction, committing on nil and rolling back on
// error. Serialization failures (SQLITE_BUSY) are retried a bounded number
// of times before surfacing.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = s.tryTx(ctx, fn)
		if lastErr == nil || !isBusy(lastErr) {
			return lastErr
		}
		logging.StoreDebug("transaction busy (attempt %d/%d): %v", attempt, maxAttempts, lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return fmt.Errorf("transaction retries exhausted: %w", lastErr)
}

func (s *Store) tryTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	wrapped := &Tx{tx: tx, ctx: ctx}
	if err := fn(wrapped); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// Tx exposes the store operations bound to one transaction.
type Tx struct {
	tx  *sql.Tx
	ctx context.Context
}

// WithLemmaLock serializes writes on one canonical lemma id. Writes to
// distinct lemmas proceed in parallel.
func (s *Store) WithLemmaLock(lemmaID int64, fn func() error) error {
	unlock := s.locks.lock(lemmaID)
	defer unlock()
	return fn()
}

// LockLemmas acquires the locks of all given canonical lemma ids in sorted
// order (deadlock-free) and returns the combined unlock.
func (s *Store) LockLemmas(lemmaIDs []int64) func() {
	return s.locks.lockAll(lemmaIDs)
}

// --- time encoding -----------------------------------------------------------
//
// Timestamps are stored as unix nanoseconds (INTEGER); zero means "not set".

func timeToDB(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func timeFromDB(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
