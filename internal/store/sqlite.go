// Package store implements core.IStateStore on SQLite: durable persistence
// for the registry's snapshot/restore pair, so an in-flight order survives a
// connector restart (spec.md §6, "Persisted state").
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS registry_snapshot (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	blob BLOB NOT NULL,
	saved_at INTEGER NOT NULL
);
`

// SQLiteStore persists a single current snapshot blob, overwritten on every
// save. It does not keep history; the registry itself is the source of
// truth for anything beyond "what was state at last clean shutdown".
type SQLiteStore struct {
	db *sql.DB
}

// Open creates (or reuses) the SQLite database at path and ensures its
// schema exists.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot upserts blob as the current snapshot.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO registry_snapshot (id, blob, saved_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET blob = excluded.blob, saved_at = excluded.saved_at
	`, blob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the last saved snapshot, or (nil, nil) if none was
// ever saved — a fresh connector has nothing to restore, which is not an
// error condition.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM registry_snapshot WHERE id = 1`).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load snapshot: %w", err)
	}
	return blob, nil
}
