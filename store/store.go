// Package store provides the SQLite-backed store shared by the system under
// test and the isolation manager. Every row carries a namespace column so
// that test-owned data can be purged by predicate rather than by dropping the
// store; spinning up a fresh store per test is too slow at integration-test
// timescales, so isolation is value-space partitioning instead.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by lookups for a subject with no record.
var ErrNotFound = errors.New("record not found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS subjects (
	id         TEXT PRIMARY KEY,
	namespace  TEXT NOT NULL,
	onboarded  INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_subjects_namespace ON subjects(namespace);

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	subject_id TEXT NOT NULL REFERENCES subjects(id),
	namespace  TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_sessions_namespace ON sessions(namespace);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	subject_id TEXT NOT NULL REFERENCES subjects(id),
	namespace  TEXT NOT NULL,
	direction  TEXT NOT NULL CHECK (direction IN ('in','out')),
	body       TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (subject_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_messages_namespace ON messages(namespace);
`

// Tables lists every table in dependency order, parents before children.
// The isolation manager walks this list in reverse when purging so that
// foreign key constraints are respected. Keeping the list here, next to the
// schema, makes purge coverage gaps structurally harder to introduce: a new
// table cannot be added without deciding its place in the purge order.
func Tables() []string {
	return []string{"subjects", "sessions", "messages"}
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path, applying
// pragmas and the schema. Idempotent; safe to call on an existing file.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite supports a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CountByNamespace returns the number of rows in the table that match the
// namespace predicate.
func (s *Store) CountByNamespace(ctx context.Context, table, namespace string) (int, error) {
	if !validTable(table) {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE namespace = ?", table), namespace).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s by namespace: %w", table, err)
	}
	return n, nil
}

// DeleteByNamespace removes every row in the table that matches the
// namespace predicate, returning the number of rows removed. Deleting from a
// namespace with nothing to delete is not an error.
func (s *Store) DeleteByNamespace(ctx context.Context, table, namespace string) (int64, error) {
	if !validTable(table) {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE namespace = ?", table), namespace)
	if err != nil {
		return 0, fmt.Errorf("delete %s by namespace: %w", table, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func validTable(table string) bool {
	for _, t := range Tables() {
		if t == table {
			return true
		}
	}
	return false
}
