package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Subject is one conversation participant known to the system under test.
type Subject struct {
	ID        string
	Namespace string
	Onboarded bool
	CreatedAt time.Time
}

// InsertSubject inserts a subject and fails on any collision. Seeding uses
// this deliberately: a collision during seed means an upstream purge defect
// and must not be papered over.
func (s *Store) InsertSubject(ctx context.Context, id, namespace string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subjects (id, namespace) VALUES (?, ?)`, id, namespace)
	if err != nil {
		return fmt.Errorf("insert subject %q: %w", id, err)
	}
	return nil
}

// EnsureSubject inserts a subject if it does not already exist. The message
// engine uses this on first contact.
func (s *Store) EnsureSubject(ctx context.Context, id, namespace string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subjects (id, namespace) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		id, namespace)
	if err != nil {
		return fmt.Errorf("ensure subject %q: %w", id, err)
	}
	return nil
}

// GetSubject returns a subject, or ErrNotFound.
func (s *Store) GetSubject(ctx context.Context, id string) (Subject, error) {
	var sub Subject
	var onboarded int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, namespace, onboarded, created_at FROM subjects WHERE id = ?`, id).
		Scan(&sub.ID, &sub.Namespace, &onboarded, &sub.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Subject{}, fmt.Errorf("subject %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Subject{}, fmt.Errorf("get subject %q: %w", id, err)
	}
	sub.Onboarded = onboarded != 0
	return sub, nil
}

// SetOnboarded marks a subject as having completed onboarding.
func (s *Store) SetOnboarded(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subjects SET onboarded = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("set onboarded for %q: %w", id, err)
	}
	return nil
}

// DeleteSubject removes one subject and all of its dependent rows, children
// first. Used by the targeted DELETE /user/{id} reset.
func (s *Store) DeleteSubject(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete subject %q: %w", id, err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM messages WHERE subject_id = ?`,
		`DELETE FROM sessions WHERE subject_id = ?`,
		`DELETE FROM subjects WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete subject %q: %w", id, err)
		}
	}
	return tx.Commit()
}
