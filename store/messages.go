package store

import (
	"context"
	"fmt"
	"time"
)

// Message is one inbound or outbound message in a subject's history.
type Message struct {
	ID        string
	SubjectID string
	Namespace string
	Direction string // "in" or "out"
	Body      string
	Seq       int
	CreatedAt time.Time
}

// AppendMessage inserts a message with the next per-subject sequence number.
// The read-compute-insert runs in one transaction; the store allows only a
// single writer, so the MAX(seq) read cannot race another append.
func (s *Store) AppendMessage(ctx context.Context, id, subjectID, namespace, direction, body string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append message for %q: %w", subjectID, err)
	}
	defer tx.Rollback()

	var seq int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE subject_id = ?`, subjectID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("append message for %q: %w", subjectID, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, subject_id, namespace, direction, body, seq)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, subjectID, namespace, direction, body, seq)
	if err != nil {
		return 0, fmt.Errorf("append message for %q: %w", subjectID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append message for %q: %w", subjectID, err)
	}
	return seq, nil
}

// ListMessages returns a subject's messages ordered by sequence number.
func (s *Store) ListMessages(ctx context.Context, subjectID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, namespace, direction, body, seq, created_at
		 FROM messages WHERE subject_id = ? ORDER BY seq ASC`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list messages for %q: %w", subjectID, err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SubjectID, &m.Namespace, &m.Direction, &m.Body, &m.Seq, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("list messages for %q: %w", subjectID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// AppendSession records the start of a session for a subject.
func (s *Store) AppendSession(ctx context.Context, id, subjectID, namespace string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, subject_id, namespace) VALUES (?, ?, ?)`,
		id, subjectID, namespace)
	if err != nil {
		return fmt.Errorf("append session for %q: %w", subjectID, err)
	}
	return nil
}

// CountSessions returns the number of sessions recorded for a subject.
func (s *Store) CountSessions(ctx context.Context, subjectID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE subject_id = ?`, subjectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions for %q: %w", subjectID, err)
	}
	return n, nil
}
