package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session records one pipeline run.
type Session struct {
	ID        string
	StartedAt time.Time
	EndedAt   *time.Time
	Frames    int64
	Panics    int64
}

// BeginSession inserts a new session row and returns its id.
func (s *Store) BeginSession() (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec("INSERT INTO sessions (id) VALUES (?)", id)
	if err != nil {
		return "", fmt.Errorf("failed to begin session: %w", err)
	}
	return id, nil
}

// EndSession closes a session, recording counters and the end time.
func (s *Store) EndSession(id string, frames, panics int64) error {
	res, err := s.db.Exec(
		"UPDATE sessions SET ended_at = CURRENT_TIMESTAMP, frames = ?, panics = ? WHERE id = ?",
		frames, panics, id,
	)
	if err != nil {
		return fmt.Errorf("failed to end session %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %q not found", id)
	}
	return nil
}

// RecentSessions returns up to limit sessions, newest first.
func (s *Store) RecentSessions(limit int) ([]Session, error) {
	rows, err := s.db.Query(
		"SELECT id, started_at, ended_at, frames, panics FROM sessions ORDER BY started_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.StartedAt, &sess.EndedAt, &sess.Frames, &sess.Panics); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
