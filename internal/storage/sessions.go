package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FocuswithJustin/SacredPsalms/core/errors"
)

// Record is a stored session. Data is the session's JSON encoding; the store
// does not interpret it.
type Record struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SaveSession inserts or replaces a session.
func (s *Store) SaveSession(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.NewValidation("id", "session id is required")
	}
	if !json.Valid(rec.Data) {
		return errors.NewValidation("data", "session data must be valid JSON")
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		rec.ID, string(rec.Data), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.ID, err)
	}
	return nil
}

// LoadSession returns the session with the given id.
func (s *Store) LoadSession(ctx context.Context, id string) (Record, error) {
	var (
		rec              Record
		data             string
		created, updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, data, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&rec.ID, &data, &created, &updated)
	if err == sql.ErrNoRows {
		return Record{}, errors.NewNotFound("session", id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("load session %s: %w", id, err)
	}
	rec.Data = json.RawMessage(data)
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return rec, nil
}

// DeleteSession removes a session and its preferences.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound("session", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM preferences WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete preferences %s: %w", id, err)
	}
	return tx.Commit()
}

// ListSessions returns every stored session, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data, created_at, updated_at FROM sessions ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec              Record
			data             string
			created, updated string
		)
		if err := rows.Scan(&rec.ID, &data, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.Data = json.RawMessage(data)
		rec.CreatedAt = parseTime(created)
		rec.UpdatedAt = parseTime(updated)
		out = append(out, rec)
	}
	return out, rows.Err()
}
