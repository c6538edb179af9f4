package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Preference keys.
const (
	PrefTranslation  = "translation"
	PrefReadChapters = "read_chapters"
)

// SetPreference stores a scalar preference for a session.
func (s *Store) SetPreference(ctx context.Context, sessionID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (session_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value`,
		sessionID, key, value)
	if err != nil {
		return fmt.Errorf("set preference %s/%s: %w", sessionID, key, err)
	}
	return nil
}

// Preference returns one preference and whether it was set.
func (s *Store) Preference(ctx context.Context, sessionID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE session_id = ? AND key = ?`, sessionID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference %s/%s: %w", sessionID, key, err)
	}
	return value, true, nil
}

// Preferences returns every preference stored for a session.
func (s *Store) Preferences(ctx context.Context, sessionID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM preferences WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list preferences %s: %w", sessionID, err)
	}
	defer rows.Close()

	prefs := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		prefs[k] = v
	}
	return prefs, rows.Err()
}
