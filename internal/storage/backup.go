package storage

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/SacredPsalms/core/errors"
)

// BackupVersion is the current backup document version.
const BackupVersion = 1

// Backup is the document written by Export. Payload is kept raw so the
// checksum can be verified over the exact bytes that were hashed.
type Backup struct {
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	Checksum  string          `json:"checksum"`
	Payload   json.RawMessage `json:"payload"`
}

// BackupPayload is the content of a backup.
type BackupPayload struct {
	Sessions    []Record                     `json:"sessions"`
	Preferences map[string]map[string]string `json:"preferences"`
}

// BackupStats summarizes an export or import.
type BackupStats struct {
	Sessions    int    `json:"sessions"`
	Preferences int    `json:"preferences"`
	Checksum    string `json:"checksum"`
}

// Checksum returns the hex BLAKE3-256 digest of data.
func Checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Export writes an xz-compressed JSON backup of all sessions and preferences.
func (s *Store) Export(ctx context.Context, w io.Writer) (BackupStats, error) {
	payload, err := s.snapshot(ctx)
	if err != nil {
		return BackupStats{}, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return BackupStats{}, fmt.Errorf("encode backup payload: %w", err)
	}

	doc := Backup{
		Version:   BackupVersion,
		CreatedAt: time.Now().UTC(),
		Checksum:  Checksum(raw),
		Payload:   raw,
	}

	xw, err := xz.NewWriter(w)
	if err != nil {
		return BackupStats{}, fmt.Errorf("create xz writer: %w", err)
	}
	if err := json.NewEncoder(xw).Encode(doc); err != nil {
		xw.Close()
		return BackupStats{}, fmt.Errorf("write backup: %w", err)
	}
	if err := xw.Close(); err != nil {
		return BackupStats{}, fmt.Errorf("finish xz stream: %w", err)
	}
	return payload.stats(doc.Checksum), nil
}

// Import reads a backup written by Export, verifies its checksum and upserts
// every session and preference it contains.
func (s *Store) Import(ctx context.Context, r io.Reader) (BackupStats, error) {
	xr, err := xz.NewReader(bufio.NewReader(r))
	if err != nil {
		return BackupStats{}, errors.Wrap(err, "open xz stream")
	}

	var doc Backup
	if err := json.NewDecoder(xr).Decode(&doc); err != nil {
		return BackupStats{}, fmt.Errorf("decode backup: %w", err)
	}
	if doc.Version != BackupVersion {
		return BackupStats{}, errors.NewValidation("version", fmt.Sprintf("unsupported backup version %d", doc.Version))
	}
	if got := Checksum(doc.Payload); got != doc.Checksum {
		return BackupStats{}, errors.NewValidation("checksum", fmt.Sprintf("payload checksum %s does not match %s", got, doc.Checksum))
	}

	var payload BackupPayload
	if err := json.Unmarshal(doc.Payload, &payload); err != nil {
		return BackupStats{}, fmt.Errorf("decode backup payload: %w", err)
	}
	if err := s.restore(ctx, payload); err != nil {
		return BackupStats{}, err
	}
	return payload.stats(doc.Checksum), nil
}

func (s *Store) snapshot(ctx context.Context) (BackupPayload, error) {
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		return BackupPayload{}, err
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })

	rows, err := s.db.QueryContext(ctx, `SELECT session_id, key, value FROM preferences ORDER BY session_id, key`)
	if err != nil {
		return BackupPayload{}, fmt.Errorf("read preferences: %w", err)
	}
	defer rows.Close()

	prefs := make(map[string]map[string]string)
	for rows.Next() {
		var id, k, v string
		if err := rows.Scan(&id, &k, &v); err != nil {
			return BackupPayload{}, fmt.Errorf("scan preference: %w", err)
		}
		if prefs[id] == nil {
			prefs[id] = make(map[string]string)
		}
		prefs[id][k] = v
	}
	if err := rows.Err(); err != nil {
		return BackupPayload{}, err
	}
	return BackupPayload{Sessions: sessions, Preferences: prefs}, nil
}

func (s *Store) restore(ctx context.Context, payload BackupPayload) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range payload.Sessions {
		if rec.ID == "" || !json.Valid(rec.Data) {
			return errors.NewValidation("sessions", fmt.Sprintf("invalid session record %q", rec.ID))
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data, created_at = excluded.created_at, updated_at = excluded.updated_at`,
			rec.ID, string(rec.Data), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
		if err != nil {
			return fmt.Errorf("restore session %s: %w", rec.ID, err)
		}
	}
	for id, kv := range payload.Preferences {
		for k, v := range kv {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO preferences (session_id, key, value) VALUES (?, ?, ?)
				ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value`,
				id, k, v)
			if err != nil {
				return fmt.Errorf("restore preference %s/%s: %w", id, k, err)
			}
		}
	}
	return tx.Commit()
}

func (p BackupPayload) stats(checksum string) BackupStats {
	n := 0
	for _, kv := range p.Preferences {
		n += len(kv)
	}
	return BackupStats{Sessions: len(p.Sessions), Preferences: n, Checksum: checksum}
}
