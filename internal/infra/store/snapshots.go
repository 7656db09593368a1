package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

// PutSnapshot writes the active-session snapshot. The slot is single-owner:
// writing under a different session id than the current holder fails with
// ErrSlotHeld, so a new session can never silently clobber an unresolved one.
func (s *Store) PutSnapshot(ctx context.Context, sessionID string, payload []byte) error {
	var holder string
	err := s.db.QueryRowContext(ctx, `SELECT session_id FROM session_slot WHERE slot_id = 'active'`).Scan(&holder)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(err, "read snapshot slot")
	}
	if err == nil && holder != sessionID {
		return errors.Wrapf(ErrSlotHeld, "held by %s", holder)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO session_slot(slot_id, session_id, payload, updated_at)
VALUES ('active', ?, ?, ?)
ON CONFLICT(slot_id) DO UPDATE SET
	session_id=excluded.session_id,
	payload=excluded.payload,
	updated_at=excluded.updated_at
`, sessionID, string(payload), ts(time.Now()))
	if err != nil {
		return errors.Wrap(err, "write snapshot slot")
	}
	return nil
}

// GetSnapshot reads the active-session snapshot payload.
// Returns ErrNotFound when the slot is empty.
func (s *Store) GetSnapshot(ctx context.Context) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM session_slot WHERE slot_id = 'active'`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(ErrNotFound, "snapshot slot empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read snapshot slot")
	}
	return []byte(payload), nil
}

// ClearSnapshot releases the slot. Clearing an empty slot is not an error;
// discard must be safe to call from any state.
func (s *Store) ClearSnapshot(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_slot WHERE slot_id = 'active'`); err != nil {
		return errors.Wrap(err, "clear snapshot slot")
	}
	return nil
}
