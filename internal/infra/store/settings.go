package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

// Settings holds the user-tunable countdown pre-roll configuration,
// consumed read-only at session start and resume.
type Settings struct {
	CountdownEnabled bool
	CountdownSeconds int // 1..10
}

// DefaultSettings are used until the user saves their own.
func DefaultSettings() Settings {
	return Settings{CountdownEnabled: true, CountdownSeconds: 3}
}

// GetSettings returns the saved settings, or defaults when none were saved.
func (s *Store) GetSettings(ctx context.Context) (Settings, error) {
	var enabled, seconds int
	err := s.db.QueryRowContext(ctx, `
SELECT countdown_enabled, countdown_seconds FROM settings WHERE settings_id = 'default'
`).Scan(&enabled, &seconds)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, errors.Wrap(err, "read settings")
	}
	return Settings{CountdownEnabled: enabled != 0, CountdownSeconds: seconds}, nil
}

// PutSettings saves the settings.
func (s *Store) PutSettings(ctx context.Context, set Settings) error {
	if set.CountdownSeconds < 1 || set.CountdownSeconds > 10 {
		return errors.Newf("countdown seconds out of range: %d", set.CountdownSeconds)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO settings(settings_id, countdown_enabled, countdown_seconds, updated_at)
VALUES ('default', ?, ?, ?)
ON CONFLICT(settings_id) DO UPDATE SET
	countdown_enabled=excluded.countdown_enabled,
	countdown_seconds=excluded.countdown_seconds,
	updated_at=excluded.updated_at
`, boolToInt(set.CountdownEnabled), set.CountdownSeconds, ts(time.Now()))
	if err != nil {
		return errors.Wrap(err, "write settings")
	}
	return nil
}
