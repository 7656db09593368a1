package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// Migration is one versioned schema step.
type Migration struct {
	Version int
	UpSQL   string
	DownSQL string
}

var migrations = []Migration{
	{
		Version: 1,
		UpSQL: `
CREATE TABLE IF NOT EXISTS templates (
	template_id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	exercises TEXT NOT NULL,
	sets_count INTEGER NOT NULL CHECK(sets_count >= 1),
	cooldown_seconds INTEGER NOT NULL CHECK(cooldown_seconds >= 0),
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

-- Single-slot resource: at most one in-progress session exists system-wide.
CREATE TABLE IF NOT EXISTS session_slot (
	slot_id TEXT PRIMARY KEY CHECK(slot_id = 'active'),
	session_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	settings_id TEXT PRIMARY KEY CHECK(settings_id = 'default'),
	countdown_enabled INTEGER NOT NULL DEFAULT 1,
	countdown_seconds INTEGER NOT NULL DEFAULT 3 CHECK(countdown_seconds BETWEEN 1 AND 10),
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS session_history (
	session_id TEXT PRIMARY KEY,
	template_id TEXT NOT NULL,
	started_at TEXT NOT NULL,
	completed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_completed_at ON session_history(completed_at);
`,
		DownSQL: `
DROP INDEX IF EXISTS idx_history_completed_at;
DROP TABLE IF EXISTS session_history;
DROP TABLE IF EXISTS settings;
DROP TABLE IF EXISTS session_slot;
DROP TABLE IF EXISTS templates;
`,
	},
}

// ApplyMigrations applies all pending migrations in order.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations(version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return errors.Wrap(err, "create schema_migrations")
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.Version).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(err, "check migration %d", m.Version)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrapf(err, "begin tx for migration %d", m.Version)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "apply migration %d", m.Version)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, m.Version); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "record migration %d", m.Version)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit migration %d", m.Version)
		}
	}
	return nil
}

// RollbackAll reverses every applied migration, newest first.
func RollbackAll(ctx context.Context, db *sql.DB) error {
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrapf(err, "begin rollback tx %d", m.Version)
		}
		if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "rollback migration %d", m.Version)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?`, m.Version); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "unrecord migration %d", m.Version)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit rollback %d", m.Version)
		}
	}
	return nil
}
