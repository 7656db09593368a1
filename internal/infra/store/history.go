package store

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/hayase/setflow/internal/domain/session"
)

// AddRecord appends a completed-session record.
func (s *Store) AddRecord(ctx context.Context, rec session.Record) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO session_history(session_id, template_id, started_at, completed_at)
VALUES (?, ?, ?, ?)
`, rec.ID, rec.TemplateID, ts(rec.StartedAt), ts(rec.CompletedAt))
	if err != nil {
		return errors.Wrap(err, "insert history record")
	}
	return nil
}

// ListRecords returns completed sessions newest first. limit <= 0 means all.
func (s *Store) ListRecords(ctx context.Context, limit int) ([]session.Record, error) {
	q := `SELECT session_id, template_id, started_at, completed_at FROM session_history ORDER BY completed_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list history")
	}
	defer rows.Close()

	var out []session.Record
	for rows.Next() {
		var rec session.Record
		var startedAt, completedAt string
		if err := rows.Scan(&rec.ID, &rec.TemplateID, &startedAt, &completedAt); err != nil {
			return nil, errors.Wrap(err, "scan history record")
		}
		if rec.StartedAt, err = parseTS(startedAt); err != nil {
			return nil, err
		}
		if rec.CompletedAt, err = parseTS(completedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate history")
	}
	return out, nil
}
