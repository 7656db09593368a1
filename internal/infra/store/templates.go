package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/hayase/setflow/internal/domain/template"
)

// PutTemplate inserts or replaces a template.
func (s *Store) PutTemplate(ctx context.Context, tpl template.Template) error {
	if err := tpl.Validate(); err != nil {
		return err
	}
	exercises, err := json.Marshal(tpl.Exercises)
	if err != nil {
		return errors.Wrap(err, "marshal exercises")
	}
	now := ts(time.Now())
	_, err = s.db.ExecContext(ctx, `
INSERT INTO templates(template_id, name, exercises, sets_count, cooldown_seconds, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(template_id) DO UPDATE SET
	name=excluded.name,
	exercises=excluded.exercises,
	sets_count=excluded.sets_count,
	cooldown_seconds=excluded.cooldown_seconds,
	updated_at=excluded.updated_at
`, tpl.ID, tpl.Name, string(exercises), tpl.SetsCount, tpl.CooldownSeconds, now, now)
	if err != nil {
		return errors.Wrap(err, "upsert template")
	}
	return nil
}

// GetTemplate fetches a template by id. Returns ErrNotFound when absent.
func (s *Store) GetTemplate(ctx context.Context, id string) (*template.Template, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT template_id, name, exercises, sets_count, cooldown_seconds
FROM templates WHERE template_id = ?
`, id)
	tpl, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "template %s", id)
		}
		return nil, err
	}
	return tpl, nil
}

// ListTemplates returns all templates ordered by name.
func (s *Store) ListTemplates(ctx context.Context) ([]template.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT template_id, name, exercises, sets_count, cooldown_seconds
FROM templates ORDER BY name, template_id
`)
	if err != nil {
		return nil, errors.Wrap(err, "list templates")
	}
	defer rows.Close()

	var out []template.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate templates")
	}
	return out, nil
}

// DeleteTemplate removes a template. Removing an unknown id is not an error.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE template_id = ?`, id); err != nil {
		return errors.Wrap(err, "delete template")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*template.Template, error) {
	var tpl template.Template
	var exercises string
	if err := row.Scan(&tpl.ID, &tpl.Name, &exercises, &tpl.SetsCount, &tpl.CooldownSeconds); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan template")
	}
	if err := json.Unmarshal([]byte(exercises), &tpl.Exercises); err != nil {
		return nil, errors.Wrap(err, "unmarshal exercises")
	}
	return &tpl, nil
}
