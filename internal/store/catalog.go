package store

import (
	"context"

	"github.com/google/uuid"
)

func (q *Queries) ListActiveLeadSources(ctx context.Context) ([]LeadSource, error) {
	rows, err := q.db.Query(ctx, `
SELECT slug, label, is_active
FROM lead_sources
WHERE is_active
ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []LeadSource{}
	for rows.Next() {
		var s LeadSource
		if err := rows.Scan(&s.Slug, &s.Label, &s.IsActive); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (q *Queries) UpsertLeadSource(ctx context.Context, arg LeadSource) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO lead_sources (slug, label, is_active)
VALUES ($1, $2, $3)
ON CONFLICT (slug) DO UPDATE SET label = EXCLUDED.label, is_active = EXCLUDED.is_active`,
		arg.Slug, arg.Label, arg.IsActive)
	return err
}

const emailTemplateColumns = `id, name, subject, body_html, body_text, updated_at`

func scanEmailTemplate(row rowScanner) (EmailTemplate, error) {
	var t EmailTemplate
	err := row.Scan(&t.ID, &t.Name, &t.Subject, &t.BodyHTML, &t.BodyText, &t.UpdatedAt)
	return t, err
}

func (q *Queries) GetEmailTemplate(ctx context.Context, id uuid.UUID) (EmailTemplate, error) {
	return scanEmailTemplate(q.db.QueryRow(ctx, `SELECT `+emailTemplateColumns+` FROM email_templates WHERE id = $1`, id))
}

func (q *Queries) GetEmailTemplateByName(ctx context.Context, name string) (EmailTemplate, error) {
	return scanEmailTemplate(q.db.QueryRow(ctx, `SELECT `+emailTemplateColumns+` FROM email_templates WHERE lower(name) = lower($1)`, name))
}

type UpsertEmailTemplateParams struct {
	Name     string
	Subject  string
	BodyHTML string
	BodyText *string
}

func (q *Queries) UpsertEmailTemplate(ctx context.Context, arg UpsertEmailTemplateParams) (EmailTemplate, error) {
	return scanEmailTemplate(q.db.QueryRow(ctx, `
INSERT INTO email_templates (name, subject, body_html, body_text)
VALUES ($1, $2, $3, $4)
ON CONFLICT (name) DO UPDATE
SET subject = EXCLUDED.subject, body_html = EXCLUDED.body_html, body_text = EXCLUDED.body_text, updated_at = now()
RETURNING `+emailTemplateColumns, arg.Name, arg.Subject, arg.BodyHTML, arg.BodyText))
}

func (q *Queries) ListAppSettings(ctx context.Context) ([]AppSetting, error) {
	rows, err := q.db.Query(ctx, `SELECT key, value FROM app_settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []AppSetting{}
	for rows.Next() {
		var s AppSetting
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (q *Queries) UpsertAppSetting(ctx context.Context, arg AppSetting) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO app_settings (key, value)
VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, arg.Key, arg.Value)
	return err
}
