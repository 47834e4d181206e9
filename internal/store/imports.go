package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrImportNotPending is returned when a job has already been processed.
var ErrImportNotPending = errors.New("import job is not pending")

const leadImportColumns = `id, file_name, total_rows, successful_rows, failed_rows, skipped_rows, status,
	error_log, academic_year, created_by, created_at, completed_at`

func scanLeadImport(row rowScanner) (LeadImport, error) {
	var i LeadImport
	err := row.Scan(
		&i.ID,
		&i.FileName,
		&i.TotalRows,
		&i.SuccessfulRows,
		&i.FailedRows,
		&i.SkippedRows,
		&i.Status,
		&i.ErrorLog,
		&i.AcademicYear,
		&i.CreatedBy,
		&i.CreatedAt,
		&i.CompletedAt,
	)
	return i, err
}

type CreateLeadImportParams struct {
	FileName     string
	TotalRows    int32
	AcademicYear *string
	CreatedBy    *uuid.UUID
}

func (q *Queries) CreateLeadImport(ctx context.Context, arg CreateLeadImportParams) (LeadImport, error) {
	return scanLeadImport(q.db.QueryRow(ctx, `
INSERT INTO lead_imports (file_name, total_rows, status, error_log, academic_year, created_by)
VALUES ($1, $2, 'pending', '[]'::jsonb, $3, $4)
RETURNING `+leadImportColumns, arg.FileName, arg.TotalRows, arg.AcademicYear, arg.CreatedBy))
}

func (q *Queries) GetLeadImport(ctx context.Context, id uuid.UUID) (LeadImport, error) {
	return scanLeadImport(q.db.QueryRow(ctx, `SELECT `+leadImportColumns+` FROM lead_imports WHERE id = $1`, id))
}

func (q *Queries) ListLeadImports(ctx context.Context, limit, offset int32) ([]LeadImport, error) {
	rows, err := q.db.Query(ctx, `
SELECT `+leadImportColumns+`
FROM lead_imports
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []LeadImport{}
	for rows.Next() {
		i, err := scanLeadImport(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (q *Queries) MarkLeadImportProcessing(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `UPDATE lead_imports SET status = 'processing' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var status string
	if err := q.db.QueryRow(ctx, `SELECT status FROM lead_imports WHERE id = $1`, id).Scan(&status); err != nil {
		return err
	}
	return ErrImportNotPending
}

type CompleteLeadImportParams struct {
	ID             uuid.UUID
	TotalRows      int32
	SuccessfulRows int32
	FailedRows     int32
	SkippedRows    int32
	ErrorLog       []byte
}

func (q *Queries) CompleteLeadImport(ctx context.Context, arg CompleteLeadImportParams) (LeadImport, error) {
	return scanLeadImport(q.db.QueryRow(ctx, `
UPDATE lead_imports
SET status = 'completed',
	total_rows = $2,
	successful_rows = $3,
	failed_rows = $4,
	skipped_rows = $5,
	error_log = $6,
	completed_at = now()
WHERE id = $1
RETURNING `+leadImportColumns,
		arg.ID,
		arg.TotalRows,
		arg.SuccessfulRows,
		arg.FailedRows,
		arg.SkippedRows,
		arg.ErrorLog,
	))
}

func (q *Queries) FailLeadImport(ctx context.Context, id uuid.UUID, errorLog []byte) error {
	_, err := q.db.Exec(ctx, `
UPDATE lead_imports
SET status = 'failed', error_log = $2, completed_at = now()
WHERE id = $1`, id, errorLog)
	return err
}
