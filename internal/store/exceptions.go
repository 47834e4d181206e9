package store

import (
	"context"

	"github.com/google/uuid"
)

const closureExceptionColumns = `id, lead_id, reason, status, requested_by, reviewed_by, review_note, created_at, reviewed_at`

func scanClosureException(row rowScanner) (ClosureException, error) {
	var e ClosureException
	err := row.Scan(
		&e.ID,
		&e.LeadID,
		&e.Reason,
		&e.Status,
		&e.RequestedBy,
		&e.ReviewedBy,
		&e.ReviewNote,
		&e.CreatedAt,
		&e.ReviewedAt,
	)
	return e, err
}

type CreateClosureExceptionParams struct {
	LeadID      uuid.UUID
	Reason      string
	RequestedBy *uuid.UUID
}

func (q *Queries) CreateClosureException(ctx context.Context, arg CreateClosureExceptionParams) (ClosureException, error) {
	return scanClosureException(q.db.QueryRow(ctx, `
INSERT INTO closure_exceptions (lead_id, reason, status, requested_by)
VALUES ($1, $2, 'pending', $3)
RETURNING `+closureExceptionColumns, arg.LeadID, arg.Reason, arg.RequestedBy))
}

func (q *Queries) GetClosureException(ctx context.Context, id uuid.UUID) (ClosureException, error) {
	return scanClosureException(q.db.QueryRow(ctx, `SELECT `+closureExceptionColumns+` FROM closure_exceptions WHERE id = $1`, id))
}

type ReviewClosureExceptionParams struct {
	ID         uuid.UUID
	Status     string
	ReviewedBy *uuid.UUID
	ReviewNote *string
}

// ReviewClosureException only touches pending requests; a second review
// returns pgx.ErrNoRows.
func (q *Queries) ReviewClosureException(ctx context.Context, arg ReviewClosureExceptionParams) (ClosureException, error) {
	return scanClosureException(q.db.QueryRow(ctx, `
UPDATE closure_exceptions
SET status = $2, reviewed_by = $3, review_note = $4, reviewed_at = now()
WHERE id = $1 AND status = 'pending'
RETURNING `+closureExceptionColumns, arg.ID, arg.Status, arg.ReviewedBy, arg.ReviewNote))
}

func (q *Queries) HasApprovedClosureException(ctx context.Context, leadID uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM closure_exceptions WHERE lead_id = $1 AND status = 'approved'
)`, leadID).Scan(&exists)
	return exists, err
}
