package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type CreateLeadNoteParams struct {
	LeadID    uuid.UUID
	Body      string
	CreatedBy *uuid.UUID
}

const createLeadNote = `
INSERT INTO lead_notes (lead_id, body, created_by)
VALUES ($1, $2, $3)
RETURNING id, lead_id, body, created_by, created_at`

func scanLeadNote(row rowScanner) (LeadNote, error) {
	var n LeadNote
	err := row.Scan(&n.ID, &n.LeadID, &n.Body, &n.CreatedBy, &n.CreatedAt)
	return n, err
}

func (q *Queries) CreateLeadNote(ctx context.Context, arg CreateLeadNoteParams) (LeadNote, error) {
	return scanLeadNote(q.db.QueryRow(ctx, createLeadNote, arg.LeadID, arg.Body, arg.CreatedBy))
}

func (q *Queries) ListLeadNotes(ctx context.Context, leadID uuid.UUID) ([]LeadNote, error) {
	rows, err := q.db.Query(ctx, `
SELECT id, lead_id, body, created_by, created_at
FROM lead_notes
WHERE lead_id = $1
ORDER BY created_at DESC`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []LeadNote{}
	for rows.Next() {
		n, err := scanLeadNote(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (s *Store) InsertLeadNoteBatch(ctx context.Context, notes []CreateLeadNoteParams) error {
	if len(notes) == 0 {
		return nil
	}
	return s.withTx(ctx, func(q *Queries) error {
		batch := &pgx.Batch{}
		for _, note := range notes {
			batch.Queue(createLeadNote, note.LeadID, note.Body, note.CreatedBy)
		}
		results := q.db.SendBatch(ctx, batch)
		for i := range notes {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("insert note %d: %w", i+1, err)
			}
		}
		return results.Close()
	})
}
