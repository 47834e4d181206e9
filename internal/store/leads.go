package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const leadColumns = `id, full_name, email, phone, source, room_choice, stay_duration, lead_status,
	potential_revenue, followup_count, last_followup_date, next_followup_date, is_hot, assigned_to,
	academic_year, date_of_inquiry, landing_page, contact_reason, contact_message,
	keyworker_length_of_stay, keyworker_preferred_date, created_by, import_id, created_at, updated_at`

func scanLead(row rowScanner) (Lead, error) {
	var l Lead
	err := row.Scan(
		&l.ID,
		&l.FullName,
		&l.Email,
		&l.Phone,
		&l.Source,
		&l.RoomChoice,
		&l.StayDuration,
		&l.LeadStatus,
		&l.PotentialRevenue,
		&l.FollowupCount,
		&l.LastFollowupDate,
		&l.NextFollowupDate,
		&l.IsHot,
		&l.AssignedTo,
		&l.AcademicYear,
		&l.DateOfInquiry,
		&l.LandingPage,
		&l.ContactReason,
		&l.ContactMessage,
		&l.KeyworkerLengthOfStay,
		&l.KeyworkerPreferredDate,
		&l.CreatedBy,
		&l.ImportID,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	return l, err
}

func collectLeads(rows pgx.Rows) ([]Lead, error) {
	defer rows.Close()
	items := []Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

type CreateLeadParams struct {
	FullName               string
	Email                  string
	Phone                  string
	Source                 string
	RoomChoice             string
	StayDuration           string
	LeadStatus             string
	PotentialRevenue       int64
	IsHot                  bool
	AssignedTo             *uuid.UUID
	AcademicYear           string
	DateOfInquiry          time.Time
	LandingPage            *string
	ContactReason          *string
	ContactMessage         *string
	KeyworkerLengthOfStay  *string
	KeyworkerPreferredDate *string
	CreatedBy              *uuid.UUID
	ImportID               *uuid.UUID
}

const createLead = `
INSERT INTO leads (
	full_name, email, phone, source, room_choice, stay_duration, lead_status, potential_revenue,
	is_hot, assigned_to, academic_year, date_of_inquiry, landing_page, contact_reason, contact_message,
	keyworker_length_of_stay, keyworker_preferred_date, created_by, import_id
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
RETURNING ` + leadColumns

func (p CreateLeadParams) args() []any {
	return []any{
		p.FullName,
		p.Email,
		p.Phone,
		p.Source,
		p.RoomChoice,
		p.StayDuration,
		p.LeadStatus,
		p.PotentialRevenue,
		p.IsHot,
		p.AssignedTo,
		p.AcademicYear,
		p.DateOfInquiry,
		p.LandingPage,
		p.ContactReason,
		p.ContactMessage,
		p.KeyworkerLengthOfStay,
		p.KeyworkerPreferredDate,
		p.CreatedBy,
		p.ImportID,
	}
}

func (q *Queries) CreateLead(ctx context.Context, arg CreateLeadParams) (Lead, error) {
	return scanLead(q.db.QueryRow(ctx, createLead, arg.args()...))
}

// InsertLeadBatch writes every lead in one transaction and returns their ids
// in input order. Either all rows are stored or none are.
func (s *Store) InsertLeadBatch(ctx context.Context, leads []CreateLeadParams) ([]uuid.UUID, error) {
	if len(leads) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(leads))
	err := s.withTx(ctx, func(q *Queries) error {
		batch := &pgx.Batch{}
		for _, lead := range leads {
			batch.Queue(createLead, lead.args()...)
		}
		results := q.db.SendBatch(ctx, batch)
		for i := range leads {
			created, err := scanLead(results.QueryRow())
			if err != nil {
				results.Close()
				return fmt.Errorf("insert lead %d: %w", i+1, err)
			}
			ids = append(ids, created.ID)
		}
		return results.Close()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (q *Queries) GetLead(ctx context.Context, id uuid.UUID) (Lead, error) {
	return scanLead(q.db.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
}

type ListLeadsParams struct {
	AcademicYear *string
	Status       *string
	Source       *string
	AssignedTo   *uuid.UUID
	IsHot        *bool
	Search       *string
	Limit        int32
	Offset       int32
}

func (q *Queries) ListLeads(ctx context.Context, arg ListLeadsParams) ([]Lead, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if arg.AcademicYear != nil {
		add("academic_year = $%d", *arg.AcademicYear)
	}
	if arg.Status != nil {
		add("lead_status = $%d", *arg.Status)
	}
	if arg.Source != nil {
		add("source = $%d", *arg.Source)
	}
	if arg.AssignedTo != nil {
		add("assigned_to = $%d", *arg.AssignedTo)
	}
	if arg.IsHot != nil {
		add("is_hot = $%d", *arg.IsHot)
	}
	if arg.Search != nil && strings.TrimSpace(*arg.Search) != "" {
		pattern := "%" + strings.TrimSpace(*arg.Search) + "%"
		args = append(args, pattern)
		n := len(args)
		where = append(where, fmt.Sprintf("(full_name ILIKE $%d OR email ILIKE $%d OR phone ILIKE $%d)", n, n, n))
	}

	sql := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY date_of_inquiry DESC, created_at DESC`
	if arg.Limit > 0 {
		args = append(args, arg.Limit, arg.Offset)
		sql += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectLeads(rows)
}

type UpdateLeadStatusParams struct {
	ID               uuid.UUID
	LeadStatus       string
	PotentialRevenue int64
}

func (q *Queries) UpdateLeadStatus(ctx context.Context, arg UpdateLeadStatusParams) (Lead, error) {
	return scanLead(q.db.QueryRow(ctx, `
UPDATE leads
SET lead_status = $2, potential_revenue = $3, updated_at = now()
WHERE id = $1
RETURNING `+leadColumns, arg.ID, arg.LeadStatus, arg.PotentialRevenue))
}

func (q *Queries) UpdateLeadAssignment(ctx context.Context, id uuid.UUID, assignedTo *uuid.UUID) (Lead, error) {
	return scanLead(q.db.QueryRow(ctx, `
UPDATE leads SET assigned_to = $2, updated_at = now()
WHERE id = $1
RETURNING `+leadColumns, id, assignedTo))
}

func (q *Queries) SetLeadHot(ctx context.Context, id uuid.UUID, isHot bool) (Lead, error) {
	return scanLead(q.db.QueryRow(ctx, `
UPDATE leads SET is_hot = $2, updated_at = now()
WHERE id = $1
RETURNING `+leadColumns, id, isHot))
}

func (q *Queries) DeleteLeads(ctx context.Context, ids []uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM leads WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type RecordFollowupParams struct {
	LeadID           uuid.UUID
	Note             *string
	NextFollowupDate *time.Time
	CreatedBy        *uuid.UUID
}

// RecordFollowup bumps the lead's follow-up counter and writes the matching
// lead_followups row in one transaction.
func (s *Store) RecordFollowup(ctx context.Context, arg RecordFollowupParams) (Lead, LeadFollowup, error) {
	var (
		lead     Lead
		followup LeadFollowup
	)
	err := s.withTx(ctx, func(q *Queries) error {
		var err error
		lead, err = scanLead(q.db.QueryRow(ctx, `
UPDATE leads
SET followup_count = followup_count + 1,
	last_followup_date = now(),
	next_followup_date = $2,
	updated_at = now()
WHERE id = $1
RETURNING `+leadColumns, arg.LeadID, arg.NextFollowupDate))
		if err != nil {
			return err
		}

		return q.db.QueryRow(ctx, `
INSERT INTO lead_followups (lead_id, followup_number, note, created_by)
VALUES ($1, $2, $3, $4)
RETURNING id, lead_id, followup_number, note, created_by, created_at
`, lead.ID, lead.FollowupCount, arg.Note, arg.CreatedBy).Scan(
			&followup.ID,
			&followup.LeadID,
			&followup.FollowupNumber,
			&followup.Note,
			&followup.CreatedBy,
			&followup.CreatedAt,
		)
	})
	if err != nil {
		return Lead{}, LeadFollowup{}, err
	}
	return lead, followup, nil
}
