package leads

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadops/crm-api/internal/store"
)

var (
	ErrInvalidEmail        = errors.New("invalid email format")
	ErrNameOrEmailRequired = errors.New("full name or email is required")
	ErrEmptyNote           = errors.New("note body is required")
	ErrReasonRequired      = errors.New("a reason is required to request a closure exception")
	ErrExceptionReviewed   = errors.New("closure exception has already been reviewed")
	ErrNoLeadsSelected     = errors.New("no leads selected")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail is the basic local@domain.tld check shared by manual entry and
// imports.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

type Store interface {
	CreateLead(ctx context.Context, arg store.CreateLeadParams) (store.Lead, error)
	GetLead(ctx context.Context, id uuid.UUID) (store.Lead, error)
	ListLeads(ctx context.Context, arg store.ListLeadsParams) ([]store.Lead, error)
	UpdateLeadStatus(ctx context.Context, arg store.UpdateLeadStatusParams) (store.Lead, error)
	UpdateLeadAssignment(ctx context.Context, id uuid.UUID, assignedTo *uuid.UUID) (store.Lead, error)
	SetLeadHot(ctx context.Context, id uuid.UUID, isHot bool) (store.Lead, error)
	DeleteLeads(ctx context.Context, ids []uuid.UUID) (int64, error)
	RecordFollowup(ctx context.Context, arg store.RecordFollowupParams) (store.Lead, store.LeadFollowup, error)
	CreateLeadNote(ctx context.Context, arg store.CreateLeadNoteParams) (store.LeadNote, error)
	ListLeadNotes(ctx context.Context, leadID uuid.UUID) ([]store.LeadNote, error)
	CreateClosureException(ctx context.Context, arg store.CreateClosureExceptionParams) (store.ClosureException, error)
	GetClosureException(ctx context.Context, id uuid.UUID) (store.ClosureException, error)
	ReviewClosureException(ctx context.Context, arg store.ReviewClosureExceptionParams) (store.ClosureException, error)
	HasApprovedClosureException(ctx context.Context, leadID uuid.UUID) (bool, error)
	ListActiveLeadSources(ctx context.Context) ([]store.LeadSource, error)
}

// Service owns every lead write so the follow-up gate and the revenue rule
// hold regardless of which client calls the API.
type Service struct {
	store               Store
	defaultAcademicYear string
	now                 func() time.Time
}

func NewService(s Store, defaultAcademicYear string) *Service {
	return &Service{store: s, defaultAcademicYear: defaultAcademicYear, now: time.Now}
}

type CreateInput struct {
	FullName               string
	Email                  string
	Phone                  string
	Source                 string
	RoomChoice             string
	StayDuration           string
	LeadStatus             string
	EstimatedRevenue       int64
	IsHot                  bool
	AssignedTo             *uuid.UUID
	AcademicYear           string
	DateOfInquiry          *time.Time
	LandingPage            string
	ContactReason          string
	ContactMessage         string
	KeyworkerLengthOfStay  string
	KeyworkerPreferredDate string
	Notes                  string
	CreatedBy              *uuid.UUID
}

func (s *Service) Create(ctx context.Context, in CreateInput) (store.Lead, error) {
	fullName := strings.TrimSpace(in.FullName)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if fullName == "" && email == "" {
		return store.Lead{}, ErrNameOrEmailRequired
	}
	if email != "" && !ValidEmail(email) {
		return store.Lead{}, ErrInvalidEmail
	}

	sources, err := s.store.ListActiveLeadSources(ctx)
	if err != nil {
		return store.Lead{}, fmt.Errorf("load lead sources: %w", err)
	}
	mapper := NewSourceMapper(SourceSlugs(sources))

	status := MapStatus(in.LeadStatus)
	room := MapRoom(in.RoomChoice)
	duration := MapDuration(in.StayDuration)

	inquiry := s.now()
	if in.DateOfInquiry != nil {
		inquiry = *in.DateOfInquiry
	}
	academicYear := strings.TrimSpace(in.AcademicYear)
	if academicYear == "" {
		academicYear = s.defaultAcademicYear
	}

	lead, err := s.store.CreateLead(ctx, store.CreateLeadParams{
		FullName:               fullName,
		Email:                  email,
		Phone:                  strings.TrimSpace(in.Phone),
		Source:                 mapper.Map(in.Source),
		RoomChoice:             string(room),
		StayDuration:           string(duration),
		LeadStatus:             string(status),
		PotentialRevenue:       PotentialRevenue(status, room, duration, in.EstimatedRevenue),
		IsHot:                  in.IsHot,
		AssignedTo:             in.AssignedTo,
		AcademicYear:           academicYear,
		DateOfInquiry:          inquiry,
		LandingPage:            optionalText(in.LandingPage),
		ContactReason:          optionalText(in.ContactReason),
		ContactMessage:         optionalText(in.ContactMessage),
		KeyworkerLengthOfStay:  optionalText(in.KeyworkerLengthOfStay),
		KeyworkerPreferredDate: optionalText(in.KeyworkerPreferredDate),
		CreatedBy:              in.CreatedBy,
	})
	if err != nil {
		return store.Lead{}, fmt.Errorf("create lead: %w", err)
	}

	if note := strings.TrimSpace(in.Notes); note != "" {
		if _, err := s.store.CreateLeadNote(ctx, store.CreateLeadNoteParams{
			LeadID:    lead.ID,
			Body:      note,
			CreatedBy: in.CreatedBy,
		}); err != nil {
			return lead, fmt.Errorf("create lead note: %w", err)
		}
	}
	return lead, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (store.Lead, error) {
	return s.store.GetLead(ctx, id)
}

func (s *Service) List(ctx context.Context, filter store.ListLeadsParams) ([]store.Lead, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.ListLeads(ctx, filter)
}

// ChangeStatus moves a lead to a new status. Closing goes through
// CheckTransition; revenue is recomputed unless a converted lead is re-saved
// without an override.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, to string, revenueOverride int64) (store.Lead, error) {
	next, ok := ParseStatus(to)
	if !ok {
		return store.Lead{}, ErrInvalidStatus
	}

	lead, err := s.store.GetLead(ctx, id)
	if err != nil {
		return store.Lead{}, err
	}
	current := Status(lead.LeadStatus)

	hasException := false
	if next == StatusClosed && current != StatusClosed && int(lead.FollowupCount) < MinFollowupsToClose {
		hasException, err = s.store.HasApprovedClosureException(ctx, lead.ID)
		if err != nil {
			return store.Lead{}, fmt.Errorf("check closure exception: %w", err)
		}
	}
	if err := CheckTransition(current, int(lead.FollowupCount), next, hasException); err != nil {
		return store.Lead{}, err
	}

	revenue := PotentialRevenue(next, Room(lead.RoomChoice), Duration(lead.StayDuration), revenueOverride)
	// An already converted lead keeps its stored revenue unless a new value is given.
	if current == StatusConverted && next == StatusConverted && revenueOverride <= 0 && lead.PotentialRevenue > 0 {
		revenue = lead.PotentialRevenue
	}
	return s.store.UpdateLeadStatus(ctx, store.UpdateLeadStatusParams{
		ID:               lead.ID,
		LeadStatus:       string(next),
		PotentialRevenue: revenue,
	})
}

func (s *Service) RecordFollowup(ctx context.Context, id uuid.UUID, note string, next *time.Time, by *uuid.UUID) (store.Lead, store.LeadFollowup, error) {
	return s.store.RecordFollowup(ctx, store.RecordFollowupParams{
		LeadID:           id,
		Note:             optionalText(note),
		NextFollowupDate: next,
		CreatedBy:        by,
	})
}

func (s *Service) RequestClosureException(ctx context.Context, leadID uuid.UUID, reason string, by *uuid.UUID) (store.ClosureException, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return store.ClosureException{}, ErrReasonRequired
	}
	if _, err := s.store.GetLead(ctx, leadID); err != nil {
		return store.ClosureException{}, err
	}
	return s.store.CreateClosureException(ctx, store.CreateClosureExceptionParams{
		LeadID:      leadID,
		Reason:      reason,
		RequestedBy: by,
	})
}

func (s *Service) ReviewClosureException(ctx context.Context, id uuid.UUID, approve bool, note string, by *uuid.UUID) (store.ClosureException, error) {
	existing, err := s.store.GetClosureException(ctx, id)
	if err != nil {
		return store.ClosureException{}, err
	}
	if existing.Status != "pending" {
		return store.ClosureException{}, ErrExceptionReviewed
	}

	status := "rejected"
	if approve {
		status = "approved"
	}
	reviewed, err := s.store.ReviewClosureException(ctx, store.ReviewClosureExceptionParams{
		ID:         id,
		Status:     status,
		ReviewedBy: by,
		ReviewNote: optionalText(note),
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ClosureException{}, ErrExceptionReviewed
	}
	return reviewed, err
}

func (s *Service) Assign(ctx context.Context, id uuid.UUID, assignee *uuid.UUID) (store.Lead, error) {
	return s.store.UpdateLeadAssignment(ctx, id, assignee)
}

func (s *Service) SetHot(ctx context.Context, id uuid.UUID, isHot bool) (store.Lead, error) {
	return s.store.SetLeadHot(ctx, id, isHot)
}

func (s *Service) AddNote(ctx context.Context, leadID uuid.UUID, body string, by *uuid.UUID) (store.LeadNote, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return store.LeadNote{}, ErrEmptyNote
	}
	if _, err := s.store.GetLead(ctx, leadID); err != nil {
		return store.LeadNote{}, err
	}
	return s.store.CreateLeadNote(ctx, store.CreateLeadNoteParams{LeadID: leadID, Body: body, CreatedBy: by})
}

func (s *Service) ListNotes(ctx context.Context, leadID uuid.UUID) ([]store.LeadNote, error) {
	if _, err := s.store.GetLead(ctx, leadID); err != nil {
		return nil, err
	}
	return s.store.ListLeadNotes(ctx, leadID)
}

// BulkDelete is the only hard delete of leads.
func (s *Service) BulkDelete(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, ErrNoLeadsSelected
	}
	return s.store.DeleteLeads(ctx, ids)
}

func SourceSlugs(sources []store.LeadSource) []string {
	slugs := make([]string, 0, len(sources))
	for _, source := range sources {
		if source.IsActive {
			slugs = append(slugs, source.Slug)
		}
	}
	return slugs
}

func optionalText(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
