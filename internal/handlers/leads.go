package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/leadops/crm-api/internal/httpx"
	"github.com/leadops/crm-api/internal/leads"
	"github.com/leadops/crm-api/internal/store"
)

const (
	defaultLeadListLimit = 100
	maxLeadListLimit     = 500
)

type leadResponse struct {
	ID                     openapi_types.UUID  `json:"id"`
	FullName               string              `json:"fullName"`
	Email                  string              `json:"email"`
	Phone                  string              `json:"phone"`
	Source                 string              `json:"source"`
	RoomChoice             string              `json:"roomChoice"`
	StayDuration           string              `json:"stayDuration"`
	LeadStatus             string              `json:"leadStatus"`
	PotentialRevenue       int64               `json:"potentialRevenue"`
	FollowupCount          int32               `json:"followupCount"`
	FollowupsRemaining     int                 `json:"followupsRemaining"`
	LastFollowupDate       *time.Time          `json:"lastFollowupDate,omitempty"`
	NextFollowupDate       *openapi_types.Date `json:"nextFollowupDate,omitempty"`
	IsHot                  bool                `json:"isHot"`
	AssignedTo             *openapi_types.UUID `json:"assignedTo,omitempty"`
	AcademicYear           string              `json:"academicYear"`
	DateOfInquiry          openapi_types.Date  `json:"dateOfInquiry"`
	LandingPage            *string             `json:"landingPage,omitempty"`
	ContactReason          *string             `json:"contactReason,omitempty"`
	ContactMessage         *string             `json:"contactMessage,omitempty"`
	KeyworkerLengthOfStay  *string             `json:"keyworkerLengthOfStay,omitempty"`
	KeyworkerPreferredDate *string             `json:"keyworkerPreferredDate,omitempty"`
	ImportID               *openapi_types.UUID `json:"importId,omitempty"`
	CreatedAt              time.Time           `json:"createdAt"`
	UpdatedAt              time.Time           `json:"updatedAt"`
}

type leadListResponse struct {
	Items  []leadResponse `json:"items"`
	Limit  int32          `json:"limit"`
	Offset int32          `json:"offset"`
}

type createLeadRequest struct {
	FullName               string              `json:"fullName"`
	Email                  string              `json:"email"`
	Phone                  string              `json:"phone"`
	Source                 string              `json:"source"`
	RoomChoice             string              `json:"roomChoice"`
	StayDuration           string              `json:"stayDuration"`
	LeadStatus             string              `json:"leadStatus"`
	EstimatedRevenue       int64               `json:"estimatedRevenue"`
	IsHot                  bool                `json:"isHot"`
	AssignedTo             *openapi_types.UUID `json:"assignedTo"`
	AcademicYear           string              `json:"academicYear"`
	DateOfInquiry          *openapi_types.Date `json:"dateOfInquiry"`
	LandingPage            string              `json:"landingPage"`
	ContactReason          string              `json:"contactReason"`
	ContactMessage         string              `json:"contactMessage"`
	KeyworkerLengthOfStay  string              `json:"keyworkerLengthOfStay"`
	KeyworkerPreferredDate string              `json:"keyworkerPreferredDate"`
	Notes                  string              `json:"notes"`
}

type changeStatusRequest struct {
	Status  string `json:"status"`
	Revenue *int64 `json:"revenue"`
}

type followupRequest struct {
	Note             string              `json:"note"`
	NextFollowupDate *openapi_types.Date `json:"nextFollowupDate"`
}

type followupResponse struct {
	ID             openapi_types.UUID `json:"id"`
	FollowupNumber int32              `json:"followupNumber"`
	Note           *string            `json:"note,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}

type assignmentRequest struct {
	AssignedTo *openapi_types.UUID `json:"assignedTo"`
}

type hotRequest struct {
	IsHot *bool `json:"isHot"`
}

type noteRequest struct {
	Body string `json:"body"`
}

type noteResponse struct {
	ID        openapi_types.UUID  `json:"id"`
	LeadID    openapi_types.UUID  `json:"leadId"`
	Body      string              `json:"body"`
	CreatedBy *openapi_types.UUID `json:"createdBy,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
}

type closureExceptionRequest struct {
	Reason string `json:"reason"`
}

type reviewExceptionRequest struct {
	Approve *bool  `json:"approve"`
	Note    string `json:"note"`
}

type closureExceptionResponse struct {
	ID          openapi_types.UUID  `json:"id"`
	LeadID      openapi_types.UUID  `json:"leadId"`
	Reason      string              `json:"reason"`
	Status      string              `json:"status"`
	RequestedBy *openapi_types.UUID `json:"requestedBy,omitempty"`
	ReviewedBy  *openapi_types.UUID `json:"reviewedBy,omitempty"`
	ReviewNote  *string             `json:"reviewNote,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	ReviewedAt  *time.Time          `json:"reviewedAt,omitempty"`
}

type bulkDeleteRequest struct {
	IDs []openapi_types.UUID `json:"ids"`
}

func (s *Server) GetLeads(w http.ResponseWriter, r *http.Request) {
	filter, err := leadFilter(r)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	limit, offset, err := pageParams(r, defaultLeadListLimit, maxLeadListLimit)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	filter.Limit, filter.Offset = limit, offset

	rows, err := s.Leads.List(r.Context(), filter)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load leads", nil)
		return
	}
	items := make([]leadResponse, 0, len(rows))
	for _, lead := range rows {
		items = append(items, mapLead(lead))
	}
	httpx.WriteJSON(w, http.StatusOK, leadListResponse{Items: items, Limit: limit, Offset: offset})
}

func leadFilter(r *http.Request) (store.ListLeadsParams, error) {
	q := r.URL.Query()
	var filter store.ListLeadsParams
	if v := strings.TrimSpace(q.Get("academicYear")); v != "" {
		filter.AcademicYear = &v
	}
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		status, ok := leads.ParseStatus(v)
		if !ok {
			return filter, fmt.Errorf("status %q is not a lead status", v)
		}
		filter.Status = ptr(string(status))
	}
	if v := strings.TrimSpace(q.Get("source")); v != "" {
		filter.Source = &v
	}
	if v := strings.TrimSpace(q.Get("assignedTo")); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, errors.New("assignedTo must be a UUID")
		}
		filter.AssignedTo = &id
	}
	if v := strings.TrimSpace(q.Get("hot")); v != "" {
		hot, err := strconv.ParseBool(v)
		if err != nil {
			return filter, errors.New("hot must be true or false")
		}
		filter.IsHot = &hot
	}
	if v := strings.TrimSpace(q.Get("search")); v != "" {
		filter.Search = &v
	}
	return filter, nil
}

func (s *Server) PostLeads(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createLeadRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}

	in := leads.CreateInput{
		FullName:               req.FullName,
		Email:                  req.Email,
		Phone:                  req.Phone,
		Source:                 req.Source,
		RoomChoice:             req.RoomChoice,
		StayDuration:           req.StayDuration,
		LeadStatus:             req.LeadStatus,
		EstimatedRevenue:       req.EstimatedRevenue,
		IsHot:                  req.IsHot,
		AssignedTo:             req.AssignedTo,
		AcademicYear:           req.AcademicYear,
		LandingPage:            req.LandingPage,
		ContactReason:          req.ContactReason,
		ContactMessage:         req.ContactMessage,
		KeyworkerLengthOfStay:  req.KeyworkerLengthOfStay,
		KeyworkerPreferredDate: req.KeyworkerPreferredDate,
		Notes:                  req.Notes,
		CreatedBy:              &actor.UserID,
	}
	if req.DateOfInquiry != nil {
		in.DateOfInquiry = &req.DateOfInquiry.Time
	}

	lead, err := s.Leads.Create(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, leads.ErrNameOrEmailRequired), errors.Is(err, leads.ErrInvalidEmail):
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to create lead", nil)
		}
		return
	}
	s.Reports.Invalidate()

	leadID := lead.ID
	s.recordAudit(r, actor, "leads.create", "lead", &leadID, map[string]any{
		"source":     lead.Source,
		"leadStatus": lead.LeadStatus,
	})
	httpx.WriteJSON(w, http.StatusCreated, mapLead(lead))
}

func (s *Server) GetLeadsLeadId(w http.ResponseWriter, r *http.Request, leadId openapi_types.UUID) {
	lead, err := s.Leads.Get(r.Context(), leadId)
	if err != nil {
		writeNotFoundOr(w, r, err, "lead_not_found", "Lead was not found", "Failed to load lead")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mapLead(lead))
}

func (s *Server) PatchLeadsLeadIdStatus(w http.ResponseWriter, r *http.Request, leadId openapi_types.UUID) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req changeStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	var revenue int64
	if req.Revenue != nil {
		if *req.Revenue < 0 {
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "revenue must be greater than or equal to 0", nil)
			return
		}
		revenue = *req.Revenue
	}

	lead, err := s.Leads.ChangeStatus(r.Context(), leadId, req.Status, revenue)
	if err != nil {
		switch {
		case errors.Is(err, leads.ErrInvalidStatus):
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "status must be one of "+strings.Join(statusNames(), ", "), nil)
		case errors.Is(err, leads.ErrFollowupsRequired):
			s.Metrics.CloseBlocked()
			current, _ := s.Leads.Get(r.Context(), leadId)
			httpx.WriteError(w, r, http.StatusConflict, "followups_required",
				fmt.Sprintf("At least %d follow-ups are required before a lead can be closed", leads.MinFollowupsToClose),
				map[string]any{
					"followupCount":      current.FollowupCount,
					"required":           leads.MinFollowupsToClose,
					"followupsRemaining": leads.FollowupsRemaining(int(current.FollowupCount)),
				})
		default:
			writeNotFoundOr(w, r, err, "lead_not_found", "Lead was not found", "Failed to update lead status")
		}
		return
	}
	s.Reports.Invalidate()

	leadID := lead.ID
	s.recordAudit(r, actor, "leads.status_changed", "lead", &leadID, map[string]any{
		"leadStatus":       lead.LeadStatus,
		"potentialRevenue": lead.PotentialRevenue,
	})
	httpx.WriteJSON(w, http.StatusOK, mapLead(lead))
}

func (s *Server) PostLeadsLeadIdFollowups(w http.ResponseWriter, r *http.Request, leadId openapi_types.UUID) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req followupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	var next *time.Time
	if req.NextFollowupDate != nil {
		next = &req.NextFollowupDate.Time
	}

	lead, followup, err := s.Leads.RecordFollowup(r.Context(), leadId, req.Note, next, &actor.UserID)
	if err != nil {
		writeNotFoundOr(w, r, err, "lead_not_found", "Lead was not found", "Failed to record follow-up")
		return
	}
	s.Reports.Invalidate()

	leadID := lead.ID
	s.recordAudit(r, actor, "leads.followup_recorded", "lead", &leadID, map[string]any{
		"followupNumber": followup.FollowupNumber,
	})
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"lead": mapLead(lead),
		"followup": followupResponse{
			ID:             followup.ID,
			FollowupNumber: followup.FollowupNumber,
			Note:           followup.Note,
			CreatedAt:      followup.CreatedAt.UTC(),
		},
	})
}

func (s *Server) PatchLeadsLeadIdAssignment(w http.ResponseWriter, r *http.Request, leadId openapi_types.UUID) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req assignmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}

	lead, err := s.Leads.Assign(r.Context(), leadId, req.AssignedTo)
	if err != nil {
		writeNotFoundOr(w, r, err, "lead_not_found", "Lead was not found", "Failed to assign lead")
		return
	}

	leadID := lead.ID
	s.recordAudit(r, actor, "leads.assigned", "lead", &leadID, map[string]any{"assignedTo": req.AssignedTo})
	httpx.WriteJSON(w, http.StatusOK, mapLead(lead))
}

func (s *Server) PatchLeadsLeadIdHot(w http.ResponseWriter, r *http.Request, leadId openapi_types.UUID) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	var req hotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	if req.IsHot == nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "isHot is required", nil)
		return
	}

	lead, err := s.Leads.SetHot(r.Context(), leadId, *req.IsHot)
	if err != nil {
		writeNotFoundOr(w, r, err, "lead_not_found", "Lead was not found", "Failed to update lead")
		return
	}
	s.Reports.Invalidate()
	httpx.WriteJSON(w, http.StatusOK, mapLead(lead))
}

func (s *Server) GetLeadsLeadIdNotes(w http.ResponseWriter, r *http.Request, leadId openapi_types.UUID) {
	notes, err := s.Leads.ListNotes(r.Context(), leadId)
	if err != nil {
		writeNotFoundOr(w, r, err, "lead_not_found", "Lead was not found", "Failed to load notes")
		return
	}
	items := make([]noteResponse, 0, len(notes))
	for _, note := range notes {
		items = append(items, mapNote(note))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) PostLeadsLeadIdNotes(w http.ResponseWriter, r *http.Request, leadId openapi_types.UUID) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req noteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}

	note, err := s.Leads.AddNote(r.Context(), leadId, req.Body, &actor.UserID)
	if err != nil {
		if errors.Is(err, leads.ErrEmptyNote) {
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "body is required", nil)
			return
		}
		writeNotFoundOr(w, r, err, "lead_not_found", "Lead was not found", "Failed to save note")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, mapNote(note))
}

func (s *Server) PostLeadsLeadIdClosureExceptions(w http.ResponseWriter, r *http.Request, leadId openapi_types.UUID) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req closureExceptionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}

	exception, err := s.Leads.RequestClosureException(r.Context(), leadId, req.Reason, &actor.UserID)
	if err != nil {
		if errors.Is(err, leads.ErrReasonRequired) {
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "reason is required", nil)
			return
		}
		writeNotFoundOr(w, r, err, "lead_not_found", "Lead was not found", "Failed to request closure exception")
		return
	}

	exceptionID := exception.ID
	s.recordAudit(r, actor, "closure_exceptions.requested", "closure_exception", &exceptionID, map[string]any{
		"leadId": exception.LeadID,
	})

	if lead, err := s.Leads.Get(r.Context(), leadId); err == nil {
		if err := s.Notify.ClosureExceptionRequested(r.Context(), lead, exception); err != nil {
			s.Logger.Warn("closure_exception_notify_failed", "exception_id", exception.ID, "error", err)
		}
	}
	httpx.WriteJSON(w, http.StatusCreated, mapClosureException(exception))
}

func (s *Server) PostClosureExceptionsExceptionIdReview(w http.ResponseWriter, r *http.Request, exceptionId openapi_types.UUID) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req reviewExceptionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	if req.Approve == nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "approve is required", nil)
		return
	}

	exception, err := s.Leads.ReviewClosureException(r.Context(), exceptionId, *req.Approve, req.Note, &actor.UserID)
	if err != nil {
		if errors.Is(err, leads.ErrExceptionReviewed) {
			httpx.WriteError(w, r, http.StatusConflict, "exception_already_reviewed", "Closure exception has already been reviewed", nil)
			return
		}
		writeNotFoundOr(w, r, err, "closure_exception_not_found", "Closure exception was not found", "Failed to review closure exception")
		return
	}

	exceptionID := exception.ID
	s.recordAudit(r, actor, "closure_exceptions.reviewed", "closure_exception", &exceptionID, map[string]any{
		"leadId": exception.LeadID,
		"status": exception.Status,
	})
	httpx.WriteJSON(w, http.StatusOK, mapClosureException(exception))
}

func (s *Server) PostLeadsBulkDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req bulkDeleteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}

	deleted, err := s.Leads.BulkDelete(r.Context(), req.IDs)
	if err != nil {
		if errors.Is(err, leads.ErrNoLeadsSelected) {
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "ids must contain at least one lead id", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to delete leads", nil)
		return
	}
	s.Reports.Invalidate()

	s.recordAudit(r, actor, "leads.bulk_deleted", "lead", nil, map[string]any{
		"requested": len(req.IDs),
		"deleted":   deleted,
		"ids":       req.IDs,
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func statusNames() []string {
	names := make([]string, 0, len(leads.Statuses))
	for _, status := range leads.Statuses {
		names = append(names, string(status))
	}
	return names
}

func mapLead(lead store.Lead) leadResponse {
	out := leadResponse{
		ID:                     lead.ID,
		FullName:               lead.FullName,
		Email:                  lead.Email,
		Phone:                  lead.Phone,
		Source:                 lead.Source,
		RoomChoice:             lead.RoomChoice,
		StayDuration:           lead.StayDuration,
		LeadStatus:             lead.LeadStatus,
		PotentialRevenue:       lead.PotentialRevenue,
		FollowupCount:          lead.FollowupCount,
		FollowupsRemaining:     leads.FollowupsRemaining(int(lead.FollowupCount)),
		IsHot:                  lead.IsHot,
		AssignedTo:             lead.AssignedTo,
		AcademicYear:           lead.AcademicYear,
		DateOfInquiry:          openapi_types.Date{Time: lead.DateOfInquiry},
		LandingPage:            lead.LandingPage,
		ContactReason:          lead.ContactReason,
		ContactMessage:         lead.ContactMessage,
		KeyworkerLengthOfStay:  lead.KeyworkerLengthOfStay,
		KeyworkerPreferredDate: lead.KeyworkerPreferredDate,
		ImportID:               lead.ImportID,
		CreatedAt:              lead.CreatedAt.UTC(),
		UpdatedAt:              lead.UpdatedAt.UTC(),
	}
	if lead.LastFollowupDate != nil {
		out.LastFollowupDate = ptr(lead.LastFollowupDate.UTC())
	}
	if lead.NextFollowupDate != nil {
		out.NextFollowupDate = &openapi_types.Date{Time: *lead.NextFollowupDate}
	}
	return out
}

func mapNote(note store.LeadNote) noteResponse {
	return noteResponse{
		ID:        note.ID,
		LeadID:    note.LeadID,
		Body:      note.Body,
		CreatedBy: note.CreatedBy,
		CreatedAt: note.CreatedAt.UTC(),
	}
}

func mapClosureException(e store.ClosureException) closureExceptionResponse {
	out := closureExceptionResponse{
		ID:          e.ID,
		LeadID:      e.LeadID,
		Reason:      e.Reason,
		Status:      e.Status,
		RequestedBy: e.RequestedBy,
		ReviewedBy:  e.ReviewedBy,
		ReviewNote:  e.ReviewNote,
		CreatedAt:   e.CreatedAt.UTC(),
	}
	if e.ReviewedAt != nil {
		out.ReviewedAt = ptr(e.ReviewedAt.UTC())
	}
	return out
}
