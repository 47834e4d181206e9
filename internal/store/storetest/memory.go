// Package storetest provides an in-memory stand-in for the pgx store.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadops/crm-api/internal/store"
)

// Memory mirrors the Postgres store closely enough for service and handler
// tests: missing rows return pgx.ErrNoRows and lead batches are atomic.
type Memory struct {
	mu sync.Mutex

	leads      map[uuid.UUID]store.Lead
	leadOrder  []uuid.UUID
	notes      []store.LeadNote
	followups  []store.LeadFollowup
	exceptions map[uuid.UUID]store.ClosureException
	imports    map[uuid.UUID]store.LeadImport
	importSeq  []uuid.UUID
	templates  map[uuid.UUID]store.EmailTemplate
	settings   map[string]string
	sources    []store.LeadSource

	AuditLogs  []store.InsertAuditLogParams
	BatchSizes []int

	// RejectLead fails the whole batch containing a lead it returns an error for.
	RejectLead func(store.CreateLeadParams) error
	// NoteBatchErr, when set, fails every note batch.
	NoteBatchErr error
	// SourcesErr, when set, fails ListActiveLeadSources.
	SourcesErr error

	Now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		leads:      map[uuid.UUID]store.Lead{},
		exceptions: map[uuid.UUID]store.ClosureException{},
		imports:    map[uuid.UUID]store.LeadImport{},
		templates:  map[uuid.UUID]store.EmailTemplate{},
		settings:   map[string]string{},
		Now:        time.Now,
	}
}

func (m *Memory) SetSources(slugs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = m.sources[:0]
	for _, slug := range slugs {
		m.sources = append(m.sources, store.LeadSource{Slug: slug, Label: slug, IsActive: true})
	}
}

func (m *Memory) PutLead(lead store.Lead) store.Lead {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	if _, exists := m.leads[lead.ID]; !exists {
		m.leadOrder = append(m.leadOrder, lead.ID)
	}
	m.leads[lead.ID] = lead
	return lead
}

func (m *Memory) Leads() []store.Lead {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Lead, 0, len(m.leadOrder))
	for _, id := range m.leadOrder {
		if lead, ok := m.leads[id]; ok {
			out = append(out, lead)
		}
	}
	return out
}

func (m *Memory) Notes() []store.LeadNote {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.LeadNote(nil), m.notes...)
}

func (m *Memory) Followups() []store.LeadFollowup {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.LeadFollowup(nil), m.followups...)
}

func (m *Memory) PutTemplate(t store.EmailTemplate) store.EmailTemplate {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	m.templates[t.ID] = t
	return t
}

func (m *Memory) PutSetting(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
}

func (m *Memory) newLead(arg store.CreateLeadParams) store.Lead {
	now := m.Now()
	lead := store.Lead{
		ID:                     uuid.New(),
		FullName:               arg.FullName,
		Email:                  arg.Email,
		Phone:                  arg.Phone,
		Source:                 arg.Source,
		RoomChoice:             arg.RoomChoice,
		StayDuration:           arg.StayDuration,
		LeadStatus:             arg.LeadStatus,
		PotentialRevenue:       arg.PotentialRevenue,
		IsHot:                  arg.IsHot,
		AssignedTo:             arg.AssignedTo,
		AcademicYear:           arg.AcademicYear,
		DateOfInquiry:          arg.DateOfInquiry,
		LandingPage:            arg.LandingPage,
		ContactReason:          arg.ContactReason,
		ContactMessage:         arg.ContactMessage,
		KeyworkerLengthOfStay:  arg.KeyworkerLengthOfStay,
		KeyworkerPreferredDate: arg.KeyworkerPreferredDate,
		CreatedBy:              arg.CreatedBy,
		ImportID:               arg.ImportID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	m.leads[lead.ID] = lead
	m.leadOrder = append(m.leadOrder, lead.ID)
	return lead
}

func (m *Memory) CreateLead(_ context.Context, arg store.CreateLeadParams) (store.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RejectLead != nil {
		if err := m.RejectLead(arg); err != nil {
			return store.Lead{}, err
		}
	}
	return m.newLead(arg), nil
}

func (m *Memory) InsertLeadBatch(_ context.Context, leads []store.CreateLeadParams) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BatchSizes = append(m.BatchSizes, len(leads))
	if m.RejectLead != nil {
		for _, lead := range leads {
			if err := m.RejectLead(lead); err != nil {
				return nil, err
			}
		}
	}
	ids := make([]uuid.UUID, 0, len(leads))
	for _, lead := range leads {
		ids = append(ids, m.newLead(lead).ID)
	}
	return ids, nil
}

func (m *Memory) GetLead(_ context.Context, id uuid.UUID) (store.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[id]
	if !ok {
		return store.Lead{}, pgx.ErrNoRows
	}
	return lead, nil
}

func (m *Memory) ListLeads(_ context.Context, arg store.ListLeadsParams) ([]store.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.Lead{}
	for _, id := range m.leadOrder {
		lead, ok := m.leads[id]
		if !ok {
			continue
		}
		if arg.AcademicYear != nil && lead.AcademicYear != *arg.AcademicYear {
			continue
		}
		if arg.Status != nil && lead.LeadStatus != *arg.Status {
			continue
		}
		if arg.Source != nil && lead.Source != *arg.Source {
			continue
		}
		if arg.AssignedTo != nil && (lead.AssignedTo == nil || *lead.AssignedTo != *arg.AssignedTo) {
			continue
		}
		if arg.IsHot != nil && lead.IsHot != *arg.IsHot {
			continue
		}
		if arg.Search != nil {
			needle := strings.ToLower(strings.TrimSpace(*arg.Search))
			haystack := strings.ToLower(lead.FullName + " " + lead.Email + " " + lead.Phone)
			if needle != "" && !strings.Contains(haystack, needle) {
				continue
			}
		}
		out = append(out, lead)
	}
	if arg.Limit > 0 {
		start := int(arg.Offset)
		if start > len(out) {
			start = len(out)
		}
		end := start + int(arg.Limit)
		if end > len(out) {
			end = len(out)
		}
		out = out[start:end]
	}
	return out, nil
}

func (m *Memory) updateLead(id uuid.UUID, fn func(*store.Lead)) (store.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[id]
	if !ok {
		return store.Lead{}, pgx.ErrNoRows
	}
	fn(&lead)
	lead.UpdatedAt = m.Now()
	m.leads[id] = lead
	return lead, nil
}

func (m *Memory) UpdateLeadStatus(_ context.Context, arg store.UpdateLeadStatusParams) (store.Lead, error) {
	return m.updateLead(arg.ID, func(l *store.Lead) {
		l.LeadStatus = arg.LeadStatus
		l.PotentialRevenue = arg.PotentialRevenue
	})
}

func (m *Memory) UpdateLeadAssignment(_ context.Context, id uuid.UUID, assignedTo *uuid.UUID) (store.Lead, error) {
	return m.updateLead(id, func(l *store.Lead) { l.AssignedTo = assignedTo })
}

func (m *Memory) SetLeadHot(_ context.Context, id uuid.UUID, isHot bool) (store.Lead, error) {
	return m.updateLead(id, func(l *store.Lead) { l.IsHot = isHot })
}

func (m *Memory) DeleteLeads(_ context.Context, ids []uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := m.leads[id]; ok {
			delete(m.leads, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) RecordFollowup(_ context.Context, arg store.RecordFollowupParams) (store.Lead, store.LeadFollowup, error) {
	now := m.Now()
	lead, err := m.updateLead(arg.LeadID, func(l *store.Lead) {
		l.FollowupCount++
		l.LastFollowupDate = &now
		l.NextFollowupDate = arg.NextFollowupDate
	})
	if err != nil {
		return store.Lead{}, store.LeadFollowup{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	followup := store.LeadFollowup{
		ID:             uuid.New(),
		LeadID:         lead.ID,
		FollowupNumber: lead.FollowupCount,
		Note:           arg.Note,
		CreatedBy:      arg.CreatedBy,
		CreatedAt:      now,
	}
	m.followups = append(m.followups, followup)
	return lead, followup, nil
}

func (m *Memory) CreateLeadNote(_ context.Context, arg store.CreateLeadNoteParams) (store.LeadNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	note := store.LeadNote{ID: uuid.New(), LeadID: arg.LeadID, Body: arg.Body, CreatedBy: arg.CreatedBy, CreatedAt: m.Now()}
	m.notes = append(m.notes, note)
	return note, nil
}

func (m *Memory) InsertLeadNoteBatch(_ context.Context, notes []store.CreateLeadNoteParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NoteBatchErr != nil {
		return m.NoteBatchErr
	}
	for _, arg := range notes {
		m.notes = append(m.notes, store.LeadNote{ID: uuid.New(), LeadID: arg.LeadID, Body: arg.Body, CreatedBy: arg.CreatedBy, CreatedAt: m.Now()})
	}
	return nil
}

func (m *Memory) ListLeadNotes(_ context.Context, leadID uuid.UUID) ([]store.LeadNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.LeadNote{}
	for i := len(m.notes) - 1; i >= 0; i-- {
		if m.notes[i].LeadID == leadID {
			out = append(out, m.notes[i])
		}
	}
	return out, nil
}

func (m *Memory) CreateClosureException(_ context.Context, arg store.CreateClosureExceptionParams) (store.ClosureException, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := store.ClosureException{
		ID:          uuid.New(),
		LeadID:      arg.LeadID,
		Reason:      arg.Reason,
		Status:      "pending",
		RequestedBy: arg.RequestedBy,
		CreatedAt:   m.Now(),
	}
	m.exceptions[e.ID] = e
	return e, nil
}

func (m *Memory) GetClosureException(_ context.Context, id uuid.UUID) (store.ClosureException, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exceptions[id]
	if !ok {
		return store.ClosureException{}, pgx.ErrNoRows
	}
	return e, nil
}

func (m *Memory) ReviewClosureException(_ context.Context, arg store.ReviewClosureExceptionParams) (store.ClosureException, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exceptions[arg.ID]
	if !ok || e.Status != "pending" {
		return store.ClosureException{}, pgx.ErrNoRows
	}
	now := m.Now()
	e.Status = arg.Status
	e.ReviewedBy = arg.ReviewedBy
	e.ReviewNote = arg.ReviewNote
	e.ReviewedAt = &now
	m.exceptions[e.ID] = e
	return e, nil
}

func (m *Memory) HasApprovedClosureException(_ context.Context, leadID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.exceptions {
		if e.LeadID == leadID && e.Status == "approved" {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListActiveLeadSources(_ context.Context) ([]store.LeadSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SourcesErr != nil {
		return nil, m.SourcesErr
	}
	return append([]store.LeadSource(nil), m.sources...), nil
}

func (m *Memory) CreateLeadImport(_ context.Context, arg store.CreateLeadImportParams) (store.LeadImport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := store.LeadImport{
		ID:           uuid.New(),
		FileName:     arg.FileName,
		TotalRows:    arg.TotalRows,
		Status:       "pending",
		ErrorLog:     []byte("[]"),
		AcademicYear: arg.AcademicYear,
		CreatedBy:    arg.CreatedBy,
		CreatedAt:    m.Now(),
	}
	m.imports[job.ID] = job
	m.importSeq = append(m.importSeq, job.ID)
	return job, nil
}

func (m *Memory) GetLeadImport(_ context.Context, id uuid.UUID) (store.LeadImport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.imports[id]
	if !ok {
		return store.LeadImport{}, pgx.ErrNoRows
	}
	return job, nil
}

func (m *Memory) ListLeadImports(_ context.Context, limit, offset int32) ([]store.LeadImport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.LeadImport{}
	for i := len(m.importSeq) - 1; i >= 0; i-- {
		out = append(out, m.imports[m.importSeq[i]])
	}
	start := int(offset)
	if start > len(out) {
		start = len(out)
	}
	end := len(out)
	if limit > 0 && start+int(limit) < end {
		end = start + int(limit)
	}
	return out[start:end], nil
}

func (m *Memory) MarkLeadImportProcessing(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.imports[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if job.Status != "pending" {
		return store.ErrImportNotPending
	}
	job.Status = "processing"
	m.imports[id] = job
	return nil
}

func (m *Memory) CompleteLeadImport(_ context.Context, arg store.CompleteLeadImportParams) (store.LeadImport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.imports[arg.ID]
	if !ok {
		return store.LeadImport{}, pgx.ErrNoRows
	}
	now := m.Now()
	job.Status = "completed"
	job.TotalRows = arg.TotalRows
	job.SuccessfulRows = arg.SuccessfulRows
	job.FailedRows = arg.FailedRows
	job.SkippedRows = arg.SkippedRows
	job.ErrorLog = arg.ErrorLog
	job.CompletedAt = &now
	m.imports[arg.ID] = job
	return job, nil
}

func (m *Memory) FailLeadImport(_ context.Context, id uuid.UUID, errorLog []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.imports[id]
	if !ok {
		return pgx.ErrNoRows
	}
	now := m.Now()
	job.Status = "failed"
	job.ErrorLog = errorLog
	job.CompletedAt = &now
	m.imports[id] = job
	return nil
}

func (m *Memory) GetEmailTemplate(_ context.Context, id uuid.UUID) (store.EmailTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return store.EmailTemplate{}, pgx.ErrNoRows
	}
	return t, nil
}

func (m *Memory) GetEmailTemplateByName(_ context.Context, name string) (store.EmailTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.templates {
		if strings.EqualFold(t.Name, name) {
			return t, nil
		}
	}
	return store.EmailTemplate{}, pgx.ErrNoRows
}

func (m *Memory) ListAppSettings(_ context.Context) ([]store.AppSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.AppSetting, 0, len(m.settings))
	for key, value := range m.settings {
		out = append(out, store.AppSetting{Key: key, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) InsertAuditLog(_ context.Context, arg store.InsertAuditLogParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AuditLogs = append(m.AuditLogs, arg)
	return nil
}

func (m *Memory) yearLeads(academicYear string) []store.Lead {
	out := []store.Lead{}
	for _, id := range m.leadOrder {
		if lead, ok := m.leads[id]; ok && lead.AcademicYear == academicYear {
			out = append(out, lead)
		}
	}
	return out
}

func countBy(leads []store.Lead, key func(store.Lead) string) []store.LabelCount {
	counts := map[string]int64{}
	for _, lead := range leads {
		counts[key(lead)]++
	}
	out := make([]store.LabelCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, store.LabelCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

func (m *Memory) CountLeadsByStatus(_ context.Context, academicYear string) ([]store.LabelCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return countBy(m.yearLeads(academicYear), func(l store.Lead) string { return l.LeadStatus }), nil
}

func (m *Memory) CountLeadsBySource(_ context.Context, academicYear string) ([]store.LabelCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return countBy(m.yearLeads(academicYear), func(l store.Lead) string { return l.Source }), nil
}

func (m *Memory) CountHotLeads(_ context.Context, academicYear string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, lead := range m.yearLeads(academicYear) {
		if lead.IsHot {
			n++
		}
	}
	return n, nil
}

func (m *Memory) SumConvertedRevenue(_ context.Context, academicYear string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, lead := range m.yearLeads(academicYear) {
		if lead.LeadStatus == "converted" {
			total += lead.PotentialRevenue
		}
	}
	return total, nil
}

func (m *Memory) CountOverdueFollowups(_ context.Context, academicYear string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, lead := range m.yearLeads(academicYear) {
		if lead.NextFollowupDate == nil || !lead.NextFollowupDate.Before(now) {
			continue
		}
		if lead.LeadStatus == "converted" || lead.LeadStatus == "closed" {
			continue
		}
		n++
	}
	return n, nil
}
