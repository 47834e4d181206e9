package leadimport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadops/crm-api/internal/leads"
	"github.com/leadops/crm-api/internal/metrics"
	"github.com/leadops/crm-api/internal/store"
)

const (
	DefaultBatchSize  = 100
	MaxErrorLog       = 100
	MaxReturnedErrors = 10
)

var (
	ErrImportNotFound         = errors.New("import job not found")
	ErrImportAlreadyProcessed = errors.New("import job has already been processed")
)

type Store interface {
	GetLeadImport(ctx context.Context, id uuid.UUID) (store.LeadImport, error)
	MarkLeadImportProcessing(ctx context.Context, id uuid.UUID) error
	ListActiveLeadSources(ctx context.Context) ([]store.LeadSource, error)
	InsertLeadBatch(ctx context.Context, leads []store.CreateLeadParams) ([]uuid.UUID, error)
	InsertLeadNoteBatch(ctx context.Context, notes []store.CreateLeadNoteParams) error
	CompleteLeadImport(ctx context.Context, arg store.CompleteLeadImportParams) (store.LeadImport, error)
	FailLeadImport(ctx context.Context, id uuid.UUID, errorLog []byte) error
}

// Request is the submission payload for one import job.
type Request struct {
	Rows         []Row      `json:"rows"`
	ImportID     uuid.UUID  `json:"importId"`
	UserID       *uuid.UUID `json:"userId,omitempty"`
	AcademicYear string     `json:"academicYear"`
}

type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type Result struct {
	Success      bool       `json:"success"`
	SuccessCount int        `json:"successCount"`
	FailCount    int        `json:"failCount"`
	Errors       []RowError `json:"errors"`
}

type Processor struct {
	store               Store
	logger              *slog.Logger
	metrics             *metrics.Metrics
	batchSize           int
	defaultAcademicYear string
	now                 func() time.Time
}

type ProcessorOption func(*Processor)

func WithBatchSize(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

func NewProcessor(s Store, logger *slog.Logger, defaultAcademicYear string, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:               s,
		logger:              logger,
		batchSize:           DefaultBatchSize,
		defaultAcademicYear: defaultAcademicYear,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// pendingLead carries a mapped row, its note and, once stored, its id. The
// note travels with the lead so batching can never misalign them.
type pendingLead struct {
	row    int
	params store.CreateLeadParams
	note   string
	id     uuid.UUID
}

type errorLog struct {
	entries []RowError
}

func (l *errorLog) add(row int, msg string) {
	l.entries = append(l.entries, RowError{Row: row, Error: msg})
}

func (l *errorLog) capped(n int) []RowError {
	if len(l.entries) <= n {
		return append([]RowError{}, l.entries...)
	}
	return append([]RowError{}, l.entries[:n]...)
}

// Process stores the submitted rows for req.ImportID. Row failures are
// recorded on the job and never abort the run; the returned error is reserved
// for failures that leave the job unfinished.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	started := p.now()
	logger := p.logger.With("import_id", req.ImportID)

	if err := p.store.MarkLeadImportProcessing(ctx, req.ImportID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Result{}, ErrImportNotFound
		}
		if errors.Is(err, store.ErrImportNotPending) {
			return Result{}, ErrImportAlreadyProcessed
		}
		return Result{}, fmt.Errorf("mark import processing: %w", err)
	}

	job, err := p.store.GetLeadImport(ctx, req.ImportID)
	if err != nil {
		return Result{}, p.fail(ctx, req.ImportID, fmt.Errorf("load import job: %w", err))
	}

	sources, err := p.store.ListActiveLeadSources(ctx)
	if err != nil {
		return Result{}, p.fail(ctx, req.ImportID, fmt.Errorf("load lead sources: %w", err))
	}
	mapper := leads.NewSourceMapper(leads.SourceSlugs(sources))

	academicYear := strings.TrimSpace(req.AcademicYear)
	if academicYear == "" && job.AcademicYear != nil {
		academicYear = *job.AcademicYear
	}
	if academicYear == "" {
		academicYear = p.defaultAcademicYear
	}

	var log errorLog
	pending := make([]*pendingLead, 0, len(req.Rows))
	for i, row := range req.Rows {
		position := rowPosition(i, row)
		if !leads.ValidEmail(row.Email) {
			log.add(position, reasonInvalidEmail)
			continue
		}
		pending = append(pending, p.prepare(row, position, mapper, academicYear, req))
	}

	stored := p.insertLeads(ctx, logger, pending, &log)
	p.insertNotes(ctx, logger, stored, req.UserID, &log)

	total := len(req.Rows)
	succeeded := len(stored)
	failed := total - succeeded
	skipped := int(job.TotalRows) - total
	if skipped < 0 {
		skipped = 0
	}

	errorLogJSON, err := json.Marshal(log.capped(MaxErrorLog))
	if err != nil {
		return Result{}, p.fail(ctx, req.ImportID, fmt.Errorf("encode error log: %w", err))
	}
	if _, err := p.store.CompleteLeadImport(ctx, store.CompleteLeadImportParams{
		ID:             req.ImportID,
		TotalRows:      int32(total),
		SuccessfulRows: int32(succeeded),
		FailedRows:     int32(failed),
		SkippedRows:    int32(skipped),
		ErrorLog:       errorLogJSON,
	}); err != nil {
		return Result{}, p.fail(ctx, req.ImportID, fmt.Errorf("complete import job: %w", err))
	}

	elapsed := p.now().Sub(started)
	p.metrics.ObserveImport("completed", succeeded, failed, elapsed)
	logger.Info("lead_import_completed",
		"total", total,
		"succeeded", succeeded,
		"failed", failed,
		"skipped", skipped,
		"duration_ms", elapsed.Milliseconds(),
	)

	return Result{
		Success:      true,
		SuccessCount: succeeded,
		FailCount:    failed,
		Errors:       log.capped(MaxReturnedErrors),
	}, nil
}

func (p *Processor) prepare(row Row, position int, mapper leads.SourceMapper, academicYear string, req Request) *pendingLead {
	status := leads.MapStatus(row.LeadStatus)
	room := leads.MapRoom(row.RoomChoice)
	duration := leads.MapDuration(row.StayDuration)
	importID := req.ImportID

	return &pendingLead{
		row:  position,
		note: BuildNote(row),
		params: store.CreateLeadParams{
			FullName:               strings.TrimSpace(row.FullName),
			Email:                  strings.ToLower(strings.TrimSpace(row.Email)),
			Phone:                  strings.TrimSpace(row.Phone),
			Source:                 mapper.Map(row.Source),
			RoomChoice:             string(room),
			StayDuration:           string(duration),
			LeadStatus:             string(status),
			PotentialRevenue:       leads.PotentialRevenue(status, room, duration, row.EstimatedRevenue),
			AcademicYear:           academicYear,
			DateOfInquiry:          ParseInquiryDate(row.DateOfInquiry, p.now()),
			LandingPage:            optionalText(row.LandingPage),
			ContactReason:          optionalText(row.ContactReason),
			ContactMessage:         optionalText(row.ContactMessage),
			KeyworkerLengthOfStay:  optionalText(row.KeyworkerLengthOfStay),
			KeyworkerPreferredDate: optionalText(row.KeyworkerPreferredDate),
			CreatedBy:              req.UserID,
			ImportID:               &importID,
		},
	}
}

// insertLeads writes leads batch by batch. A failed batch is retried one row
// at a time so only the offending rows are reported.
func (p *Processor) insertLeads(ctx context.Context, logger *slog.Logger, pending []*pendingLead, log *errorLog) []*pendingLead {
	stored := make([]*pendingLead, 0, len(pending))
	for start := 0; start < len(pending); start += p.batchSize {
		end := min(start+p.batchSize, len(pending))
		batch := pending[start:end]

		params := make([]store.CreateLeadParams, len(batch))
		for i, lead := range batch {
			params[i] = lead.params
		}
		ids, err := p.store.InsertLeadBatch(ctx, params)
		if err == nil && len(ids) == len(batch) {
			for i, lead := range batch {
				lead.id = ids[i]
			}
			stored = append(stored, batch...)
			continue
		}
		if err == nil {
			err = fmt.Errorf("expected %d ids, got %d", len(batch), len(ids))
		}

		logger.Warn("lead_batch_failed",
			"first_row", batch[0].row,
			"size", len(batch),
			"error", err,
		)
		for _, lead := range batch {
			ids, err := p.store.InsertLeadBatch(ctx, []store.CreateLeadParams{lead.params})
			if err != nil || len(ids) != 1 {
				if err == nil {
					err = errors.New("lead was not stored")
				}
				log.add(lead.row, err.Error())
				continue
			}
			lead.id = ids[0]
			stored = append(stored, lead)
		}
	}
	return stored
}

// insertNotes stores the composite notes of persisted leads. Note failures
// are logged on the job but do not change lead counts.
func (p *Processor) insertNotes(ctx context.Context, logger *slog.Logger, stored []*pendingLead, userID *uuid.UUID, log *errorLog) {
	withNotes := make([]*pendingLead, 0, len(stored))
	for _, lead := range stored {
		if lead.note != "" {
			withNotes = append(withNotes, lead)
		}
	}

	for start := 0; start < len(withNotes); start += p.batchSize {
		end := min(start+p.batchSize, len(withNotes))
		batch := withNotes[start:end]

		params := make([]store.CreateLeadNoteParams, len(batch))
		for i, lead := range batch {
			params[i] = store.CreateLeadNoteParams{LeadID: lead.id, Body: lead.note, CreatedBy: userID}
		}
		if err := p.store.InsertLeadNoteBatch(ctx, params); err != nil {
			logger.Warn("lead_note_batch_failed", "size", len(batch), "error", err)
			for _, lead := range batch {
				log.add(lead.row, "Note not saved: "+err.Error())
			}
		}
	}
}

// fail marks the job failed without letting a cancelled request context stop
// the bookkeeping write.
func (p *Processor) fail(ctx context.Context, importID uuid.UUID, cause error) error {
	p.metrics.ObserveImport("failed", 0, 0, 0)
	entry, err := json.Marshal([]RowError{{Row: 0, Error: cause.Error()}})
	if err != nil {
		entry = []byte("[]")
	}
	if err := p.store.FailLeadImport(context.WithoutCancel(ctx), importID, entry); err != nil {
		p.logger.Error("mark import failed", "import_id", importID, "error", err)
	}
	return cause
}

// BuildNote joins the free-text parts of a row into the lead's first note.
// Empty parts are left out; an all-empty row yields "".
func BuildNote(row Row) string {
	var parts []string
	if v := strings.TrimSpace(row.Notes); v != "" {
		parts = append(parts, v)
	}
	if v := strings.TrimSpace(row.LatestComment); v != "" {
		parts = append(parts, v)
	}
	referrer := strings.TrimSpace(row.ReferrerFullName)
	room := strings.TrimSpace(row.ReferrerRoomNumber)
	switch {
	case referrer != "" && room != "":
		parts = append(parts, fmt.Sprintf("Referrer: %s (Room: %s)", referrer, room))
	case referrer != "":
		parts = append(parts, "Referrer: "+referrer)
	case room != "":
		parts = append(parts, "Referrer Room: "+room)
	}
	if v := strings.TrimSpace(row.PaymentPlan); v != "" {
		parts = append(parts, "Payment Plan: "+v)
	}
	return strings.Join(parts, "\n")
}

var inquiryDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2/1/2006 15:04",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"02/01/06",
	"2/1/06",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseInquiryDate reads day-first dates as exported by UK spreadsheets,
// falling back to now when the cell is empty or unreadable.
func ParseInquiryDate(raw string, now time.Time) time.Time {
	value := strings.TrimSpace(raw)
	if value == "" {
		return now
	}
	for _, layout := range inquiryDateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC()
		}
	}
	return now
}

// rowPosition prefers the source line number the parser recorded.
func rowPosition(index int, row Row) int {
	if row.RowNumber > 0 {
		return row.RowNumber
	}
	return index + 1
}

func optionalText(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
