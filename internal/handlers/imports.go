package handlers

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/leadops/crm-api/internal/httpx"
	"github.com/leadops/crm-api/internal/leadimport"
	"github.com/leadops/crm-api/internal/store"
)

const (
	defaultImportListLimit = 25
	maxImportListLimit     = 100

	defaultImportMaxFileBytes = 25 << 20
)

var supportedCSVContentTypes = map[string]struct{}{
	"text/csv":                 {},
	"application/csv":          {},
	"application/vnd.ms-excel": {},
	"text/plain":               {},
}

var templateExampleRow = []string{
	"14/08/2025", "Jane Doe", "07700900123", "jane@example.com", "Instagram",
	"Gold", "51 weeks", "New", "", "Asked about parking", "", "/summer-offer",
	"Viewing", "Is a gold room free in September?", "", "", "", "", "",
}

type createImportRequest struct {
	FileName     string `json:"fileName"`
	TotalRows    int    `json:"totalRows"`
	AcademicYear string `json:"academicYear"`
}

type importJobResponse struct {
	ID             openapi_types.UUID    `json:"id"`
	FileName       string                `json:"fileName"`
	TotalRows      int32                 `json:"totalRows"`
	SuccessfulRows int32                 `json:"successfulRows"`
	FailedRows     int32                 `json:"failedRows"`
	SkippedRows    int32                 `json:"skippedRows"`
	Status         string                `json:"status"`
	ErrorLog       []leadimport.RowError `json:"errorLog"`
	AcademicYear   *string               `json:"academicYear,omitempty"`
	CreatedBy      *openapi_types.UUID   `json:"createdBy,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
	CompletedAt    *time.Time            `json:"completedAt,omitempty"`
}

type uploadResponse struct {
	leadimport.RunResult
	FileName string            `json:"fileName"`
	Counts   leadimport.Counts `json:"counts"`
}

type parsedUpload struct {
	preview      leadimport.Preview
	academicYear string
	fileSHA256   string
	sizeBytes    int
}

type appError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (s *Server) local() leadimport.Local {
	return leadimport.Local{Store: s.Store, Processor: s.Processor}
}

// PostImportsPreview parses and classifies an uploaded file without storing
// anything.
func (s *Server) PostImportsPreview(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	parsed, appErr := s.parseImportUpload(r)
	if appErr != nil {
		httpx.WriteError(w, r, appErr.Status, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, parsed.preview)
}

// PostImportsUpload runs the whole import for one file: create the pending
// job, submit the valid rows and report the processor's counts.
func (s *Server) PostImportsUpload(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	parsed, appErr := s.parseImportUpload(r)
	if appErr != nil {
		httpx.WriteError(w, r, appErr.Status, appErr.Code, appErr.Message, appErr.Details)
		return
	}

	local := s.local()
	orch := &leadimport.Orchestrator{
		Jobs:       local,
		Submitter:  local,
		UserID:     &actor.UserID,
		OnComplete: s.Reports.Invalidate,
	}
	result, err := orch.Run(r.Context(), parsed.preview, parsed.academicYear)

	metadata := map[string]any{
		"filename":   parsed.preview.FileName,
		"fileSha256": parsed.fileSHA256,
		"sizeBytes":  parsed.sizeBytes,
		"counts":     parsed.preview.Counts,
	}
	if err != nil {
		switch {
		case errors.Is(err, leadimport.ErrNoValidRows):
			httpx.WriteError(w, r, http.StatusUnprocessableEntity, "no_valid_rows", "The file has no valid rows to import", parsed.preview.Counts)
		case errors.Is(err, leadimport.ErrSubmitFailed):
			importID := result.ImportID
			metadata["error"] = err.Error()
			s.recordAudit(r, actor, "imports.failed", "lead_import", &importID, metadata)
			s.Logger.Error("lead_import_failed", "import_id", importID, "error", err)
			httpx.WriteError(w, r, http.StatusInternalServerError, "import_failed", "Import processing failed", map[string]any{"importId": importID})
		default:
			s.Logger.Error("lead_import_create_failed", "error", err)
			httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to create import job", nil)
		}
		return
	}

	importID := result.ImportID
	metadata["successCount"] = result.SuccessCount
	metadata["failCount"] = result.FailCount
	s.recordAudit(r, actor, "imports.completed", "lead_import", &importID, metadata)

	httpx.WriteJSON(w, http.StatusOK, uploadResponse{
		RunResult: result,
		FileName:  parsed.preview.FileName,
		Counts:    parsed.preview.Counts,
	})
}

// PostImports creates the pending job record for a client that parsed the
// file itself.
func (s *Server) PostImports(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createImportRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	if err := leadimport.CheckFileName(req.FileName); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_file_type", "Only .csv uploads are supported", nil)
		return
	}
	if req.TotalRows < 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "totalRows must be greater than or equal to 0", nil)
		return
	}

	id, err := s.local().CreateJob(r.Context(), leadimport.JobSpec{
		FileName:     filepath.Base(strings.TrimSpace(req.FileName)),
		TotalRows:    req.TotalRows,
		AcademicYear: req.AcademicYear,
		CreatedBy:    &actor.UserID,
	})
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to create import job", nil)
		return
	}

	s.recordAudit(r, actor, "imports.created", "lead_import", &id, map[string]any{
		"filename":  req.FileName,
		"totalRows": req.TotalRows,
	})
	s.writeImportJob(w, r, id, http.StatusCreated)
}

// PostImportsProcess is the processor endpoint. Its responses are the bare
// result document or {"error": ...}, never the error envelope.
func (s *Server) PostImportsProcess(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req leadimport.Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Malformed JSON body"})
		return
	}
	if s.Config.ImportMaxRows > 0 && len(req.Rows) > s.Config.ImportMaxRows {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("At most %d rows can be imported at once", s.Config.ImportMaxRows),
		})
		return
	}
	// The caller is always the authenticated user, whatever the payload says.
	req.UserID = &actor.UserID

	job, err := s.Store.GetLeadImport(r.Context(), req.ImportID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpx.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "Import job not found"})
			return
		}
		s.Logger.Error("lead_import_load_failed", "import_id", req.ImportID, "error", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Import processing failed"})
		return
	}
	if job.CreatedBy != nil && *job.CreatedBy != actor.UserID && !actor.IsAdmin() {
		httpx.WriteJSON(w, http.StatusForbidden, map[string]string{"error": "Import job belongs to another user"})
		return
	}

	result, err := s.Processor.Process(r.Context(), req)
	if err != nil {
		if errors.Is(err, leadimport.ErrImportNotFound) {
			httpx.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "Import job not found"})
			return
		}
		if errors.Is(err, leadimport.ErrImportAlreadyProcessed) {
			httpx.WriteJSON(w, http.StatusConflict, map[string]string{"error": "Import job has already been processed"})
			return
		}
		s.Logger.Error("lead_import_failed", "import_id", req.ImportID, "error", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Import processing failed"})
		return
	}
	s.Reports.Invalidate()

	importID := req.ImportID
	s.recordAudit(r, actor, "imports.completed", "lead_import", &importID, map[string]any{
		"rows":         len(req.Rows),
		"successCount": result.SuccessCount,
		"failCount":    result.FailCount,
	})
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) GetImports(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r, defaultImportListLimit, maxImportListLimit)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	jobs, err := s.Store.ListLeadImports(r.Context(), limit, offset)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load import history", nil)
		return
	}
	items := make([]importJobResponse, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, s.mapImportJob(job))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items, "limit": limit, "offset": offset})
}

func (s *Server) GetImportsImportId(w http.ResponseWriter, r *http.Request, importId openapi_types.UUID) {
	s.writeImportJob(w, r, importId, http.StatusOK)
}

func (s *Server) GetImportsTemplateCsv(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=\"leads-import-template.csv\"")
	writer := csv.NewWriter(w)
	_ = writer.Write(leadimport.TemplateHeader)
	_ = writer.Write(templateExampleRow)
	writer.Flush()
}

func (s *Server) writeImportJob(w http.ResponseWriter, r *http.Request, id openapi_types.UUID, status int) {
	job, err := s.Store.GetLeadImport(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpx.WriteError(w, r, http.StatusNotFound, "import_not_found", "Import job not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load import job", nil)
		return
	}
	httpx.WriteJSON(w, status, s.mapImportJob(job))
}

func (s *Server) parseImportUpload(r *http.Request) (parsedUpload, *appError) {
	if !strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		return parsedUpload{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_content_type",
			Message: "Content-Type must be multipart/form-data",
		}
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return parsedUpload{}, &appError{
				Status:  http.StatusRequestEntityTooLarge,
				Code:    "file_too_large",
				Message: "Uploaded file is too large",
				Details: map[string]any{"limitBytes": tooLarge.Limit},
			}
		}
		return parsedUpload{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_multipart",
			Message: "Failed to parse multipart form",
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return parsedUpload{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "missing_file",
			Message: "file is required",
		}
	}
	defer file.Close()

	filename := header.Filename
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	switch ext := strings.ToLower(filepath.Ext(filename)); {
	case ext == ".xlsx" || ext == ".xls":
		return parsedUpload{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "XLSX_NOT_SUPPORTED",
			Message: "Excel files are not supported. Please export the sheet as CSV and upload that.",
		}
	case leadimport.CheckFileName(filename) != nil:
		return parsedUpload{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_file_type",
			Message: "Only .csv uploads are supported",
		}
	case contentType != "":
		if _, ok := supportedCSVContentTypes[contentType]; !ok {
			return parsedUpload{}, &appError{
				Status:  http.StatusBadRequest,
				Code:    "invalid_content_type",
				Message: "Unsupported CSV content type",
				Details: map[string]any{"contentType": contentType},
			}
		}
	}

	maxBytes := s.Config.ImportMaxFileBytes
	if maxBytes <= 0 {
		maxBytes = defaultImportMaxFileBytes
	}
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return parsedUpload{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_file",
			Message: "Failed to read uploaded file",
		}
	}
	if int64(len(data)) > maxBytes {
		return parsedUpload{}, &appError{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "file_too_large",
			Message: "Uploaded file is too large",
			Details: map[string]any{"limitBytes": maxBytes},
		}
	}
	digest := sha256.Sum256(data)

	preview, err := leadimport.Prepare(filename, data, s.Config.ImportPreviewRows)
	if err != nil {
		return parsedUpload{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "empty_file",
			Message: "Uploaded CSV has no data rows",
		}
	}
	if s.Config.ImportMaxRows > 0 && len(preview.Rows) > s.Config.ImportMaxRows {
		return parsedUpload{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "row_limit_exceeded",
			Message: "CSV row limit exceeded",
			Details: map[string]any{"maxRows": s.Config.ImportMaxRows},
		}
	}

	return parsedUpload{
		preview:      preview,
		academicYear: strings.TrimSpace(r.FormValue("academicYear")),
		fileSHA256:   hex.EncodeToString(digest[:]),
		sizeBytes:    len(data),
	}, nil
}

func (s *Server) mapImportJob(job store.LeadImport) importJobResponse {
	var errorLog []leadimport.RowError
	if len(job.ErrorLog) > 0 {
		if err := json.Unmarshal(job.ErrorLog, &errorLog); err != nil {
			s.Logger.Warn("lead_import_error_log_corrupt", "import_id", job.ID, "error", err)
			errorLog = nil
		}
	}
	if errorLog == nil {
		errorLog = []leadimport.RowError{}
	}
	out := importJobResponse{
		ID:             job.ID,
		FileName:       job.FileName,
		TotalRows:      job.TotalRows,
		SuccessfulRows: job.SuccessfulRows,
		FailedRows:     job.FailedRows,
		SkippedRows:    job.SkippedRows,
		Status:         job.Status,
		ErrorLog:       errorLog,
		AcademicYear:   job.AcademicYear,
		CreatedBy:      job.CreatedBy,
		CreatedAt:      job.CreatedAt.UTC(),
	}
	if job.CompletedAt != nil {
		out.CompletedAt = ptr(job.CompletedAt.UTC())
	}
	return out
}
