package handlers

import (
	"net/http"
	"strings"

	"github.com/leadops/crm-api/internal/httpx"
)

// GetReportsSummary defaults to the configured academic year.
func (s *Server) GetReportsSummary(w http.ResponseWriter, r *http.Request) {
	year := strings.TrimSpace(r.URL.Query().Get("academicYear"))
	if year == "" {
		year = s.Settings.AcademicYear
	}
	summary, err := s.Reports.Summary(r.Context(), year)
	if err != nil {
		s.Logger.Error("report_summary_failed", "academic_year", year, "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to build report", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}
