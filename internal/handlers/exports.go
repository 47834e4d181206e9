package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/leadops/crm-api/internal/httpx"
	"github.com/leadops/crm-api/internal/middleware"
)

var leadExportHeader = []string{
	"id", "full_name", "email", "phone", "source", "room_choice", "stay_duration",
	"lead_status", "potential_revenue", "followup_count", "last_followup_date",
	"next_followup_date", "is_hot", "assigned_to", "academic_year", "date_of_inquiry",
	"landing_page", "contact_reason", "created_at",
}

func (s *Server) GetExportsLeadsCsv(w http.ResponseWriter, r *http.Request) {
	filter, err := leadFilter(r)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	rows, err := s.Store.ListLeads(r.Context(), filter)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load leads", nil)
		return
	}

	filename := "leads.csv"
	if filter.AcademicYear != nil {
		filename = "leads-" + strings.NewReplacer("/", "-", " ", "").Replace(*filter.AcademicYear) + ".csv"
	}
	s.writeExportCSV(w, r, "lead", filename, len(rows), func(writer *csv.Writer) error {
		if err := writer.Write(leadExportHeader); err != nil {
			return err
		}
		for _, lead := range rows {
			assigned := ""
			if lead.AssignedTo != nil {
				assigned = lead.AssignedTo.String()
			}
			if err := writer.Write([]string{
				lead.ID.String(),
				lead.FullName,
				lead.Email,
				lead.Phone,
				lead.Source,
				lead.RoomChoice,
				lead.StayDuration,
				lead.LeadStatus,
				strconv.FormatInt(lead.PotentialRevenue, 10),
				strconv.Itoa(int(lead.FollowupCount)),
				formatDatePtrCSV(lead.LastFollowupDate),
				formatDatePtrCSV(lead.NextFollowupDate),
				strconv.FormatBool(lead.IsHot),
				assigned,
				lead.AcademicYear,
				lead.DateOfInquiry.UTC().Format("2006-01-02"),
				derefString(lead.LandingPage),
				derefString(lead.ContactReason),
				lead.CreatedAt.UTC().Format(time.RFC3339),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Server) writeExportCSV(w http.ResponseWriter, r *http.Request, entityType, filename string, rowCount int, writerFunc func(writer *csv.Writer) error) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	writer := csv.NewWriter(w)
	if err := writerFunc(writer); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to generate export CSV", nil)
		return
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		s.Logger.Warn("export_stream_failed", "entity", entityType, "request_id", middleware.RequestIDFromContext(r.Context()), "error", err)
		return
	}

	s.recordAudit(r, actor, "export.download", entityType, nil, map[string]any{
		"filename": filename,
		"rows":     rowCount,
	})
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func formatDatePtrCSV(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format("2006-01-02")
}
