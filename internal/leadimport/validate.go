package leadimport

import (
	"strings"

	"github.com/leadops/crm-api/internal/leads"
)

type RowStatus string

const (
	RowValid     RowStatus = "valid"
	RowInvalid   RowStatus = "invalid"
	RowDuplicate RowStatus = "duplicate"
)

const (
	reasonInvalidEmail   = "Invalid email format"
	reasonDuplicateEmail = "Duplicate email"
	reasonDuplicatePhone = "Duplicate phone"
)

// Row is one CSV record as submitted for processing.
type Row struct {
	RowNumber              int    `json:"row_number,omitempty"`
	DateOfInquiry          string `json:"date_of_inquiry"`
	FullName               string `json:"full_name"`
	Phone                  string `json:"phone"`
	Email                  string `json:"email"`
	Source                 string `json:"source"`
	RoomChoice             string `json:"room_choice"`
	StayDuration           string `json:"stay_duration"`
	LeadStatus             string `json:"lead_status"`
	EstimatedRevenue       int64  `json:"estimated_revenue"`
	LatestComment          string `json:"latest_comment"`
	Notes                  string `json:"notes"`
	LandingPage            string `json:"landing_page"`
	ContactReason          string `json:"contact_reason"`
	ContactMessage         string `json:"contact_message"`
	KeyworkerLengthOfStay  string `json:"keyworker_length_of_stay"`
	KeyworkerPreferredDate string `json:"keyworker_preferred_date"`
	ReferrerFullName       string `json:"referrer_full_name"`
	ReferrerRoomNumber     string `json:"referrer_room_number"`
	PaymentPlan            string `json:"payment_plan"`
}

// ParsedRow is a Row plus the classification shown in the preview.
type ParsedRow struct {
	Row
	Status RowStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Shared inbox addresses that agents type when the student gave no email.
// They never identify a person, so rows carrying them dedupe on phone.
var placeholderEmails = map[string]struct{}{
	"noemail@gmail.com":    {},
	"no.email@gmail.com":   {},
	"noemail@noemail.com":  {},
	"n/a@gmail.com":        {},
	"na@gmail.com":         {},
	"none@gmail.com":       {},
	"unknown@gmail.com":    {},
	"test@test.com":        {},
	"noemail@example.com":  {},
	"no-email@example.com": {},
}

func IsPlaceholderEmail(email string) bool {
	_, ok := placeholderEmails[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// Classify labels rows in file order. Rows without both name and email are
// dropped. Only rows that end up valid are remembered for later duplicate
// checks, so a bad row never shadows a good one.
func Classify(rows []ParsedRow) []ParsedRow {
	seenEmails := map[string]struct{}{}
	seenPhones := map[string]struct{}{}
	out := make([]ParsedRow, 0, len(rows))

	for _, row := range rows {
		if strings.TrimSpace(row.FullName) == "" && strings.TrimSpace(row.Email) == "" {
			continue
		}
		row.Status, row.Error = RowValid, ""

		email := strings.ToLower(strings.TrimSpace(row.Email))
		phone := strings.TrimSpace(row.Phone)
		placeholder := IsPlaceholderEmail(email)

		switch {
		case !leads.ValidEmail(email):
			row.Status, row.Error = RowInvalid, reasonInvalidEmail
		case placeholder:
			if hasPhone(phone) {
				if _, dup := seenPhones[phone]; dup {
					row.Status, row.Error = RowDuplicate, reasonDuplicatePhone
				}
			}
		default:
			if _, dup := seenEmails[email]; dup {
				row.Status, row.Error = RowDuplicate, reasonDuplicateEmail
			}
		}

		if row.Status == RowValid {
			if placeholder {
				if hasPhone(phone) {
					seenPhones[phone] = struct{}{}
				}
			} else {
				seenEmails[email] = struct{}{}
			}
		}
		out = append(out, row)
	}
	return out
}

func hasPhone(phone string) bool {
	return phone != "" && phone != "0"
}

type Counts struct {
	Total     int `json:"total"`
	Valid     int `json:"valid"`
	Invalid   int `json:"invalid"`
	Duplicate int `json:"duplicate"`
}

func Summarize(rows []ParsedRow) Counts {
	c := Counts{Total: len(rows)}
	for _, row := range rows {
		switch row.Status {
		case RowValid:
			c.Valid++
		case RowInvalid:
			c.Invalid++
		case RowDuplicate:
			c.Duplicate++
		}
	}
	return c
}

// ValidRows strips classification bookkeeping and keeps valid rows only.
func ValidRows(rows []ParsedRow) []Row {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if row.Status == RowValid {
			out = append(out, row.Row)
		}
	}
	return out
}
