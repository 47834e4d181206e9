// Package leadimport turns spreadsheet exports of enquiries into leads: the
// client half parses and classifies rows, the server half maps and stores
// them in batches while keeping a per-job error log.
package leadimport

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

type Field string

const (
	FieldDateOfInquiry          Field = "date_of_inquiry"
	FieldFullName               Field = "full_name"
	FieldPhone                  Field = "phone"
	FieldEmail                  Field = "email"
	FieldSource                 Field = "source"
	FieldRoomChoice             Field = "room_choice"
	FieldStayDuration           Field = "stay_duration"
	FieldLeadStatus             Field = "lead_status"
	FieldEstimatedRevenue       Field = "estimated_revenue"
	FieldLatestComment          Field = "latest_comment"
	FieldNotes                  Field = "notes"
	FieldLandingPage            Field = "landing_page"
	FieldContactReason          Field = "contact_reason"
	FieldContactMessage         Field = "contact_message"
	FieldKeyworkerLengthOfStay  Field = "keyworker_length_of_stay"
	FieldKeyworkerPreferredDate Field = "keyworker_preferred_date"
	FieldReferrerFullName       Field = "referrer_full_name"
	FieldReferrerRoomNumber     Field = "referrer_room_number"
	FieldPaymentPlan            Field = "payment_plan"
)

// TemplateHeader is the column order of the downloadable import template.
var TemplateHeader = []string{
	"Date of Inquiry",
	"Customer Name",
	"Phone Number",
	"Email Address",
	"Lead Source",
	"Room Grade Choice",
	"Stay Duration",
	"Lead Status",
	"Estimated Revenue",
	"Latest Comment",
	"Notes",
	"Landing Page",
	"Contact Reason",
	"Contact Message",
	"Keyworker Length of Stay",
	"Keyworker Preferred Date",
	"Referrer Full Name",
	"Referrer Room Number",
	"Payment Plan",
}

type columnAliases struct {
	field   Field
	aliases []string
}

// Resolution order matters: headers such as "Referrer Room Number" or
// "Keyworker Preferred Date" must be claimed before the generic room and
// date columns look for "room" and "date".
var headerAliases = []columnAliases{
	{FieldReferrerRoomNumber, []string{"referrer room", "referrer_room"}},
	{FieldReferrerFullName, []string{"referrer full name", "referrer_full_name", "referrer name", "referrer"}},
	{FieldKeyworkerLengthOfStay, []string{"keyworker length", "keyworker_length", "key worker length"}},
	{FieldKeyworkerPreferredDate, []string{"keyworker preferred", "keyworker_preferred", "key worker preferred", "keyworker date"}},
	{FieldContactReason, []string{"contact reason", "contact_reason", "reason"}},
	{FieldContactMessage, []string{"contact message", "contact_message", "message"}},
	{FieldLandingPage, []string{"landing page", "landing_page", "landing"}},
	{FieldPaymentPlan, []string{"payment plan", "payment_plan", "payment"}},
	{FieldDateOfInquiry, []string{"date of inquiry", "date of enquiry", "inquiry date", "enquiry date", "date_of_inquiry", "date"}},
	{FieldEstimatedRevenue, []string{"estimated revenue", "estimated_revenue", "revenue"}},
	{FieldLatestComment, []string{"latest comment", "latest_comment", "comment"}},
	{FieldNotes, []string{"notes", "note"}},
	{FieldRoomChoice, []string{"room grade", "room choice", "room_choice", "room"}},
	{FieldStayDuration, []string{"stay duration", "stay_duration", "duration", "length of stay"}},
	{FieldLeadStatus, []string{"lead status", "lead_status", "status"}},
	{FieldSource, []string{"lead source", "lead_source", "source"}},
	{FieldEmail, []string{"email address", "email", "e-mail"}},
	{FieldPhone, []string{"phone number", "phone", "mobile", "telephone", "contact number"}},
	{FieldFullName, []string{"customer name", "full name", "full_name", "name"}},
}

// ColumnIndex maps each field to its header position, -1 when absent.
type ColumnIndex map[Field]int

func (c ColumnIndex) value(fields []string, field Field) string {
	idx, ok := c[field]
	if !ok || idx < 0 || idx >= len(fields) {
		return ""
	}
	return fields[idx]
}

// ResolveColumns matches headers case-insensitively by substring. For each
// field the first header containing one of its aliases wins; a header claimed
// by one field is not offered to later ones.
func ResolveColumns(header []string) ColumnIndex {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}

	claimed := make(map[int]bool, len(header))
	index := make(ColumnIndex, len(headerAliases))
	for _, col := range headerAliases {
		index[col.field] = -1
		for i, h := range normalized {
			if claimed[i] || h == "" {
				continue
			}
			if containsAny(h, col.aliases) {
				index[col.field] = i
				claimed[i] = true
				break
			}
		}
	}
	return index
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ParsedFile is the result of ParseCSV. Rows are unclassified.
type ParsedFile struct {
	Header  []string
	Columns ColumnIndex
	Rows    []ParsedRow
}

// ParseCSV is a pure function of its input.
func ParseCSV(text string) ParsedFile {
	lines := splitLines(text)
	if len(lines) == 0 {
		return ParsedFile{Columns: ResolveColumns(nil)}
	}

	header := SplitFields(lines[0].text)
	columns := ResolveColumns(header)
	rows := make([]ParsedRow, 0, len(lines)-1)
	for _, line := range lines[1:] {
		fields := SplitFields(line.text)
		rows = append(rows, ParsedRow{Row: buildRow(line.number, fields, columns)})
	}
	return ParsedFile{Header: header, Columns: columns, Rows: rows}
}

type sourceLine struct {
	number int
	text   string
}

func splitLines(text string) []sourceLine {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []sourceLine
	for i, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, sourceLine{number: i + 1, text: line})
	}
	return lines
}

// SplitFields tokenizes one CSV line. Commas inside double quotes do not
// split, and a doubled quote inside a quoted section is a literal quote.
func SplitFields(line string) []string {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"' && inQuotes && i+1 < len(line) && line[i+1] == '"':
			current.WriteByte('"')
			i++
		case c == '"':
			inQuotes = !inQuotes
			current.WriteByte(c)
		case c == ',' && !inQuotes:
			fields = append(fields, cleanValue(current.String()))
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	return append(fields, cleanValue(current.String()))
}

var scientificPattern = regexp.MustCompile(`^\d+(\.\d+)?[eE][+\-]?\d+$`)

func cleanValue(raw string) string {
	value := strings.TrimSpace(raw)
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' || first == '\'') && first == last {
			value = value[1 : len(value)-1]
		}
	}
	if scientificPattern.MatchString(value) {
		if d, err := decimal.NewFromString(value); err == nil {
			value = d.Round(0).String()
		}
	}
	return value
}

func buildRow(lineNumber int, fields []string, columns ColumnIndex) Row {
	get := func(f Field) string { return columns.value(fields, f) }
	return Row{
		RowNumber:              lineNumber,
		DateOfInquiry:          get(FieldDateOfInquiry),
		FullName:               get(FieldFullName),
		Phone:                  get(FieldPhone),
		Email:                  get(FieldEmail),
		Source:                 get(FieldSource),
		RoomChoice:             get(FieldRoomChoice),
		StayDuration:           get(FieldStayDuration),
		LeadStatus:             get(FieldLeadStatus),
		EstimatedRevenue:       ParseRevenue(get(FieldEstimatedRevenue)),
		LatestComment:          get(FieldLatestComment),
		Notes:                  get(FieldNotes),
		LandingPage:            get(FieldLandingPage),
		ContactReason:          get(FieldContactReason),
		ContactMessage:         get(FieldContactMessage),
		KeyworkerLengthOfStay:  get(FieldKeyworkerLengthOfStay),
		KeyworkerPreferredDate: get(FieldKeyworkerPreferredDate),
		ReferrerFullName:       get(FieldReferrerFullName),
		ReferrerRoomNumber:     get(FieldReferrerRoomNumber),
		PaymentPlan:            get(FieldPaymentPlan),
	}
}

var currencyStripper = strings.NewReplacer("£", "", "$", "", "€", "", ",", "", " ", "")

// ParseRevenue reads a money cell in whole currency units. Anything that is
// not a number is 0, which the processor treats as "no override".
func ParseRevenue(raw string) int64 {
	cleaned := currencyStripper.Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return 0
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil || d.IsNegative() {
		return 0
	}
	return d.Round(0).IntPart()
}
