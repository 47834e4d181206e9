package leadimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = "\ufeffDate of Inquiry,Customer Name,Phone Number,Email Address,Lead Source,Room Grade Choice,Stay Duration,Lead Status,Estimated Revenue,Latest Comment,Notes,Landing Page,Contact Reason,Contact Message,Keyworker Length of Stay,Keyworker Preferred Date,Referrer Full Name,Referrer Room Number,Payment Plan\r\n" +
	"14/08/2025,Jane Doe,4.477001234E+11,Jane@Example.com,Instagram,Gold,51 weeks,Converted,\"£9,500\",Called twice,\"Wants a view, ideally\",/summer,Viewing,\"Hi, is gold free?\",,,Sam Ref,204,Termly\r\n" +
	"\r\n" +
	"15/08/2025,'Tom Lee',07700900123,tom@example.com,walk in,Platinum,45 weeks,new,,,,,,,,,,,\r\n"

func TestParseCSVSampleFile(t *testing.T) {
	parsed := ParseCSV(sampleCSV)
	require.Len(t, parsed.Rows, 2)

	jane := parsed.Rows[0].Row
	assert.Equal(t, 2, jane.RowNumber)
	assert.Equal(t, "14/08/2025", jane.DateOfInquiry)
	assert.Equal(t, "Jane Doe", jane.FullName)
	assert.Equal(t, "447700123400", jane.Phone)
	assert.Equal(t, "Jane@Example.com", jane.Email)
	assert.Equal(t, "Instagram", jane.Source)
	assert.Equal(t, "Gold", jane.RoomChoice)
	assert.Equal(t, "51 weeks", jane.StayDuration)
	assert.Equal(t, "Converted", jane.LeadStatus)
	assert.Equal(t, int64(9500), jane.EstimatedRevenue)
	assert.Equal(t, "Called twice", jane.LatestComment)
	assert.Equal(t, "Wants a view, ideally", jane.Notes)
	assert.Equal(t, "/summer", jane.LandingPage)
	assert.Equal(t, "Viewing", jane.ContactReason)
	assert.Equal(t, "Hi, is gold free?", jane.ContactMessage)
	assert.Equal(t, "Sam Ref", jane.ReferrerFullName)
	assert.Equal(t, "204", jane.ReferrerRoomNumber)
	assert.Equal(t, "Termly", jane.PaymentPlan)

	tom := parsed.Rows[1].Row
	assert.Equal(t, 4, tom.RowNumber, "blank line still counts toward the line number")
	assert.Equal(t, "Tom Lee", tom.FullName)
	assert.Equal(t, "07700900123", tom.Phone)
}

func TestParseCSVIsIdempotent(t *testing.T) {
	assert.Equal(t, ParseCSV(sampleCSV), ParseCSV(sampleCSV))
}

func TestSplitFieldsQuotedComma(t *testing.T) {
	assert.Equal(t, []string{"John", "Smith, Jr.", "john@x.com"}, SplitFields(`John,"Smith, Jr.",john@x.com`))
}

func TestSplitFieldsEscapedQuote(t *testing.T) {
	assert.Equal(t, []string{`He said "hi"`, "b"}, SplitFields(`"He said ""hi""",b`))
	assert.Equal(t, []string{"", "x", ""}, SplitFields(`"",x,`))
}

func TestScientificNotationBecomesInteger(t *testing.T) {
	tests := map[string]string{
		"4.477001234E+11": "447700123400",
		"7.7009E10":       "77009000000",
		"1e3":             "1000",
		"447700123400":    "447700123400",
		"4.4E+11 ext":     "4.4E+11 ext",
	}
	for in, want := range tests {
		assert.Equal(t, want, SplitFields(in)[0], "input %q", in)
	}
}

func TestResolveColumnsAliasesAndMissing(t *testing.T) {
	cols := ResolveColumns([]string{"Name", "E-mail", "Mobile", "Room", "Referrer Room Number", "Status"})
	assert.Equal(t, 0, cols[FieldFullName])
	assert.Equal(t, 1, cols[FieldEmail])
	assert.Equal(t, 2, cols[FieldPhone])
	assert.Equal(t, 3, cols[FieldRoomChoice])
	assert.Equal(t, 4, cols[FieldReferrerRoomNumber])
	assert.Equal(t, 5, cols[FieldLeadStatus])
	assert.Equal(t, -1, cols[FieldSource])
	assert.Equal(t, -1, cols[FieldPaymentPlan])

	parsed := ParseCSV("Name,Email\nAnn,ann@x.com\n")
	require.Len(t, parsed.Rows, 1)
	assert.Equal(t, "", parsed.Rows[0].Source)
	assert.Equal(t, "", parsed.Rows[0].Phone)
}

func TestResolveColumnsFirstMatchingHeaderWins(t *testing.T) {
	cols := ResolveColumns([]string{"Primary Email", "Backup Email"})
	assert.Equal(t, 0, cols[FieldEmail])
}

func TestResolveColumnsSpecificBeforeGeneric(t *testing.T) {
	cols := ResolveColumns([]string{"Keyworker Preferred Date", "Date", "Referrer Full Name", "Customer Name"})
	assert.Equal(t, 0, cols[FieldKeyworkerPreferredDate])
	assert.Equal(t, 1, cols[FieldDateOfInquiry])
	assert.Equal(t, 2, cols[FieldReferrerFullName])
	assert.Equal(t, 3, cols[FieldFullName])
}

func TestParseCSVEmptyInput(t *testing.T) {
	assert.Empty(t, ParseCSV("").Rows)
	assert.Empty(t, ParseCSV("\ufeff\r\n\r\n").Rows)
	assert.Empty(t, ParseCSV("Name,Email\n").Rows)
}

func TestParseRevenue(t *testing.T) {
	assert.Equal(t, int64(9180), ParseRevenue("£9,180"))
	assert.Equal(t, int64(1200), ParseRevenue(" 1199.6 "))
	assert.Equal(t, int64(0), ParseRevenue("tbc"))
	assert.Equal(t, int64(0), ParseRevenue("-50"))
	assert.Equal(t, int64(0), ParseRevenue(""))
}

func TestTemplateHeaderResolvesEveryField(t *testing.T) {
	cols := ResolveColumns(TemplateHeader)
	for _, col := range headerAliases {
		assert.NotEqual(t, -1, cols[col.field], "field %s", col.field)
	}
	assert.Len(t, TemplateHeader, len(headerAliases))
}
