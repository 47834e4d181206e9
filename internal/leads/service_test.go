package leads

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadops/crm-api/internal/store"
	"github.com/leadops/crm-api/internal/store/storetest"
)

func newTestService(t *testing.T) (*Service, *storetest.Memory) {
	t.Helper()
	mem := storetest.NewMemory()
	mem.SetSources("website", "referral", "other")
	return NewService(mem, "2025/2026"), mem
}

func TestClosingGateScenario(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	lead := mem.PutLead(store.Lead{FullName: "Ada", LeadStatus: "high_interest", RoomChoice: "gold", StayDuration: "51_weeks", FollowupCount: 2})

	_, err := svc.ChangeStatus(ctx, lead.ID, "closed", 0)
	require.ErrorIs(t, err, ErrFollowupsRequired)

	stored, err := mem.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "high_interest", stored.LeadStatus)

	updated, followup, err := svc.RecordFollowup(ctx, lead.ID, "called back", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), updated.FollowupCount)
	assert.Equal(t, int32(3), followup.FollowupNumber)
	require.NotNil(t, updated.LastFollowupDate)

	closed, err := svc.ChangeStatus(ctx, lead.ID, "closed", 0)
	require.NoError(t, err)
	assert.Equal(t, "closed", closed.LeadStatus)
	assert.Zero(t, closed.PotentialRevenue)
}

func TestApprovedExceptionPermitsClose(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	lead := mem.PutLead(store.Lead{FullName: "Ben", LeadStatus: "new", RoomChoice: "silver", StayDuration: "51_weeks"})
	admin := uuid.New()

	exception, err := svc.RequestClosureException(ctx, lead.ID, "student withdrew from university", nil)
	require.NoError(t, err)
	assert.Equal(t, "pending", exception.Status)

	_, err = svc.ChangeStatus(ctx, lead.ID, "closed", 0)
	require.ErrorIs(t, err, ErrFollowupsRequired, "a pending exception does not unlock closing")

	reviewed, err := svc.ReviewClosureException(ctx, exception.ID, true, "ok", &admin)
	require.NoError(t, err)
	assert.Equal(t, "approved", reviewed.Status)

	_, err = svc.ReviewClosureException(ctx, exception.ID, false, "", &admin)
	assert.ErrorIs(t, err, ErrExceptionReviewed)

	closed, err := svc.ChangeStatus(ctx, lead.ID, "closed", 0)
	require.NoError(t, err)
	assert.Equal(t, "closed", closed.LeadStatus)
}

func TestRejectedExceptionKeepsGate(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	lead := mem.PutLead(store.Lead{LeadStatus: "new"})

	exception, err := svc.RequestClosureException(ctx, lead.ID, "duplicate enquiry", nil)
	require.NoError(t, err)
	_, err = svc.ReviewClosureException(ctx, exception.ID, false, "follow up first", nil)
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, lead.ID, "closed", 0)
	assert.ErrorIs(t, err, ErrFollowupsRequired)
}

func TestRequestClosureExceptionValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.RequestClosureException(ctx, uuid.New(), "  ", nil)
	assert.ErrorIs(t, err, ErrReasonRequired)

	_, err = svc.RequestClosureException(ctx, uuid.New(), "reason", nil)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestChangeStatusReappliesRevenue(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	lead := mem.PutLead(store.Lead{LeadStatus: "high_interest", RoomChoice: "platinum", StayDuration: "45_weeks"})

	converted, err := svc.ChangeStatus(ctx, lead.ID, "converted", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(220*45), converted.PotentialRevenue)

	overridden, err := svc.ChangeStatus(ctx, lead.ID, "converted", 12000)
	require.NoError(t, err)
	assert.Equal(t, int64(12000), overridden.PotentialRevenue)

	resaved, err := svc.ChangeStatus(ctx, lead.ID, "converted", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(12000), resaved.PotentialRevenue)

	demoted, err := svc.ChangeStatus(ctx, lead.ID, "low_engagement", 12000)
	require.NoError(t, err)
	assert.Zero(t, demoted.PotentialRevenue)
}

func TestChangeStatusKeepsImportedRevenueOnConvertedLead(t *testing.T) {
	svc, mem := newTestService(t)
	lead := mem.PutLead(store.Lead{LeadStatus: "converted", RoomChoice: "silver", StayDuration: "51_weeks", PotentialRevenue: 7777})

	resaved, err := svc.ChangeStatus(context.Background(), lead.ID, "converted", 0)
	require.NoError(t, err)
	assert.Equal(t, "converted", resaved.LeadStatus)
	assert.Equal(t, int64(7777), resaved.PotentialRevenue)
}

func TestChangeStatusRejectsUnknownStatus(t *testing.T) {
	svc, mem := newTestService(t)
	lead := mem.PutLead(store.Lead{LeadStatus: "new"})

	_, err := svc.ChangeStatus(context.Background(), lead.ID, "Converted!", 0)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCreateAppliesMappingAndRevenue(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	inquiry := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	lead, err := svc.Create(ctx, CreateInput{
		FullName:      "Chen Li",
		Email:         "chen@example.com",
		Source:        "Web",
		RoomChoice:    "Deluxe Suite",
		StayDuration:  "45 weeks",
		LeadStatus:    "Booked",
		DateOfInquiry: &inquiry,
		Notes:         "wants a quiet floor",
	})
	require.NoError(t, err)
	assert.Equal(t, "website", lead.Source)
	assert.Equal(t, "silver", lead.RoomChoice)
	assert.Equal(t, "45_weeks", lead.StayDuration)
	assert.Equal(t, "converted", lead.LeadStatus)
	assert.Equal(t, int64(180*45), lead.PotentialRevenue)
	assert.Equal(t, "2025/2026", lead.AcademicYear)
	assert.Equal(t, inquiry, lead.DateOfInquiry)

	notes := mem.Notes()
	require.Len(t, notes, 1)
	assert.Equal(t, lead.ID, notes[0].LeadID)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Create(ctx, CreateInput{})
	assert.ErrorIs(t, err, ErrNameOrEmailRequired)

	_, err = svc.Create(ctx, CreateInput{FullName: "X", Email: "not-an-email"})
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestAddNoteAndBulkDelete(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)
	a := mem.PutLead(store.Lead{FullName: "A"})
	b := mem.PutLead(store.Lead{FullName: "B"})

	_, err := svc.AddNote(ctx, a.ID, " ", nil)
	assert.ErrorIs(t, err, ErrEmptyNote)

	_, err = svc.AddNote(ctx, a.ID, "viewed room 12", nil)
	require.NoError(t, err)
	notes, err := svc.ListNotes(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	_, err = svc.BulkDelete(ctx, nil)
	assert.ErrorIs(t, err, ErrNoLeadsSelected)

	deleted, err := svc.BulkDelete(ctx, []uuid.UUID{a.ID, b.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Empty(t, mem.Leads())
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("john@x.com"))
	assert.True(t, ValidEmail("n/a@gmail.com"))
	assert.False(t, ValidEmail("john@x"))
	assert.False(t, ValidEmail("john x@x.com"))
	assert.False(t, ValidEmail(""))
}
