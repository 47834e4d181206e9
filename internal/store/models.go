package store

import (
	"time"

	"github.com/google/uuid"
)

type Lead struct {
	ID                     uuid.UUID
	FullName               string
	Email                  string
	Phone                  string
	Source                 string
	RoomChoice             string
	StayDuration           string
	LeadStatus             string
	PotentialRevenue       int64
	FollowupCount          int32
	LastFollowupDate       *time.Time
	NextFollowupDate       *time.Time
	IsHot                  bool
	AssignedTo             *uuid.UUID
	AcademicYear           string
	DateOfInquiry          time.Time
	LandingPage            *string
	ContactReason          *string
	ContactMessage         *string
	KeyworkerLengthOfStay  *string
	KeyworkerPreferredDate *string
	CreatedBy              *uuid.UUID
	ImportID               *uuid.UUID
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

type LeadNote struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	Body      string
	CreatedBy *uuid.UUID
	CreatedAt time.Time
}

type LeadFollowup struct {
	ID             uuid.UUID
	LeadID         uuid.UUID
	FollowupNumber int32
	Note           *string
	CreatedBy      *uuid.UUID
	CreatedAt      time.Time
}

type ClosureException struct {
	ID          uuid.UUID
	LeadID      uuid.UUID
	Reason      string
	Status      string
	RequestedBy *uuid.UUID
	ReviewedBy  *uuid.UUID
	ReviewNote  *string
	CreatedAt   time.Time
	ReviewedAt  *time.Time
}

type LeadImport struct {
	ID             uuid.UUID
	FileName       string
	TotalRows      int32
	SuccessfulRows int32
	FailedRows     int32
	SkippedRows    int32
	Status         string
	ErrorLog       []byte
	AcademicYear   *string
	CreatedBy      *uuid.UUID
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

type LeadSource struct {
	Slug     string
	Label    string
	IsActive bool
}

type EmailTemplate struct {
	ID        uuid.UUID
	Name      string
	Subject   string
	BodyHTML  string
	BodyText  *string
	UpdatedAt time.Time
}

type AppSetting struct {
	Key   string
	Value string
}

type AuditLog struct {
	ID         uuid.UUID
	UserID     *uuid.UUID
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	RequestID  *string
	Metadata   []byte
	CreatedAt  time.Time
}
