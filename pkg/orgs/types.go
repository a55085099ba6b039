package orgs

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// OrgType represents the lifecycle class of an organization.
type OrgType string

const (
	OrgTypeDemo  OrgType = "demo"
	OrgTypeTrial OrgType = "trial"
	OrgTypePaid  OrgType = "paid"
)

// OrgStatus represents organization status. Converted is terminal: the row
// is kept but never mutated again.
type OrgStatus string

const (
	OrgStatusActive    OrgStatus = "active"
	OrgStatusConverted OrgStatus = "converted"
)

// BillingStatus represents the billing activation state of an organization.
type BillingStatus string

const (
	BillingPending BillingStatus = "pending"
	BillingActive  BillingStatus = "active"
)

// PlanTier represents subscription plan tiers.
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanStarter    PlanTier = "starter"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// Role represents a membership role within an organization.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleMember     Role = "member"
	RoleConsultant Role = "consultant"
)

// MemberStatus represents membership status.
type MemberStatus string

const (
	MemberStatusActive  MemberStatus = "active"
	MemberStatusPending MemberStatus = "pending"
)

// Organization represents a single tenant.
type Organization struct {
	ID                  int64         `json:"id"`
	Name                string        `json:"name"`
	OrgType             OrgType       `json:"organization_type"`
	Status              OrgStatus     `json:"status"`
	BillingStatus       BillingStatus `json:"billing_status"`
	IsActive            bool          `json:"is_active"`
	Plan                PlanTier      `json:"plan"`
	TokenBalance        int64         `json:"token_balance"`
	TrialStartedAt      *time.Time    `json:"trial_started_at,omitempty"`
	TrialExpiresAt      *time.Time    `json:"trial_expires_at,omitempty"`
	TrialExtensionCount int           `json:"trial_extension_count"`
	TrialWarningSentAt  *time.Time    `json:"trial_warning_sent_at,omitempty"`
	CreatedByUserID     int64         `json:"created_by_user_id"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// Member represents an (organization, user) membership pair.
type Member struct {
	ID             int64        `json:"id"`
	OrganizationID int64        `json:"organization_id"`
	UserID         int64        `json:"user_id"`
	Role           Role         `json:"role"`
	Status         MemberStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Limits represents the resource ceilings of a demo or trial organization.
// Paid organizations carry no Limits row.
type Limits struct {
	OrganizationID   int64     `json:"organization_id"`
	MaxProjects      int       `json:"max_projects"`
	MaxUsers         int       `json:"max_users"`
	MaxAICallsPerDay int       `json:"max_ai_calls_per_day"`
	MaxInitiatives   int       `json:"max_initiatives"`
	MaxStorageMB     int64     `json:"max_storage_mb"`
	EnabledAIRoles   []string  `json:"enabled_ai_roles"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Facility is tenant-scoped contextual data carried across a trial
// conversion.
type Facility struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	Kind           string    `json:"kind"`
	CreatedAt      time.Time `json:"created_at"`
}

// ContextFact is an accumulated key/value fact scoped to a tenant.
type ContextFact struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Key            string    `json:"key"`
	Value          string    `json:"value"`
	CreatedAt      time.Time `json:"created_at"`
}

// Usage counter names tracked per organization per day.
const (
	CounterAICalls     = "ai_calls"
	CounterProjects    = "projects_created"
	CounterAPIRequests = "api_requests"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Code is a stable, caller-facing error code.
type Code string

const (
	CodeOrgNotFound           Code = "ORG_NOT_FOUND"
	CodeNotTrial              Code = "NOT_TRIAL"
	CodeExtensionLimitReached Code = "EXTENSION_LIMIT_REACHED"
	CodeInvalidDays           Code = "INVALID_DAYS"
	CodeDemoReadOnly          Code = "DEMO_READ_ONLY"
	CodeTrialExpired          Code = "TRIAL_EXPIRED"
	CodeQuotaExceeded         Code = "QUOTA_EXCEEDED"
	CodeMigrationFailed       Code = "ORG_MIGRATION_FAILED"
	CodeNotOwner              Code = "NOT_OWNER"
)

// CodedError carries a stable code plus an HTTP-ish status hint for callers
// adapting the core to a wire protocol.
type CodedError struct {
	Code    Code
	Message string
	Status  int
}

func (e *CodedError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewCodedError builds a CodedError with a status hint derived from the code.
func NewCodedError(code Code, message string) *CodedError {
	status := http.StatusUnprocessableEntity
	switch code {
	case CodeOrgNotFound:
		status = http.StatusNotFound
	case CodeDemoReadOnly, CodeTrialExpired, CodeNotOwner:
		status = http.StatusForbidden
	case CodeQuotaExceeded:
		status = http.StatusTooManyRequests
	case CodeMigrationFailed:
		status = http.StatusInternalServerError
	}
	return &CodedError{Code: code, Message: message, Status: status}
}

// AsCoded unwraps a CodedError from err, if present.
func AsCoded(err error) (*CodedError, bool) {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// CreateOrgParams describes the atomic creation of an organization together
// with its owner membership and (for demo/trial) its Limits row.
type CreateOrgParams struct {
	Name            string
	OrgType         OrgType
	Plan            PlanTier
	BillingStatus   BillingStatus
	OwnerUserID     int64
	CreatedByUserID int64
	TrialStartedAt  *time.Time
	TrialExpiresAt  *time.Time
	TokenBalance    int64
	Limits          *Limits
}

// ConvertTrialParams describes the migration of a trial organization into a
// brand-new paid organization.
type ConvertTrialParams struct {
	TrialOrgID  int64
	ActorUserID int64
	NewName     string
	Now         time.Time
}

// Store is the persistence boundary for organizations, memberships, limits
// and usage counters. All multi-row writes are atomic; conditional updates
// report whether they applied so callers can distinguish "already
// transitioned" from "applied".
type Store interface {
	// Organizations and transitions.
	CreateOrganization(ctx context.Context, p CreateOrgParams) (*Organization, error)
	GetOrganization(ctx context.Context, id int64) (*Organization, error)
	MarkUpgraded(ctx context.Context, orgID int64, plan PlanTier, now time.Time) (applied bool, err error)
	LockTrial(ctx context.Context, orgID int64, now time.Time) (applied bool, err error)
	ExtendTrial(ctx context.Context, orgID int64, newExpiry time.Time, now time.Time) (applied bool, err error)
	MarkWarningSent(ctx context.Context, orgID int64, at time.Time) (applied bool, err error)
	ConvertTrial(ctx context.Context, p ConvertTrialParams) (*Organization, error)
	DeleteExpiredDemos(ctx context.Context, cutoff time.Time) (int64, error)
	ListTrialsExpiringOn(ctx context.Context, day time.Time) ([]*Organization, error)
	ListExpiredActiveTrials(ctx context.Context, now time.Time) ([]*Organization, error)

	// Users and memberships.
	CreateUser(ctx context.Context, email, fullName string, isDemo bool) (int64, error)
	GetMember(ctx context.Context, orgID, userID int64) (*Member, error)
	CountActiveMembers(ctx context.Context, orgID int64) (int, error)
	ListAdmins(ctx context.Context, orgID int64) ([]*Member, error)

	// Limits.
	UpsertLimits(ctx context.Context, l *Limits) error
	GetLimits(ctx context.Context, orgID int64) (*Limits, error)
	DeleteLimits(ctx context.Context, orgID int64) error

	// Usage counters, keyed by (org, day, counter).
	IncrementUsage(ctx context.Context, orgID int64, day time.Time, counter string, amount int64) error
	GetUsage(ctx context.Context, orgID int64, day time.Time, counter string) (int64, error)

	// Tenant-scoped contextual data.
	AddFacility(ctx context.Context, f *Facility) error
	AddContextFact(ctx context.Context, f *ContextFact) error
	ListFacilities(ctx context.Context, orgID int64) ([]*Facility, error)
	ListContextFacts(ctx context.Context, orgID int64) ([]*ContextFact, error)
}
