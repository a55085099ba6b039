package policy

import (
	"github.com/veridianhq/veridian/pkg/orgs"
)

// Action identifies an operation checked against tenant policy.
type Action string

const (
	ActionCreateProject    Action = "create_project"
	ActionCreateInitiative Action = "create_initiative"
	ActionInviteUser       Action = "invite_user"
	ActionUploadFile       Action = "upload_file"
	ActionUpdateRecord     Action = "update_record"
	ActionAIMutation       Action = "ai_mutation"
	ActionAICall           Action = "ai_call"
)

// mutatingActions is the set of actions a demo tenant can never perform.
// AI-initiated mutations count as mutations.
var mutatingActions = []Action{
	ActionCreateProject,
	ActionCreateInitiative,
	ActionInviteUser,
	ActionUploadFile,
	ActionUpdateRecord,
	ActionAIMutation,
}

func isMutating(action Action) bool {
	for _, a := range mutatingActions {
		if a == action {
			return true
		}
	}
	return false
}

// Snapshot is a point-in-time view of what a tenant is allowed to do.
// It is computed fresh on every call; nothing is cached across requests.
type Snapshot struct {
	OrganizationID int64            `json:"organization_id"`
	OrgType        orgs.OrgType     `json:"org_type"`
	IsDemo         bool             `json:"is_demo"`
	IsTrial        bool             `json:"is_trial"`
	IsPaid         bool             `json:"is_paid"`
	IsActive       bool             `json:"is_active"`
	TrialDaysLeft  int              `json:"trial_days_left"`
	IsTrialExpired bool             `json:"is_trial_expired"`
	UsageToday     map[string]int64 `json:"usage_today"`
	Limits         *orgs.Limits     `json:"limits,omitempty"`
	BlockedActions []Action         `json:"blocked_actions"`
}

// Decision is the outcome of an authorization check. Expected denials are
// values, not errors.
type Decision struct {
	Allowed bool      `json:"allowed"`
	Code    orgs.Code `json:"error_code,omitempty"`
}

// SeatAvailability reports member seats for an organization. Paid
// organizations have no seat ceiling.
type SeatAvailability struct {
	Unlimited      bool `json:"unlimited"`
	MaxSeats       int  `json:"max_seats"`
	CurrentSeats   int  `json:"current_seats"`
	SeatsRemaining int  `json:"seats_remaining"`
}
