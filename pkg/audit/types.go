package audit

import (
	"time"
)

// EventType represents the category of a lifecycle audit event.
type EventType string

const (
	// Lifecycle events
	EventTypeTrialCreated   EventType = "lifecycle.trial_created"
	EventTypeDemoCreated    EventType = "lifecycle.demo_created"
	EventTypeTrialExtended  EventType = "lifecycle.trial_extended"
	EventTypeTrialLocked    EventType = "lifecycle.trial_locked"
	EventTypeTrialWarning   EventType = "lifecycle.trial_warning_sent"
	EventTypeOrgUpgraded    EventType = "lifecycle.org_upgraded"
	EventTypeOrgConverted   EventType = "lifecycle.org_converted"
	EventTypeDemosCleaned   EventType = "lifecycle.demos_cleaned"

	// Billing events
	EventTypeBillingActivated EventType = "billing.activated"

	// Policy events
	EventTypeAccessDenied EventType = "policy.access_denied"
)

// Event represents a single append-only audit log entry.
type Event struct {
	ID             int64                  `json:"id"`
	Timestamp      time.Time              `json:"timestamp"`
	EventType      EventType              `json:"event_type"`
	OrganizationID int64                  `json:"organization_id"`
	ActorUserID    *int64                 `json:"actor_user_id,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}
