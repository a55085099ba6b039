package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/veridianhq/veridian/pkg/config"
	"github.com/veridianhq/veridian/pkg/metrics"
	"github.com/veridianhq/veridian/pkg/orgs"
)

// denialRecorder is the slice of the metrics surface the engine emits to.
type denialRecorder interface {
	RecordDenial(code string)
}

// Engine evaluates per-tenant access policy. It is stateless: every check
// reads the organization, its limits and today's usage from the store.
type Engine struct {
	store    orgs.Store
	defaults *config.LimitsConfig
	recorder denialRecorder
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDenialRecorder wires a metrics sink for policy denials.
func WithDenialRecorder(r denialRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// NewEngine creates a policy engine backed by the given store. When defaults
// is nil the compiled-in limit defaults are used.
func NewEngine(store orgs.Store, defaults *config.LimitsConfig, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		defaults: defaults,
		now:      time.Now,
	}
	if e.defaults == nil {
		e.defaults = config.DefaultLimitsConfig()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultLimits returns the default limits row for an organization type.
// Paid organizations have no limits and get nil.
func (e *Engine) DefaultLimits(orgID int64, orgType orgs.OrgType) *orgs.Limits {
	var spec config.LimitSpec
	switch orgType {
	case orgs.OrgTypeDemo:
		spec = e.defaults.Demo
	case orgs.OrgTypeTrial:
		spec = e.defaults.Trial
	default:
		return nil
	}
	roles := make([]string, len(spec.EnabledAIRoles))
	copy(roles, spec.EnabledAIRoles)
	return &orgs.Limits{
		OrganizationID:   orgID,
		MaxProjects:      spec.MaxProjects,
		MaxUsers:         spec.MaxUsers,
		MaxAICallsPerDay: spec.MaxAICallsPerDay,
		MaxInitiatives:   spec.MaxInitiatives,
		MaxStorageMB:     spec.MaxStorageMB,
		EnabledAIRoles:   roles,
	}
}

// CreateDefaultLimits provisions the default limits row for an organization.
// Upserting makes re-provisioning idempotent.
func (e *Engine) CreateDefaultLimits(ctx context.Context, orgID int64, orgType orgs.OrgType) error {
	l := e.DefaultLimits(orgID, orgType)
	if l == nil {
		return nil
	}
	if err := e.store.UpsertLimits(ctx, l); err != nil {
		return fmt.Errorf("failed to provision limits for org %d: %w", orgID, err)
	}
	return nil
}

// RemoveLimits deletes the limits row, lifting all quota ceilings. Called on
// upgrade to paid.
func (e *Engine) RemoveLimits(ctx context.Context, orgID int64) error {
	if err := e.store.DeleteLimits(ctx, orgID); err != nil {
		return fmt.Errorf("failed to remove limits for org %d: %w", orgID, err)
	}
	return nil
}

// Snapshot computes the current access state of an organization.
func (e *Engine) Snapshot(ctx context.Context, orgID int64) (*Snapshot, error) {
	org, err := e.store.GetOrganization(ctx, orgID)
	if err != nil {
		if err == orgs.ErrNotFound {
			return nil, orgs.NewCodedError(orgs.CodeOrgNotFound, fmt.Sprintf("organization %d not found", orgID))
		}
		return nil, err
	}

	now := e.now().UTC()
	snap := &Snapshot{
		OrganizationID: org.ID,
		OrgType:        org.OrgType,
		IsDemo:         org.OrgType == orgs.OrgTypeDemo,
		IsTrial:        org.OrgType == orgs.OrgTypeTrial,
		IsPaid:         org.OrgType == orgs.OrgTypePaid,
		IsActive:       org.IsActive && org.Status == orgs.OrgStatusActive,
		UsageToday:     map[string]int64{},
		BlockedActions: []Action{},
	}

	if org.TrialExpiresAt != nil {
		if !org.TrialExpiresAt.After(now) {
			snap.IsTrialExpired = true
			snap.TrialDaysLeft = 0
		} else {
			remaining := org.TrialExpiresAt.Sub(now)
			snap.TrialDaysLeft = int((remaining + 24*time.Hour - time.Nanosecond) / (24 * time.Hour))
		}
	}

	limits, err := e.store.GetLimits(ctx, orgID)
	if err != nil && err != orgs.ErrNotFound {
		return nil, err
	}
	snap.Limits = limits

	for _, counter := range []string{orgs.CounterAICalls, orgs.CounterProjects, orgs.CounterAPIRequests} {
		v, err := e.store.GetUsage(ctx, orgID, now, counter)
		if err != nil {
			return nil, err
		}
		snap.UsageToday[counter] = v
	}

	switch {
	case snap.IsDemo:
		snap.BlockedActions = append(snap.BlockedActions, mutatingActions...)
	case !snap.IsActive || (snap.IsTrial && snap.IsTrialExpired):
		// Expired or locked trials can do nothing until extended or upgraded.
		snap.BlockedActions = append([]Action{ActionAICall}, mutatingActions...)
	}

	return snap, nil
}

// Authorize decides whether an organization may perform an action right now.
// Denials for expected policy reasons come back as a Decision, not an error.
func (e *Engine) Authorize(ctx context.Context, orgID int64, action Action) (Decision, error) {
	snap, err := e.Snapshot(ctx, orgID)
	if err != nil {
		return Decision{}, err
	}

	if d := e.decide(snap, action); !d.Allowed {
		if e.recorder != nil {
			e.recorder.RecordDenial(string(d.Code))
		}
		return d, nil
	}
	return Decision{Allowed: true}, nil
}

func (e *Engine) decide(snap *Snapshot, action Action) Decision {
	// Demo read-only is a property of the tenant type, not of its TTL
	// clock: a demo past its TTL but not yet reaped still answers
	// DEMO_READ_ONLY for mutations and keeps read-side calls.
	if snap.IsDemo && isMutating(action) {
		return Decision{Code: orgs.CodeDemoReadOnly}
	}

	// Expiry and lock gate trials.
	if !snap.IsActive || (snap.IsTrial && snap.IsTrialExpired) {
		return Decision{Code: orgs.CodeTrialExpired}
	}

	// Paid organizations carry no limits row and are never quota-gated.
	if snap.Limits == nil {
		return Decision{Allowed: true}
	}

	// Soft quota: the read and the later increment are not atomic, so a
	// burst of concurrent calls can land slightly over the ceiling.
	switch action {
	case ActionAICall:
		if snap.UsageToday[orgs.CounterAICalls] >= int64(snap.Limits.MaxAICallsPerDay) {
			return Decision{Code: orgs.CodeQuotaExceeded}
		}
	case ActionCreateProject:
		if snap.UsageToday[orgs.CounterProjects] >= int64(snap.Limits.MaxProjects) {
			return Decision{Code: orgs.CodeQuotaExceeded}
		}
	}

	return Decision{Allowed: true}
}

// IncrementUsage bumps today's counter for an organization. It is called
// after the gated action succeeds, never before.
func (e *Engine) IncrementUsage(ctx context.Context, orgID int64, counter string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	return e.store.IncrementUsage(ctx, orgID, e.now().UTC(), counter, amount)
}

// GetSeatAvailability reports how many member seats an organization has left.
func (e *Engine) GetSeatAvailability(ctx context.Context, orgID int64) (*SeatAvailability, error) {
	current, err := e.store.CountActiveMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}

	limits, err := e.store.GetLimits(ctx, orgID)
	if err != nil {
		if err == orgs.ErrNotFound {
			return &SeatAvailability{Unlimited: true, CurrentSeats: current, SeatsRemaining: -1}, nil
		}
		return nil, err
	}

	remaining := limits.MaxUsers - current
	if remaining < 0 {
		remaining = 0
	}
	return &SeatAvailability{
		MaxSeats:       limits.MaxUsers,
		CurrentSeats:   current,
		SeatsRemaining: remaining,
	}, nil
}

// CanInviteUsers decides whether actorUserID may add one more member to the
// organization. The decision depends only on the tenant, never on the actor:
// demo tenants deny regardless of who asks and regardless of seat count.
func (e *Engine) CanInviteUsers(ctx context.Context, orgID, actorUserID int64) (Decision, error) {
	d, err := e.Authorize(ctx, orgID, ActionInviteUser)
	if err != nil || !d.Allowed {
		return d, err
	}

	seats, err := e.GetSeatAvailability(ctx, orgID)
	if err != nil {
		return Decision{}, err
	}
	if !seats.Unlimited && seats.SeatsRemaining == 0 {
		if e.recorder != nil {
			e.recorder.RecordDenial(string(orgs.CodeQuotaExceeded))
		}
		return Decision{Code: orgs.CodeQuotaExceeded}, nil
	}
	return Decision{Allowed: true}, nil
}

var _ denialRecorder = (*metrics.PrometheusRecorder)(nil)
