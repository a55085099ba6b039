package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veridianhq/veridian/pkg/audit"
	"github.com/veridianhq/veridian/pkg/config"
	"github.com/veridianhq/veridian/pkg/metrics"
	"github.com/veridianhq/veridian/pkg/notify"
	"github.com/veridianhq/veridian/pkg/observability"
	"github.com/veridianhq/veridian/pkg/orgs"
	"github.com/veridianhq/veridian/pkg/policy"
)

// Metrics is the slice of the metrics surface the service emits to.
type Metrics interface {
	RecordEvent(eventType string, labels metrics.Labels)
	RecordTransition(transition string)
}

type nopMetrics struct{}

func (nopMetrics) RecordEvent(eventType string, labels metrics.Labels) {}
func (nopMetrics) RecordTransition(transition string)                  {}

// Service orchestrates organization lifecycle transitions. The store applies
// each transition atomically; audit, metrics and notification emission are
// best-effort and never reverse a committed transition.
type Service struct {
	store    orgs.Store
	engine   *policy.Engine
	cfg      config.LifecycleConfig
	auditLog audit.Logger
	metrics  Metrics
	notifier notify.Dispatcher
	logger   *observability.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithAuditLogger wires the audit sink.
func WithAuditLogger(l audit.Logger) Option {
	return func(s *Service) { s.auditLog = l }
}

// WithMetrics wires the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithNotifier wires the notification dispatcher.
func WithNotifier(n notify.Dispatcher) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger overrides the service logger.
func WithLogger(l *observability.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the service time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a lifecycle service. Collaborators default to no-ops.
func NewService(store orgs.Store, engine *policy.Engine, cfg config.LifecycleConfig, opts ...Option) *Service {
	s := &Service{
		store:    store,
		engine:   engine,
		cfg:      cfg,
		auditLog: audit.NopLogger{},
		metrics:  nopMetrics{},
		notifier: notify.NopDispatcher{},
		logger:   observability.NewLogger(observability.InfoLevel, nil),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTrialParams describes a new trial organization.
type CreateTrialParams struct {
	Name        string
	OwnerUserID int64
}

// CreateTrialOrganization provisions a trial tenant with default limits and
// an expiry clock of the configured trial duration.
func (s *Service) CreateTrialOrganization(ctx context.Context, p CreateTrialParams) (*orgs.Organization, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("organization name is required")
	}

	now := s.now().UTC()
	expires := now.Add(time.Duration(s.cfg.TrialDurationDays) * 24 * time.Hour)
	org, err := s.store.CreateOrganization(ctx, orgs.CreateOrgParams{
		Name:            p.Name,
		OrgType:         orgs.OrgTypeTrial,
		Plan:            orgs.PlanFree,
		BillingStatus:   orgs.BillingPending,
		OwnerUserID:     p.OwnerUserID,
		CreatedByUserID: p.OwnerUserID,
		TrialStartedAt:  &now,
		TrialExpiresAt:  &expires,
		Limits:          s.engine.DefaultLimits(0, orgs.OrgTypeTrial),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create trial organization: %w", err)
	}

	s.emit(ctx, audit.EventTypeTrialCreated, org.ID, &p.OwnerUserID, map[string]interface{}{
		"name":             org.Name,
		"trial_expires_at": expires,
	})
	s.metrics.RecordTransition("trial_created")
	return org, nil
}

// DemoResult is a freshly provisioned throwaway demo tenant.
type DemoResult struct {
	Organization *orgs.Organization `json:"organization"`
	UserID       int64              `json:"user_id"`
	Email        string             `json:"email"`
}

// CreateDemoOrganization provisions an anonymous demo tenant together with a
// synthetic demo user. A synthetic email is generated when none is given.
// Demo tenants are read-only and reaped after the configured TTL.
func (s *Service) CreateDemoOrganization(ctx context.Context, email string) (*DemoResult, error) {
	now := s.now().UTC()
	if email == "" {
		email = fmt.Sprintf("demo-%s@demo.veridian.app", uuid.NewString()[:8])
	}

	userID, err := s.store.CreateUser(ctx, email, "Demo User", true)
	if err != nil {
		return nil, fmt.Errorf("failed to create demo user: %w", err)
	}

	expires := now.Add(s.cfg.DemoTTL)
	org, err := s.store.CreateOrganization(ctx, orgs.CreateOrgParams{
		Name:            "Demo Workspace",
		OrgType:         orgs.OrgTypeDemo,
		Plan:            orgs.PlanFree,
		BillingStatus:   orgs.BillingPending,
		OwnerUserID:     userID,
		CreatedByUserID: userID,
		TrialStartedAt:  &now,
		TrialExpiresAt:  &expires,
		Limits:          s.engine.DefaultLimits(0, orgs.OrgTypeDemo),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create demo organization: %w", err)
	}

	s.emit(ctx, audit.EventTypeDemoCreated, org.ID, &userID, map[string]interface{}{
		"expires_at": expires,
	})
	s.metrics.RecordTransition("demo_created")
	return &DemoResult{Organization: org, UserID: userID, Email: email}, nil
}

// UpgradeResult reports an upgrade outcome. AlreadyUpgraded is set when the
// organization was paid before the call; repeat upgrades are no-ops.
type UpgradeResult struct {
	Organization    *orgs.Organization `json:"organization"`
	AlreadyUpgraded bool               `json:"already_upgraded"`
}

// UpgradeToPaid flips a trial organization to paid in place, clears its trial
// clock and lifts its limits. The transition is idempotent.
func (s *Service) UpgradeToPaid(ctx context.Context, orgID int64, plan orgs.PlanTier, actorUserID int64) (*UpgradeResult, error) {
	org, err := s.getOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.OrgType == orgs.OrgTypePaid {
		return &UpgradeResult{Organization: org, AlreadyUpgraded: true}, nil
	}
	if org.OrgType != orgs.OrgTypeTrial {
		return nil, orgs.NewCodedError(orgs.CodeNotTrial, fmt.Sprintf("organization %d is not a trial", orgID))
	}
	if org.Status == orgs.OrgStatusConverted {
		// The converted row is frozen forever; its successor org is the one
		// that carries the paid plan.
		return nil, orgs.NewCodedError(orgs.CodeNotTrial, fmt.Sprintf("organization %d was converted and is frozen", orgID))
	}

	now := s.now().UTC()
	applied, err := s.store.MarkUpgraded(ctx, orgID, plan, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade organization %d: %w", orgID, err)
	}
	if !applied {
		// Lost a race. If another caller finished the same upgrade the
		// operation is still a success; anything else is a real failure.
		current, err := s.getOrg(ctx, orgID)
		if err != nil {
			return nil, err
		}
		if current.OrgType == orgs.OrgTypePaid {
			return &UpgradeResult{Organization: current, AlreadyUpgraded: true}, nil
		}
		if current.Status == orgs.OrgStatusConverted {
			return nil, orgs.NewCodedError(orgs.CodeNotTrial, fmt.Sprintf("organization %d was converted and is frozen", orgID))
		}
		return nil, fmt.Errorf("upgrade of organization %d did not apply", orgID)
	}

	if err := s.engine.RemoveLimits(ctx, orgID); err != nil {
		// The upgrade is committed; limits will block nothing a paid org
		// does, so log and move on.
		s.logger.WithError(err).WithField("org_id", orgID).Warn("failed to remove limits after upgrade")
	}

	upgraded, err := s.getOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, audit.EventTypeOrgUpgraded, orgID, &actorUserID, map[string]interface{}{
		"plan": plan,
	})
	s.metrics.RecordTransition("upgrade_to_paid")
	s.notifyAdmins(ctx, orgID, notify.Notification{
		Type:     "org_upgraded",
		Severity: notify.SeverityInfo,
		Title:    "Organization upgraded",
		Message:  fmt.Sprintf("Your organization is now on the %s plan.", plan),
	})
	return &UpgradeResult{Organization: upgraded}, nil
}

// ExtendTrial pushes a trial's expiry out by the given number of days and
// revives the trial if it was already locked. Extensions are bounded both in
// count and in length, and every extension carries an operator reason.
func (s *Service) ExtendTrial(ctx context.Context, orgID int64, days int, reason string, actorUserID int64) (*orgs.Organization, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("extension reason is required")
	}

	org, err := s.getOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.OrgType != orgs.OrgTypeTrial || org.Status != orgs.OrgStatusActive {
		return nil, orgs.NewCodedError(orgs.CodeNotTrial, fmt.Sprintf("organization %d is not an active trial", orgID))
	}
	if org.TrialExtensionCount >= s.cfg.MaxExtensions {
		return nil, orgs.NewCodedError(orgs.CodeExtensionLimitReached,
			fmt.Sprintf("organization %d already used %d extensions", orgID, org.TrialExtensionCount))
	}
	if days <= 0 || days > s.cfg.MaxExtensionDays {
		return nil, orgs.NewCodedError(orgs.CodeInvalidDays,
			fmt.Sprintf("extension must be between 1 and %d days", s.cfg.MaxExtensionDays))
	}

	// Extend from whichever is later: the current expiry or now. Extending
	// an expired trial restarts its clock from now.
	now := s.now().UTC()
	base := now
	if org.TrialExpiresAt != nil && org.TrialExpiresAt.After(now) {
		base = org.TrialExpiresAt.UTC()
	}
	newExpiry := base.Add(time.Duration(days) * 24 * time.Hour)

	applied, err := s.store.ExtendTrial(ctx, orgID, newExpiry, now)
	if err != nil {
		return nil, fmt.Errorf("failed to extend trial %d: %w", orgID, err)
	}
	if !applied {
		return nil, orgs.NewCodedError(orgs.CodeNotTrial, fmt.Sprintf("organization %d is not an active trial", orgID))
	}

	extended, err := s.getOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, audit.EventTypeTrialExtended, orgID, &actorUserID, map[string]interface{}{
		"days":       days,
		"reason":     reason,
		"new_expiry": newExpiry,
	})
	s.metrics.RecordTransition("trial_extended")
	return extended, nil
}

// LockExpiredTrial deactivates a trial whose expiry has passed. It reports
// whether this call performed the lock; a false return with no error means
// another sweep got there first or the trial was extended in the meantime.
func (s *Service) LockExpiredTrial(ctx context.Context, orgID int64) (bool, error) {
	now := s.now().UTC()
	applied, err := s.store.LockTrial(ctx, orgID, now)
	if err != nil {
		return false, fmt.Errorf("failed to lock trial %d: %w", orgID, err)
	}
	if !applied {
		return false, nil
	}

	s.emit(ctx, audit.EventTypeTrialLocked, orgID, nil, nil)
	s.metrics.RecordTransition("trial_locked")
	s.notifyAdmins(ctx, orgID, notify.Notification{
		Type:     "trial_expired",
		Severity: notify.SeverityCritical,
		Title:    "Trial expired",
		Message:  "Your trial has ended. Upgrade to a paid plan to restore access.",
	})
	return true, nil
}

// ConvertTrialToOrg migrates a trial into a brand-new paid organization,
// copying its contextual data and permanently freezing the trial row. Only
// the trial's owner may convert it.
func (s *Service) ConvertTrialToOrg(ctx context.Context, trialOrgID, actorUserID int64, newName string) (*orgs.Organization, error) {
	if strings.TrimSpace(newName) == "" {
		return nil, fmt.Errorf("new organization name is required")
	}

	org, err := s.getOrg(ctx, trialOrgID)
	if err != nil {
		return nil, err
	}
	if org.OrgType != orgs.OrgTypeTrial || org.Status != orgs.OrgStatusActive {
		return nil, orgs.NewCodedError(orgs.CodeNotTrial, fmt.Sprintf("organization %d is not an active trial", trialOrgID))
	}

	member, err := s.store.GetMember(ctx, trialOrgID, actorUserID)
	if err != nil || member.Role != orgs.RoleOwner {
		return nil, orgs.NewCodedError(orgs.CodeNotOwner,
			fmt.Sprintf("user %d is not the owner of organization %d", actorUserID, trialOrgID))
	}

	newOrg, err := s.store.ConvertTrial(ctx, orgs.ConvertTrialParams{
		TrialOrgID:  trialOrgID,
		ActorUserID: actorUserID,
		NewName:     newName,
		Now:         s.now().UTC(),
	})
	if err != nil {
		return nil, orgs.NewCodedError(orgs.CodeMigrationFailed,
			fmt.Sprintf("failed to convert trial %d: %v", trialOrgID, err))
	}

	s.emit(ctx, audit.EventTypeOrgConverted, newOrg.ID, &actorUserID, map[string]interface{}{
		"trial_org_id": trialOrgID,
		"new_name":     newName,
	})
	s.metrics.RecordTransition("trial_converted")
	return newOrg, nil
}

// CleanupExpiredDemos deletes demo organizations older than the demo TTL and
// returns how many were reaped. Re-running is harmless.
func (s *Service) CleanupExpiredDemos(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.cfg.DemoTTL)
	count, err := s.store.DeleteExpiredDemos(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired demos: %w", err)
	}
	if count > 0 {
		s.emit(ctx, audit.EventTypeDemosCleaned, 0, nil, map[string]interface{}{
			"count":  count,
			"cutoff": cutoff,
		})
		s.metrics.RecordTransition("demos_cleaned")
	}
	return count, nil
}

func (s *Service) getOrg(ctx context.Context, orgID int64) (*orgs.Organization, error) {
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		if err == orgs.ErrNotFound {
			return nil, orgs.NewCodedError(orgs.CodeOrgNotFound, fmt.Sprintf("organization %d not found", orgID))
		}
		return nil, err
	}
	return org, nil
}

// emit appends an audit event and counts a product event. Failures are
// logged, never propagated.
func (s *Service) emit(ctx context.Context, eventType audit.EventType, orgID int64, actorUserID *int64, metadata map[string]interface{}) {
	event := &audit.Event{
		Timestamp:      s.now().UTC(),
		EventType:      eventType,
		OrganizationID: orgID,
		ActorUserID:    actorUserID,
		Metadata:       metadata,
	}
	if err := s.auditLog.Log(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"event_type": eventType,
			"org_id":     orgID,
		}).Warn("failed to write audit event")
	}

	labels := metrics.Labels{OrganizationID: orgID, Source: "lifecycle"}
	if actorUserID != nil {
		labels.UserID = *actorUserID
	}
	s.metrics.RecordEvent(string(eventType), labels)
}

// notifyAdmins delivers a notification to every owner and admin. One failed
// recipient never blocks the rest.
func (s *Service) notifyAdmins(ctx context.Context, orgID int64, n notify.Notification) {
	admins, err := s.store.ListAdmins(ctx, orgID)
	if err != nil {
		s.logger.WithError(err).WithField("org_id", orgID).Warn("failed to list admins for notification")
		return
	}
	for _, admin := range admins {
		if err := s.notifier.Notify(ctx, admin.UserID, orgID, n); err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"org_id":  orgID,
				"user_id": admin.UserID,
			}).Warn("failed to deliver notification")
		}
	}
}

var _ Metrics = (*metrics.PrometheusRecorder)(nil)
