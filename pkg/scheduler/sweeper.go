package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/veridianhq/veridian/pkg/audit"
	"github.com/veridianhq/veridian/pkg/config"
	"github.com/veridianhq/veridian/pkg/lifecycle"
	"github.com/veridianhq/veridian/pkg/notify"
	"github.com/veridianhq/veridian/pkg/observability"
	"github.com/veridianhq/veridian/pkg/orgs"
)

// Sweeper runs the recurring lifecycle jobs: trial expiry warnings, expired
// trial lockout and demo cleanup. Every job is safe to re-run; exactly-once
// effects come from conditional updates in the store, not from the schedule.
type Sweeper struct {
	store     orgs.Store
	lifecycle *lifecycle.Service
	cfg       config.LifecycleConfig
	auditLog  audit.Logger
	notifier  notify.Dispatcher
	logger    *observability.Logger
	now       func() time.Time
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithAuditLogger wires the audit sink.
func WithAuditLogger(l audit.Logger) Option {
	return func(s *Sweeper) { s.auditLog = l }
}

// WithNotifier wires the notification dispatcher.
func WithNotifier(n notify.Dispatcher) Option {
	return func(s *Sweeper) { s.notifier = n }
}

// WithLogger overrides the sweeper logger.
func WithLogger(l *observability.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// WithClock overrides the sweeper time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a sweeper over the given store and lifecycle service.
func NewSweeper(store orgs.Store, svc *lifecycle.Service, cfg config.LifecycleConfig, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:     store,
		lifecycle: svc,
		cfg:       cfg,
		auditLog:  audit.NopLogger{},
		notifier:  notify.NopDispatcher{},
		logger:    observability.NewLogger(observability.InfoLevel, nil),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendTrialWarnings warns every active trial expiring in the configured lead
// window that has not been warned yet. Marking the warning sent claims the
// tenant; a claim that does not apply means another run already warned it.
// A failure on one tenant never stops the sweep.
func (s *Sweeper) SendTrialWarnings(ctx context.Context) (int, error) {
	now := s.now().UTC()
	day := now.Add(time.Duration(s.cfg.WarningLeadDays) * 24 * time.Hour)

	trials, err := s.store.ListTrialsExpiringOn(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("failed to list trials expiring on %s: %w", day.Format("2006-01-02"), err)
	}

	sent := 0
	for _, org := range trials {
		applied, err := s.store.MarkWarningSent(ctx, org.ID, now)
		if err != nil {
			s.logger.WithError(err).WithField("org_id", org.ID).Error("failed to mark trial warning sent")
			continue
		}
		if !applied {
			continue
		}
		sent++

		s.notifyAdmins(ctx, org.ID, notify.Notification{
			Type:     "trial_expiring",
			Severity: notify.SeverityWarning,
			Title:    "Trial expiring soon",
			Message:  fmt.Sprintf("Your trial of %s expires in %d days.", org.Name, s.cfg.WarningLeadDays),
		})
		if err := s.auditLog.Log(ctx, &audit.Event{
			Timestamp:      now,
			EventType:      audit.EventTypeTrialWarning,
			OrganizationID: org.ID,
			Metadata:       map[string]interface{}{"expires_at": org.TrialExpiresAt},
		}); err != nil {
			s.logger.WithError(err).WithField("org_id", org.ID).Warn("failed to write audit event")
		}
	}
	return sent, nil
}

// ProcessExpiredTrials locks every active trial whose expiry has passed.
func (s *Sweeper) ProcessExpiredTrials(ctx context.Context) (int, error) {
	trials, err := s.store.ListExpiredActiveTrials(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired trials: %w", err)
	}

	locked := 0
	for _, org := range trials {
		applied, err := s.lifecycle.LockExpiredTrial(ctx, org.ID)
		if err != nil {
			s.logger.WithError(err).WithField("org_id", org.ID).Error("failed to lock expired trial")
			continue
		}
		if applied {
			locked++
		}
	}
	return locked, nil
}

// CleanupDemos reaps demo organizations past their TTL.
func (s *Sweeper) CleanupDemos(ctx context.Context) (int64, error) {
	return s.lifecycle.CleanupExpiredDemos(ctx)
}

func (s *Sweeper) notifyAdmins(ctx context.Context, orgID int64, n notify.Notification) {
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
			}).Warn("failed to deliver trial warning")
		}
	}
}
