package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/veridianhq/veridian/pkg/audit"
	"github.com/veridianhq/veridian/pkg/database"
	"github.com/veridianhq/veridian/pkg/observability"
	"github.com/veridianhq/veridian/pkg/orgs"
)

// Service activates billing for organizations that came out of the trial
// flow with billing still pending. Activation is decoupled from the
// lifecycle transitions: an upgraded or converted organization is fully
// usable before its payment method clears.
type Service struct {
	db            *sql.DB
	initialCredit int64
	auditLog      audit.Logger
	logger        *observability.Logger
	now           func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithAuditLogger wires the audit sink.
func WithAuditLogger(l audit.Logger) Option {
	return func(s *Service) { s.auditLog = l }
}

// WithLogger overrides the service logger.
func WithLogger(l *observability.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the service time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a billing service. initialCredit is the one-time token
// grant on first activation.
func NewService(db *sql.DB, initialCredit int64, opts ...Option) *Service {
	s := &Service{
		db:            db,
		initialCredit: initialCredit,
		auditLog:      audit.NopLogger{},
		logger:        observability.NewLogger(observability.InfoLevel, nil),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ActivateBilling flips an organization's billing from pending to active,
// grants the one-time token credit and records the subscription. Repeat
// calls are no-ops: the flip is a conditional update, so the credit cannot
// be granted twice.
func (s *Service) ActivateBilling(ctx context.Context, p ActivateParams) (*ActivateResult, error) {
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE organizations
		SET billing_status = 'active', token_balance = token_balance + $1, updated_at = $2
		WHERE id = $3 AND billing_status = 'pending'
	`, s.initialCredit, now, p.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to activate billing for org %d: %w", p.OrganizationID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if rows == 0 {
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT billing_status FROM organizations WHERE id = $1`, p.OrganizationID,
		).Scan(&status)
		if err == sql.ErrNoRows {
			return nil, orgs.NewCodedError(orgs.CodeOrgNotFound,
				fmt.Sprintf("organization %d not found", p.OrganizationID))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check billing status: %w", err)
		}
		sub, err := s.getSubscriptionTx(ctx, tx, p.OrganizationID)
		if err != nil && err != orgs.ErrNotFound {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return &ActivateResult{Subscription: sub, AlreadyActive: true}, nil
	}

	sub := &Subscription{
		OrganizationID:       p.OrganizationID,
		Plan:                 p.Plan,
		StripeCustomerID:     p.StripeCustomerID,
		StripeSubscriptionID: p.StripeSubscriptionID,
		Status:               SubscriptionStatusActive,
	}
	periodStart := now
	periodEnd := now.AddDate(0, 1, 0)
	sub.CurrentPeriodStart = &periodStart
	sub.CurrentPeriodEnd = &periodEnd

	err = tx.QueryRowContext(ctx, `
		INSERT INTO subscriptions (organization_id, plan, stripe_customer_id, stripe_subscription_id, status,
		                           current_period_start, current_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (organization_id) DO UPDATE
		SET plan = EXCLUDED.plan, stripe_customer_id = EXCLUDED.stripe_customer_id,
		    stripe_subscription_id = EXCLUDED.stripe_subscription_id, status = EXCLUDED.status,
		    current_period_start = EXCLUDED.current_period_start,
		    current_period_end = EXCLUDED.current_period_end, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`, sub.OrganizationID, sub.Plan, sub.StripeCustomerID, sub.StripeSubscriptionID, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, now).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record subscription: %w", err)
	}
	sub.UpdatedAt = now

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if err := s.auditLog.Log(ctx, &audit.Event{
		Timestamp:      now,
		EventType:      audit.EventTypeBillingActivated,
		OrganizationID: p.OrganizationID,
		Metadata: map[string]interface{}{
			"plan":         p.Plan,
			"token_credit": s.initialCredit,
		},
	}); err != nil {
		s.logger.WithError(err).WithField("org_id", p.OrganizationID).Warn("failed to write audit event")
	}

	return &ActivateResult{Subscription: sub}, nil
}

// GetSubscription retrieves the subscription for an organization.
func (s *Service) GetSubscription(ctx context.Context, orgID int64) (*Subscription, error) {
	return s.getSubscriptionTx(ctx, s.db, orgID)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *Service) getSubscriptionTx(ctx context.Context, q querier, orgID int64) (*Subscription, error) {
	sub := &Subscription{}
	err := q.QueryRowContext(ctx, `
		SELECT id, organization_id, plan, stripe_customer_id, stripe_subscription_id, status,
		       current_period_start, current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE organization_id = $1
	`, orgID).Scan(
		&sub.ID, &sub.OrganizationID, &sub.Plan, &sub.StripeCustomerID, &sub.StripeSubscriptionID,
		&sub.Status, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, orgs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription for org %d: %w", orgID, err)
	}
	return sub, nil
}

// Migrations returns the billing schema migrations.
func Migrations() []database.Migration {
	return []database.Migration{
		{
			Version:     1,
			Description: "Create subscriptions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS subscriptions (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL UNIQUE REFERENCES organizations(id) ON DELETE CASCADE,
					plan VARCHAR(32) NOT NULL,
					stripe_customer_id VARCHAR(255) NOT NULL DEFAULT '',
					stripe_subscription_id VARCHAR(255) NOT NULL DEFAULT '',
					status VARCHAR(32) NOT NULL DEFAULT 'active',
					current_period_start TIMESTAMPTZ,
					current_period_end TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
	}
}
