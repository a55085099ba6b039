package billing

import (
	"time"

	"github.com/veridianhq/veridian/pkg/orgs"
)

// SubscriptionStatus represents the status of a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
)

// Subscription represents a billing subscription backed by Stripe.
type Subscription struct {
	ID                   int64              `json:"id"`
	OrganizationID       int64              `json:"organization_id"`
	Plan                 orgs.PlanTier      `json:"plan"`
	StripeCustomerID     string             `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string             `json:"stripe_subscription_id,omitempty"`
	Status               SubscriptionStatus `json:"status"`
	CurrentPeriodStart   *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// ActivateParams carries the payment identifiers confirmed by the payment
// provider.
type ActivateParams struct {
	OrganizationID       int64         `json:"organization_id"`
	Plan                 orgs.PlanTier `json:"plan"`
	StripeCustomerID     string        `json:"stripe_customer_id"`
	StripeSubscriptionID string        `json:"stripe_subscription_id"`
}

// ActivateResult reports an activation outcome. AlreadyActive is set when
// billing was activated before this call; the token credit is never granted
// twice.
type ActivateResult struct {
	Subscription  *Subscription `json:"subscription,omitempty"`
	AlreadyActive bool          `json:"already_active"`
}
