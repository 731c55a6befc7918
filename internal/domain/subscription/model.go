package subscription

import (
	"time"

	"github.com/memberflow/memberflow/internal/types"
	"github.com/shopspring/decimal"
)

// Subscription is the central entity of the billing core. All writes to
// status, plan or price fields go through the subscription service's
// transition functions; nothing else mutates these columns.
type Subscription struct {
	// ID is the unique identifier for the subscription
	ID string `db:"id" json:"id"`

	// OrganizationID is the owning organization. One ACTIVE or PENDING
	// subscription per organization at a time.
	OrganizationID string `db:"organization_id" json:"organization_id"`

	// PlanType is the paid tier
	PlanType types.PlanType `db:"plan_type" json:"plan_type"`

	// SubscriptionStatus is the lifecycle status
	SubscriptionStatus types.SubscriptionStatus `db:"subscription_status" json:"subscription_status"`

	// PaymentMethod is how the organization pays
	PaymentMethod types.PaymentMethod `db:"payment_method" json:"payment_method"`

	// DiscountType selects the discount percentage applied to BasePrice
	DiscountType types.DiscountType `db:"discount_type" json:"discount_type"`

	// Price fields are always derived through the pricing engine,
	// never hand-edited. FinalPrice = BasePrice - DiscountAmount.
	BasePrice       decimal.Decimal `db:"base_price" json:"base_price"`
	DiscountPercent decimal.Decimal `db:"discount_percent" json:"discount_percent"`
	DiscountAmount  decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	FinalPrice      decimal.Decimal `db:"final_price" json:"final_price"`

	// BillingPeriod is the length of a billing cycle
	BillingPeriod types.BillingPeriod `db:"billing_period" json:"billing_period"`

	// CurrentPeriodStart is the start of the period that has been invoiced
	CurrentPeriodStart time.Time `db:"current_period_start" json:"current_period_start"`

	// CurrentPeriodEnd is the inclusive end of the invoiced period
	CurrentPeriodEnd time.Time `db:"current_period_end" json:"current_period_end"`

	// AutoRenewal controls whether the renewal scan rolls the period forward
	AutoRenewal bool `db:"auto_renewal" json:"auto_renewal"`

	// CancelAt is the scheduled terminal date. When set it equals the
	// CurrentPeriodEnd at the time the cancellation was scheduled.
	CancelAt *time.Time `db:"cancel_at" json:"cancel_at"`

	// CanceledAt is the actual terminal timestamp
	CanceledAt *time.Time `db:"canceled_at" json:"canceled_at"`

	// ScheduledPlanChange is a plan type to apply at the next renewal
	// boundary. Downgrades are recorded here instead of applying
	// immediately.
	ScheduledPlanChange *types.PlanType `db:"scheduled_plan_change" json:"scheduled_plan_change"`

	// Payment processor references
	StripeCustomerID        string `db:"stripe_customer_id" json:"stripe_customer_id"`
	StripeSubscriptionID    string `db:"stripe_subscription_id" json:"stripe_subscription_id"`
	StripeCheckoutSessionID string `db:"stripe_checkout_session_id" json:"stripe_checkout_session_id"`

	// RenewalNotifiedAt dedups reminder sends across repeated scan runs
	RenewalNotifiedAt *time.Time `db:"renewal_notified_at" json:"renewal_notified_at"`

	types.BaseModel
}

// IsInNonTerminalState reports whether the subscription counts against
// the one-per-organization invariant
func (s *Subscription) IsInNonTerminalState() bool {
	return s.SubscriptionStatus == types.SubscriptionStatusActive ||
		s.SubscriptionStatus == types.SubscriptionStatusPending
}

// EffectivePlanAt returns the plan that will be in force after the
// renewal boundary at the given time has been processed
func (s *Subscription) EffectivePlanAt(t time.Time) types.PlanType {
	if s.ScheduledPlanChange != nil && !t.Before(s.CurrentPeriodEnd) {
		return *s.ScheduledPlanChange
	}
	return s.PlanType
}
