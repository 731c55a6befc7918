package dto

import (
	"time"

	"github.com/memberflow/memberflow/internal/domain/subscription"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/types"
	"github.com/memberflow/memberflow/internal/validator"
	"github.com/shopspring/decimal"
)

// CreateOrganizationRequest is the inline organization payload used when
// a subscription is purchased by an organization we have not seen before.
type CreateOrganizationRequest struct {
	Name         string `json:"name" validate:"required"`
	BillingEmail string `json:"billing_email" validate:"required,email"`
}

// CreateSubscriptionRequest starts a subscription purchase. Exactly one
// of OrganizationID or Organization must be set.
type CreateSubscriptionRequest struct {
	OrganizationID string                     `json:"organization_id,omitempty"`
	Organization   *CreateOrganizationRequest `json:"organization,omitempty"`

	PlanType      types.PlanType      `json:"plan_type" validate:"required"`
	BillingPeriod types.BillingPeriod `json:"billing_period" validate:"required"`
	DiscountType  types.DiscountType  `json:"discount_type,omitempty"`
	PaymentMethod types.PaymentMethod `json:"payment_method" validate:"required"`
	AutoRenewal   bool                `json:"auto_renewal"`
}

func (r *CreateSubscriptionRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if (r.OrganizationID == "") == (r.Organization == nil) {
		return ierr.NewError("organization is ambiguous").
			WithHint("Provide either organization_id or an inline organization, not both").
			Mark(ierr.ErrValidation)
	}
	if r.Organization != nil {
		if err := validator.ValidateRequest(r.Organization); err != nil {
			return err
		}
	}
	if err := r.PlanType.Validate(); err != nil {
		return err
	}
	if err := r.BillingPeriod.Validate(); err != nil {
		return err
	}
	if r.DiscountType == "" {
		r.DiscountType = types.DiscountTypeNone
	}
	if err := r.DiscountType.Validate(); err != nil {
		return err
	}
	return r.PaymentMethod.Validate()
}

// SubscriptionResponse returns a subscription, optionally with the
// hosted checkout URL the buyer must complete.
type SubscriptionResponse struct {
	*subscription.Subscription
	CheckoutURL string `json:"checkout_url,omitempty"`
	InvoiceID   string `json:"invoice_id,omitempty"`
}

// ChangePlanRequest moves a subscription to a different plan.
type ChangePlanRequest struct {
	PlanType types.PlanType `json:"plan_type" validate:"required"`
}

func (r *ChangePlanRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.PlanType.Validate()
}

// ChangePlanResponse reports what the plan change did. Upgrades apply
// immediately and carry a proration invoice; downgrades are scheduled
// for the renewal boundary.
type ChangePlanResponse struct {
	Subscription    *subscription.Subscription `json:"subscription"`
	Scheduled       bool                       `json:"scheduled"`
	EffectiveAt     time.Time                  `json:"effective_at"`
	ProrationAmount *decimal.Decimal           `json:"proration_amount,omitempty"`
	InvoiceID       string                     `json:"invoice_id,omitempty"`
	CheckoutURL     string                     `json:"checkout_url,omitempty"`
}

// CancelSubscriptionRequest cancels a subscription. The default is a
// scheduled cancellation at the period end the organization already
// paid for; Immediate tears it down now.
type CancelSubscriptionRequest struct {
	Immediate bool `json:"immediate"`
}
