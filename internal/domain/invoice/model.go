package invoice

import (
	"time"

	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/types"
	"github.com/shopspring/decimal"
)

// Invoice is a billing record tied to a subscription. It is opened
// whenever a charge is owed (initial purchase, proration, renewal) and
// settled or voided by the payment event reconciler.
type Invoice struct {
	// ID is the unique identifier for the invoice
	ID string `db:"id" json:"id"`

	// InvoiceNumber is the short human-facing reference
	InvoiceNumber string `db:"invoice_number" json:"invoice_number"`

	// SubscriptionID is the subscription this invoice bills for
	SubscriptionID string `db:"subscription_id" json:"subscription_id"`

	// OrganizationID is the paying organization
	OrganizationID string `db:"organization_id" json:"organization_id"`

	// InvoiceType distinguishes full-period charges from prorations
	InvoiceType types.InvoiceType `db:"invoice_type" json:"invoice_type"`

	// Description is a human-readable summary of the charge
	Description string `db:"description" json:"description"`

	// AmountDue is the charge in the smallest currency unit
	AmountDue decimal.Decimal `db:"amount_due" json:"amount_due"`

	// InvoiceStatus is the invoice lifecycle status (OPEN -> PAID/VOID)
	InvoiceStatus types.InvoiceStatus `db:"invoice_status" json:"invoice_status"`

	// PaymentStatus is the processor's view of the charge
	PaymentStatus types.PaymentStatus `db:"payment_status" json:"payment_status"`

	// PeriodStart and PeriodEnd bound the period this invoice covers
	PeriodStart time.Time `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time `db:"period_end" json:"period_end"`

	DueDate *time.Time `db:"due_date" json:"due_date"`
	PaidAt  *time.Time `db:"paid_at" json:"paid_at"`
	VoidAt  *time.Time `db:"void_at" json:"void_at"`

	// Payment processor references
	StripePaymentIntentID   string `db:"stripe_payment_intent_id" json:"stripe_payment_intent_id"`
	StripeCheckoutSessionID string `db:"stripe_checkout_session_id" json:"stripe_checkout_session_id"`

	types.BaseModel
}

// Validate performs validation on the invoice
func (i *Invoice) Validate() error {
	if i.SubscriptionID == "" {
		return ierr.NewError("subscription_id is required").
			WithHint("Please provide a valid subscription ID").
			Mark(ierr.ErrValidation)
	}
	if i.AmountDue.IsNegative() {
		return ierr.NewError("amount_due cannot be negative").
			WithHint("Invoice amount must be zero or positive").
			WithReportableDetails(map[string]any{
				"amount_due": i.AmountDue.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsOpen reports whether the invoice is still awaiting payment
func (i *Invoice) IsOpen() bool {
	return i.InvoiceStatus == types.InvoiceStatusOpen
}
