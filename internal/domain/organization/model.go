package organization

import (
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/types"
)

// Organization is the tenant entity that owns a subscription. At any
// point in time an organization holds at most one subscription in a
// non-terminal state.
type Organization struct {
	// ID is the unique identifier for the organization
	ID string `db:"id" json:"id"`

	// Name is the display name of the organization
	Name string `db:"name" json:"name"`

	// BillingEmail receives invoices and renewal reminders
	BillingEmail string `db:"billing_email" json:"billing_email"`

	// StripeCustomerID is the payment processor's customer reference
	StripeCustomerID string `db:"stripe_customer_id" json:"stripe_customer_id"`

	types.BaseModel
}

// Validate performs validation on the organization
func (o *Organization) Validate() error {
	if o.Name == "" {
		return ierr.NewError("organization name is required").
			WithHint("Please provide an organization name").
			Mark(ierr.ErrValidation)
	}
	return nil
}
