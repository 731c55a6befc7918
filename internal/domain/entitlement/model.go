package entitlement

import (
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/types"
)

// Entitlement is a (subscription, feature) pair representing a granted
// capability. Rows are written only by the entitlement service as a side
// effect of subscription transitions; (SubscriptionID, FeatureKey) is
// unique.
type Entitlement struct {
	ID             string           `db:"id" json:"id"`
	SubscriptionID string           `db:"subscription_id" json:"subscription_id"`
	OrganizationID string           `db:"organization_id" json:"organization_id"`
	FeatureKey     types.FeatureKey `db:"feature_key" json:"feature_key"`

	types.BaseModel
}

// Validate performs validation on the entitlement
func (e *Entitlement) Validate() error {
	if e.SubscriptionID == "" {
		return ierr.NewError("subscription_id is required").
			WithHint("Please provide a valid subscription ID").
			Mark(ierr.ErrValidation)
	}
	if err := e.FeatureKey.Validate(); err != nil {
		return err
	}
	return nil
}
