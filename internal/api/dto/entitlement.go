package dto

import (
	"github.com/memberflow/memberflow/internal/types"
)

// FeatureAccessResponse answers a single feature gate check.
type FeatureAccessResponse struct {
	OrganizationID string           `json:"organization_id"`
	FeatureKey     types.FeatureKey `json:"feature_key"`
	HasAccess      bool             `json:"has_access"`

	// PlanType and SubscriptionID are set when the organization holds an
	// active subscription, regardless of the access outcome.
	PlanType       types.PlanType `json:"plan_type,omitempty"`
	SubscriptionID string         `json:"subscription_id,omitempty"`
}

// EntitlementsResponse lists every feature an organization can use.
type EntitlementsResponse struct {
	OrganizationID string             `json:"organization_id"`
	SubscriptionID string             `json:"subscription_id,omitempty"`
	PlanType       types.PlanType     `json:"plan_type,omitempty"`
	Features       []types.FeatureKey `json:"features"`
}
