package types

import (
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/samber/lo"
)

// PlanType identifies the paid tier of a subscription
type PlanType string

const (
	PlanTypeStandard PlanType = "STANDARD"
	PlanTypeExpert   PlanType = "EXPERT"
)

func (p PlanType) String() string {
	return string(p)
}

func (p PlanType) Validate() error {
	allowed := []PlanType{
		PlanTypeStandard,
		PlanTypeExpert,
	}
	if !lo.Contains(allowed, p) {
		return ierr.NewError("invalid plan type").
			WithHint("Invalid plan type").
			WithReportableDetails(map[string]any{
				"plan_type":     p,
				"allowed_plans": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsUpgradeFrom reports whether switching from the given plan to this
// plan is an upgrade. Upgrades take effect immediately, downgrades are
// deferred to the next renewal boundary.
func (p PlanType) IsUpgradeFrom(current PlanType) bool {
	return current == PlanTypeStandard && p == PlanTypeExpert
}

// DiscountType identifies the discount applied to a subscription's base price
type DiscountType string

const (
	DiscountTypeNone        DiscountType = "NONE"
	DiscountTypeFirstYear   DiscountType = "FIRST_YEAR"
	DiscountTypePromotional DiscountType = "PROMOTIONAL"
)

func (d DiscountType) String() string {
	return string(d)
}

func (d DiscountType) Validate() error {
	allowed := []DiscountType{
		DiscountTypeNone,
		DiscountTypeFirstYear,
		DiscountTypePromotional,
	}
	if !lo.Contains(allowed, d) {
		return ierr.NewError("invalid discount type").
			WithHint("Invalid discount type").
			WithReportableDetails(map[string]any{
				"discount_type":     d,
				"allowed_discounts": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
