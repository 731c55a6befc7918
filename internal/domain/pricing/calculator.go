package pricing

import (
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/types"
	"github.com/shopspring/decimal"
)

// Quote is the fully derived price for a (plan, discount) pair.
// FinalPrice = BasePrice - DiscountAmount, and DiscountAmount is the
// base price times the discount percentage rounded half-up to the
// nearest currency unit.
type Quote struct {
	PlanType        types.PlanType      `json:"plan_type"`
	DiscountType    types.DiscountType  `json:"discount_type"`
	BillingPeriod   types.BillingPeriod `json:"billing_period"`
	BasePrice       decimal.Decimal     `json:"base_price"`
	DiscountPercent decimal.Decimal     `json:"discount_percent"`
	DiscountAmount  decimal.Decimal     `json:"discount_amount"`
	FinalPrice      decimal.Decimal     `json:"final_price"`
}

// Base prices per plan and billing period, in the smallest currency unit.
var basePrices = map[types.BillingPeriod]map[types.PlanType]decimal.Decimal{
	types.BillingPeriodAnnual: {
		types.PlanTypeStandard: decimal.NewFromInt(110000),
		types.PlanTypeExpert:   decimal.NewFromInt(220000),
	},
	types.BillingPeriodMonthly: {
		types.PlanTypeStandard: decimal.NewFromInt(11000),
		types.PlanTypeExpert:   decimal.NewFromInt(22000),
	},
}

// Discount percentages per discount type.
var discountPercents = map[types.DiscountType]decimal.Decimal{
	types.DiscountTypeNone:        decimal.Zero,
	types.DiscountTypeFirstYear:   decimal.NewFromInt(20),
	types.DiscountTypePromotional: decimal.NewFromInt(10),
}

var hundred = decimal.NewFromInt(100)

// Price computes the quote for a (plan, discount, billing period)
// combination. Pure and deterministic; the only failure mode is an
// unknown plan/discount pair.
func Price(plan types.PlanType, discount types.DiscountType, period types.BillingPeriod) (*Quote, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if err := discount.Validate(); err != nil {
		return nil, err
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}

	base, ok := basePrices[period][plan]
	if !ok {
		return nil, ierr.NewError("no price configured for plan").
			WithHint("Unknown plan and billing period combination").
			WithReportableDetails(map[string]any{
				"plan_type":      plan,
				"billing_period": period,
			}).
			Mark(ierr.ErrValidation)
	}

	percent := discountPercents[discount]
	// Round half-up to the nearest currency unit
	discountAmount := base.Mul(percent).Div(hundred).Round(0)

	return &Quote{
		PlanType:        plan,
		DiscountType:    discount,
		BillingPeriod:   period,
		BasePrice:       base,
		DiscountPercent: percent,
		DiscountAmount:  discountAmount,
		FinalPrice:      base.Sub(discountAmount),
	}, nil
}
