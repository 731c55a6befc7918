package pricing

import (
	"testing"

	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrice(t *testing.T) {
	tests := []struct {
		name             string
		plan             types.PlanType
		discount         types.DiscountType
		period           types.BillingPeriod
		expectedBase     int64
		expectedDiscount int64
		expectedFinal    int64
	}{
		{
			name:          "standard_annual_no_discount",
			plan:          types.PlanTypeStandard,
			discount:      types.DiscountTypeNone,
			period:        types.BillingPeriodAnnual,
			expectedBase:  110000,
			expectedFinal: 110000,
		},
		{
			name:             "standard_annual_first_year",
			plan:             types.PlanTypeStandard,
			discount:         types.DiscountTypeFirstYear,
			period:           types.BillingPeriodAnnual,
			expectedBase:     110000,
			expectedDiscount: 22000,
			expectedFinal:    88000,
		},
		{
			name:             "expert_annual_promotional",
			plan:             types.PlanTypeExpert,
			discount:         types.DiscountTypePromotional,
			period:           types.BillingPeriodAnnual,
			expectedBase:     220000,
			expectedDiscount: 22000,
			expectedFinal:    198000,
		},
		{
			name:             "expert_monthly_first_year",
			plan:             types.PlanTypeExpert,
			discount:         types.DiscountTypeFirstYear,
			period:           types.BillingPeriodMonthly,
			expectedBase:     22000,
			expectedDiscount: 4400,
			expectedFinal:    17600,
		},
		{
			name:          "standard_monthly_no_discount",
			plan:          types.PlanTypeStandard,
			discount:      types.DiscountTypeNone,
			period:        types.BillingPeriodMonthly,
			expectedBase:  11000,
			expectedFinal: 11000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote, err := Price(tt.plan, tt.discount, tt.period)
			require.NoError(t, err)
			require.NotNil(t, quote)

			assert.True(t, decimal.NewFromInt(tt.expectedBase).Equal(quote.BasePrice),
				"base: expected %d, got %s", tt.expectedBase, quote.BasePrice)
			assert.True(t, decimal.NewFromInt(tt.expectedDiscount).Equal(quote.DiscountAmount),
				"discount: expected %d, got %s", tt.expectedDiscount, quote.DiscountAmount)
			assert.True(t, decimal.NewFromInt(tt.expectedFinal).Equal(quote.FinalPrice),
				"final: expected %d, got %s", tt.expectedFinal, quote.FinalPrice)
		})
	}
}

func TestPrice_InvalidInputs(t *testing.T) {
	_, err := Price(types.PlanType("GOLD"), types.DiscountTypeNone, types.BillingPeriodAnnual)
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))

	_, err = Price(types.PlanTypeStandard, types.DiscountType("LOYALTY"), types.BillingPeriodAnnual)
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))

	_, err = Price(types.PlanTypeStandard, types.DiscountTypeNone, types.BillingPeriod("WEEKLY"))
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}

func TestPrice_UpgradeDelta(t *testing.T) {
	// The full-period price difference between plans feeds proration.
	standard, err := Price(types.PlanTypeStandard, types.DiscountTypeNone, types.BillingPeriodAnnual)
	require.NoError(t, err)
	expert, err := Price(types.PlanTypeExpert, types.DiscountTypeNone, types.BillingPeriodAnnual)
	require.NoError(t, err)

	delta := expert.FinalPrice.Sub(standard.FinalPrice)
	assert.True(t, decimal.NewFromInt(110000).Equal(delta))
}
