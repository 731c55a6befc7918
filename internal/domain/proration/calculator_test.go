package proration

import (
	"testing"
	"time"

	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculator_Calculate(t *testing.T) {
	// Annual period Jan 1 through Dec 31 23:59:59 (next period start
	// minus one second), as written on subscriptions.
	periodStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)

	tests := []struct {
		name              string
		params            Params
		expectedAmount    decimal.Decimal
		expectedTotal     int
		expectedRemaining int
		expectedError     bool
	}{
		{
			name: "mid_year_upgrade",
			params: Params{
				CurrentPeriodStart: periodStart,
				CurrentPeriodEnd:   periodEnd,
				ChangeDate:         time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC),
				PriceDelta:         decimal.NewFromInt(110000),
			},
			// 110000 * 183/365 = 55150.68... rounds half-up to 55151
			expectedAmount:    decimal.NewFromInt(55151),
			expectedTotal:     365,
			expectedRemaining: 183,
		},
		{
			name: "change_at_period_start_charges_full_delta",
			params: Params{
				CurrentPeriodStart: periodStart,
				CurrentPeriodEnd:   periodEnd,
				ChangeDate:         periodStart,
				PriceDelta:         decimal.NewFromInt(110000),
			},
			expectedAmount:    decimal.NewFromInt(110000),
			expectedTotal:     365,
			expectedRemaining: 365,
		},
		{
			name: "change_at_period_end_charges_nothing",
			params: Params{
				CurrentPeriodStart: periodStart,
				CurrentPeriodEnd:   periodEnd,
				ChangeDate:         periodEnd,
				PriceDelta:         decimal.NewFromInt(110000),
			},
			expectedAmount:    decimal.NewFromInt(0),
			expectedTotal:     365,
			expectedRemaining: 0,
		},
		{
			name: "change_after_period_end_clamps_to_zero",
			params: Params{
				CurrentPeriodStart: periodStart,
				CurrentPeriodEnd:   periodEnd,
				ChangeDate:         periodEnd.Add(48 * time.Hour),
				PriceDelta:         decimal.NewFromInt(110000),
			},
			expectedAmount:    decimal.NewFromInt(0),
			expectedTotal:     365,
			expectedRemaining: 0,
		},
		{
			name: "partial_day_counts_as_full_day",
			params: Params{
				CurrentPeriodStart: periodStart,
				CurrentPeriodEnd:   periodEnd,
				ChangeDate:         time.Date(2025, 12, 31, 12, 0, 0, 0, time.UTC),
				PriceDelta:         decimal.NewFromInt(110000),
			},
			// 110000 * 1/365 = 301.36... rounds to 301
			expectedAmount:    decimal.NewFromInt(301),
			expectedTotal:     365,
			expectedRemaining: 1,
		},
		{
			name: "monthly_period_delta",
			params: Params{
				CurrentPeriodStart: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
				CurrentPeriodEnd:   time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC),
				ChangeDate:         time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
				PriceDelta:         decimal.NewFromInt(11000),
			},
			// 31 days total, 17 remaining: 11000 * 17/31 = 6032.25... -> 6032
			expectedAmount:    decimal.NewFromInt(6032),
			expectedTotal:     31,
			expectedRemaining: 17,
		},
		{
			name: "zero_length_period",
			params: Params{
				CurrentPeriodStart: periodStart,
				CurrentPeriodEnd:   periodStart,
				ChangeDate:         periodStart,
				PriceDelta:         decimal.NewFromInt(110000),
			},
			expectedError: true,
		},
		{
			name: "inverted_period",
			params: Params{
				CurrentPeriodStart: periodEnd,
				CurrentPeriodEnd:   periodStart,
				ChangeDate:         periodStart,
				PriceDelta:         decimal.NewFromInt(110000),
			},
			expectedError: true,
		},
	}

	calc := NewCalculator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := calc.Calculate(tt.params)
			if tt.expectedError {
				require.Error(t, err)
				assert.True(t, ierr.IsValidation(err))
				return
			}

			require.NoError(t, err)
			require.NotNil(t, result)
			assert.True(t, tt.expectedAmount.Equal(result.Amount),
				"amount: expected %s, got %s", tt.expectedAmount, result.Amount)
			assert.Equal(t, tt.expectedTotal, result.TotalDays)
			assert.Equal(t, tt.expectedRemaining, result.RemainingDays)
		})
	}
}

func TestCalculator_CoefficientBounds(t *testing.T) {
	calc := NewCalculator()

	result, err := calc.Calculate(Params{
		CurrentPeriodStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		CurrentPeriodEnd:   time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC),
		ChangeDate:         time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		PriceDelta:         decimal.NewFromInt(110000),
	})
	require.NoError(t, err)

	assert.True(t, result.Coefficient.GreaterThan(decimal.Zero))
	assert.True(t, result.Coefficient.LessThanOrEqual(decimal.NewFromInt(1)))
	assert.True(t, result.Amount.LessThanOrEqual(decimal.NewFromInt(110000)))
}
