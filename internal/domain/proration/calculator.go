package proration

import (
	"math"
	"time"

	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/shopspring/decimal"
)

// Params carries the inputs for a proration calculation.
type Params struct {
	// CurrentPeriodStart and CurrentPeriodEnd bound the billing period
	// the change falls into.
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time

	// ChangeDate is the moment the plan change takes effect.
	ChangeDate time.Time

	// PriceDelta is the full-period price difference between the new
	// and the current plan (new minus current).
	PriceDelta decimal.Decimal
}

// Result is the outcome of a proration calculation.
type Result struct {
	Amount        decimal.Decimal `json:"amount"`
	TotalDays     int             `json:"total_days"`
	RemainingDays int             `json:"remaining_days"`
	Coefficient   decimal.Decimal `json:"coefficient"`
}

// Calculator computes the prorated charge for a mid-period plan change.
type Calculator interface {
	Calculate(params Params) (*Result, error)
}

// NewCalculator returns the day-based calculator. Day granularity is
// the billing contract: partial days always count as full days in the
// member's favor on the total and against them on the remainder.
func NewCalculator() Calculator {
	return &dayBasedCalculator{}
}

type dayBasedCalculator struct{}

func (c *dayBasedCalculator) Calculate(params Params) (*Result, error) {
	totalDays := daysBetween(params.CurrentPeriodStart, params.CurrentPeriodEnd)
	if totalDays <= 0 {
		return nil, ierr.NewError("invalid billing period").
			WithHintf("period has zero or negative length (%v to %v)",
				params.CurrentPeriodStart, params.CurrentPeriodEnd).
			Mark(ierr.ErrValidation)
	}

	remainingDays := daysBetween(params.ChangeDate, params.CurrentPeriodEnd)
	if remainingDays < 0 {
		// Change landed after the period end
		remainingDays = 0
	}
	if remainingDays > totalDays {
		remainingDays = totalDays
	}

	decimalTotal := decimal.NewFromInt(int64(totalDays))
	decimalRemaining := decimal.NewFromInt(int64(remainingDays))
	coefficient := decimalRemaining.Div(decimalTotal)

	// Round half-up to the nearest currency unit
	amount := params.PriceDelta.Mul(decimalRemaining).Div(decimalTotal).Round(0)

	return &Result{
		Amount:        amount,
		TotalDays:     totalDays,
		RemainingDays: remainingDays,
		Coefficient:   coefficient,
	}, nil
}

// daysBetween counts days from a to b, rounding any partial day up.
func daysBetween(a, b time.Time) int {
	diff := b.Sub(a)
	if diff <= 0 {
		return 0
	}
	return int(math.Ceil(diff.Hours() / 24))
}
