package types

import (
	"time"

	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/samber/lo"
)

// BillingPeriod is the length of a subscription's billing cycle
type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "MONTHLY"
	BillingPeriodAnnual  BillingPeriod = "ANNUAL"
)

func (b BillingPeriod) String() string {
	return string(b)
}

func (b BillingPeriod) Validate() error {
	allowed := []BillingPeriod{
		BillingPeriodMonthly,
		BillingPeriodAnnual,
	}
	if !lo.Contains(allowed, b) {
		return ierr.NewError("invalid billing period").
			WithHint("Invalid billing period").
			WithReportableDetails(map[string]any{
				"billing_period":  b,
				"allowed_periods": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// NextBillingDate returns the start of the period that follows a period
// beginning at start. Month-end anchors normalize per time.AddDate.
func NextBillingDate(start time.Time, period BillingPeriod) time.Time {
	switch period {
	case BillingPeriodMonthly:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(1, 0, 0)
	}
}

// PeriodEnd returns the inclusive end of the period beginning at start.
// The end is one second before the next period's start so that period
// bounds never overlap.
func PeriodEnd(start time.Time, period BillingPeriod) time.Time {
	return NextBillingDate(start, period).Add(-time.Second)
}
