package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/memberflow/memberflow/internal/api/dto"
	"github.com/memberflow/memberflow/internal/domain/invoice"
	"github.com/memberflow/memberflow/internal/domain/pricing"
	"github.com/memberflow/memberflow/internal/domain/subscription"
	"github.com/memberflow/memberflow/internal/types"
	"github.com/samber/lo"
)

// reminderRepeatInterval is the minimum gap between two reminders for
// the same subscription, so overlapping scan runs cannot double-send.
const reminderRepeatInterval = 24 * time.Hour

// RenewalService is the periodic scanner behind the cron endpoints. It
// sends renewal reminders ahead of period ends and performs the
// boundary transitions (renew, apply scheduled downgrades, cancel) once
// a period end or scheduled cancellation date passes.
type RenewalService interface {
	ProcessRenewalReminders(ctx context.Context) (*dto.ReminderRunResponse, error)
	ProcessDueTransitions(ctx context.Context) (*dto.TransitionRunResponse, error)
}

type renewalService struct {
	ServiceParams
	subs *subscriptionService
}

func NewRenewalService(params ServiceParams) RenewalService {
	return &renewalService{
		ServiceParams: params,
		subs:          NewSubscriptionService(params).(*subscriptionService),
	}
}

func (s *renewalService) ProcessRenewalReminders(ctx context.Context) (*dto.ReminderRunResponse, error) {
	resp := &dto.ReminderRunResponse{}

	leadDays := s.Config.Scheduler.ReminderLeadDays
	if len(leadDays) == 0 {
		return resp, nil
	}
	maxLead := lo.Max(leadDays)

	now := time.Now().UTC()
	subs, err := s.SubRepo.ListExpiringBetween(ctx, now, now.AddDate(0, 0, maxLead+1), s.Config.Scheduler.BatchSize)
	if err != nil {
		return nil, err
	}
	resp.Scanned = len(subs)

	for _, candidate := range subs {
		sent, err := s.remind(ctx, candidate.ID, leadDays, now)
		if err != nil {
			// One broken subscription must not starve the rest of the batch.
			resp.Failed++
			s.Logger.Errorw("failed to process renewal reminder",
				"error", err,
				"subscription_id", candidate.ID)
			continue
		}
		if sent {
			resp.RemindersSent++
		}
	}

	s.Logger.Infow("renewal reminder scan finished",
		"scanned", resp.Scanned,
		"sent", resp.RemindersSent,
		"failed", resp.Failed)
	return resp, nil
}

func (s *renewalService) remind(ctx context.Context, subID string, leadDays []int, now time.Time) (bool, error) {
	var sub *subscription.Subscription
	reminded := false

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.SubRepo.GetForUpdate(ctx, subID)
		if err != nil {
			return err
		}

		if sub.SubscriptionStatus != types.SubscriptionStatusActive {
			return nil
		}
		daysLeft := int(math.Ceil(sub.CurrentPeriodEnd.Sub(now).Hours() / 24))
		if !lo.Contains(leadDays, daysLeft) {
			return nil
		}
		if sub.RenewalNotifiedAt != nil && now.Sub(*sub.RenewalNotifiedAt) < reminderRepeatInterval {
			return nil
		}

		sub.RenewalNotifiedAt = lo.ToPtr(now)
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}
		reminded = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if reminded {
		s.subs.notify(ctx, types.NotificationRenewalReminder, sub)
	}
	return reminded, nil
}

func (s *renewalService) ProcessDueTransitions(ctx context.Context) (*dto.TransitionRunResponse, error) {
	resp := &dto.TransitionRunResponse{}
	now := time.Now().UTC()

	subs, err := s.SubRepo.ListDueForTransition(ctx, now, s.Config.Scheduler.BatchSize)
	if err != nil {
		return nil, err
	}
	resp.Scanned = len(subs)

	for _, candidate := range subs {
		renewed, cancelled, err := s.transition(ctx, candidate.ID, now)
		if err != nil {
			resp.Failed++
			s.Logger.Errorw("failed to process boundary transition",
				"error", err,
				"subscription_id", candidate.ID)
			continue
		}
		if renewed {
			resp.Renewed++
		}
		if cancelled {
			resp.Cancelled++
		}
	}

	s.Logger.Infow("boundary transition scan finished",
		"scanned", resp.Scanned,
		"renewed", resp.Renewed,
		"cancelled", resp.Cancelled,
		"failed", resp.Failed)
	return resp, nil
}

func (s *renewalService) transition(ctx context.Context, subID string, now time.Time) (renewed, cancelled bool, err error) {
	var (
		sub         *subscription.Subscription
		renewalInv  *invoice.Invoice
		planChanged bool
	)

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.SubRepo.GetForUpdate(ctx, subID)
		if err != nil {
			return err
		}

		// Re-check under lock; another node may already have moved it.
		if sub.SubscriptionStatus.IsTerminal() {
			return nil
		}

		if sub.CancelAt != nil && !now.Before(*sub.CancelAt) {
			cancelled = true
			return s.subs.TransitionToCancelled(ctx, sub)
		}
		if now.Before(sub.CurrentPeriodEnd) {
			return nil
		}

		// PENDING past its period end means the purchase was never
		// paid; SUSPENDED means payment never recovered. Both expire.
		if sub.SubscriptionStatus != types.SubscriptionStatusActive || !sub.AutoRenewal {
			cancelled = true
			return s.subs.TransitionToCancelled(ctx, sub)
		}

		renewalInv, planChanged, err = s.renew(ctx, sub, now)
		if err != nil {
			return err
		}
		renewed = true
		return nil
	})
	if err != nil {
		return false, false, err
	}

	if cancelled {
		s.subs.notify(ctx, types.NotificationSubscriptionCancelled, sub)
	}
	if renewed {
		s.subs.notify(ctx, types.NotificationRenewed, sub)
		if planChanged {
			s.subs.notify(ctx, types.NotificationPlanChanged, sub)
		}
		if renewalInv != nil {
			s.attachRenewalCheckout(ctx, sub, renewalInv)
		}
	}
	return renewed, cancelled, nil
}

// renew rolls the subscription into its next period: the scheduled plan
// change (if any) takes effect, the first-year discount lapses, prices
// are re-derived and a fresh invoice is opened for the new period.
func (s *renewalService) renew(ctx context.Context, sub *subscription.Subscription, now time.Time) (*invoice.Invoice, bool, error) {
	before := snapshot(sub)

	plan := sub.PlanType
	planChanged := false
	if sub.ScheduledPlanChange != nil {
		plan = *sub.ScheduledPlanChange
		planChanged = plan != sub.PlanType
	}

	discount := sub.DiscountType
	if discount == types.DiscountTypeFirstYear {
		discount = types.DiscountTypeNone
	}

	quote, err := pricing.Price(plan, discount, sub.BillingPeriod)
	if err != nil {
		return nil, false, err
	}

	nextStart := sub.CurrentPeriodEnd.Add(time.Second)
	sub.PlanType = plan
	sub.DiscountType = discount
	sub.BasePrice = quote.BasePrice
	sub.DiscountPercent = quote.DiscountPercent
	sub.DiscountAmount = quote.DiscountAmount
	sub.FinalPrice = quote.FinalPrice
	sub.CurrentPeriodStart = nextStart
	sub.CurrentPeriodEnd = types.PeriodEnd(nextStart, sub.BillingPeriod)
	sub.ScheduledPlanChange = nil
	sub.RenewalNotifiedAt = nil

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, false, err
	}
	if planChanged {
		if err := s.subs.entitlementService.SyncForPlan(ctx, sub, plan); err != nil {
			return nil, false, err
		}
	}

	inv := s.subs.newInvoice(ctx, sub, types.InvoiceTypeSubscription, sub.FinalPrice,
		fmt.Sprintf("Renewal, %s plan, %s billing", sub.PlanType, sub.BillingPeriod))
	if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
		return nil, false, err
	}

	if err := s.subs.appendAudit(ctx, sub, string(types.NotificationRenewed), before, snapshot(sub)); err != nil {
		return nil, false, err
	}

	s.subs.invalidateSubscriptionCache(ctx, sub)
	s.Logger.Infow("subscription renewed",
		"subscription_id", sub.ID,
		"plan_type", sub.PlanType,
		"period_start", sub.CurrentPeriodStart,
		"period_end", sub.CurrentPeriodEnd,
		"invoice_id", inv.ID)
	return inv, planChanged, nil
}

func (s *renewalService) attachRenewalCheckout(ctx context.Context, sub *subscription.Subscription, inv *invoice.Invoice) {
	resp := &dto.ChangePlanResponse{}
	s.subs.attachCheckout(ctx, sub, inv, resp)
	if resp.CheckoutURL != "" {
		s.Logger.Infow("renewal checkout session created",
			"subscription_id", sub.ID,
			"invoice_id", inv.ID)
	}
}
