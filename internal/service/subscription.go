package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/memberflow/memberflow/internal/api/dto"
	"github.com/memberflow/memberflow/internal/cache"
	"github.com/memberflow/memberflow/internal/domain/auditlog"
	"github.com/memberflow/memberflow/internal/domain/invoice"
	"github.com/memberflow/memberflow/internal/domain/organization"
	"github.com/memberflow/memberflow/internal/domain/pricing"
	"github.com/memberflow/memberflow/internal/domain/proration"
	"github.com/memberflow/memberflow/internal/domain/subscription"
	ierr "github.com/memberflow/memberflow/internal/errors"
	stripeclient "github.com/memberflow/memberflow/internal/integration/stripe"
	"github.com/memberflow/memberflow/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// invoiceDueDays is how long an open invoice waits for payment before
// it is considered overdue.
const invoiceDueDays = 14

// billingCurrency is the currency all prices are expressed in. The
// catalog is single-currency; the column exists on the processor side
// only.
const billingCurrency = "jpy"

// auditActionPlanChangeCleared records the undo of a pending downgrade.
// It has no notification counterpart; subscribers see no change.
const auditActionPlanChangeCleared = "subscription.plan_change_cleared"

// SubscriptionService drives the subscription lifecycle. It is the only
// writer of subscription status, plan and price columns; the webhook
// reconciler and the renewal scanner go through its transition methods.
type SubscriptionService interface {
	CreateSubscription(ctx context.Context, req *dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error)
	GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)

	// ActivateSubscription is the operator path for payments confirmed
	// outside the processor, e.g. a bank transfer landing. It settles
	// the open purchase invoice and activates in one transaction.
	ActivateSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)

	CancelSubscription(ctx context.Context, id string, req *dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error)
	ChangePlan(ctx context.Context, id string, req *dto.ChangePlanRequest) (*dto.ChangePlanResponse, error)

	// Transition methods mutate a subscription the caller already holds
	// under a row lock, inside the caller's transaction.
	TransitionToActive(ctx context.Context, sub *subscription.Subscription) error
	TransitionToSuspended(ctx context.Context, sub *subscription.Subscription) error
	TransitionToCancelled(ctx context.Context, sub *subscription.Subscription) error
}

type subscriptionService struct {
	ServiceParams
	entitlementService EntitlementService
}

func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{
		ServiceParams:      params,
		entitlementService: NewEntitlementService(params),
	}
}

// allowedTransitions is the full status graph. Anything not listed here
// is rejected before any row is touched.
var allowedTransitions = map[types.SubscriptionStatus][]types.SubscriptionStatus{
	types.SubscriptionStatusPending:   {types.SubscriptionStatusActive, types.SubscriptionStatusCancelled},
	types.SubscriptionStatusActive:    {types.SubscriptionStatusSuspended, types.SubscriptionStatusCancelled},
	types.SubscriptionStatusSuspended: {types.SubscriptionStatusActive, types.SubscriptionStatusCancelled},
}

func validateTransition(from, to types.SubscriptionStatus) error {
	if lo.Contains(allowedTransitions[from], to) {
		return nil
	}
	return ierr.NewError("invalid subscription state transition").
		WithHintf("Cannot transition subscription from %s to %s", from, to).
		WithReportableDetails(map[string]any{
			"from": from,
			"to":   to,
		}).
		Mark(ierr.ErrInvalidStateTransition)
}

// statusSnapshot is the audit log's view of the fields transitions touch.
type statusSnapshot struct {
	Status              types.SubscriptionStatus `json:"status"`
	PlanType            types.PlanType           `json:"plan_type"`
	FinalPrice          decimal.Decimal          `json:"final_price"`
	CurrentPeriodEnd    time.Time                `json:"current_period_end"`
	AutoRenewal         bool                     `json:"auto_renewal"`
	CancelAt            *time.Time               `json:"cancel_at,omitempty"`
	ScheduledPlanChange *types.PlanType          `json:"scheduled_plan_change,omitempty"`
}

func snapshot(sub *subscription.Subscription) statusSnapshot {
	return statusSnapshot{
		Status:              sub.SubscriptionStatus,
		PlanType:            sub.PlanType,
		FinalPrice:          sub.FinalPrice,
		CurrentPeriodEnd:    sub.CurrentPeriodEnd,
		AutoRenewal:         sub.AutoRenewal,
		CancelAt:            sub.CancelAt,
		ScheduledPlanChange: sub.ScheduledPlanChange,
	}
}

// appendAudit records a transition inside the surrounding transaction.
// A failed audit write rolls the transition back with it.
func (s *subscriptionService) appendAudit(ctx context.Context, sub *subscription.Subscription, action string, before, after statusSnapshot) error {
	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return ierr.WithError(err).WithHint("Failed to encode audit snapshot").Mark(ierr.ErrSystem)
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return ierr.WithError(err).WithHint("Failed to encode audit snapshot").Mark(ierr.ErrSystem)
	}

	actor := types.GetUserID(ctx)
	if actor == "" {
		actor = types.DefaultUserID
	}

	return s.AuditLogRepo.Append(ctx, &auditlog.Entry{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_AUDIT_LOG),
		Actor:          actor,
		Action:         action,
		SubscriptionID: sub.ID,
		OrganizationID: sub.OrganizationID,
		Before:         beforeJSON,
		After:          afterJSON,
		RecordedAt:     time.Now().UTC(),
		BaseModel:      types.GetDefaultBaseModel(ctx),
	})
}

// notify hands the event to the notifier. Delivery is somebody else's
// problem; a failed handoff is logged and swallowed.
func (s *subscriptionService) notify(ctx context.Context, name types.NotificationEventName, sub *subscription.Subscription) {
	payload, err := json.Marshal(snapshot(sub))
	if err != nil {
		s.Logger.Errorw("failed to encode notification payload", "error", err, "event_name", name)
		return
	}

	event := &types.NotificationEvent{
		EventName:      name,
		TenantID:       types.GetTenantID(ctx),
		OrganizationID: sub.OrganizationID,
		SubscriptionID: sub.ID,
		Payload:        payload,
	}
	if err := s.NotificationPublisher.Publish(ctx, event); err != nil {
		s.Logger.Errorw("failed to publish notification",
			"error", err,
			"event_name", name,
			"subscription_id", sub.ID)
	}
}

func (s *subscriptionService) invalidateSubscriptionCache(ctx context.Context, sub *subscription.Subscription) {
	tenantID := types.GetTenantID(ctx)
	s.Cache.Delete(ctx, cache.GenerateKey(cache.PrefixSubscription, tenantID, sub.ID))
	s.Cache.DeleteByPrefix(ctx, cache.GenerateKey(cache.PrefixEntitlement, tenantID, sub.OrganizationID))
}

func (s *subscriptionService) CreateSubscription(ctx context.Context, req *dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	org, err := s.resolveOrganization(ctx, req)
	if err != nil {
		return nil, err
	}

	if existing, err := s.SubRepo.GetActiveByOrganizationID(ctx, org.ID); err == nil && existing != nil {
		return nil, ierr.NewError("organization already has a subscription").
			WithHint("An organization can hold only one active or pending subscription").
			WithReportableDetails(map[string]any{
				"organization_id":          org.ID,
				"existing_subscription_id": existing.ID,
			}).
			Mark(ierr.ErrAlreadyExists)
	} else if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}

	quote, err := pricing.Price(req.PlanType, req.DiscountType, req.BillingPeriod)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub := &subscription.Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		OrganizationID:     org.ID,
		PlanType:           req.PlanType,
		SubscriptionStatus: types.SubscriptionStatusPending,
		PaymentMethod:      req.PaymentMethod,
		DiscountType:       req.DiscountType,
		BasePrice:          quote.BasePrice,
		DiscountPercent:    quote.DiscountPercent,
		DiscountAmount:     quote.DiscountAmount,
		FinalPrice:         quote.FinalPrice,
		BillingPeriod:      req.BillingPeriod,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   types.PeriodEnd(now, req.BillingPeriod),
		AutoRenewal:        req.AutoRenewal,
		StripeCustomerID:   org.StripeCustomerID,
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}

	// A fully-discounted purchase has nothing to collect: no invoice,
	// no checkout, activated on the spot inside finalizeCreate.
	var inv *invoice.Invoice
	if sub.FinalPrice.IsPositive() {
		inv = s.newInvoice(ctx, sub, types.InvoiceTypeSubscription, sub.FinalPrice,
			fmt.Sprintf("%s plan, %s billing", sub.PlanType, sub.BillingPeriod))
	}

	var checkoutURL string
	if inv != nil && req.PaymentMethod == types.PaymentMethodCard {
		session, err := s.StripeClient.CreateCheckoutSession(ctx, &stripeclient.CreateCheckoutSessionRequest{
			StripeCustomerID: org.StripeCustomerID,
			Amount:           sub.FinalPrice,
			Currency:         billingCurrency,
			ProductName:      fmt.Sprintf("%s plan (%s)", sub.PlanType, sub.BillingPeriod),
			Description:      inv.Description,
			Metadata:         s.checkoutMetadata(ctx, sub, inv),
		})
		if err != nil {
			return nil, err
		}
		sub.StripeCheckoutSessionID = session.ID
		inv.StripeCheckoutSessionID = session.ID
		checkoutURL = session.URL
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		return s.finalizeCreate(ctx, sub, inv)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, types.NotificationSubscriptionCreated, sub)
	if sub.SubscriptionStatus == types.SubscriptionStatusActive {
		s.notify(ctx, types.NotificationSubscriptionActivated, sub)
	}
	s.Logger.Infow("subscription created",
		"subscription_id", sub.ID,
		"organization_id", org.ID,
		"plan_type", sub.PlanType,
		"status", sub.SubscriptionStatus,
		"final_price", sub.FinalPrice,
		"payment_method", sub.PaymentMethod)

	resp := &dto.SubscriptionResponse{
		Subscription: sub,
		CheckoutURL:  checkoutURL,
	}
	if inv != nil {
		resp.InvoiceID = inv.ID
	}
	return resp, nil
}

// finalizeCreate persists the new subscription and either opens its
// first invoice or, when there is nothing to collect, activates it
// immediately.
func (s *subscriptionService) finalizeCreate(ctx context.Context, sub *subscription.Subscription, inv *invoice.Invoice) error {
	if err := s.SubRepo.Create(ctx, sub); err != nil {
		return err
	}
	if err := s.appendAudit(ctx, sub, string(types.NotificationSubscriptionCreated), statusSnapshot{}, snapshot(sub)); err != nil {
		return err
	}
	if inv == nil {
		return s.TransitionToActive(ctx, sub)
	}
	return s.InvoiceRepo.Create(ctx, inv)
}

// resolveOrganization loads or creates the purchasing organization and
// makes sure it carries a processor customer reference.
func (s *subscriptionService) resolveOrganization(ctx context.Context, req *dto.CreateSubscriptionRequest) (*organization.Organization, error) {
	var org *organization.Organization

	if req.Organization != nil {
		org = &organization.Organization{
			ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ORGANIZATION),
			Name:         req.Organization.Name,
			BillingEmail: req.Organization.BillingEmail,
			BaseModel:    types.GetDefaultBaseModel(ctx),
		}
		customerID, err := s.StripeClient.CreateCustomer(ctx, &stripeclient.CreateCustomerRequest{
			OrganizationID: org.ID,
			Name:           org.Name,
			Email:          org.BillingEmail,
		})
		if err != nil {
			return nil, err
		}
		org.StripeCustomerID = customerID

		if err := s.OrgRepo.Create(ctx, org); err != nil {
			return nil, err
		}
		return org, nil
	}

	org, err := s.OrgRepo.Get(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}
	if org.StripeCustomerID == "" {
		customerID, err := s.StripeClient.CreateCustomer(ctx, &stripeclient.CreateCustomerRequest{
			OrganizationID: org.ID,
			Name:           org.Name,
			Email:          org.BillingEmail,
		})
		if err != nil {
			return nil, err
		}
		org.StripeCustomerID = customerID
		if err := s.OrgRepo.Update(ctx, org); err != nil {
			return nil, err
		}
	}
	return org, nil
}

func (s *subscriptionService) newInvoice(ctx context.Context, sub *subscription.Subscription, invoiceType types.InvoiceType, amount decimal.Decimal, description string) *invoice.Invoice {
	return &invoice.Invoice{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		InvoiceNumber:  types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_INVOICE),
		SubscriptionID: sub.ID,
		OrganizationID: sub.OrganizationID,
		InvoiceType:    invoiceType,
		Description:    description,
		AmountDue:      amount,
		InvoiceStatus:  types.InvoiceStatusOpen,
		PaymentStatus:  types.PaymentStatusPending,
		PeriodStart:    sub.CurrentPeriodStart,
		PeriodEnd:      sub.CurrentPeriodEnd,
		DueDate:        lo.ToPtr(time.Now().UTC().AddDate(0, 0, invoiceDueDays)),
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
}

func (s *subscriptionService) checkoutMetadata(ctx context.Context, sub *subscription.Subscription, inv *invoice.Invoice) map[string]string {
	return map[string]string{
		types.MetadataKeyPurchaseType:   string(types.PurchaseTypeSubscription),
		types.MetadataKeySubscriptionID: sub.ID,
		types.MetadataKeyOrganizationID: sub.OrganizationID,
		types.MetadataKeyInvoiceID:      inv.ID,
		types.MetadataKeyTenantID:       types.GetTenantID(ctx),
	}
}

func (s *subscriptionService) GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	cacheKey := cache.GenerateKey(cache.PrefixSubscription, types.GetTenantID(ctx), id)
	if cached, found := s.Cache.Get(ctx, cacheKey); found {
		if sub, ok := cached.(*subscription.Subscription); ok {
			return &dto.SubscriptionResponse{Subscription: sub}, nil
		}
	}

	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.Cache.Set(ctx, cacheKey, sub, entitlementCacheExpiry)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) ActivateSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	var sub *subscription.Subscription

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.SubRepo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		// Settle the open purchase or renewal invoice alongside the
		// activation; the money arrived outside the processor.
		open, err := s.InvoiceRepo.ListOpenBySubscriptionID(ctx, sub.ID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, inv := range open {
			if inv.InvoiceType != types.InvoiceTypeSubscription {
				continue
			}
			inv.InvoiceStatus = types.InvoiceStatusPaid
			inv.PaymentStatus = types.PaymentStatusSucceeded
			inv.PaidAt = lo.ToPtr(now)
			if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
				return err
			}
		}

		return s.TransitionToActive(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, types.NotificationSubscriptionActivated, sub)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) CancelSubscription(ctx context.Context, id string, req *dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	var (
		sub       *subscription.Subscription
		scheduled bool
	)

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.SubRepo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		// Customer cancellation applies to ACTIVE subscriptions only.
		// A PENDING purchase expires on its own when unpaid, and a
		// SUSPENDED one is resolved through payment recovery, not here.
		if sub.SubscriptionStatus != types.SubscriptionStatusActive {
			return ierr.NewError("subscription is not active").
				WithHintf("Cancellation requires an active subscription, current status is %s", sub.SubscriptionStatus).
				WithReportableDetails(map[string]any{
					"subscription_id": sub.ID,
					"status":          sub.SubscriptionStatus,
				}).
				Mark(ierr.ErrInvalidStateTransition)
		}

		if !req.Immediate {
			scheduled = true
			return s.scheduleCancellation(ctx, sub)
		}
		return s.TransitionToCancelled(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	if scheduled {
		s.notify(ctx, types.NotificationCancellationScheduled, sub)
	} else {
		s.notify(ctx, types.NotificationSubscriptionCancelled, sub)
	}
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

// scheduleCancellation records a cancellation at the current period end.
// Access continues until then; the renewal scan performs the transition.
func (s *subscriptionService) scheduleCancellation(ctx context.Context, sub *subscription.Subscription) error {
	if sub.CancelAt != nil {
		return ierr.NewError("cancellation already scheduled").
			WithHint("The subscription is already scheduled to cancel").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"cancel_at":       sub.CancelAt,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	before := snapshot(sub)
	sub.CancelAt = lo.ToPtr(sub.CurrentPeriodEnd)
	sub.AutoRenewal = false
	sub.ScheduledPlanChange = nil

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return err
	}
	if err := s.appendAudit(ctx, sub, string(types.NotificationCancellationScheduled), before, snapshot(sub)); err != nil {
		return err
	}

	s.invalidateSubscriptionCache(ctx, sub)
	return nil
}

func (s *subscriptionService) ChangePlan(ctx context.Context, id string, req *dto.ChangePlanRequest) (*dto.ChangePlanResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		resp         *dto.ChangePlanResponse
		prorationInv *invoice.Invoice
		sub          *subscription.Subscription
		upgraded     bool
		cleared      bool
	)

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.SubRepo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if sub.SubscriptionStatus != types.SubscriptionStatusActive {
			return ierr.NewError("subscription is not active").
				WithHintf("Plan changes require an active subscription, current status is %s", sub.SubscriptionStatus).
				Mark(ierr.ErrInvalidStateTransition)
		}
		if req.PlanType == sub.PlanType {
			if sub.ScheduledPlanChange == nil {
				return ierr.NewError("subscription already on requested plan").
					WithHint("The subscription is already on this plan").
					WithReportableDetails(map[string]any{
						"plan_type": req.PlanType,
					}).
					Mark(ierr.ErrValidation)
			}
			// Re-requesting the current plan undoes the pending downgrade.
			cleared = true
			resp, err = s.clearScheduledChange(ctx, sub)
			return err
		}

		if req.PlanType.IsUpgradeFrom(sub.PlanType) {
			upgraded = true
			resp, prorationInv, err = s.applyUpgrade(ctx, sub, req.PlanType)
			return err
		}
		resp, err = s.scheduleDowngrade(ctx, sub, req.PlanType)
		return err
	})
	if err != nil {
		return nil, err
	}

	switch {
	case upgraded:
		s.notify(ctx, types.NotificationPlanChanged, sub)
		if prorationInv != nil {
			s.attachCheckout(ctx, sub, prorationInv, resp)
		}
	case cleared:
		// Nothing changed for the subscriber; the audit row is enough.
	default:
		s.notify(ctx, types.NotificationPlanChangeScheduled, sub)
	}
	return resp, nil
}

// clearScheduledChange drops a pending downgrade, keeping the current
// plan through renewal as if the downgrade had never been requested.
func (s *subscriptionService) clearScheduledChange(ctx context.Context, sub *subscription.Subscription) (*dto.ChangePlanResponse, error) {
	before := snapshot(sub)
	sub.ScheduledPlanChange = nil

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, err
	}
	if err := s.appendAudit(ctx, sub, auditActionPlanChangeCleared, before, snapshot(sub)); err != nil {
		return nil, err
	}
	s.invalidateSubscriptionCache(ctx, sub)

	return &dto.ChangePlanResponse{
		Subscription: sub,
		Scheduled:    false,
		EffectiveAt:  time.Now().UTC(),
	}, nil
}

// applyUpgrade moves the subscription to the higher plan immediately and
// opens a proration invoice for the unexpired remainder of the period.
func (s *subscriptionService) applyUpgrade(ctx context.Context, sub *subscription.Subscription, newPlan types.PlanType) (*dto.ChangePlanResponse, *invoice.Invoice, error) {
	quote, err := pricing.Price(newPlan, sub.DiscountType, sub.BillingPeriod)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	prorated, err := s.ProrationCalculator.Calculate(proration.Params{
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		ChangeDate:         now,
		PriceDelta:         quote.FinalPrice.Sub(sub.FinalPrice),
	})
	if err != nil {
		return nil, nil, err
	}

	before := snapshot(sub)
	sub.PlanType = newPlan
	sub.BasePrice = quote.BasePrice
	sub.DiscountPercent = quote.DiscountPercent
	sub.DiscountAmount = quote.DiscountAmount
	sub.FinalPrice = quote.FinalPrice
	sub.ScheduledPlanChange = nil

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, nil, err
	}
	// The upgraded plan's features apply the moment the plan does, not
	// when the proration invoice settles.
	if err := s.entitlementService.ApplyForSubscription(ctx, sub); err != nil {
		return nil, nil, err
	}

	var inv *invoice.Invoice
	if prorated.Amount.IsPositive() {
		inv = s.newInvoice(ctx, sub, types.InvoiceTypeProration, prorated.Amount,
			fmt.Sprintf("Upgrade to %s, %d of %d days remaining", newPlan, prorated.RemainingDays, prorated.TotalDays))
		inv.PeriodStart = now
		if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
			return nil, nil, err
		}
	}

	if err := s.appendAudit(ctx, sub, string(types.NotificationPlanChanged), before, snapshot(sub)); err != nil {
		return nil, nil, err
	}
	s.invalidateSubscriptionCache(ctx, sub)

	resp := &dto.ChangePlanResponse{
		Subscription:    sub,
		Scheduled:       false,
		EffectiveAt:     now,
		ProrationAmount: lo.ToPtr(prorated.Amount),
	}
	if inv != nil {
		resp.InvoiceID = inv.ID
	}
	return resp, inv, nil
}

// scheduleDowngrade records the narrower plan for the renewal boundary.
// No credit is issued for the unexpired remainder of the wider plan.
func (s *subscriptionService) scheduleDowngrade(ctx context.Context, sub *subscription.Subscription, newPlan types.PlanType) (*dto.ChangePlanResponse, error) {
	before := snapshot(sub)
	sub.ScheduledPlanChange = lo.ToPtr(newPlan)

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, err
	}
	if err := s.appendAudit(ctx, sub, string(types.NotificationPlanChangeScheduled), before, snapshot(sub)); err != nil {
		return nil, err
	}
	s.invalidateSubscriptionCache(ctx, sub)

	return &dto.ChangePlanResponse{
		Subscription: sub,
		Scheduled:    true,
		EffectiveAt:  sub.CurrentPeriodEnd,
	}, nil
}

// attachCheckout creates the hosted payment page for a proration invoice
// after the plan change has committed. A processor outage here leaves
// the invoice open and payable later; the upgrade itself stands.
func (s *subscriptionService) attachCheckout(ctx context.Context, sub *subscription.Subscription, inv *invoice.Invoice, resp *dto.ChangePlanResponse) {
	if sub.PaymentMethod != types.PaymentMethodCard {
		return
	}

	session, err := s.StripeClient.CreateCheckoutSession(ctx, &stripeclient.CreateCheckoutSessionRequest{
		StripeCustomerID: sub.StripeCustomerID,
		Amount:           inv.AmountDue,
		Currency:         billingCurrency,
		ProductName:      fmt.Sprintf("%s plan (%s)", sub.PlanType, sub.BillingPeriod),
		Description:      inv.Description,
		Metadata:         s.checkoutMetadata(ctx, sub, inv),
	})
	if err != nil {
		s.Logger.Errorw("failed to create checkout session for proration invoice",
			"error", err,
			"invoice_id", inv.ID,
			"subscription_id", sub.ID)
		return
	}

	inv.StripeCheckoutSessionID = session.ID
	if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
		s.Logger.Errorw("failed to attach checkout session to invoice",
			"error", err,
			"invoice_id", inv.ID)
		return
	}
	resp.CheckoutURL = session.URL
}

func (s *subscriptionService) TransitionToActive(ctx context.Context, sub *subscription.Subscription) error {
	if err := validateTransition(sub.SubscriptionStatus, types.SubscriptionStatusActive); err != nil {
		return err
	}

	before := snapshot(sub)
	sub.SubscriptionStatus = types.SubscriptionStatusActive

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return err
	}
	if err := s.entitlementService.ApplyForSubscription(ctx, sub); err != nil {
		return err
	}
	if err := s.appendAudit(ctx, sub, string(types.NotificationSubscriptionActivated), before, snapshot(sub)); err != nil {
		return err
	}

	s.invalidateSubscriptionCache(ctx, sub)
	s.Logger.Infow("subscription activated", "subscription_id", sub.ID, "organization_id", sub.OrganizationID)
	return nil
}

func (s *subscriptionService) TransitionToSuspended(ctx context.Context, sub *subscription.Subscription) error {
	if err := validateTransition(sub.SubscriptionStatus, types.SubscriptionStatusSuspended); err != nil {
		return err
	}

	before := snapshot(sub)
	sub.SubscriptionStatus = types.SubscriptionStatusSuspended

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return err
	}
	if err := s.entitlementService.RevokeForSubscription(ctx, sub); err != nil {
		return err
	}
	if err := s.appendAudit(ctx, sub, string(types.NotificationSubscriptionSuspended), before, snapshot(sub)); err != nil {
		return err
	}

	s.invalidateSubscriptionCache(ctx, sub)
	s.Logger.Infow("subscription suspended", "subscription_id", sub.ID, "organization_id", sub.OrganizationID)
	return nil
}

func (s *subscriptionService) TransitionToCancelled(ctx context.Context, sub *subscription.Subscription) error {
	if err := validateTransition(sub.SubscriptionStatus, types.SubscriptionStatusCancelled); err != nil {
		return err
	}

	now := time.Now().UTC()
	before := snapshot(sub)
	sub.SubscriptionStatus = types.SubscriptionStatusCancelled
	sub.CanceledAt = lo.ToPtr(now)
	sub.AutoRenewal = false
	sub.ScheduledPlanChange = nil

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return err
	}
	if err := s.entitlementService.RevokeForSubscription(ctx, sub); err != nil {
		return err
	}

	// Nothing is collectable on a cancelled subscription.
	open, err := s.InvoiceRepo.ListOpenBySubscriptionID(ctx, sub.ID)
	if err != nil {
		return err
	}
	for _, inv := range open {
		inv.InvoiceStatus = types.InvoiceStatusVoid
		inv.VoidAt = lo.ToPtr(now)
		if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
			return err
		}
	}

	if err := s.appendAudit(ctx, sub, string(types.NotificationSubscriptionCancelled), before, snapshot(sub)); err != nil {
		return err
	}

	s.invalidateSubscriptionCache(ctx, sub)
	s.Logger.Infow("subscription cancelled", "subscription_id", sub.ID, "organization_id", sub.OrganizationID)
	return nil
}
