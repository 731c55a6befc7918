package service

import (
	"context"
	"testing"

	"github.com/memberflow/memberflow/internal/api/dto"
	"github.com/memberflow/memberflow/internal/domain/subscription"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/testutil"
	"github.com/memberflow/memberflow/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type SubscriptionServiceSuite struct {
	testutil.BaseServiceTestSuite
	params  ServiceParams
	service SubscriptionService
}

func TestSubscriptionService(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceSuite))
}

func (s *SubscriptionServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.params = newTestParams(&s.BaseServiceTestSuite)
	s.service = NewSubscriptionService(s.params)
}

func (s *SubscriptionServiceSuite) TestCreateSubscription_CardWithCheckout() {
	resp, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		Organization: &dto.CreateOrganizationRequest{
			Name:         "Acme Holdings",
			BillingEmail: "billing@acme.test",
		},
		PlanType:      types.PlanTypeStandard,
		BillingPeriod: types.BillingPeriodAnnual,
		PaymentMethod: types.PaymentMethodCard,
		AutoRenewal:   true,
	})
	s.NoError(err)
	s.NotNil(resp)

	s.Equal(types.SubscriptionStatusPending, resp.SubscriptionStatus)
	s.Equal(types.PlanTypeStandard, resp.PlanType)
	s.Equal(types.DiscountTypeNone, resp.DiscountType)
	s.True(decimal.NewFromInt(110000).Equal(resp.FinalPrice))
	s.NotEmpty(resp.CheckoutURL)
	s.NotEmpty(resp.StripeCheckoutSessionID)

	// The purchase opened an invoice and a checkout session pointing at it.
	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), resp.InvoiceID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusOpen, inv.InvoiceStatus)
	s.Equal(types.InvoiceTypeSubscription, inv.InvoiceType)
	s.True(decimal.NewFromInt(110000).Equal(inv.AmountDue))
	s.Equal(resp.StripeCheckoutSessionID, inv.StripeCheckoutSessionID)

	checkout := s.GetStripe().LastCheckoutSession()
	s.Require().NotNil(checkout)
	s.Equal(string(types.PurchaseTypeSubscription), checkout.Metadata[types.MetadataKeyPurchaseType])
	s.Equal(inv.ID, checkout.Metadata[types.MetadataKeyInvoiceID])
	s.Equal(resp.ID, checkout.Metadata[types.MetadataKeySubscriptionID])

	s.Len(s.GetStripe().Customers(), 1)
	s.True(s.GetPublisher().HasEvent(types.NotificationSubscriptionCreated))

	entries, err := s.GetStores().AuditLogRepo.ListBySubscriptionID(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Len(entries, 1)
	s.Equal(string(types.NotificationSubscriptionCreated), entries[0].Action)
}

func (s *SubscriptionServiceSuite) TestCreateSubscription_BankTransferSkipsCheckout() {
	org := seedOrganization(&s.BaseServiceTestSuite)

	resp, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		OrganizationID: org.ID,
		PlanType:       types.PlanTypeExpert,
		BillingPeriod:  types.BillingPeriodMonthly,
		DiscountType:   types.DiscountTypeFirstYear,
		PaymentMethod:  types.PaymentMethodBankTransfer,
	})
	s.NoError(err)

	s.Empty(resp.CheckoutURL)
	s.Empty(resp.StripeCheckoutSessionID)
	s.Empty(s.GetStripe().CheckoutSessions())
	s.True(decimal.NewFromInt(17600).Equal(resp.FinalPrice))
}

func (s *SubscriptionServiceSuite) TestCreateSubscription_SecondSubscriptionRejected() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)

	_, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		OrganizationID: org.ID,
		PlanType:       types.PlanTypeExpert,
		BillingPeriod:  types.BillingPeriodAnnual,
		PaymentMethod:  types.PaymentMethodCard,
	})
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

func (s *SubscriptionServiceSuite) TestCreateSubscription_AmbiguousOrganization() {
	_, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		OrganizationID: "org_123",
		Organization: &dto.CreateOrganizationRequest{
			Name:         "Acme Holdings",
			BillingEmail: "billing@acme.test",
		},
		PlanType:      types.PlanTypeStandard,
		BillingPeriod: types.BillingPeriodAnnual,
		PaymentMethod: types.PaymentMethodCard,
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *SubscriptionServiceSuite) TestActivateSubscription_SettlesInvoiceAndGrants() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusPending,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)
	inv := seedInvoice(&s.BaseServiceTestSuite, sub, types.InvoiceTypeSubscription, sub.FinalPrice, "", "")

	resp, err := s.service.ActivateSubscription(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)

	settled, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, settled.InvoiceStatus)
	s.Equal(types.PaymentStatusSucceeded, settled.PaymentStatus)
	s.NotNil(settled.PaidAt)

	hasSeminar, err := s.GetStores().EntitlementRepo.Exists(s.GetContext(), sub.ID, types.FeatureSeminar)
	s.NoError(err)
	s.True(hasSeminar)

	s.True(s.GetPublisher().HasEvent(types.NotificationSubscriptionActivated))
}

func (s *SubscriptionServiceSuite) TestCancelSubscription_SchedulesAtPeriodEnd() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)

	resp, err := s.service.CancelSubscription(s.GetContext(), sub.ID, &dto.CancelSubscriptionRequest{})
	s.NoError(err)

	// Access continues; the renewal scan tears it down at the boundary.
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)
	s.Require().NotNil(resp.CancelAt)
	s.True(resp.CancelAt.Equal(sub.CurrentPeriodEnd))
	s.False(resp.AutoRenewal)
	s.True(s.GetPublisher().HasEvent(types.NotificationCancellationScheduled))

	_, err = s.service.CancelSubscription(s.GetContext(), sub.ID, &dto.CancelSubscriptionRequest{})
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

func (s *SubscriptionServiceSuite) TestCancelSubscription_ImmediateTearsDown() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)
	s.NoError(NewEntitlementService(s.params).ApplyForSubscription(s.GetContext(), sub))
	inv := seedInvoice(&s.BaseServiceTestSuite, sub, types.InvoiceTypeSubscription, sub.FinalPrice, "", "")

	resp, err := s.service.CancelSubscription(s.GetContext(), sub.ID, &dto.CancelSubscriptionRequest{Immediate: true})
	s.NoError(err)

	s.Equal(types.SubscriptionStatusCancelled, resp.SubscriptionStatus)
	s.NotNil(resp.CanceledAt)
	s.False(resp.AutoRenewal)

	voided, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusVoid, voided.InvoiceStatus)
	s.NotNil(voided.VoidAt)

	hasSeminar, err := s.GetStores().EntitlementRepo.Exists(s.GetContext(), sub.ID, types.FeatureSeminar)
	s.NoError(err)
	s.False(hasSeminar)

	s.True(s.GetPublisher().HasEvent(types.NotificationSubscriptionCancelled))
}

func (s *SubscriptionServiceSuite) TestCancelSubscription_PendingIsRejected() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusPending,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)

	_, err := s.service.CancelSubscription(s.GetContext(), sub.ID, &dto.CancelSubscriptionRequest{Immediate: true})
	s.Error(err)
	s.True(ierr.IsInvalidStateTransition(err))

	kept, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusPending, kept.SubscriptionStatus)
	s.False(s.GetPublisher().HasEvent(types.NotificationSubscriptionCancelled))
}

func (s *SubscriptionServiceSuite) TestCancelSubscription_SuspendedIsRejected() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusSuspended,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)

	// A scheduled cancel on a suspended subscription must not slip
	// through as an immediate one.
	_, err := s.service.CancelSubscription(s.GetContext(), sub.ID, &dto.CancelSubscriptionRequest{})
	s.Error(err)
	s.True(ierr.IsInvalidStateTransition(err))

	kept, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusSuspended, kept.SubscriptionStatus)
	s.Nil(kept.CancelAt)
}

func (s *SubscriptionServiceSuite) TestCreateSubscription_NothingDueActivatesImmediately() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	now := s.GetNow()
	sub := &subscription.Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		OrganizationID:     org.ID,
		PlanType:           types.PlanTypeStandard,
		SubscriptionStatus: types.SubscriptionStatusPending,
		PaymentMethod:      types.PaymentMethodCard,
		DiscountType:       types.DiscountTypeNone,
		BasePrice:          decimal.Zero,
		FinalPrice:         decimal.Zero,
		BillingPeriod:      types.BillingPeriodAnnual,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   types.PeriodEnd(now, types.BillingPeriodAnnual),
		AutoRenewal:        true,
		StripeCustomerID:   org.StripeCustomerID,
		BaseModel:          types.GetDefaultBaseModel(s.GetContext()),
	}

	// With nothing due there is no invoice to open; the purchase is
	// confirmed in the same transaction that records it.
	svc := s.service.(*subscriptionService)
	err := s.GetDB().WithTx(s.GetContext(), func(ctx context.Context) error {
		return svc.finalizeCreate(ctx, sub, nil)
	})
	s.NoError(err)

	stored, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, stored.SubscriptionStatus)

	invoices, err := s.GetStores().InvoiceRepo.ListBySubscriptionID(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Empty(invoices)

	hasSeminar, err := s.GetStores().EntitlementRepo.Exists(s.GetContext(), sub.ID, types.FeatureSeminar)
	s.NoError(err)
	s.True(hasSeminar)
}

func (s *SubscriptionServiceSuite) TestChangePlan_UpgradeAppliesImmediately() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)
	s.NoError(NewEntitlementService(s.params).ApplyForSubscription(s.GetContext(), sub))

	resp, err := s.service.ChangePlan(s.GetContext(), sub.ID, &dto.ChangePlanRequest{
		PlanType: types.PlanTypeExpert,
	})
	s.NoError(err)

	s.False(resp.Scheduled)
	s.Equal(types.PlanTypeExpert, resp.Subscription.PlanType)
	s.True(decimal.NewFromInt(220000).Equal(resp.Subscription.FinalPrice))

	// 30 of 365 days consumed: 110000 * 335/365 rounded half-up.
	s.Require().NotNil(resp.ProrationAmount)
	s.True(decimal.NewFromInt(100959).Equal(*resp.ProrationAmount),
		"got %s", resp.ProrationAmount)

	s.Require().NotEmpty(resp.InvoiceID)
	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), resp.InvoiceID)
	s.NoError(err)
	s.Equal(types.InvoiceTypeProration, inv.InvoiceType)
	s.Equal(types.InvoiceStatusOpen, inv.InvoiceStatus)
	s.True(decimal.NewFromInt(100959).Equal(inv.AmountDue))

	// Card payment gets a checkout session attached after the commit.
	s.NotEmpty(resp.CheckoutURL)
	s.NotEmpty(inv.StripeCheckoutSessionID)

	// Wider plan's features are live before the proration invoice settles.
	hasCommunity, err := s.GetStores().EntitlementRepo.Exists(s.GetContext(), sub.ID, types.FeatureCommunity)
	s.NoError(err)
	s.True(hasCommunity)

	s.True(s.GetPublisher().HasEvent(types.NotificationPlanChanged))
}

func (s *SubscriptionServiceSuite) TestChangePlan_DowngradeIsScheduled() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeExpert, types.BillingPeriodAnnual, types.DiscountTypeNone)
	s.NoError(NewEntitlementService(s.params).ApplyForSubscription(s.GetContext(), sub))

	resp, err := s.service.ChangePlan(s.GetContext(), sub.ID, &dto.ChangePlanRequest{
		PlanType: types.PlanTypeStandard,
	})
	s.NoError(err)

	s.True(resp.Scheduled)
	s.True(resp.EffectiveAt.Equal(sub.CurrentPeriodEnd))
	s.Nil(resp.ProrationAmount)
	s.Empty(resp.InvoiceID)

	// The wider plan stays in force until the boundary.
	s.Equal(types.PlanTypeExpert, resp.Subscription.PlanType)
	s.Require().NotNil(resp.Subscription.ScheduledPlanChange)
	s.Equal(types.PlanTypeStandard, *resp.Subscription.ScheduledPlanChange)

	hasCommunity, err := s.GetStores().EntitlementRepo.Exists(s.GetContext(), sub.ID, types.FeatureCommunity)
	s.NoError(err)
	s.True(hasCommunity)

	invoices, err := s.GetStores().InvoiceRepo.ListBySubscriptionID(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Empty(invoices)

	s.True(s.GetPublisher().HasEvent(types.NotificationPlanChangeScheduled))
}

func (s *SubscriptionServiceSuite) TestChangePlan_CurrentPlanClearsScheduledDowngrade() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeExpert, types.BillingPeriodAnnual, types.DiscountTypeNone)

	_, err := s.service.ChangePlan(s.GetContext(), sub.ID, &dto.ChangePlanRequest{
		PlanType: types.PlanTypeStandard,
	})
	s.NoError(err)

	// Asking for the plan already in force undoes the pending downgrade.
	resp, err := s.service.ChangePlan(s.GetContext(), sub.ID, &dto.ChangePlanRequest{
		PlanType: types.PlanTypeExpert,
	})
	s.NoError(err)
	s.False(resp.Scheduled)
	s.Equal(types.PlanTypeExpert, resp.Subscription.PlanType)
	s.Nil(resp.Subscription.ScheduledPlanChange)

	stored, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Nil(stored.ScheduledPlanChange)

	// Only the original downgrade was announced; the undo is silent.
	scheduled := 0
	for _, name := range s.GetPublisher().EventNames() {
		if name == types.NotificationPlanChangeScheduled {
			scheduled++
		}
	}
	s.Equal(1, scheduled)

	// With the marker gone the same request is back to a no-op error.
	_, err = s.service.ChangePlan(s.GetContext(), sub.ID, &dto.ChangePlanRequest{
		PlanType: types.PlanTypeExpert,
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *SubscriptionServiceSuite) TestChangePlan_RequiresActiveSubscription() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusPending,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)

	_, err := s.service.ChangePlan(s.GetContext(), sub.ID, &dto.ChangePlanRequest{
		PlanType: types.PlanTypeExpert,
	})
	s.Error(err)
	s.True(ierr.IsInvalidStateTransition(err))
}

func (s *SubscriptionServiceSuite) TestChangePlan_SamePlanRejected() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)

	_, err := s.service.ChangePlan(s.GetContext(), sub.ID, &dto.ChangePlanRequest{
		PlanType: types.PlanTypeStandard,
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *SubscriptionServiceSuite) TestTransition_RejectsLeavingTerminalState() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusCancelled,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)

	err := s.service.TransitionToActive(s.GetContext(), sub)
	s.Error(err)
	s.True(ierr.IsInvalidStateTransition(err))
}

func (s *SubscriptionServiceSuite) TestGetSubscription_NotFound() {
	_, err := s.service.GetSubscription(s.GetContext(), "subs_missing")
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}
