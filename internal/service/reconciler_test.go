package service

import (
	"encoding/json"
	"testing"

	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/testutil"
	"github.com/memberflow/memberflow/internal/types"
	"github.com/stretchr/testify/suite"
)

const testSignature = "t=1700000000,v1=test"

type ReconciliationServiceSuite struct {
	testutil.BaseServiceTestSuite
	params  ServiceParams
	service ReconciliationService
}

func TestReconciliationService(t *testing.T) {
	suite.Run(t, new(ReconciliationServiceSuite))
}

func (s *ReconciliationServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.params = newTestParams(&s.BaseServiceTestSuite)
	s.service = NewReconciliationService(s.params)
}

func (s *ReconciliationServiceSuite) eventPayload(id string, eventType types.PaymentEventType, object map[string]any) []byte {
	payload, err := json.Marshal(map[string]any{
		"id":   id,
		"type": string(eventType),
		"data": map[string]any{"object": object},
	})
	s.Require().NoError(err)
	return payload
}

func (s *ReconciliationServiceSuite) TestCheckoutCompleted_ActivatesPendingSubscription() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusPending,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)
	inv := seedInvoice(&s.BaseServiceTestSuite, sub, types.InvoiceTypeSubscription, sub.FinalPrice, "cs_1", "")

	payload := s.eventPayload("evt_1", types.PaymentEventCheckoutCompleted, map[string]any{
		"id":             "cs_1",
		"payment_intent": map[string]any{"id": "pi_1"},
		"metadata": map[string]any{
			types.MetadataKeyPurchaseType: string(types.PurchaseTypeSubscription),
			types.MetadataKeyInvoiceID:    inv.ID,
		},
	})

	resp, err := s.service.ProcessWebhookEvent(s.GetContext(), payload, testSignature)
	s.NoError(err)
	s.True(resp.Received)
	s.Equal("evt_1", resp.EventID)

	settled, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, settled.InvoiceStatus)
	s.Equal(types.PaymentStatusSucceeded, settled.PaymentStatus)
	s.Equal("pi_1", settled.StripePaymentIntentID)

	activated, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, activated.SubscriptionStatus)

	hasSeminar, err := s.GetStores().EntitlementRepo.Exists(s.GetContext(), sub.ID, types.FeatureSeminar)
	s.NoError(err)
	s.True(hasSeminar)

	processed, err := s.GetStores().PaymentEventRepo.IsProcessed(s.GetContext(), "evt_1")
	s.NoError(err)
	s.True(processed)

	s.True(s.GetPublisher().HasEvent(types.NotificationSubscriptionActivated))
}

func (s *ReconciliationServiceSuite) TestCheckoutCompleted_ReplayIsAbsorbed() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusPending,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)
	inv := seedInvoice(&s.BaseServiceTestSuite, sub, types.InvoiceTypeSubscription, sub.FinalPrice, "cs_1", "")

	payload := s.eventPayload("evt_1", types.PaymentEventCheckoutCompleted, map[string]any{
		"id": "cs_1",
		"metadata": map[string]any{
			types.MetadataKeyPurchaseType: string(types.PurchaseTypeSubscription),
			types.MetadataKeyInvoiceID:    inv.ID,
		},
	})

	_, err := s.service.ProcessWebhookEvent(s.GetContext(), payload, testSignature)
	s.NoError(err)

	// The redelivery acknowledges without reapplying anything.
	resp, err := s.service.ProcessWebhookEvent(s.GetContext(), payload, testSignature)
	s.NoError(err)
	s.True(resp.Received)

	entries, err := s.GetStores().AuditLogRepo.ListBySubscriptionID(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Len(entries, 1)
}

func (s *ReconciliationServiceSuite) TestCheckoutCompleted_NonSubscriptionPurchase() {
	payload := s.eventPayload("evt_sv", types.PaymentEventCheckoutCompleted, map[string]any{
		"id": "cs_visit",
		"metadata": map[string]any{
			types.MetadataKeyPurchaseType: string(types.PurchaseTypeSiteVisit),
			types.MetadataKeyRecordID:     "visit_42",
		},
	})

	resp, err := s.service.ProcessWebhookEvent(s.GetContext(), payload, testSignature)
	s.NoError(err)
	s.True(resp.Received)

	// Still claimed so a replay stays a no-op.
	processed, err := s.GetStores().PaymentEventRepo.IsProcessed(s.GetContext(), "evt_sv")
	s.NoError(err)
	s.True(processed)
}

func (s *ReconciliationServiceSuite) TestPaymentFailed_SuspendsActiveSubscription() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)
	s.NoError(NewEntitlementService(s.params).ApplyForSubscription(s.GetContext(), sub))
	inv := seedInvoice(&s.BaseServiceTestSuite, sub, types.InvoiceTypeSubscription, sub.FinalPrice, "", "pi_renew")

	payload := s.eventPayload("evt_fail", types.PaymentEventPaymentFailed, map[string]any{
		"id": "pi_renew",
		"metadata": map[string]any{
			types.MetadataKeyInvoiceID: inv.ID,
		},
	})

	_, err := s.service.ProcessWebhookEvent(s.GetContext(), payload, testSignature)
	s.NoError(err)

	failed, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.PaymentStatusFailed, failed.PaymentStatus)
	s.Equal(types.InvoiceStatusOpen, failed.InvoiceStatus)

	suspended, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusSuspended, suspended.SubscriptionStatus)

	hasSeminar, err := s.GetStores().EntitlementRepo.Exists(s.GetContext(), sub.ID, types.FeatureSeminar)
	s.NoError(err)
	s.False(hasSeminar)

	s.True(s.GetPublisher().HasEvent(types.NotificationSubscriptionSuspended))
}

func (s *ReconciliationServiceSuite) TestPaymentFailed_PendingStaysPending() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusPending,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)
	inv := seedInvoice(&s.BaseServiceTestSuite, sub, types.InvoiceTypeSubscription, sub.FinalPrice, "", "pi_first")

	payload := s.eventPayload("evt_fail_first", types.PaymentEventPaymentFailed, map[string]any{
		"id": "pi_first",
		"metadata": map[string]any{
			types.MetadataKeyInvoiceID: inv.ID,
		},
	})

	_, err := s.service.ProcessWebhookEvent(s.GetContext(), payload, testSignature)
	s.NoError(err)

	// The buyer can retry checkout; nothing terminal happened yet.
	pending, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusPending, pending.SubscriptionStatus)
}

func (s *ReconciliationServiceSuite) TestChargeRefunded_LeavesSubscriptionAlone() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)
	inv := seedInvoice(&s.BaseServiceTestSuite, sub, types.InvoiceTypeSubscription, sub.FinalPrice, "", "pi_paid")
	inv.InvoiceStatus = types.InvoiceStatusPaid
	inv.PaymentStatus = types.PaymentStatusSucceeded
	s.NoError(s.GetStores().InvoiceRepo.Update(s.GetContext(), inv))

	payload := s.eventPayload("evt_refund", types.PaymentEventChargeRefunded, map[string]any{
		"id":             "ch_1",
		"payment_intent": map[string]any{"id": "pi_paid"},
	})

	_, err := s.service.ProcessWebhookEvent(s.GetContext(), payload, testSignature)
	s.NoError(err)

	refunded, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.PaymentStatusRefunded, refunded.PaymentStatus)

	// Revoking access after a refund is an operator decision, not an
	// automatic effect of the processor event.
	untouched, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, untouched.SubscriptionStatus)
}

func (s *ReconciliationServiceSuite) TestPaymentSucceeded_SettlesInvoiceAndActivates() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusPending,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)
	inv := seedInvoice(&s.BaseServiceTestSuite, sub, types.InvoiceTypeSubscription, sub.FinalPrice, "", "pi_direct")

	payload := s.eventPayload("evt_pi_ok", types.PaymentEventPaymentSucceeded, map[string]any{
		"id": "pi_direct",
		"metadata": map[string]any{
			types.MetadataKeyInvoiceID: inv.ID,
		},
	})

	resp, err := s.service.ProcessWebhookEvent(s.GetContext(), payload, testSignature)
	s.NoError(err)
	s.True(resp.Received)

	settled, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, settled.InvoiceStatus)
	s.Equal(types.PaymentStatusSucceeded, settled.PaymentStatus)
	s.Equal("pi_direct", settled.StripePaymentIntentID)

	activated, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, activated.SubscriptionStatus)

	s.True(s.GetPublisher().HasEvent(types.NotificationSubscriptionActivated))
}

func (s *ReconciliationServiceSuite) TestSignatureFailureLeavesStateUntouched() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusPending,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)
	inv := seedInvoice(&s.BaseServiceTestSuite, sub, types.InvoiceTypeSubscription, sub.FinalPrice, "cs_forged", "")

	s.GetStripe().WebhookErr = ierr.NewError("webhook verification failed").
		WithHint("Invalid webhook signature or payload").
		Mark(ierr.ErrPermissionDenied)

	payload := s.eventPayload("evt_forged", types.PaymentEventCheckoutCompleted, map[string]any{
		"id": "cs_forged",
		"metadata": map[string]any{
			types.MetadataKeyPurchaseType: string(types.PurchaseTypeSubscription),
			types.MetadataKeyInvoiceID:    inv.ID,
		},
	})

	resp, err := s.service.ProcessWebhookEvent(s.GetContext(), payload, testSignature)
	s.Error(err)
	s.Nil(resp)

	// Verification runs before anything is parsed or written.
	untouched, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusPending, untouched.SubscriptionStatus)

	open, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusOpen, open.InvoiceStatus)
	s.Equal(types.PaymentStatusPending, open.PaymentStatus)

	processed, err := s.GetStores().PaymentEventRepo.IsProcessed(s.GetContext(), "evt_forged")
	s.NoError(err)
	s.False(processed)
	s.Empty(s.GetPublisher().Events())
}

func (s *ReconciliationServiceSuite) TestUnhandledEventKindIsAcknowledged() {
	payload := s.eventPayload("evt_other", types.PaymentEventType("customer.created"), map[string]any{
		"id": "cus_1",
	})

	resp, err := s.service.ProcessWebhookEvent(s.GetContext(), payload, testSignature)
	s.NoError(err)
	s.True(resp.Received)

	// Unhandled kinds are not claimed; the ledger only records applied events.
	processed, err := s.GetStores().PaymentEventRepo.IsProcessed(s.GetContext(), "evt_other")
	s.NoError(err)
	s.False(processed)
}
