package service

import (
	"testing"
	"time"

	"github.com/memberflow/memberflow/internal/testutil"
	"github.com/memberflow/memberflow/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type RenewalServiceSuite struct {
	testutil.BaseServiceTestSuite
	params  ServiceParams
	service RenewalService
}

func TestRenewalService(t *testing.T) {
	suite.Run(t, new(RenewalServiceSuite))
}

func (s *RenewalServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.params = newTestParams(&s.BaseServiceTestSuite)
	s.service = NewRenewalService(s.params)
}

// setPeriodEnd moves the subscription's current period end, keeping the
// row consistent through the repository.
func (s *RenewalServiceSuite) setPeriodEnd(subID string, end time.Time) {
	sub, err := s.GetStores().SubRepo.Get(s.GetContext(), subID)
	s.Require().NoError(err)
	sub.CurrentPeriodEnd = end
	s.Require().NoError(s.GetStores().SubRepo.Update(s.GetContext(), sub))
}

func (s *RenewalServiceSuite) TestReminders_SentAtLeadDay() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)
	s.setPeriodEnd(sub.ID, time.Now().UTC().AddDate(0, 0, 7))

	resp, err := s.service.ProcessRenewalReminders(s.GetContext())
	s.NoError(err)
	s.Equal(1, resp.Scanned)
	s.Equal(1, resp.RemindersSent)
	s.Equal(0, resp.Failed)

	reminded, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.NotNil(reminded.RenewalNotifiedAt)

	s.True(s.GetPublisher().HasEvent(types.NotificationRenewalReminder))
}

func (s *RenewalServiceSuite) TestReminders_RecentReminderSuppressesResend() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)

	loaded, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	loaded.CurrentPeriodEnd = time.Now().UTC().AddDate(0, 0, 7)
	loaded.RenewalNotifiedAt = lo.ToPtr(time.Now().UTC().Add(-time.Hour))
	s.Require().NoError(s.GetStores().SubRepo.Update(s.GetContext(), loaded))

	resp, err := s.service.ProcessRenewalReminders(s.GetContext())
	s.NoError(err)
	s.Equal(1, resp.Scanned)
	s.Equal(0, resp.RemindersSent)
	s.False(s.GetPublisher().HasEvent(types.NotificationRenewalReminder))
}

func (s *RenewalServiceSuite) TestReminders_OffLeadDayIsSkipped() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)
	s.setPeriodEnd(sub.ID, time.Now().UTC().AddDate(0, 0, 10))

	resp, err := s.service.ProcessRenewalReminders(s.GetContext())
	s.NoError(err)
	s.Equal(1, resp.Scanned)
	s.Equal(0, resp.RemindersSent)
}

func (s *RenewalServiceSuite) TestDueTransitions_RenewsAndLapsesFirstYearDiscount() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeFirstYear)
	oldEnd := time.Now().UTC().Add(-time.Hour)
	s.setPeriodEnd(sub.ID, oldEnd)

	resp, err := s.service.ProcessDueTransitions(s.GetContext())
	s.NoError(err)
	s.Equal(1, resp.Scanned)
	s.Equal(1, resp.Renewed)
	s.Equal(0, resp.Cancelled)

	renewed, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, renewed.SubscriptionStatus)
	s.Equal(types.DiscountTypeNone, renewed.DiscountType)
	s.True(decimal.NewFromInt(110000).Equal(renewed.FinalPrice))
	s.True(renewed.CurrentPeriodStart.Equal(oldEnd.Add(time.Second)))
	s.True(renewed.CurrentPeriodEnd.Equal(types.PeriodEnd(renewed.CurrentPeriodStart, types.BillingPeriodAnnual)))
	s.Nil(renewed.RenewalNotifiedAt)

	invoices, err := s.GetStores().InvoiceRepo.ListOpenBySubscriptionID(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Require().Len(invoices, 1)
	s.Equal(types.InvoiceTypeSubscription, invoices[0].InvoiceType)
	s.True(decimal.NewFromInt(110000).Equal(invoices[0].AmountDue))
	// Card payment gets a checkout session for the renewal invoice.
	s.NotEmpty(invoices[0].StripeCheckoutSessionID)

	s.True(s.GetPublisher().HasEvent(types.NotificationRenewed))
}

func (s *RenewalServiceSuite) TestDueTransitions_AppliesScheduledDowngrade() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeExpert, types.BillingPeriodAnnual, types.DiscountTypeNone)
	s.NoError(NewEntitlementService(s.params).ApplyForSubscription(s.GetContext(), sub))

	loaded, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	loaded.CurrentPeriodEnd = time.Now().UTC().Add(-time.Hour)
	loaded.ScheduledPlanChange = lo.ToPtr(types.PlanTypeStandard)
	s.Require().NoError(s.GetStores().SubRepo.Update(s.GetContext(), loaded))

	resp, err := s.service.ProcessDueTransitions(s.GetContext())
	s.NoError(err)
	s.Equal(1, resp.Renewed)

	renewed, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.PlanTypeStandard, renewed.PlanType)
	s.True(decimal.NewFromInt(110000).Equal(renewed.FinalPrice))
	s.Nil(renewed.ScheduledPlanChange)

	// The narrower feature set is in force for the new period.
	hasCommunity, err := s.GetStores().EntitlementRepo.Exists(s.GetContext(), sub.ID, types.FeatureCommunity)
	s.NoError(err)
	s.False(hasCommunity)
	hasSeminar, err := s.GetStores().EntitlementRepo.Exists(s.GetContext(), sub.ID, types.FeatureSeminar)
	s.NoError(err)
	s.True(hasSeminar)

	s.True(s.GetPublisher().HasEvent(types.NotificationRenewed))
	s.True(s.GetPublisher().HasEvent(types.NotificationPlanChanged))
}

func (s *RenewalServiceSuite) TestDueTransitions_ScheduledCancellationExecutes() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)

	loaded, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	loaded.CancelAt = lo.ToPtr(time.Now().UTC().Add(-time.Hour))
	loaded.AutoRenewal = false
	s.Require().NoError(s.GetStores().SubRepo.Update(s.GetContext(), loaded))

	resp, err := s.service.ProcessDueTransitions(s.GetContext())
	s.NoError(err)
	s.Equal(1, resp.Cancelled)
	s.Equal(0, resp.Renewed)

	cancelled, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, cancelled.SubscriptionStatus)
	s.NotNil(cancelled.CanceledAt)

	s.True(s.GetPublisher().HasEvent(types.NotificationSubscriptionCancelled))
}

func (s *RenewalServiceSuite) TestDueTransitions_UnpaidPendingExpires() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusPending,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)
	inv := seedInvoice(&s.BaseServiceTestSuite, sub, types.InvoiceTypeSubscription, sub.FinalPrice, "", "")
	s.setPeriodEnd(sub.ID, time.Now().UTC().Add(-time.Hour))

	resp, err := s.service.ProcessDueTransitions(s.GetContext())
	s.NoError(err)
	s.Equal(1, resp.Cancelled)

	expired, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, expired.SubscriptionStatus)

	voided, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusVoid, voided.InvoiceStatus)
}

func (s *RenewalServiceSuite) TestDueTransitions_AutoRenewalOffCancelsAtBoundary() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)

	loaded, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	loaded.CurrentPeriodEnd = time.Now().UTC().Add(-time.Hour)
	loaded.AutoRenewal = false
	s.Require().NoError(s.GetStores().SubRepo.Update(s.GetContext(), loaded))

	resp, err := s.service.ProcessDueTransitions(s.GetContext())
	s.NoError(err)
	s.Equal(1, resp.Cancelled)

	cancelled, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, cancelled.SubscriptionStatus)
}

func (s *RenewalServiceSuite) TestDueTransitions_FutureSubscriptionUntouched() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)

	resp, err := s.service.ProcessDueTransitions(s.GetContext())
	s.NoError(err)
	s.Equal(0, resp.Scanned)
	s.Equal(0, resp.Renewed)
	s.Equal(0, resp.Cancelled)
}
