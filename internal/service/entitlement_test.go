package service

import (
	"testing"

	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/testutil"
	"github.com/memberflow/memberflow/internal/types"
	"github.com/stretchr/testify/suite"
)

type EntitlementServiceSuite struct {
	testutil.BaseServiceTestSuite
	params  ServiceParams
	service EntitlementService
}

func TestEntitlementService(t *testing.T) {
	suite.Run(t, new(EntitlementServiceSuite))
}

func (s *EntitlementServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.params = newTestParams(&s.BaseServiceTestSuite)
	s.service = NewEntitlementService(s.params)
}

func (s *EntitlementServiceSuite) TestHasFeature_ActiveStandardPlan() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)
	s.NoError(s.service.ApplyForSubscription(s.GetContext(), sub))

	resp, err := s.service.HasFeature(s.GetContext(), org.ID, types.FeatureSeminar)
	s.NoError(err)
	s.True(resp.HasAccess)
	s.Equal(types.PlanTypeStandard, resp.PlanType)
	s.Equal(sub.ID, resp.SubscriptionID)

	// Community is an expert feature; a standard plan never holds it.
	resp, err = s.service.HasFeature(s.GetContext(), org.ID, types.FeatureCommunity)
	s.NoError(err)
	s.False(resp.HasAccess)
}

func (s *EntitlementServiceSuite) TestHasFeature_NoSubscription() {
	org := seedOrganization(&s.BaseServiceTestSuite)

	resp, err := s.service.HasFeature(s.GetContext(), org.ID, types.FeatureSeminar)
	s.NoError(err)
	s.False(resp.HasAccess)
	s.Empty(resp.SubscriptionID)
}

func (s *EntitlementServiceSuite) TestHasFeature_PendingDeniesAccess() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusPending,
		types.PlanTypeExpert, types.BillingPeriodAnnual, types.DiscountTypeNone)

	resp, err := s.service.HasFeature(s.GetContext(), org.ID, types.FeatureSeminar)
	s.NoError(err)
	s.False(resp.HasAccess)
	s.Equal(sub.ID, resp.SubscriptionID)
}

func (s *EntitlementServiceSuite) TestHasFeature_UnknownFeature() {
	org := seedOrganization(&s.BaseServiceTestSuite)

	_, err := s.service.HasFeature(s.GetContext(), org.ID, types.FeatureKey("vip_lounge"))
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *EntitlementServiceSuite) TestListFeatures_ExpertPlan() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeExpert, types.BillingPeriodAnnual, types.DiscountTypeNone)
	s.NoError(s.service.ApplyForSubscription(s.GetContext(), sub))

	resp, err := s.service.ListFeatures(s.GetContext(), org.ID)
	s.NoError(err)
	s.Equal(sub.ID, resp.SubscriptionID)
	s.Equal(types.PlanTypeExpert, resp.PlanType)
	s.ElementsMatch(types.FeaturesForPlan(types.PlanTypeExpert), resp.Features)
}

func (s *EntitlementServiceSuite) TestListFeatures_SuspendedReturnsNone() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusSuspended,
		types.PlanTypeExpert, types.BillingPeriodAnnual, types.DiscountTypeNone)

	resp, err := s.service.ListFeatures(s.GetContext(), org.ID)
	s.NoError(err)
	s.Empty(resp.Features)
}

func (s *EntitlementServiceSuite) TestSyncForPlan_NarrowsToNewPlan() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeExpert, types.BillingPeriodAnnual, types.DiscountTypeNone)
	s.NoError(s.service.ApplyForSubscription(s.GetContext(), sub))

	s.NoError(s.service.SyncForPlan(s.GetContext(), sub, types.PlanTypeStandard))

	hasCommunity, err := s.GetStores().EntitlementRepo.Exists(s.GetContext(), sub.ID, types.FeatureCommunity)
	s.NoError(err)
	s.False(hasCommunity)

	hasSeminar, err := s.GetStores().EntitlementRepo.Exists(s.GetContext(), sub.ID, types.FeatureSeminar)
	s.NoError(err)
	s.True(hasSeminar)
}

func (s *EntitlementServiceSuite) TestApplyForSubscription_IsIdempotent() {
	org := seedOrganization(&s.BaseServiceTestSuite)
	sub := seedSubscription(&s.BaseServiceTestSuite, org.ID, types.SubscriptionStatusActive,
		types.PlanTypeStandard, types.BillingPeriodAnnual, types.DiscountTypeNone)

	s.NoError(s.service.ApplyForSubscription(s.GetContext(), sub))
	s.NoError(s.service.ApplyForSubscription(s.GetContext(), sub))

	ents, err := s.GetStores().EntitlementRepo.ListBySubscriptionID(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Len(ents, len(types.FeaturesForPlan(types.PlanTypeStandard)))
}
