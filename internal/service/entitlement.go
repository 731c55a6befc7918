package service

import (
	"context"
	"time"

	"github.com/memberflow/memberflow/internal/api/dto"
	"github.com/memberflow/memberflow/internal/cache"
	"github.com/memberflow/memberflow/internal/domain/entitlement"
	"github.com/memberflow/memberflow/internal/domain/subscription"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/types"
	"github.com/samber/lo"
)

// entitlementCacheExpiry bounds how stale a feature gate answer can be
// after a transition on another node.
const entitlementCacheExpiry = time.Minute

// EntitlementService resolves feature access for organizations and
// maintains entitlement rows as subscriptions transition. Entitlement
// rows are only ever written through Apply/Revoke; resolution is
// read-only.
type EntitlementService interface {
	// ApplyForSubscription grants the feature set of the subscription's
	// current plan. Granting is additive and idempotent; features the
	// subscription already holds are left untouched.
	ApplyForSubscription(ctx context.Context, sub *subscription.Subscription) error

	// SyncForPlan replaces the subscription's entitlements with the
	// feature set of the given plan. Used at renewal boundaries where a
	// scheduled downgrade narrows the set.
	SyncForPlan(ctx context.Context, sub *subscription.Subscription, plan types.PlanType) error

	// RevokeForSubscription removes every entitlement of the subscription.
	RevokeForSubscription(ctx context.Context, sub *subscription.Subscription) error

	HasFeature(ctx context.Context, organizationID string, feature types.FeatureKey) (*dto.FeatureAccessResponse, error)
	ListFeatures(ctx context.Context, organizationID string) (*dto.EntitlementsResponse, error)
}

type entitlementService struct {
	ServiceParams
}

func NewEntitlementService(params ServiceParams) EntitlementService {
	return &entitlementService{ServiceParams: params}
}

func (s *entitlementService) ApplyForSubscription(ctx context.Context, sub *subscription.Subscription) error {
	features := types.FeaturesForPlan(sub.PlanType)
	ents := make([]*entitlement.Entitlement, 0, len(features))
	for _, f := range features {
		ents = append(ents, &entitlement.Entitlement{
			ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ENTITLEMENT),
			SubscriptionID: sub.ID,
			OrganizationID: sub.OrganizationID,
			FeatureKey:     f,
			BaseModel:      types.GetDefaultBaseModel(ctx),
		})
	}

	if err := s.EntitlementRepo.UpsertBulk(ctx, ents); err != nil {
		return err
	}

	s.invalidateCache(ctx, sub.OrganizationID)
	s.Logger.Infow("entitlements granted",
		"subscription_id", sub.ID,
		"organization_id", sub.OrganizationID,
		"plan_type", sub.PlanType,
		"features", features)
	return nil
}

func (s *entitlementService) SyncForPlan(ctx context.Context, sub *subscription.Subscription, plan types.PlanType) error {
	// Delete-then-grant inside the caller's transaction so the row set
	// always matches exactly one plan.
	if err := s.EntitlementRepo.DeleteBySubscriptionID(ctx, sub.ID); err != nil {
		return err
	}

	features := types.FeaturesForPlan(plan)
	ents := make([]*entitlement.Entitlement, 0, len(features))
	for _, f := range features {
		ents = append(ents, &entitlement.Entitlement{
			ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ENTITLEMENT),
			SubscriptionID: sub.ID,
			OrganizationID: sub.OrganizationID,
			FeatureKey:     f,
			BaseModel:      types.GetDefaultBaseModel(ctx),
		})
	}
	if err := s.EntitlementRepo.UpsertBulk(ctx, ents); err != nil {
		return err
	}

	s.invalidateCache(ctx, sub.OrganizationID)
	return nil
}

func (s *entitlementService) RevokeForSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if err := s.EntitlementRepo.DeleteBySubscriptionID(ctx, sub.ID); err != nil {
		return err
	}

	s.invalidateCache(ctx, sub.OrganizationID)
	s.Logger.Infow("entitlements revoked",
		"subscription_id", sub.ID,
		"organization_id", sub.OrganizationID)
	return nil
}

func (s *entitlementService) HasFeature(ctx context.Context, organizationID string, feature types.FeatureKey) (*dto.FeatureAccessResponse, error) {
	if err := feature.Validate(); err != nil {
		return nil, err
	}

	cacheKey := cache.GenerateKey(cache.PrefixEntitlement, types.GetTenantID(ctx), organizationID, feature)
	if cached, found := s.Cache.Get(ctx, cacheKey); found {
		if resp, ok := cached.(*dto.FeatureAccessResponse); ok {
			return resp, nil
		}
	}

	resp := &dto.FeatureAccessResponse{
		OrganizationID: organizationID,
		FeatureKey:     feature,
	}

	sub, err := s.SubRepo.GetActiveByOrganizationID(ctx, organizationID)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Cache.Set(ctx, cacheKey, resp, entitlementCacheExpiry)
			return resp, nil
		}
		return nil, err
	}

	resp.PlanType = sub.PlanType
	resp.SubscriptionID = sub.ID

	// Only an ACTIVE subscription grants access; PENDING has not paid
	// yet and SUSPENDED had its rows revoked.
	if sub.SubscriptionStatus == types.SubscriptionStatusActive {
		exists, err := s.EntitlementRepo.Exists(ctx, sub.ID, feature)
		if err != nil {
			return nil, err
		}
		resp.HasAccess = exists
	}

	s.Cache.Set(ctx, cacheKey, resp, entitlementCacheExpiry)
	return resp, nil
}

func (s *entitlementService) ListFeatures(ctx context.Context, organizationID string) (*dto.EntitlementsResponse, error) {
	resp := &dto.EntitlementsResponse{
		OrganizationID: organizationID,
		Features:       []types.FeatureKey{},
	}

	sub, err := s.SubRepo.GetActiveByOrganizationID(ctx, organizationID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return resp, nil
		}
		return nil, err
	}

	resp.SubscriptionID = sub.ID
	resp.PlanType = sub.PlanType

	if sub.SubscriptionStatus != types.SubscriptionStatusActive {
		return resp, nil
	}

	ents, err := s.EntitlementRepo.ListBySubscriptionID(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	resp.Features = lo.Map(ents, func(e *entitlement.Entitlement, _ int) types.FeatureKey {
		return e.FeatureKey
	})
	return resp, nil
}

func (s *entitlementService) invalidateCache(ctx context.Context, organizationID string) {
	s.Cache.DeleteByPrefix(ctx, cache.GenerateKey(cache.PrefixEntitlement, types.GetTenantID(ctx), organizationID))
}
