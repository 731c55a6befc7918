package testutil

import (
	"context"

	"github.com/memberflow/memberflow/internal/domain/entitlement"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/types"
)

// InMemoryEntitlementStore implements entitlement.Repository. Rows are
// keyed by (subscription, feature) so Upsert mirrors the unique
// constraint the postgres store relies on.
type InMemoryEntitlementStore struct {
	*InMemoryStore[*entitlement.Entitlement]
}

var _ entitlement.Repository = (*InMemoryEntitlementStore)(nil)

func NewInMemoryEntitlementStore() *InMemoryEntitlementStore {
	return &InMemoryEntitlementStore{
		InMemoryStore: NewInMemoryStore[*entitlement.Entitlement](),
	}
}

func entitlementKey(subscriptionID string, feature types.FeatureKey) string {
	return subscriptionID + "/" + string(feature)
}

func entitlementVisible(ctx context.Context, ent *entitlement.Entitlement) bool {
	if ent == nil {
		return false
	}
	return ent.TenantID == types.GetTenantID(ctx) && ent.Status == types.StatusActive
}

func (s *InMemoryEntitlementStore) Upsert(ctx context.Context, ent *entitlement.Entitlement) error {
	if ent == nil {
		return ierr.NewError("entitlement cannot be nil").Mark(ierr.ErrValidation)
	}
	if err := ent.Validate(); err != nil {
		return err
	}
	err := s.InMemoryStore.Create(ctx, entitlementKey(ent.SubscriptionID, ent.FeatureKey), ent)
	if ierr.IsAlreadyExists(err) {
		// existing grant wins, matching ON CONFLICT DO NOTHING
		return nil
	}
	return err
}

func (s *InMemoryEntitlementStore) UpsertBulk(ctx context.Context, ents []*entitlement.Entitlement) error {
	for _, ent := range ents {
		if err := s.Upsert(ctx, ent); err != nil {
			return err
		}
	}
	return nil
}

func (s *InMemoryEntitlementStore) ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*entitlement.Entitlement, error) {
	return s.List(ctx, func(ctx context.Context, ent *entitlement.Entitlement) bool {
		return entitlementVisible(ctx, ent) && ent.SubscriptionID == subscriptionID
	}, func(i, j *entitlement.Entitlement) bool {
		return i.FeatureKey < j.FeatureKey
	})
}

func (s *InMemoryEntitlementStore) Exists(ctx context.Context, subscriptionID string, feature types.FeatureKey) (bool, error) {
	ent, err := s.InMemoryStore.Get(ctx, entitlementKey(subscriptionID, feature))
	if err != nil {
		if ierr.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return entitlementVisible(ctx, ent), nil
}

func (s *InMemoryEntitlementStore) DeleteBySubscriptionID(ctx context.Context, subscriptionID string) error {
	ents, err := s.ListBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	for _, ent := range ents {
		if err := s.InMemoryStore.Delete(ctx, entitlementKey(ent.SubscriptionID, ent.FeatureKey)); err != nil {
			return err
		}
	}
	return nil
}
