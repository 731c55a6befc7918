package testutil

import (
	"context"
	"time"

	"github.com/memberflow/memberflow/internal/domain/subscription"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/types"
)

// InMemorySubscriptionStore implements subscription.Repository
type InMemorySubscriptionStore struct {
	*InMemoryStore[*subscription.Subscription]
}

var _ subscription.Repository = (*InMemorySubscriptionStore)(nil)

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore[*subscription.Subscription](),
	}
}

// visible mirrors the tenant and soft-delete filters every postgres
// query applies
func subscriptionVisible(ctx context.Context, sub *subscription.Subscription) bool {
	if sub == nil {
		return false
	}
	return sub.TenantID == types.GetTenantID(ctx) && sub.Status == types.StatusActive
}

func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil {
		return ierr.NewError("subscription cannot be nil").Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, sub.ID, sub)
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !subscriptionVisible(ctx, sub) {
		return nil, ierr.NewError("subscription not found").
			WithHintf("Subscription with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	return sub, nil
}

// GetForUpdate has no lock to take in memory; it behaves like Get
func (s *InMemorySubscriptionStore) GetForUpdate(ctx context.Context, id string) (*subscription.Subscription, error) {
	return s.Get(ctx, id)
}

func (s *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil {
		return ierr.NewError("subscription cannot be nil").Mark(ierr.ErrValidation)
	}
	sub.UpdatedAt = time.Now().UTC()
	sub.UpdatedBy = types.GetUserID(ctx)
	return s.InMemoryStore.Update(ctx, sub.ID, sub)
}

func (s *InMemorySubscriptionStore) GetActiveByOrganizationID(ctx context.Context, organizationID string) (*subscription.Subscription, error) {
	subs, err := s.List(ctx, func(ctx context.Context, sub *subscription.Subscription) bool {
		return subscriptionVisible(ctx, sub) &&
			sub.OrganizationID == organizationID &&
			sub.IsInNonTerminalState()
	}, func(i, j *subscription.Subscription) bool {
		return i.CreatedAt.After(j.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ierr.NewError("subscription not found").
			WithHintf("Organization %s has no active subscription", organizationID).
			Mark(ierr.ErrNotFound)
	}
	return subs[0], nil
}

func (s *InMemorySubscriptionStore) GetByCheckoutSessionID(ctx context.Context, sessionID string) (*subscription.Subscription, error) {
	subs, err := s.List(ctx, func(ctx context.Context, sub *subscription.Subscription) bool {
		return subscriptionVisible(ctx, sub) && sub.StripeCheckoutSessionID == sessionID
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ierr.NewError("subscription not found").
			WithHintf("No subscription for checkout session %s", sessionID).
			Mark(ierr.ErrNotFound)
	}
	return subs[0], nil
}

func (s *InMemorySubscriptionStore) ListExpiringBetween(ctx context.Context, from, to time.Time, limit int) ([]*subscription.Subscription, error) {
	subs, err := s.List(ctx, func(ctx context.Context, sub *subscription.Subscription) bool {
		return subscriptionVisible(ctx, sub) &&
			sub.SubscriptionStatus == types.SubscriptionStatusActive &&
			!sub.CurrentPeriodEnd.Before(from) &&
			sub.CurrentPeriodEnd.Before(to)
	}, func(i, j *subscription.Subscription) bool {
		return i.CurrentPeriodEnd.Before(j.CurrentPeriodEnd)
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(subs) > limit {
		subs = subs[:limit]
	}
	return subs, nil
}

func (s *InMemorySubscriptionStore) ListDueForTransition(ctx context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error) {
	subs, err := s.List(ctx, func(ctx context.Context, sub *subscription.Subscription) bool {
		if !subscriptionVisible(ctx, sub) {
			return false
		}
		switch sub.SubscriptionStatus {
		case types.SubscriptionStatusActive, types.SubscriptionStatusPending, types.SubscriptionStatusSuspended:
		default:
			return false
		}
		if !sub.CurrentPeriodEnd.After(asOf) {
			return true
		}
		return sub.CancelAt != nil && !sub.CancelAt.After(asOf)
	}, func(i, j *subscription.Subscription) bool {
		return i.CurrentPeriodEnd.Before(j.CurrentPeriodEnd)
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(subs) > limit {
		subs = subs[:limit]
	}
	return subs, nil
}
