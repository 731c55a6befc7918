package entitlement

import (
	"context"

	"github.com/memberflow/memberflow/internal/types"
)

// Repository defines the interface for entitlement storage operations
type Repository interface {
	// Upsert inserts the entitlement or leaves an existing
	// (subscription, feature) row untouched. The storage layer's unique
	// constraint resolves concurrent grants, not a read-then-write check.
	Upsert(ctx context.Context, entitlement *Entitlement) error
	UpsertBulk(ctx context.Context, entitlements []*Entitlement) error

	ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*Entitlement, error)
	Exists(ctx context.Context, subscriptionID string, feature types.FeatureKey) (bool, error)

	// DeleteBySubscriptionID removes every entitlement row for the
	// subscription; used when revoking on cancellation or suspension.
	DeleteBySubscriptionID(ctx context.Context, subscriptionID string) error
}
