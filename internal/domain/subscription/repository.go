package subscription

import (
	"context"
	"time"
)

// Repository defines the interface for subscription storage operations
type Repository interface {
	Create(ctx context.Context, subscription *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	// GetForUpdate locks the row for the duration of the surrounding
	// transaction so concurrent transitions on the same subscription
	// serialize instead of racing.
	GetForUpdate(ctx context.Context, id string) (*Subscription, error)
	Update(ctx context.Context, subscription *Subscription) error

	// GetActiveByOrganizationID returns the organization's single
	// non-terminal (ACTIVE or PENDING) subscription, if any.
	GetActiveByOrganizationID(ctx context.Context, organizationID string) (*Subscription, error)
	GetByCheckoutSessionID(ctx context.Context, sessionID string) (*Subscription, error)

	// ListExpiringBetween returns ACTIVE subscriptions whose current
	// period ends inside [from, to); used by the reminder scan.
	ListExpiringBetween(ctx context.Context, from, to time.Time, limit int) ([]*Subscription, error)

	// ListDueForTransition returns subscriptions whose cancel_at or
	// current_period_end has passed as of the given time; used by the
	// renewal scan to drive boundary transitions.
	ListDueForTransition(ctx context.Context, asOf time.Time, limit int) ([]*Subscription, error)
}
