package auditlog

import (
	"context"
	"time"
)

// Repository defines the append-only audit log store
type Repository interface {
	Append(ctx context.Context, entry *Entry) error

	ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*Entry, error)
	ListByOrganizationID(ctx context.Context, organizationID string) ([]*Entry, error)
	ListByTimeRange(ctx context.Context, from, to time.Time) ([]*Entry, error)
}
