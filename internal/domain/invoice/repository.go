package invoice

import "context"

// Repository defines the interface for invoice storage operations
type Repository interface {
	Create(ctx context.Context, invoice *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	Update(ctx context.Context, invoice *Invoice) error

	ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*Invoice, error)
	ListOpenBySubscriptionID(ctx context.Context, subscriptionID string) ([]*Invoice, error)
	GetByCheckoutSessionID(ctx context.Context, sessionID string) (*Invoice, error)
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*Invoice, error)
}
