package paymentevent

import (
	"time"

	"github.com/memberflow/memberflow/internal/types"
)

// ProcessedEvent is the idempotency ledger for inbound payment-processor
// events. A row is inserted inside the same transaction as the event's
// effects; the unique constraint on EventID makes a redelivered event a
// detectable no-op instead of a double application.
type ProcessedEvent struct {
	ID string `db:"id" json:"id"`

	// EventID is the processor-assigned idempotency key (event or
	// checkout-session id). Unique.
	EventID string `db:"event_id" json:"event_id"`

	// EventType is the processor event kind that was applied
	EventType types.PaymentEventType `db:"event_type" json:"event_type"`

	// SubscriptionID is the subscription the event acted on, when known
	SubscriptionID string `db:"subscription_id" json:"subscription_id"`

	ProcessedAt time.Time `db:"processed_at" json:"processed_at"`

	types.BaseModel
}
