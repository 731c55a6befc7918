package paymentevent

import "context"

// Repository defines the interface for the payment event ledger
type Repository interface {
	// Claim inserts the ledger row. When a row with the same EventID
	// already exists it returns an ErrAlreadyExists-marked error and
	// writes nothing; the caller treats that as an absorbed replay.
	Claim(ctx context.Context, event *ProcessedEvent) error

	Get(ctx context.Context, eventID string) (*ProcessedEvent, error)
	IsProcessed(ctx context.Context, eventID string) (bool, error)
}
