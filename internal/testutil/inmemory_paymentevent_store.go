package testutil

import (
	"context"

	"github.com/memberflow/memberflow/internal/domain/paymentevent"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/types"
)

// InMemoryPaymentEventStore implements paymentevent.Repository. Rows
// are keyed by the processor event ID so Claim reproduces the ledger's
// unique constraint.
type InMemoryPaymentEventStore struct {
	*InMemoryStore[*paymentevent.ProcessedEvent]
}

var _ paymentevent.Repository = (*InMemoryPaymentEventStore)(nil)

func NewInMemoryPaymentEventStore() *InMemoryPaymentEventStore {
	return &InMemoryPaymentEventStore{
		InMemoryStore: NewInMemoryStore[*paymentevent.ProcessedEvent](),
	}
}

func (s *InMemoryPaymentEventStore) Claim(ctx context.Context, event *paymentevent.ProcessedEvent) error {
	if event == nil {
		return ierr.NewError("payment event cannot be nil").Mark(ierr.ErrValidation)
	}
	err := s.InMemoryStore.Create(ctx, event.EventID, event)
	if ierr.IsAlreadyExists(err) {
		return ierr.NewError("payment event already processed").
			WithReportableDetails(map[string]any{"event_id": event.EventID}).
			Mark(ierr.ErrAlreadyExists)
	}
	return err
}

func (s *InMemoryPaymentEventStore) Get(ctx context.Context, eventID string) (*paymentevent.ProcessedEvent, error) {
	event, err := s.InMemoryStore.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.TenantID != types.GetTenantID(ctx) {
		return nil, ierr.NewError("payment event not found").
			WithReportableDetails(map[string]any{"event_id": eventID}).
			Mark(ierr.ErrNotFound)
	}
	return event, nil
}

func (s *InMemoryPaymentEventStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	_, err := s.Get(ctx, eventID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
