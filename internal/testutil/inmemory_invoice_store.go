package testutil

import (
	"context"
	"time"

	"github.com/memberflow/memberflow/internal/domain/invoice"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/types"
)

// InMemoryInvoiceStore implements invoice.Repository
type InMemoryInvoiceStore struct {
	*InMemoryStore[*invoice.Invoice]
}

var _ invoice.Repository = (*InMemoryInvoiceStore)(nil)

func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		InMemoryStore: NewInMemoryStore[*invoice.Invoice](),
	}
}

func invoiceVisible(ctx context.Context, inv *invoice.Invoice) bool {
	if inv == nil {
		return false
	}
	return inv.TenantID == types.GetTenantID(ctx) && inv.Status == types.StatusActive
}

func (s *InMemoryInvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	if inv == nil {
		return ierr.NewError("invoice cannot be nil").Mark(ierr.ErrValidation)
	}
	if err := inv.Validate(); err != nil {
		return err
	}
	return s.InMemoryStore.Create(ctx, inv.ID, inv)
}

func (s *InMemoryInvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !invoiceVisible(ctx, inv) {
		return nil, ierr.NewError("invoice not found").
			WithHintf("Invoice with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	return inv, nil
}

func (s *InMemoryInvoiceStore) Update(ctx context.Context, inv *invoice.Invoice) error {
	if inv == nil {
		return ierr.NewError("invoice cannot be nil").Mark(ierr.ErrValidation)
	}
	inv.UpdatedAt = time.Now().UTC()
	inv.UpdatedBy = types.GetUserID(ctx)
	return s.InMemoryStore.Update(ctx, inv.ID, inv)
}

func (s *InMemoryInvoiceStore) ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*invoice.Invoice, error) {
	return s.List(ctx, func(ctx context.Context, inv *invoice.Invoice) bool {
		return invoiceVisible(ctx, inv) && inv.SubscriptionID == subscriptionID
	}, invoiceSortFn)
}

func (s *InMemoryInvoiceStore) ListOpenBySubscriptionID(ctx context.Context, subscriptionID string) ([]*invoice.Invoice, error) {
	return s.List(ctx, func(ctx context.Context, inv *invoice.Invoice) bool {
		return invoiceVisible(ctx, inv) &&
			inv.SubscriptionID == subscriptionID &&
			inv.InvoiceStatus == types.InvoiceStatusOpen
	}, invoiceSortFn)
}

func (s *InMemoryInvoiceStore) GetByCheckoutSessionID(ctx context.Context, sessionID string) (*invoice.Invoice, error) {
	if sessionID == "" {
		return nil, ierr.NewError("invoice not found").Mark(ierr.ErrNotFound)
	}
	return s.getOne(ctx, func(ctx context.Context, inv *invoice.Invoice) bool {
		return invoiceVisible(ctx, inv) && inv.StripeCheckoutSessionID == sessionID
	})
}

func (s *InMemoryInvoiceStore) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*invoice.Invoice, error) {
	if paymentIntentID == "" {
		return nil, ierr.NewError("invoice not found").Mark(ierr.ErrNotFound)
	}
	return s.getOne(ctx, func(ctx context.Context, inv *invoice.Invoice) bool {
		return invoiceVisible(ctx, inv) && inv.StripePaymentIntentID == paymentIntentID
	})
}

func (s *InMemoryInvoiceStore) getOne(ctx context.Context, filterFn FilterFunc[*invoice.Invoice]) (*invoice.Invoice, error) {
	invoices, err := s.List(ctx, filterFn, invoiceSortFn)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, ierr.NewError("invoice not found").Mark(ierr.ErrNotFound)
	}
	return invoices[0], nil
}

func invoiceSortFn(i, j *invoice.Invoice) bool {
	return i.CreatedAt.Before(j.CreatedAt)
}
