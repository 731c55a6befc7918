package testutil

import (
	"context"
	"time"

	"github.com/memberflow/memberflow/internal/domain/organization"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/types"
)

// InMemoryOrganizationStore implements organization.Repository
type InMemoryOrganizationStore struct {
	*InMemoryStore[*organization.Organization]
}

var _ organization.Repository = (*InMemoryOrganizationStore)(nil)

func NewInMemoryOrganizationStore() *InMemoryOrganizationStore {
	return &InMemoryOrganizationStore{
		InMemoryStore: NewInMemoryStore[*organization.Organization](),
	}
}

func organizationVisible(ctx context.Context, org *organization.Organization) bool {
	if org == nil {
		return false
	}
	return org.TenantID == types.GetTenantID(ctx) && org.Status == types.StatusActive
}

func (s *InMemoryOrganizationStore) Create(ctx context.Context, org *organization.Organization) error {
	if org == nil {
		return ierr.NewError("organization cannot be nil").Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, org.ID, org)
}

func (s *InMemoryOrganizationStore) Get(ctx context.Context, id string) (*organization.Organization, error) {
	org, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !organizationVisible(ctx, org) {
		return nil, ierr.NewError("organization not found").
			WithHintf("Organization with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	return org, nil
}

func (s *InMemoryOrganizationStore) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*organization.Organization, error) {
	orgs, err := s.List(ctx, func(ctx context.Context, org *organization.Organization) bool {
		return organizationVisible(ctx, org) && org.StripeCustomerID == stripeCustomerID
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, ierr.NewError("organization not found").
			WithHintf("No organization for Stripe customer %s", stripeCustomerID).
			Mark(ierr.ErrNotFound)
	}
	return orgs[0], nil
}

func (s *InMemoryOrganizationStore) Update(ctx context.Context, org *organization.Organization) error {
	if org == nil {
		return ierr.NewError("organization cannot be nil").Mark(ierr.ErrValidation)
	}
	org.UpdatedAt = time.Now().UTC()
	org.UpdatedBy = types.GetUserID(ctx)
	return s.InMemoryStore.Update(ctx, org.ID, org)
}
