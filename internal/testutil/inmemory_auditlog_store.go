package testutil

import (
	"context"
	"time"

	"github.com/memberflow/memberflow/internal/domain/auditlog"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/types"
)

// InMemoryAuditLogStore implements auditlog.Repository
type InMemoryAuditLogStore struct {
	*InMemoryStore[*auditlog.Entry]
}

var _ auditlog.Repository = (*InMemoryAuditLogStore)(nil)

func NewInMemoryAuditLogStore() *InMemoryAuditLogStore {
	return &InMemoryAuditLogStore{
		InMemoryStore: NewInMemoryStore[*auditlog.Entry](),
	}
}

func auditEntryVisible(ctx context.Context, entry *auditlog.Entry) bool {
	return entry != nil && entry.TenantID == types.GetTenantID(ctx)
}

func auditSortFn(i, j *auditlog.Entry) bool {
	return i.RecordedAt.Before(j.RecordedAt)
}

func (s *InMemoryAuditLogStore) Append(ctx context.Context, entry *auditlog.Entry) error {
	if entry == nil {
		return ierr.NewError("audit entry cannot be nil").Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, entry.ID, entry)
}

func (s *InMemoryAuditLogStore) ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*auditlog.Entry, error) {
	return s.List(ctx, func(ctx context.Context, entry *auditlog.Entry) bool {
		return auditEntryVisible(ctx, entry) && entry.SubscriptionID == subscriptionID
	}, auditSortFn)
}

func (s *InMemoryAuditLogStore) ListByOrganizationID(ctx context.Context, organizationID string) ([]*auditlog.Entry, error) {
	return s.List(ctx, func(ctx context.Context, entry *auditlog.Entry) bool {
		return auditEntryVisible(ctx, entry) && entry.OrganizationID == organizationID
	}, auditSortFn)
}

func (s *InMemoryAuditLogStore) ListByTimeRange(ctx context.Context, from, to time.Time) ([]*auditlog.Entry, error) {
	return s.List(ctx, func(ctx context.Context, entry *auditlog.Entry) bool {
		return auditEntryVisible(ctx, entry) &&
			!entry.RecordedAt.Before(from) &&
			entry.RecordedAt.Before(to)
	}, auditSortFn)
}
