package postgres

import (
	"context"
	"time"

	"github.com/memberflow/memberflow/internal/domain/auditlog"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/logger"
	"github.com/memberflow/memberflow/internal/postgres"
	"github.com/memberflow/memberflow/internal/types"
)

type auditLogRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewAuditLogRepository(db *postgres.DB, logger *logger.Logger) auditlog.Repository {
	return &auditLogRepository{db: db, logger: logger}
}

func (r *auditLogRepository) Append(ctx context.Context, entry *auditlog.Entry) error {
	query := `
		INSERT INTO audit_log (
			id,
			actor,
			action,
			subscription_id,
			organization_id,
			before,
			after,
			recorded_at,
			tenant_id,
			status,
			created_at,
			updated_at,
			created_by,
			updated_by
		) VALUES (
			:id,
			:actor,
			:action,
			:subscription_id,
			:organization_id,
			:before,
			:after,
			:recorded_at,
			:tenant_id,
			:status,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to append audit log entry").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *auditLogRepository) ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*auditlog.Entry, error) {
	query := `
		SELECT * FROM audit_log
		WHERE subscription_id = $1 AND tenant_id = $2
		ORDER BY recorded_at ASC
	`
	return r.list(ctx, query, subscriptionID, types.GetTenantID(ctx))
}

func (r *auditLogRepository) ListByOrganizationID(ctx context.Context, organizationID string) ([]*auditlog.Entry, error) {
	query := `
		SELECT * FROM audit_log
		WHERE organization_id = $1 AND tenant_id = $2
		ORDER BY recorded_at ASC
	`
	return r.list(ctx, query, organizationID, types.GetTenantID(ctx))
}

func (r *auditLogRepository) ListByTimeRange(ctx context.Context, from, to time.Time) ([]*auditlog.Entry, error) {
	query := `
		SELECT * FROM audit_log
		WHERE recorded_at >= $1 AND recorded_at < $2 AND tenant_id = $3
		ORDER BY recorded_at ASC
	`
	return r.list(ctx, query, from, to, types.GetTenantID(ctx))
}

func (r *auditLogRepository) list(ctx context.Context, query string, args ...interface{}) ([]*auditlog.Entry, error) {
	var entries []*auditlog.Entry
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &entries, query, args...)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list audit log entries").
			Mark(ierr.ErrDatabase)
	}
	return entries, nil
}
