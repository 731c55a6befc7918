package postgres

import (
	"context"

	"github.com/memberflow/memberflow/internal/domain/entitlement"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/logger"
	"github.com/memberflow/memberflow/internal/postgres"
	"github.com/memberflow/memberflow/internal/types"
)

type entitlementRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewEntitlementRepository(db *postgres.DB, logger *logger.Logger) entitlement.Repository {
	return &entitlementRepository{db: db, logger: logger}
}

// Upsert relies on the (subscription_id, feature_key) unique constraint:
// a concurrent grant of the same feature resolves to a no-op in the
// database instead of a read-then-write race.
func (r *entitlementRepository) Upsert(ctx context.Context, ent *entitlement.Entitlement) error {
	query := `
		INSERT INTO entitlements (
			id,
			subscription_id,
			organization_id,
			feature_key,
			tenant_id,
			status,
			created_at,
			updated_at,
			created_by,
			updated_by
		) VALUES (
			:id,
			:subscription_id,
			:organization_id,
			:feature_key,
			:tenant_id,
			:status,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)
		ON CONFLICT (subscription_id, feature_key) DO NOTHING
	`

	if _, err := r.db.NamedExecContext(ctx, query, ent); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to grant entitlement").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *entitlementRepository) UpsertBulk(ctx context.Context, ents []*entitlement.Entitlement) error {
	for _, ent := range ents {
		if err := r.Upsert(ctx, ent); err != nil {
			return err
		}
	}
	return nil
}

func (r *entitlementRepository) ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*entitlement.Entitlement, error) {
	query := `
		SELECT * FROM entitlements
		WHERE subscription_id = $1 AND tenant_id = $2 AND status = $3
		ORDER BY feature_key ASC
	`

	var ents []*entitlement.Entitlement
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &ents, query, subscriptionID, types.GetTenantID(ctx), types.StatusActive)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list entitlements").
			Mark(ierr.ErrDatabase)
	}
	return ents, nil
}

func (r *entitlementRepository) Exists(ctx context.Context, subscriptionID string, feature types.FeatureKey) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM entitlements
			WHERE subscription_id = $1 AND feature_key = $2 AND tenant_id = $3 AND status = $4
		)
	`

	var exists bool
	err := r.db.GetQuerier(ctx).GetContext(ctx, &exists, query, subscriptionID, feature, types.GetTenantID(ctx), types.StatusActive)
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to check entitlement").
			Mark(ierr.ErrDatabase)
	}
	return exists, nil
}

func (r *entitlementRepository) DeleteBySubscriptionID(ctx context.Context, subscriptionID string) error {
	query := `
		DELETE FROM entitlements
		WHERE subscription_id = $1 AND tenant_id = $2
	`

	if _, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, subscriptionID, types.GetTenantID(ctx)); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to revoke entitlements").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
