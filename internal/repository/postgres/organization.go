package postgres

import (
	"context"
	"time"

	"github.com/memberflow/memberflow/internal/domain/organization"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/logger"
	"github.com/memberflow/memberflow/internal/postgres"
	"github.com/memberflow/memberflow/internal/types"
)

type organizationRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewOrganizationRepository(db *postgres.DB, logger *logger.Logger) organization.Repository {
	return &organizationRepository{db: db, logger: logger}
}

func (r *organizationRepository) Create(ctx context.Context, org *organization.Organization) error {
	query := `
		INSERT INTO organizations (
			id,
			name,
			billing_email,
			stripe_customer_id,
			tenant_id,
			status,
			created_at,
			updated_at,
			created_by,
			updated_by
		) VALUES (
			:id,
			:name,
			:billing_email,
			:stripe_customer_id,
			:tenant_id,
			:status,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, org); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("An organization with this ID already exists").
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create organization").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *organizationRepository) Get(ctx context.Context, id string) (*organization.Organization, error) {
	query := `
		SELECT * FROM organizations
		WHERE id = $1 AND tenant_id = $2 AND status = $3
	`

	var org organization.Organization
	err := r.db.GetQuerier(ctx).GetContext(ctx, &org, query, id, types.GetTenantID(ctx), types.StatusActive)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.NewError("organization not found").
				WithHintf("Organization with ID %s was not found", id).
				WithReportableDetails(map[string]any{
					"organization_id": id,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get organization").
			Mark(ierr.ErrDatabase)
	}
	return &org, nil
}

func (r *organizationRepository) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*organization.Organization, error) {
	query := `
		SELECT * FROM organizations
		WHERE stripe_customer_id = $1 AND tenant_id = $2 AND status = $3
	`

	var org organization.Organization
	err := r.db.GetQuerier(ctx).GetContext(ctx, &org, query, stripeCustomerID, types.GetTenantID(ctx), types.StatusActive)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.NewError("organization not found for customer").
				WithReportableDetails(map[string]any{
					"stripe_customer_id": stripeCustomerID,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get organization by customer").
			Mark(ierr.ErrDatabase)
	}
	return &org, nil
}

func (r *organizationRepository) Update(ctx context.Context, org *organization.Organization) error {
	org.UpdatedAt = time.Now().UTC()
	org.UpdatedBy = types.GetUserID(ctx)

	query := `
		UPDATE organizations SET
			name = :name,
			billing_email = :billing_email,
			stripe_customer_id = :stripe_customer_id,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id
	`

	result, err := r.db.NamedExecContext(ctx, query, org)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update organization").
			Mark(ierr.ErrDatabase)
	}
	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return ierr.NewError("organization not found").
			WithHintf("Organization with ID %s was not found", org.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}
