package postgres

import (
	"context"
	"time"

	"github.com/memberflow/memberflow/internal/domain/subscription"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/logger"
	"github.com/memberflow/memberflow/internal/postgres"
	"github.com/memberflow/memberflow/internal/types"
)

type subscriptionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, logger: logger}
}

const subscriptionColumns = `
	id,
	organization_id,
	plan_type,
	subscription_status,
	payment_method,
	discount_type,
	base_price,
	discount_percent,
	discount_amount,
	final_price,
	billing_period,
	current_period_start,
	current_period_end,
	auto_renewal,
	cancel_at,
	canceled_at,
	scheduled_plan_change,
	stripe_customer_id,
	stripe_subscription_id,
	stripe_checkout_session_id,
	renewal_notified_at,
	tenant_id,
	status,
	created_at,
	updated_at,
	created_by,
	updated_by`

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `
		) VALUES (
			:id,
			:organization_id,
			:plan_type,
			:subscription_status,
			:payment_method,
			:discount_type,
			:base_price,
			:discount_percent,
			:discount_amount,
			:final_price,
			:billing_period,
			:current_period_start,
			:current_period_end,
			:auto_renewal,
			:cancel_at,
			:canceled_at,
			:scheduled_plan_change,
			:stripe_customer_id,
			:stripe_subscription_id,
			:stripe_checkout_session_id,
			:renewal_notified_at,
			:tenant_id,
			:status,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("A subscription with this ID already exists").
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create subscription").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	return r.get(ctx, id, false)
}

func (r *subscriptionRepository) GetForUpdate(ctx context.Context, id string) (*subscription.Subscription, error) {
	return r.get(ctx, id, true)
}

func (r *subscriptionRepository) get(ctx context.Context, id string, forUpdate bool) (*subscription.Subscription, error) {
	query := `
		SELECT * FROM subscriptions
		WHERE id = $1 AND tenant_id = $2 AND status = $3
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var sub subscription.Subscription
	err := r.db.GetQuerier(ctx).GetContext(ctx, &sub, query, id, types.GetTenantID(ctx), types.StatusActive)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.NewError("subscription not found").
				WithHintf("Subscription with ID %s was not found", id).
				WithReportableDetails(map[string]any{
					"subscription_id": id,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get subscription").
			Mark(ierr.ErrDatabase)
	}
	return &sub, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	sub.UpdatedBy = types.GetUserID(ctx)

	query := `
		UPDATE subscriptions SET
			plan_type = :plan_type,
			subscription_status = :subscription_status,
			payment_method = :payment_method,
			discount_type = :discount_type,
			base_price = :base_price,
			discount_percent = :discount_percent,
			discount_amount = :discount_amount,
			final_price = :final_price,
			current_period_start = :current_period_start,
			current_period_end = :current_period_end,
			auto_renewal = :auto_renewal,
			cancel_at = :cancel_at,
			canceled_at = :canceled_at,
			scheduled_plan_change = :scheduled_plan_change,
			stripe_customer_id = :stripe_customer_id,
			stripe_subscription_id = :stripe_subscription_id,
			stripe_checkout_session_id = :stripe_checkout_session_id,
			renewal_notified_at = :renewal_notified_at,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id
	`

	result, err := r.db.NamedExecContext(ctx, query, sub)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update subscription").
			Mark(ierr.ErrDatabase)
	}
	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return ierr.NewError("subscription not found").
			WithHintf("Subscription with ID %s was not found", sub.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *subscriptionRepository) GetActiveByOrganizationID(ctx context.Context, organizationID string) (*subscription.Subscription, error) {
	query := `
		SELECT * FROM subscriptions
		WHERE organization_id = $1
			AND tenant_id = $2
			AND status = $3
			AND subscription_status IN ($4, $5)
		ORDER BY created_at DESC
		LIMIT 1
	`

	var sub subscription.Subscription
	err := r.db.GetQuerier(ctx).GetContext(ctx, &sub, query,
		organizationID,
		types.GetTenantID(ctx),
		types.StatusActive,
		types.SubscriptionStatusActive,
		types.SubscriptionStatusPending,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.NewError("no active subscription").
				WithHintf("Organization %s has no active or pending subscription", organizationID).
				WithReportableDetails(map[string]any{
					"organization_id": organizationID,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get active subscription").
			Mark(ierr.ErrDatabase)
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetByCheckoutSessionID(ctx context.Context, sessionID string) (*subscription.Subscription, error) {
	query := `
		SELECT * FROM subscriptions
		WHERE stripe_checkout_session_id = $1 AND tenant_id = $2 AND status = $3
	`

	var sub subscription.Subscription
	err := r.db.GetQuerier(ctx).GetContext(ctx, &sub, query, sessionID, types.GetTenantID(ctx), types.StatusActive)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.NewError("subscription not found for checkout session").
				WithReportableDetails(map[string]any{
					"checkout_session_id": sessionID,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get subscription by checkout session").
			Mark(ierr.ErrDatabase)
	}
	return &sub, nil
}

func (r *subscriptionRepository) ListExpiringBetween(ctx context.Context, from, to time.Time, limit int) ([]*subscription.Subscription, error) {
	query := `
		SELECT * FROM subscriptions
		WHERE tenant_id = $1
			AND status = $2
			AND subscription_status = $3
			AND current_period_end >= $4
			AND current_period_end < $5
		ORDER BY current_period_end ASC
		LIMIT $6
	`

	var subs []*subscription.Subscription
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &subs, query,
		types.GetTenantID(ctx),
		types.StatusActive,
		types.SubscriptionStatusActive,
		from,
		to,
		limit,
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list expiring subscriptions").
			Mark(ierr.ErrDatabase)
	}
	return subs, nil
}

func (r *subscriptionRepository) ListDueForTransition(ctx context.Context, asOf time.Time, limit int) ([]*subscription.Subscription, error) {
	query := `
		SELECT * FROM subscriptions
		WHERE tenant_id = $1
			AND status = $2
			AND subscription_status IN ($3, $4, $5)
			AND (current_period_end <= $6 OR (cancel_at IS NOT NULL AND cancel_at <= $6))
		ORDER BY current_period_end ASC
		LIMIT $7
	`

	var subs []*subscription.Subscription
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &subs, query,
		types.GetTenantID(ctx),
		types.StatusActive,
		types.SubscriptionStatusActive,
		types.SubscriptionStatusPending,
		types.SubscriptionStatusSuspended,
		asOf,
		limit,
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list subscriptions due for transition").
			Mark(ierr.ErrDatabase)
	}
	return subs, nil
}
