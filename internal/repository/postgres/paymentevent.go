package postgres

import (
	"context"

	"github.com/memberflow/memberflow/internal/domain/paymentevent"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/logger"
	"github.com/memberflow/memberflow/internal/postgres"
	"github.com/memberflow/memberflow/internal/types"
)

type paymentEventRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPaymentEventRepository(db *postgres.DB, logger *logger.Logger) paymentevent.Repository {
	return &paymentEventRepository{db: db, logger: logger}
}

// Claim inserts the ledger row. The unique index on (tenant_id,
// event_id) turns a concurrent or replayed delivery into an
// ErrAlreadyExists the caller absorbs.
func (r *paymentEventRepository) Claim(ctx context.Context, event *paymentevent.ProcessedEvent) error {
	query := `
		INSERT INTO processed_payment_events (
			id,
			event_id,
			event_type,
			subscription_id,
			processed_at,
			tenant_id,
			status,
			created_at,
			updated_at,
			created_by,
			updated_by
		) VALUES (
			:id,
			:event_id,
			:event_type,
			:subscription_id,
			:processed_at,
			:tenant_id,
			:status,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("This payment event was already processed").
				WithReportableDetails(map[string]any{
					"event_id": event.EventID,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to record payment event").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *paymentEventRepository) Get(ctx context.Context, eventID string) (*paymentevent.ProcessedEvent, error) {
	query := `
		SELECT * FROM processed_payment_events
		WHERE event_id = $1 AND tenant_id = $2
	`

	var event paymentevent.ProcessedEvent
	err := r.db.GetQuerier(ctx).GetContext(ctx, &event, query, eventID, types.GetTenantID(ctx))
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.NewError("payment event not found").
				WithReportableDetails(map[string]any{
					"event_id": eventID,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get payment event").
			Mark(ierr.ErrDatabase)
	}
	return &event, nil
}

func (r *paymentEventRepository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM processed_payment_events
			WHERE event_id = $1 AND tenant_id = $2
		)
	`

	var exists bool
	err := r.db.GetQuerier(ctx).GetContext(ctx, &exists, query, eventID, types.GetTenantID(ctx))
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to check payment event").
			Mark(ierr.ErrDatabase)
	}
	return exists, nil
}
