package postgres

import (
	"context"
	"time"

	"github.com/memberflow/memberflow/internal/domain/invoice"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/logger"
	"github.com/memberflow/memberflow/internal/postgres"
	"github.com/memberflow/memberflow/internal/types"
)

type invoiceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{db: db, logger: logger}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO invoices (
			id,
			invoice_number,
			subscription_id,
			organization_id,
			invoice_type,
			description,
			amount_due,
			invoice_status,
			payment_status,
			period_start,
			period_end,
			due_date,
			paid_at,
			void_at,
			stripe_payment_intent_id,
			stripe_checkout_session_id,
			tenant_id,
			status,
			created_at,
			updated_at,
			created_by,
			updated_by
		) VALUES (
			:id,
			:invoice_number,
			:subscription_id,
			:organization_id,
			:invoice_type,
			:description,
			:amount_due,
			:invoice_status,
			:payment_status,
			:period_start,
			:period_end,
			:due_date,
			:paid_at,
			:void_at,
			:stripe_payment_intent_id,
			:stripe_checkout_session_id,
			:tenant_id,
			:status,
			:created_at,
			:updated_at,
			:created_by,
			:updated_by
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, inv); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("An invoice with this ID already exists").
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create invoice").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *invoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	query := `
		SELECT * FROM invoices
		WHERE id = $1 AND tenant_id = $2 AND status = $3
	`
	return r.getOne(ctx, query, id)
}

func (r *invoiceRepository) GetByCheckoutSessionID(ctx context.Context, sessionID string) (*invoice.Invoice, error) {
	query := `
		SELECT * FROM invoices
		WHERE stripe_checkout_session_id = $1 AND tenant_id = $2 AND status = $3
	`
	return r.getOne(ctx, query, sessionID)
}

func (r *invoiceRepository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*invoice.Invoice, error) {
	query := `
		SELECT * FROM invoices
		WHERE stripe_payment_intent_id = $1 AND tenant_id = $2 AND status = $3
	`
	return r.getOne(ctx, query, paymentIntentID)
}

func (r *invoiceRepository) getOne(ctx context.Context, query, key string) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	err := r.db.GetQuerier(ctx).GetContext(ctx, &inv, query, key, types.GetTenantID(ctx), types.StatusActive)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.NewError("invoice not found").
				WithReportableDetails(map[string]any{
					"lookup_key": key,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get invoice").
			Mark(ierr.ErrDatabase)
	}
	return &inv, nil
}

func (r *invoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	inv.UpdatedAt = time.Now().UTC()
	inv.UpdatedBy = types.GetUserID(ctx)

	query := `
		UPDATE invoices SET
			description = :description,
			amount_due = :amount_due,
			invoice_status = :invoice_status,
			payment_status = :payment_status,
			due_date = :due_date,
			paid_at = :paid_at,
			void_at = :void_at,
			stripe_payment_intent_id = :stripe_payment_intent_id,
			stripe_checkout_session_id = :stripe_checkout_session_id,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id
	`

	result, err := r.db.NamedExecContext(ctx, query, inv)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update invoice").
			Mark(ierr.ErrDatabase)
	}
	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return ierr.NewError("invoice not found").
			WithHintf("Invoice with ID %s was not found", inv.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *invoiceRepository) ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*invoice.Invoice, error) {
	query := `
		SELECT * FROM invoices
		WHERE subscription_id = $1 AND tenant_id = $2 AND status = $3
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, subscriptionID)
}

func (r *invoiceRepository) ListOpenBySubscriptionID(ctx context.Context, subscriptionID string) ([]*invoice.Invoice, error) {
	query := `
		SELECT * FROM invoices
		WHERE subscription_id = $1 AND tenant_id = $2 AND status = $3 AND invoice_status = $4
		ORDER BY created_at DESC
	`

	var invs []*invoice.Invoice
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &invs, query,
		subscriptionID, types.GetTenantID(ctx), types.StatusActive, types.InvoiceStatusOpen)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list open invoices").
			Mark(ierr.ErrDatabase)
	}
	return invs, nil
}

func (r *invoiceRepository) list(ctx context.Context, query, key string) ([]*invoice.Invoice, error) {
	var invs []*invoice.Invoice
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &invs, query, key, types.GetTenantID(ctx), types.StatusActive)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list invoices").
			Mark(ierr.ErrDatabase)
	}
	return invs, nil
}
