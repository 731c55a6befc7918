package repository

import (
	"github.com/memberflow/memberflow/internal/domain/auditlog"
	"github.com/memberflow/memberflow/internal/domain/entitlement"
	"github.com/memberflow/memberflow/internal/domain/invoice"
	"github.com/memberflow/memberflow/internal/domain/organization"
	"github.com/memberflow/memberflow/internal/domain/paymentevent"
	"github.com/memberflow/memberflow/internal/domain/subscription"
	"github.com/memberflow/memberflow/internal/logger"
	"github.com/memberflow/memberflow/internal/postgres"
	postgresRepo "github.com/memberflow/memberflow/internal/repository/postgres"
)

func NewOrganizationRepository(db *postgres.DB, logger *logger.Logger) organization.Repository {
	return postgresRepo.NewOrganizationRepository(db, logger)
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return postgresRepo.NewSubscriptionRepository(db, logger)
}

func NewEntitlementRepository(db *postgres.DB, logger *logger.Logger) entitlement.Repository {
	return postgresRepo.NewEntitlementRepository(db, logger)
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return postgresRepo.NewInvoiceRepository(db, logger)
}

func NewPaymentEventRepository(db *postgres.DB, logger *logger.Logger) paymentevent.Repository {
	return postgresRepo.NewPaymentEventRepository(db, logger)
}

func NewAuditLogRepository(db *postgres.DB, logger *logger.Logger) auditlog.Repository {
	return postgresRepo.NewAuditLogRepository(db, logger)
}
