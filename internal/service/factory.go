package service

import (
	"github.com/memberflow/memberflow/internal/cache"
	"github.com/memberflow/memberflow/internal/config"
	"github.com/memberflow/memberflow/internal/domain/auditlog"
	"github.com/memberflow/memberflow/internal/domain/entitlement"
	"github.com/memberflow/memberflow/internal/domain/invoice"
	"github.com/memberflow/memberflow/internal/domain/organization"
	"github.com/memberflow/memberflow/internal/domain/paymentevent"
	"github.com/memberflow/memberflow/internal/domain/proration"
	"github.com/memberflow/memberflow/internal/domain/subscription"
	"github.com/memberflow/memberflow/internal/integration/stripe"
	"github.com/memberflow/memberflow/internal/logger"
	"github.com/memberflow/memberflow/internal/notification"
	"github.com/memberflow/memberflow/internal/postgres"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient
	Cache  cache.Cache

	// Repositories
	OrgRepo          organization.Repository
	SubRepo          subscription.Repository
	EntitlementRepo  entitlement.Repository
	InvoiceRepo      invoice.Repository
	PaymentEventRepo paymentevent.Repository
	AuditLogRepo     auditlog.Repository

	// Integrations
	StripeClient          stripe.Integration
	NotificationPublisher notification.Publisher
	ProrationCalculator   proration.Calculator
}

// NewServiceParams assembles the common service dependencies
func NewServiceParams(
	logger *logger.Logger,
	cfg *config.Configuration,
	db postgres.IClient,
	cacheStore cache.Cache,
	orgRepo organization.Repository,
	subRepo subscription.Repository,
	entitlementRepo entitlement.Repository,
	invoiceRepo invoice.Repository,
	paymentEventRepo paymentevent.Repository,
	auditLogRepo auditlog.Repository,
	stripeClient stripe.Integration,
	notificationPublisher notification.Publisher,
	prorationCalculator proration.Calculator,
) ServiceParams {
	return ServiceParams{
		Logger:                logger,
		Config:                cfg,
		DB:                    db,
		Cache:                 cacheStore,
		OrgRepo:               orgRepo,
		SubRepo:               subRepo,
		EntitlementRepo:       entitlementRepo,
		InvoiceRepo:           invoiceRepo,
		PaymentEventRepo:      paymentEventRepo,
		AuditLogRepo:          auditLogRepo,
		StripeClient:          stripeClient,
		NotificationPublisher: notificationPublisher,
		ProrationCalculator:   prorationCalculator,
	}
}
