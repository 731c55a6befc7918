package testutil

import (
	"context"
	"time"

	"github.com/memberflow/memberflow/internal/cache"
	"github.com/memberflow/memberflow/internal/config"
	"github.com/memberflow/memberflow/internal/domain/auditlog"
	"github.com/memberflow/memberflow/internal/domain/entitlement"
	"github.com/memberflow/memberflow/internal/domain/invoice"
	"github.com/memberflow/memberflow/internal/domain/organization"
	"github.com/memberflow/memberflow/internal/domain/paymentevent"
	"github.com/memberflow/memberflow/internal/domain/subscription"
	"github.com/memberflow/memberflow/internal/logger"
	"github.com/memberflow/memberflow/internal/postgres"
	"github.com/memberflow/memberflow/internal/types"
	"github.com/memberflow/memberflow/internal/validator"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	OrgRepo          organization.Repository
	SubRepo          subscription.Repository
	EntitlementRepo  entitlement.Repository
	InvoiceRepo      invoice.Repository
	PaymentEventRepo paymentevent.Repository
	AuditLogRepo     auditlog.Repository
}

// BaseServiceTestSuite provides common functionality for all service
// test suites: fresh in-memory stores, a mock Stripe integration, a
// capturing notification publisher, and a tenant-scoped context.
type BaseServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	stores    Stores
	db        postgres.IClient
	cache     cache.Cache
	stripe    *MockStripeClient
	publisher *InMemoryNotificationPublisher
	logger    *logger.Logger
	config    *config.Configuration
	now       time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	s.config = config.GetDefaultConfig()

	var err error
	s.logger, err = logger.NewLogger(s.config)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.setupContext()
	s.setupStores()
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.ClearStores()
}

func (s *BaseServiceTestSuite) setupContext() {
	s.ctx = SetupContext()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		OrgRepo:          NewInMemoryOrganizationStore(),
		SubRepo:          NewInMemorySubscriptionStore(),
		EntitlementRepo:  NewInMemoryEntitlementStore(),
		InvoiceRepo:      NewInMemoryInvoiceStore(),
		PaymentEventRepo: NewInMemoryPaymentEventStore(),
		AuditLogRepo:     NewInMemoryAuditLogStore(),
	}

	s.db = NewMockPostgresClient(s.logger)
	s.cache = cache.NewInMemoryCache()
	s.stripe = NewMockStripeClient()
	s.publisher = NewInMemoryNotificationPublisher()
}

// ClearStores resets every store to an empty state
func (s *BaseServiceTestSuite) ClearStores() {
	s.stores.OrgRepo.(*InMemoryOrganizationStore).Clear()
	s.stores.SubRepo.(*InMemorySubscriptionStore).Clear()
	s.stores.EntitlementRepo.(*InMemoryEntitlementStore).Clear()
	s.stores.InvoiceRepo.(*InMemoryInvoiceStore).Clear()
	s.stores.PaymentEventRepo.(*InMemoryPaymentEventStore).Clear()
	s.stores.AuditLogRepo.(*InMemoryAuditLogStore).Clear()
	s.stripe.Clear()
	s.publisher.Clear()
	s.cache.Flush(s.ctx)
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetDB returns the mock postgres client
func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

// GetCache returns the test cache
func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

// GetStores returns the in-memory repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetStripe returns the mock Stripe integration
func (s *BaseServiceTestSuite) GetStripe() *MockStripeClient {
	return s.stripe
}

// GetPublisher returns the capturing notification publisher
func (s *BaseServiceTestSuite) GetPublisher() *InMemoryNotificationPublisher {
	return s.publisher
}

// GetNow returns the current time in UTC, fixed at test setup
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}

// GetUUID returns a new UUID
func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}
