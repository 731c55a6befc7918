package service

import (
	"time"

	"github.com/memberflow/memberflow/internal/domain/invoice"
	"github.com/memberflow/memberflow/internal/domain/organization"
	"github.com/memberflow/memberflow/internal/domain/pricing"
	"github.com/memberflow/memberflow/internal/domain/proration"
	"github.com/memberflow/memberflow/internal/domain/subscription"
	"github.com/memberflow/memberflow/internal/testutil"
	"github.com/memberflow/memberflow/internal/types"
	"github.com/shopspring/decimal"
)

func newTestParams(base *testutil.BaseServiceTestSuite) ServiceParams {
	stores := base.GetStores()
	return ServiceParams{
		Logger: base.GetLogger(),
		Config: base.GetConfig(),
		DB:     base.GetDB(),
		Cache:  base.GetCache(),

		OrgRepo:          stores.OrgRepo,
		SubRepo:          stores.SubRepo,
		EntitlementRepo:  stores.EntitlementRepo,
		InvoiceRepo:      stores.InvoiceRepo,
		PaymentEventRepo: stores.PaymentEventRepo,
		AuditLogRepo:     stores.AuditLogRepo,

		StripeClient:          base.GetStripe(),
		NotificationPublisher: base.GetPublisher(),
		ProrationCalculator:   proration.NewCalculator(),
	}
}

func seedOrganization(base *testutil.BaseServiceTestSuite) *organization.Organization {
	ctx := base.GetContext()
	org := &organization.Organization{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ORGANIZATION),
		Name:             "Acme Holdings",
		BillingEmail:     "billing@acme.test",
		StripeCustomerID: "cus_seed",
		BaseModel:        types.GetDefaultBaseModel(ctx),
	}
	base.Require().NoError(base.GetStores().OrgRepo.Create(ctx, org))
	return org
}

// seedSubscription stores a subscription 30 days into its current
// period, priced through the catalog for the given plan and discount.
func seedSubscription(
	base *testutil.BaseServiceTestSuite,
	orgID string,
	status types.SubscriptionStatus,
	plan types.PlanType,
	period types.BillingPeriod,
	discount types.DiscountType,
) *subscription.Subscription {
	ctx := base.GetContext()

	quote, err := pricing.Price(plan, discount, period)
	base.Require().NoError(err)

	start := time.Now().UTC().AddDate(0, 0, -30)
	sub := &subscription.Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		OrganizationID:     orgID,
		PlanType:           plan,
		SubscriptionStatus: status,
		PaymentMethod:      types.PaymentMethodCard,
		DiscountType:       discount,
		BasePrice:          quote.BasePrice,
		DiscountPercent:    quote.DiscountPercent,
		DiscountAmount:     quote.DiscountAmount,
		FinalPrice:         quote.FinalPrice,
		BillingPeriod:      period,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   types.PeriodEnd(start, period),
		AutoRenewal:        true,
		StripeCustomerID:   "cus_seed",
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}
	base.Require().NoError(base.GetStores().SubRepo.Create(ctx, sub))
	return sub
}

func seedInvoice(
	base *testutil.BaseServiceTestSuite,
	sub *subscription.Subscription,
	invoiceType types.InvoiceType,
	amount decimal.Decimal,
	sessionID, paymentIntentID string,
) *invoice.Invoice {
	ctx := base.GetContext()
	inv := &invoice.Invoice{
		ID:                      types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		InvoiceNumber:           types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_INVOICE),
		SubscriptionID:          sub.ID,
		OrganizationID:          sub.OrganizationID,
		InvoiceType:             invoiceType,
		Description:             "seeded invoice",
		AmountDue:               amount,
		InvoiceStatus:           types.InvoiceStatusOpen,
		PaymentStatus:           types.PaymentStatusPending,
		PeriodStart:             sub.CurrentPeriodStart,
		PeriodEnd:               sub.CurrentPeriodEnd,
		StripeCheckoutSessionID: sessionID,
		StripePaymentIntentID:   paymentIntentID,
		BaseModel:               types.GetDefaultBaseModel(ctx),
	}
	base.Require().NoError(base.GetStores().InvoiceRepo.Create(ctx, inv))
	return inv
}
