package stripe

import (
	"context"
	"time"

	"github.com/memberflow/memberflow/internal/config"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/logger"
	"github.com/memberflow/memberflow/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Integration is the surface the billing services consume. *Client is
// the production implementation; tests substitute an in-memory fake.
type Integration interface {
	CreateCustomer(ctx context.Context, req *CreateCustomerRequest) (string, error)
	CreateCheckoutSession(ctx context.Context, req *CreateCheckoutSessionRequest) (*CheckoutSession, error)
	ParseWebhookEvent(payload []byte, signature string) (*stripe.Event, error)
}

var _ Integration = (*Client)(nil)

// Client wraps the Stripe API for the operations the billing flows
// need: customer provisioning, hosted checkout sessions, and webhook
// signature verification.
type Client struct {
	stripeClient *stripe.Client
	cfg          *config.Configuration
	logger       *logger.Logger
}

func NewClient(cfg *config.Configuration, logger *logger.Logger) *Client {
	return &Client{
		stripeClient: stripe.NewClient(cfg.Stripe.SecretKey, nil),
		cfg:          cfg,
		logger:       logger,
	}
}

// CreateCustomerRequest provisions a Stripe customer for an organization.
type CreateCustomerRequest struct {
	OrganizationID string
	Name           string
	Email          string
}

// CreateCheckoutSessionRequest creates a hosted payment page for a
// single fixed-amount charge. Metadata is round-tripped through the
// checkout.session.completed webhook and drives reconciliation.
type CreateCheckoutSessionRequest struct {
	StripeCustomerID string
	Amount           decimal.Decimal
	Currency         string
	ProductName      string
	Description      string
	Metadata         map[string]string
}

// CheckoutSession is the subset of the Stripe session the caller needs.
type CheckoutSession struct {
	ID  string
	URL string
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.cfg.Stripe.CallTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// CreateCustomer creates a Stripe customer tagged with the organization ID.
func (c *Client) CreateCustomer(ctx context.Context, req *CreateCustomerRequest) (string, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	params := &stripe.CustomerCreateParams{
		Name:  stripe.String(req.Name),
		Email: stripe.String(req.Email),
		Metadata: map[string]string{
			types.MetadataKeyOrganizationID: req.OrganizationID,
			types.MetadataKeyTenantID:       types.GetTenantID(ctx),
		},
	}

	customer, err := c.stripeClient.V1Customers.Create(ctx, params)
	if err != nil {
		c.logger.Errorw("failed to create Stripe customer",
			"error", err,
			"organization_id", req.OrganizationID)
		return "", ierr.WithError(err).
			WithHint("Unable to create Stripe customer").
			WithReportableDetails(map[string]any{
				"organization_id": req.OrganizationID,
			}).
			Mark(ierr.ErrIntegration)
	}

	return customer.ID, nil
}

// CreateCheckoutSession creates a one-time payment checkout session
// and returns its ID and hosted URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, req *CreateCheckoutSessionRequest) (*CheckoutSession, error) {
	if !req.Amount.IsPositive() {
		return nil, ierr.NewError("checkout amount must be positive").
			WithHint("Amount must be greater than zero").
			WithReportableDetails(map[string]any{
				"amount": req.Amount,
			}).
			Mark(ierr.ErrValidation)
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	lineItems := []*stripe.CheckoutSessionCreateLineItemParams{
		{
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name:        stripe.String(req.ProductName),
					Description: stripe.String(req.Description),
				},
				UnitAmount: stripe.Int64(req.Amount.IntPart()),
			},
			Quantity: stripe.Int64(1),
		},
	}

	params := &stripe.CheckoutSessionCreateParams{
		LineItems:  lineItems,
		Mode:       stripe.String("payment"),
		SuccessURL: stripe.String(c.cfg.Stripe.SuccessURL),
		CancelURL:  stripe.String(c.cfg.Stripe.CancelURL),
		Customer:   stripe.String(req.StripeCustomerID),
		Metadata:   req.Metadata,
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}

	session, err := c.stripeClient.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		c.logger.Errorw("failed to create Stripe checkout session",
			"error", err,
			"stripe_customer_id", req.StripeCustomerID)
		return nil, ierr.WithError(err).
			WithHint("Unable to create Stripe checkout session").
			Mark(ierr.ErrIntegration)
	}

	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// ParseWebhookEvent verifies the webhook signature and decodes the event.
func (c *Client) ParseWebhookEvent(payload []byte, signature string) (*stripe.Event, error) {
	options := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.cfg.Stripe.WebhookSecret, options)
	if err != nil {
		c.logger.Errorw("stripe webhook verification failed", "error", err)
		return nil, ierr.WithError(err).
			WithHint("Invalid webhook signature or payload").
			Mark(ierr.ErrPermissionDenied)
	}
	return &event, nil
}
