package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	ierr "github.com/memberflow/memberflow/internal/errors"
	stripeclient "github.com/memberflow/memberflow/internal/integration/stripe"
	"github.com/stripe/stripe-go/v82"
)

var _ stripeclient.Integration = (*MockStripeClient)(nil)

// MockStripeClient is an in-memory stand-in for the Stripe integration.
// It records every request so tests can assert on what would have been
// sent, and hands back deterministic customer and session identifiers.
type MockStripeClient struct {
	mu sync.Mutex

	customers        []*stripeclient.CreateCustomerRequest
	checkoutSessions []*stripeclient.CreateCheckoutSessionRequest
	seq              int

	// CustomerErr, CheckoutErr and WebhookErr, when set, are returned
	// instead of a successful result so tests can exercise integration
	// failures.
	CustomerErr error
	CheckoutErr error
	WebhookErr  error
}

func NewMockStripeClient() *MockStripeClient {
	return &MockStripeClient{}
}

func (m *MockStripeClient) CreateCustomer(ctx context.Context, req *stripeclient.CreateCustomerRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CustomerErr != nil {
		return "", m.CustomerErr
	}

	m.seq++
	m.customers = append(m.customers, req)
	return fmt.Sprintf("cus_test_%d", m.seq), nil
}

func (m *MockStripeClient) CreateCheckoutSession(ctx context.Context, req *stripeclient.CreateCheckoutSessionRequest) (*stripeclient.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CheckoutErr != nil {
		return nil, m.CheckoutErr
	}
	if !req.Amount.IsPositive() {
		return nil, ierr.NewError("checkout amount must be positive").
			Mark(ierr.ErrValidation)
	}

	m.seq++
	id := fmt.Sprintf("cs_test_%d", m.seq)
	m.checkoutSessions = append(m.checkoutSessions, req)
	return &stripeclient.CheckoutSession{
		ID:  id,
		URL: "https://checkout.stripe.test/pay/" + id,
	}, nil
}

// ParseWebhookEvent decodes the payload without signature verification.
// Tests construct raw event JSON and pass any non-empty signature.
func (m *MockStripeClient) ParseWebhookEvent(payload []byte, signature string) (*stripe.Event, error) {
	if m.WebhookErr != nil {
		return nil, m.WebhookErr
	}
	if signature == "" {
		return nil, ierr.NewError("missing webhook signature").
			Mark(ierr.ErrPermissionDenied)
	}
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid webhook payload").
			Mark(ierr.ErrPermissionDenied)
	}
	return &event, nil
}

// Customers returns the recorded customer creation requests
func (m *MockStripeClient) Customers() []*stripeclient.CreateCustomerRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*stripeclient.CreateCustomerRequest(nil), m.customers...)
}

// CheckoutSessions returns the recorded checkout session requests
func (m *MockStripeClient) CheckoutSessions() []*stripeclient.CreateCheckoutSessionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*stripeclient.CreateCheckoutSessionRequest(nil), m.checkoutSessions...)
}

// LastCheckoutSession returns the most recent checkout request, or nil
func (m *MockStripeClient) LastCheckoutSession() *stripeclient.CreateCheckoutSessionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.checkoutSessions) == 0 {
		return nil
	}
	return m.checkoutSessions[len(m.checkoutSessions)-1]
}

// Clear drops the recorded requests and error injections
func (m *MockStripeClient) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers = nil
	m.checkoutSessions = nil
	m.seq = 0
	m.CustomerErr = nil
	m.CheckoutErr = nil
	m.WebhookErr = nil
}
