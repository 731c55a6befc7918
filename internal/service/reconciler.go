package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/memberflow/memberflow/internal/api/dto"
	"github.com/memberflow/memberflow/internal/domain/invoice"
	"github.com/memberflow/memberflow/internal/domain/paymentevent"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/types"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"
)

// ReconciliationService applies inbound payment processor events to
// subscriptions and invoices. Every applied event is claimed in the
// idempotency ledger inside the same transaction as its effects, so a
// redelivery is absorbed as a no-op and acknowledged like the first
// delivery.
type ReconciliationService interface {
	ProcessWebhookEvent(ctx context.Context, payload []byte, signature string) (*dto.WebhookResponse, error)
}

type reconciliationService struct {
	ServiceParams
	subscriptionService SubscriptionService
}

func NewReconciliationService(params ServiceParams) ReconciliationService {
	return &reconciliationService{
		ServiceParams:       params,
		subscriptionService: NewSubscriptionService(params),
	}
}

func (s *reconciliationService) ProcessWebhookEvent(ctx context.Context, payload []byte, signature string) (*dto.WebhookResponse, error) {
	event, err := s.StripeClient.ParseWebhookEvent(payload, signature)
	if err != nil {
		return nil, err
	}

	resp := &dto.WebhookResponse{
		Received:  true,
		EventID:   event.ID,
		EventType: string(event.Type),
	}

	eventType := types.ParsePaymentEventType(string(event.Type))
	if eventType == types.PaymentEventUnknown {
		s.Logger.Debugw("ignoring payment event of unhandled kind",
			"event_id", event.ID,
			"event_type", event.Type)
		return resp, nil
	}

	var deferred []types.NotificationEventName
	var subID string

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.claim(ctx, event.ID, eventType, ""); err != nil {
			return err
		}

		var err error
		switch eventType {
		case types.PaymentEventCheckoutCompleted:
			subID, deferred, err = s.handleCheckoutCompleted(ctx, event)
		case types.PaymentEventPaymentSucceeded:
			subID, deferred, err = s.handlePaymentSucceeded(ctx, event)
		case types.PaymentEventPaymentFailed:
			subID, deferred, err = s.handlePaymentFailed(ctx, event)
		case types.PaymentEventChargeRefunded:
			subID, err = s.handleChargeRefunded(ctx, event)
		}
		return err
	})
	if err != nil {
		if ierr.IsAlreadyExists(err) {
			s.Logger.Infow("absorbed replayed payment event",
				"event_id", event.ID,
				"event_type", eventType)
			return resp, nil
		}
		return nil, err
	}

	for _, name := range deferred {
		s.publishNotification(ctx, name, subID)
	}

	s.Logger.Infow("payment event applied",
		"event_id", event.ID,
		"event_type", eventType,
		"subscription_id", subID)
	return resp, nil
}

// claim inserts the ledger row for the event. It runs first inside the
// transaction so that a rolled-back application leaves the event
// unclaimed and retryable.
func (s *reconciliationService) claim(ctx context.Context, eventID string, eventType types.PaymentEventType, subscriptionID string) error {
	return s.PaymentEventRepo.Claim(ctx, &paymentevent.ProcessedEvent{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT_EVENT),
		EventID:        eventID,
		EventType:      eventType,
		SubscriptionID: subscriptionID,
		ProcessedAt:    time.Now().UTC(),
		BaseModel:      types.GetDefaultBaseModel(ctx),
	})
}

func (s *reconciliationService) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) (string, []types.NotificationEventName, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return "", nil, ierr.WithError(err).
			WithHint("Malformed checkout session payload").
			Mark(ierr.ErrValidation)
	}

	// Checkout sessions also carry site visit and qualification
	// purchases; those records live outside this system and only get
	// acknowledged here.
	purchase := types.PurchaseType(session.Metadata[types.MetadataKeyPurchaseType])
	if purchase != types.PurchaseTypeSubscription {
		s.Logger.Infow("acknowledged non-subscription purchase",
			"event_id", event.ID,
			"purchase_type", purchase,
			"record_id", session.Metadata[types.MetadataKeyRecordID])
		return "", nil, nil
	}

	inv, err := s.findInvoice(ctx, session.Metadata[types.MetadataKeyInvoiceID], session.ID, "")
	if err != nil {
		return "", nil, err
	}

	if session.PaymentIntent != nil {
		inv.StripePaymentIntentID = session.PaymentIntent.ID
	}
	return s.settleInvoice(ctx, inv)
}

func (s *reconciliationService) handlePaymentSucceeded(ctx context.Context, event *stripe.Event) (string, []types.NotificationEventName, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return "", nil, ierr.WithError(err).
			WithHint("Malformed payment intent payload").
			Mark(ierr.ErrValidation)
	}

	inv, err := s.findInvoice(ctx, pi.Metadata[types.MetadataKeyInvoiceID], "", pi.ID)
	if err != nil {
		if ierr.IsNotFound(err) {
			// Succeeded intents for payments we do not bill (or whose
			// checkout event already settled the invoice under a session
			// reference) are acknowledged without effect.
			s.Logger.Debugw("no invoice for succeeded payment intent", "payment_intent_id", pi.ID)
			return "", nil, nil
		}
		return "", nil, err
	}

	inv.StripePaymentIntentID = pi.ID
	return s.settleInvoice(ctx, inv)
}

// settleInvoice marks the invoice paid and activates the subscription
// when this payment is what it was waiting for.
func (s *reconciliationService) settleInvoice(ctx context.Context, inv *invoice.Invoice) (string, []types.NotificationEventName, error) {
	var events []types.NotificationEventName

	if inv.IsOpen() {
		inv.InvoiceStatus = types.InvoiceStatusPaid
		inv.PaymentStatus = types.PaymentStatusSucceeded
		inv.PaidAt = lo.ToPtr(time.Now().UTC())
	} else {
		s.Logger.Infow("payment event for settled invoice", "invoice_id", inv.ID)
	}
	if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
		return "", nil, err
	}

	sub, err := s.SubRepo.GetForUpdate(ctx, inv.SubscriptionID)
	if err != nil {
		return "", nil, err
	}

	if sub.SubscriptionStatus == types.SubscriptionStatusPending ||
		sub.SubscriptionStatus == types.SubscriptionStatusSuspended {
		if err := s.subscriptionService.TransitionToActive(ctx, sub); err != nil {
			return "", nil, err
		}
		events = append(events, types.NotificationSubscriptionActivated)
	}

	return sub.ID, events, nil
}

func (s *reconciliationService) handlePaymentFailed(ctx context.Context, event *stripe.Event) (string, []types.NotificationEventName, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return "", nil, ierr.WithError(err).
			WithHint("Malformed payment intent payload").
			Mark(ierr.ErrValidation)
	}

	inv, err := s.findInvoice(ctx, pi.Metadata[types.MetadataKeyInvoiceID], "", pi.ID)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Debugw("no invoice for failed payment intent", "payment_intent_id", pi.ID)
			return "", nil, nil
		}
		return "", nil, err
	}

	inv.PaymentStatus = types.PaymentStatusFailed
	inv.StripePaymentIntentID = pi.ID
	if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
		return "", nil, err
	}

	sub, err := s.SubRepo.GetForUpdate(ctx, inv.SubscriptionID)
	if err != nil {
		return "", nil, err
	}

	// A failed initial purchase leaves the subscription PENDING; the
	// buyer can retry checkout. A failed charge against an active
	// subscription suspends access until payment recovers.
	var events []types.NotificationEventName
	if sub.SubscriptionStatus == types.SubscriptionStatusActive &&
		inv.InvoiceType == types.InvoiceTypeSubscription {
		if err := s.subscriptionService.TransitionToSuspended(ctx, sub); err != nil {
			return "", nil, err
		}
		events = append(events, types.NotificationSubscriptionSuspended)
	}

	return sub.ID, events, nil
}

// handleChargeRefunded marks the invoice refunded. The subscription is
// deliberately left alone; what a refund means for access is an
// operator decision, taken through the cancel endpoint if at all.
func (s *reconciliationService) handleChargeRefunded(ctx context.Context, event *stripe.Event) (string, error) {
	var ch stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
		return "", ierr.WithError(err).
			WithHint("Malformed charge payload").
			Mark(ierr.ErrValidation)
	}

	paymentIntentID := ""
	if ch.PaymentIntent != nil {
		paymentIntentID = ch.PaymentIntent.ID
	}

	inv, err := s.findInvoice(ctx, ch.Metadata[types.MetadataKeyInvoiceID], "", paymentIntentID)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Infow("refund for unknown charge acknowledged", "charge_id", ch.ID)
			return "", nil
		}
		return "", err
	}

	inv.PaymentStatus = types.PaymentStatusRefunded
	if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
		return "", err
	}

	s.Logger.Infow("invoice marked refunded",
		"invoice_id", inv.ID,
		"subscription_id", inv.SubscriptionID,
		"charge_id", ch.ID)
	return inv.SubscriptionID, nil
}

// findInvoice resolves an invoice by, in order of preference, the
// invoice id stamped into metadata, the checkout session, and the
// payment intent.
func (s *reconciliationService) findInvoice(ctx context.Context, invoiceID, sessionID, paymentIntentID string) (*invoice.Invoice, error) {
	if invoiceID != "" {
		return s.InvoiceRepo.Get(ctx, invoiceID)
	}
	if sessionID != "" {
		return s.InvoiceRepo.GetByCheckoutSessionID(ctx, sessionID)
	}
	if paymentIntentID != "" {
		return s.InvoiceRepo.GetByPaymentIntentID(ctx, paymentIntentID)
	}
	return nil, ierr.NewError("payment event carries no invoice reference").
		WithHint("Event metadata has no invoice, session or payment intent reference").
		Mark(ierr.ErrNotFound)
}

func (s *reconciliationService) publishNotification(ctx context.Context, name types.NotificationEventName, subscriptionID string) {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		s.Logger.Errorw("failed to load subscription for notification",
			"error", err,
			"subscription_id", subscriptionID)
		return
	}

	payload, err := json.Marshal(sub)
	if err != nil {
		s.Logger.Errorw("failed to encode notification payload", "error", err)
		return
	}
	event := &types.NotificationEvent{
		EventName:      name,
		TenantID:       types.GetTenantID(ctx),
		OrganizationID: sub.OrganizationID,
		SubscriptionID: sub.ID,
		Payload:        payload,
	}
	if err := s.NotificationPublisher.Publish(ctx, event); err != nil {
		s.Logger.Errorw("failed to publish notification",
			"error", err,
			"event_name", name,
			"subscription_id", sub.ID)
	}
}
