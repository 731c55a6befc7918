package types

// PaymentEventType is the kind of an inbound payment-processor event.
// Only these kinds drive subscription state; anything else decodes to
// PaymentEventUnknown and is logged and absorbed rather than rejected.
type PaymentEventType string

const (
	PaymentEventCheckoutCompleted PaymentEventType = "checkout.session.completed"
	PaymentEventPaymentSucceeded  PaymentEventType = "payment_intent.succeeded"
	PaymentEventPaymentFailed     PaymentEventType = "payment_intent.payment_failed"
	PaymentEventChargeRefunded    PaymentEventType = "charge.refunded"
	PaymentEventUnknown           PaymentEventType = "unknown"
)

func (t PaymentEventType) String() string {
	return string(t)
}

// ParsePaymentEventType maps a raw processor event name onto the tagged union
func ParsePaymentEventType(raw string) PaymentEventType {
	switch PaymentEventType(raw) {
	case PaymentEventCheckoutCompleted,
		PaymentEventPaymentSucceeded,
		PaymentEventPaymentFailed,
		PaymentEventChargeRefunded:
		return PaymentEventType(raw)
	default:
		return PaymentEventUnknown
	}
}

// PurchaseType is carried in processor metadata and routes an event's
// side effects. Subscription purchases drive the state machine; the other
// kinds belong to external records owned by collaborators outside this core.
type PurchaseType string

const (
	PurchaseTypeSubscription  PurchaseType = "subscription"
	PurchaseTypeSiteVisit     PurchaseType = "site_visit"
	PurchaseTypeQualification PurchaseType = "qualification"
)

// Metadata keys the checkout flow stamps onto processor objects so that
// webhook events can be correlated back to internal records.
const (
	MetadataKeyPurchaseType   = "purchase_type"
	MetadataKeySubscriptionID = "subscription_id"
	MetadataKeyOrganizationID = "organization_id"
	MetadataKeyInvoiceID      = "invoice_id"
	MetadataKeyTenantID       = "tenant_id"
	MetadataKeyRecordID       = "record_id"
)
