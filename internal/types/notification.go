package types

import (
	"encoding/json"
	"time"
)

// NotificationEventName identifies what happened to a subscription.
// Consumed by the external notifier; delivery and templating live there.
type NotificationEventName string

const (
	NotificationSubscriptionCreated   NotificationEventName = "subscription.created"
	NotificationSubscriptionActivated NotificationEventName = "subscription.activated"
	NotificationSubscriptionSuspended NotificationEventName = "subscription.suspended"
	NotificationSubscriptionCancelled NotificationEventName = "subscription.cancelled"
	NotificationPlanChanged           NotificationEventName = "subscription.plan_changed"
	NotificationPlanChangeScheduled   NotificationEventName = "subscription.plan_change_scheduled"
	NotificationCancellationScheduled NotificationEventName = "subscription.cancellation_scheduled"
	NotificationRenewalReminder       NotificationEventName = "subscription.renewal_reminder"
	NotificationRenewed               NotificationEventName = "subscription.renewed"
)

// NotificationEvent is the unit handed off to the notifier. The core only
// guarantees the handoff was attempted; a failed or lost notification must
// never roll back the transition that produced it.
type NotificationEvent struct {
	ID             string                `json:"id"`
	EventName      NotificationEventName `json:"event_name"`
	TenantID       string                `json:"tenant_id"`
	OrganizationID string                `json:"organization_id"`
	SubscriptionID string                `json:"subscription_id"`
	Timestamp      time.Time             `json:"timestamp"`
	Payload        json.RawMessage       `json:"payload,omitempty"`
}
