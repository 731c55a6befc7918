package auditlog

import (
	"encoding/json"
	"time"

	"github.com/memberflow/memberflow/internal/types"
)

// Entry is an append-only record of a subscription transition, kept for
// compliance traceability. Entries are written inside the transition's
// transaction and never updated or deleted.
type Entry struct {
	ID string `db:"id" json:"id"`

	// Actor is the user (or "system" for scanner/webhook driven
	// transitions) that caused the transition
	Actor string `db:"actor" json:"actor"`

	// Action names the transition, e.g. "subscription.activated"
	Action string `db:"action" json:"action"`

	SubscriptionID string `db:"subscription_id" json:"subscription_id"`
	OrganizationID string `db:"organization_id" json:"organization_id"`

	// Before and After are JSON summaries of the fields the transition touched
	Before json.RawMessage `db:"before" json:"before,omitempty"`
	After  json.RawMessage `db:"after" json:"after,omitempty"`

	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`

	types.BaseModel
}
