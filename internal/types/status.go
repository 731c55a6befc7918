package types

// Status is a type for the row status of a persisted resource.
// This tracks soft deletion and is independent of domain lifecycle
// statuses like SubscriptionStatus.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDeleted  Status = "deleted"
)
