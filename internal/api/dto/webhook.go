package dto

// WebhookResponse acknowledges receipt of a payment processor event.
// Replays and event kinds we do not act on are acknowledged the same
// way as first deliveries so the processor stops retrying.
type WebhookResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
}

// ReminderRunResponse summarizes one renewal reminder scan.
type ReminderRunResponse struct {
	Scanned       int `json:"scanned"`
	RemindersSent int `json:"reminders_sent"`
	Failed        int `json:"failed"`
}

// TransitionRunResponse summarizes one boundary transition scan.
type TransitionRunResponse struct {
	Scanned   int `json:"scanned"`
	Renewed   int `json:"renewed"`
	Cancelled int `json:"cancelled"`
	Failed    int `json:"failed"`
}
