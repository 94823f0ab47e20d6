package dto

import "github.com/vibefunder/billing/internal/types"

// WebhookResponse acknowledges a processor delivery.
type WebhookResponse struct {
	EventID   string                   `json:"event_id"`
	EventType types.WebhookEventType   `json:"event_type"`
	Status    types.WebhookEventStatus `json:"status"`
	// Replay is true when the event had already been handled and nothing was changed.
	Replay   bool     `json:"replay,omitempty"`
	Warnings Warnings `json:"warnings,omitempty"`
}
