package webhookevent

import (
	"encoding/json"
	"time"

	"github.com/vibefunder/billing/internal/types"
)

// Record is the persisted processing state of one processor event id.
type Record struct {
	ID          string                   `db:"id" json:"id"`
	EventType   types.WebhookEventType   `db:"event_type" json:"event_type"`
	Status      types.WebhookEventStatus `db:"event_status" json:"status"`
	ReceivedAt  time.Time                `db:"received_at" json:"received_at"`
	ProcessedAt *time.Time               `db:"processed_at" json:"processed_at,omitempty"`
	// ErrorMessage is internal only and never returned to callers.
	ErrorMessage *string         `db:"error_message" json:"-"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Attempts     int             `db:"attempts" json:"attempts"`
}

// NewRecord returns a pending record for a freshly received event.
func NewRecord(evt *Event, at time.Time) *Record {
	payload := evt.Raw
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return &Record{
		ID:         evt.ID,
		EventType:  evt.Type,
		Status:     types.WebhookEventStatusPending,
		ReceivedAt: at,
		Payload:    payload,
	}
}

// IsTerminal reports whether the record must never be processed again.
func (r *Record) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// Finish moves the record to a final status.
func (r *Record) Finish(status types.WebhookEventStatus, at time.Time) {
	r.Status = status
	r.ProcessedAt = &at
	r.ErrorMessage = nil
}

// Fail marks the record retryable with the internal reason.
func (r *Record) Fail(reason string, at time.Time) {
	r.Status = types.WebhookEventStatusFailed
	r.ProcessedAt = &at
	r.ErrorMessage = &reason
}
