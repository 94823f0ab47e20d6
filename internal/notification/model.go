package notification

import (
	"context"
	"time"

	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/types"
)

// Notification is a fire-and-forget message for the email collaborator.
type Notification struct {
	ID             string                 `json:"id"`
	Type           types.NotificationType `json:"type"`
	SubscriptionID string                 `json:"subscription_id"`
	BackerID       string                 `json:"backer_id"`
	CampaignID     string                 `json:"campaign_id"`
	InvoiceID      string                 `json:"invoice_id,omitempty"`
	AmountDue      int64                  `json:"amount_due,omitempty"`
	Currency       string                 `json:"currency,omitempty"`
	// NextRetryAt is set on payment failure notifications.
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	// GraceDeadline is set on final warnings.
	GraceDeadline *time.Time `json:"grace_deadline,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
	RequestID     string     `json:"request_id,omitempty"`
}

// New creates a notification stamped with an id and the request id from ctx
func New(ctx context.Context, kind types.NotificationType, subscriptionID, backerID, campaignID string, at time.Time) *Notification {
	return &Notification{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_NOTIFICATION),
		Type:           kind,
		SubscriptionID: subscriptionID,
		BackerID:       backerID,
		CampaignID:     campaignID,
		OccurredAt:     at.UTC(),
		RequestID:      types.GetRequestID(ctx),
	}
}

func (n *Notification) Validate() error {
	if n.ID == "" || n.Type == "" || n.SubscriptionID == "" {
		return ierr.NewError("notification is missing id, type or subscription").
			WithHint("Invalid notification").
			Mark(ierr.ErrValidation)
	}
	return nil
}
