package dunning

import (
	"context"
	"time"

	"github.com/vibefunder/billing/internal/types"
)

// Attempt is one scheduled or completed payment retry for an invoice.
type Attempt struct {
	ID             string               `db:"id" json:"id"`
	SubscriptionID string               `db:"subscription_id" json:"subscription_id"`
	InvoiceID      string               `db:"invoice_id" json:"invoice_id"`
	AttemptNumber  int                  `db:"attempt_number" json:"attempt_number"`
	ScheduledAt    time.Time            `db:"scheduled_at" json:"scheduled_at"`
	Outcome        types.DunningOutcome `db:"outcome" json:"outcome"`

	types.BaseModel
}

// NewAttempt returns an attempt row with a fresh id.
func NewAttempt(ctx context.Context, subscriptionID, invoiceID string, number int, scheduledAt time.Time, outcome types.DunningOutcome) *Attempt {
	return &Attempt{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_DUNNING_ATTEMPT),
		SubscriptionID: subscriptionID,
		InvoiceID:      invoiceID,
		AttemptNumber:  number,
		ScheduledAt:    scheduledAt,
		Outcome:        outcome,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
}

// IsPending reports whether the outcome may still change.
func (a *Attempt) IsPending() bool {
	return a.Outcome == types.DunningOutcomePending
}

type Repository interface {
	// Create fails with ErrAlreadyExists when (invoice, attempt number) is taken.
	Create(ctx context.Context, attempt *Attempt) error
	Get(ctx context.Context, invoiceID string, attemptNumber int) (*Attempt, error)
	ListBySubscription(ctx context.Context, subscriptionID string) ([]*Attempt, error)
	ListPendingBySubscription(ctx context.Context, subscriptionID string) ([]*Attempt, error)
	// UpdateOutcome changes the outcome of a pending attempt only.
	UpdateOutcome(ctx context.Context, attempt *Attempt) error
}
