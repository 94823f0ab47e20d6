package invoice

import (
	"time"

	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/types"
)

// Invoice is a request for payment against a subscription.
type Invoice struct {
	ID             string `db:"id" json:"id"`
	SubscriptionID string `db:"subscription_id" json:"subscription_id"`

	// ProcessorInvoiceID is empty for local audit invoices.
	ProcessorInvoiceID *string `db:"processor_invoice_id" json:"processor_invoice_id,omitempty"`

	// Amounts are in minor currency units.
	AmountDue  int64  `db:"amount_due" json:"amount_due"`
	AmountPaid int64  `db:"amount_paid" json:"amount_paid"`
	Currency   string `db:"currency" json:"currency"`

	Status        types.InvoiceStatus        `db:"invoice_status" json:"status"`
	BillingReason types.InvoiceBillingReason `db:"billing_reason" json:"billing_reason"`

	AttemptCount  int        `db:"attempt_count" json:"attempt_count"`
	NextAttemptAt *time.Time `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
	PaidAt        *time.Time `db:"paid_at" json:"paid_at,omitempty"`

	types.BaseModel
}

// IsPaid reports whether the invoice has been settled.
func (i *Invoice) IsPaid() bool {
	return i.Status == types.InvoiceStatusPaid
}

// MarkPaid settles the invoice in full. It returns false when the invoice was already paid.
func (i *Invoice) MarkPaid(at time.Time) bool {
	if i.IsPaid() {
		return false
	}
	i.Status = types.InvoiceStatusPaid
	i.AmountPaid = i.AmountDue
	i.NextAttemptAt = nil
	i.PaidAt = &at
	return true
}

// RecordFailedAttempt applies a processor reported failure. The processor's attempt
// count is authoritative when present and is clamped to max; without one the local
// count advances by one. A count that does not move forward is stale and leaves the
// invoice untouched, reported by the second return value.
func (i *Invoice) RecordFailedAttempt(processorCount int, nextAttempt *time.Time, max int) (int, bool) {
	count := i.AttemptCount + 1
	if processorCount > 0 {
		if processorCount <= i.AttemptCount {
			return i.AttemptCount, false
		}
		count = processorCount
	}
	if count > max {
		count = max
	}

	i.AttemptCount = count
	i.NextAttemptAt = nextAttempt
	if i.Status == types.InvoiceStatusDraft {
		i.Status = types.InvoiceStatusOpen
	}
	if count >= max {
		i.NextAttemptAt = nil
		i.Status = types.InvoiceStatusUncollectible
	}
	return count, true
}

// Validate checks amount_paid <= amount_due, with equality once paid.
func (i *Invoice) Validate() error {
	if i.AmountDue < 0 || i.AmountPaid < 0 {
		return ierr.NewError("invoice amounts must not be negative").
			WithHint("Invalid invoice amount").
			Mark(ierr.ErrValidation)
	}
	if i.AmountPaid > i.AmountDue {
		return ierr.NewError("amount paid exceeds amount due").
			WithHint("Invalid invoice amount").
			WithReportableDetails(map[string]any{
				"amount_due":  i.AmountDue,
				"amount_paid": i.AmountPaid,
			}).
			Mark(ierr.ErrValidation)
	}
	if i.IsPaid() && i.AmountPaid != i.AmountDue {
		return ierr.NewError("paid invoice must be settled in full").
			WithHint("Invalid invoice amount").
			Mark(ierr.ErrValidation)
	}
	return nil
}
