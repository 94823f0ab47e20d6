package types

// WebhookEventType is the processor's event type string.
type WebhookEventType string

const (
	WebhookEventInvoicePaymentSucceeded     WebhookEventType = "invoice.payment_succeeded"
	WebhookEventInvoicePaymentFailed        WebhookEventType = "invoice.payment_failed"
	WebhookEventSubscriptionDeleted         WebhookEventType = "subscription.deleted"
	WebhookEventCustomerSubscriptionDeleted WebhookEventType = "customer.subscription.deleted"
)

func (t WebhookEventType) String() string {
	return string(t)
}

// WebhookEventStatus is the processing state of a received event.
type WebhookEventStatus string

const (
	WebhookEventStatusPending          WebhookEventStatus = "pending"
	WebhookEventStatusApplied          WebhookEventStatus = "applied"
	WebhookEventStatusIgnoredDuplicate WebhookEventStatus = "ignored_duplicate"
	WebhookEventStatusFailed           WebhookEventStatus = "failed"
)

// IsTerminal reports whether a record in this status must never be processed again.
func (s WebhookEventStatus) IsTerminal() bool {
	return s == WebhookEventStatusApplied || s == WebhookEventStatusIgnoredDuplicate
}

func (s WebhookEventStatus) String() string {
	return string(s)
}
