package types

// InvoiceStatus mirrors the processor's invoice lifecycle.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusOpen          InvoiceStatus = "open"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusUncollectible InvoiceStatus = "uncollectible"
)

func (s InvoiceStatus) String() string {
	return string(s)
}

// InvoiceBillingReason records why an invoice exists.
type InvoiceBillingReason string

const (
	InvoiceBillingReasonCycle     InvoiceBillingReason = "cycle"
	InvoiceBillingReasonProration InvoiceBillingReason = "proration"
	InvoiceBillingReasonMigration InvoiceBillingReason = "migration"
)

// InvoiceBillingReasonFromProcessor maps Stripe's billing_reason values onto ours.
func InvoiceBillingReasonFromProcessor(reason string) InvoiceBillingReason {
	switch reason {
	case "subscription_update":
		return InvoiceBillingReasonProration
	default:
		return InvoiceBillingReasonCycle
	}
}
