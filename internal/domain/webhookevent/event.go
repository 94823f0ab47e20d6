package webhookevent

import (
	"encoding/json"
	"time"

	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/types"
)

// Event is a verified processor notification. Payload holds exactly one of the
// variant types below.
type Event struct {
	ID        string
	Type      types.WebhookEventType
	CreatedAt time.Time
	Payload   Payload

	// Raw is the full event body as received, kept for audit.
	Raw json.RawMessage
}

// Payload is implemented by every event variant.
type Payload interface {
	isPayload()
	// SubscriptionRef is the processor subscription id the event targets, if any.
	SubscriptionRef() string
}

type InvoicePaymentSucceeded struct {
	Invoice InvoiceObject
}

type InvoicePaymentFailed struct {
	Invoice InvoiceObject
}

type SubscriptionDeleted struct {
	Subscription SubscriptionObject
}

// Unknown is any event type the processor sends that billing does not act on.
type Unknown struct {
	Type string
}

func (InvoicePaymentSucceeded) isPayload() {}
func (InvoicePaymentFailed) isPayload() {}
func (SubscriptionDeleted) isPayload() {}
func (Unknown) isPayload() {}

func (p InvoicePaymentSucceeded) SubscriptionRef() string { return p.Invoice.SubscriptionID }
func (p InvoicePaymentFailed) SubscriptionRef() string { return p.Invoice.SubscriptionID }
func (p SubscriptionDeleted) SubscriptionRef() string { return p.Subscription.ID }
func (Unknown) SubscriptionRef() string { return "" }

// InvoiceObject is the subset of the processor invoice billing reads.
type InvoiceObject struct {
	ID             string
	SubscriptionID string
	CustomerID     string
	AmountDue      int64
	AmountPaid     int64
	Currency       string
	AttemptCount   int
	BillingReason  string
	// NextPaymentAttempt is nil when the processor will not retry.
	NextPaymentAttempt *time.Time
	PeriodStart        *time.Time
	PeriodEnd          *time.Time
}

// SubscriptionObject is the subset of the processor subscription billing reads.
type SubscriptionObject struct {
	ID         string
	CustomerID string
	Status     string
	CanceledAt *time.Time
}

// Parse builds an Event from the verified envelope fields and the raw data.object JSON.
func Parse(id string, eventType string, created int64, object json.RawMessage, raw json.RawMessage) (*Event, error) {
	if id == "" {
		return nil, ierr.NewError("event id is required").
			WithHint("Invalid webhook event").
			Mark(ierr.ErrValidation)
	}

	evt := &Event{
		ID:        id,
		Type:      types.WebhookEventType(eventType),
		CreatedAt: time.Unix(created, 0).UTC(),
		Raw:       raw,
	}

	switch evt.Type {
	case types.WebhookEventInvoicePaymentSucceeded:
		inv, err := parseInvoice(object)
		if err != nil {
			return nil, err
		}
		evt.Payload = InvoicePaymentSucceeded{Invoice: inv}
	case types.WebhookEventInvoicePaymentFailed:
		inv, err := parseInvoice(object)
		if err != nil {
			return nil, err
		}
		evt.Payload = InvoicePaymentFailed{Invoice: inv}
	case types.WebhookEventSubscriptionDeleted, types.WebhookEventCustomerSubscriptionDeleted:
		sub, err := parseSubscription(object)
		if err != nil {
			return nil, err
		}
		evt.Payload = SubscriptionDeleted{Subscription: sub}
	default:
		evt.Payload = Unknown{Type: eventType}
	}
	return evt, nil
}

// expandable decodes a field the processor sends either as an id string or as an
// expanded object with an id.
type expandable string

func (e *expandable) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*e = expandable(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandable(obj.ID)
	return nil
}

type invoiceWire struct {
	ID                 string     `json:"id"`
	Subscription       expandable `json:"subscription"`
	Customer           expandable `json:"customer"`
	AmountDue          int64      `json:"amount_due"`
	AmountPaid         int64      `json:"amount_paid"`
	Currency           string     `json:"currency"`
	AttemptCount       int        `json:"attempt_count"`
	BillingReason      string     `json:"billing_reason"`
	NextPaymentAttempt *int64     `json:"next_payment_attempt"`
	PeriodStart        *int64     `json:"period_start"`
	PeriodEnd          *int64     `json:"period_end"`
	Parent             *struct {
		SubscriptionDetails *struct {
			Subscription expandable `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

type subscriptionWire struct {
	ID         string     `json:"id"`
	Customer   expandable `json:"customer"`
	Status     string     `json:"status"`
	CanceledAt *int64     `json:"canceled_at"`
}

func parseInvoice(object json.RawMessage) (InvoiceObject, error) {
	var w invoiceWire
	if err := json.Unmarshal(object, &w); err != nil {
		return InvoiceObject{}, malformed(err, "invoice")
	}
	if w.ID == "" {
		return InvoiceObject{}, ierr.NewError("invoice id is missing").
			WithHint("Invalid webhook event").
			Mark(ierr.ErrValidation)
	}

	subID := string(w.Subscription)
	if subID == "" && w.Parent != nil && w.Parent.SubscriptionDetails != nil {
		subID = string(w.Parent.SubscriptionDetails.Subscription)
	}

	return InvoiceObject{
		ID:                 w.ID,
		SubscriptionID:     subID,
		CustomerID:         string(w.Customer),
		AmountDue:          w.AmountDue,
		AmountPaid:         w.AmountPaid,
		Currency:           w.Currency,
		AttemptCount:       w.AttemptCount,
		BillingReason:      w.BillingReason,
		NextPaymentAttempt: unixPtr(w.NextPaymentAttempt),
		PeriodStart:        unixPtr(w.PeriodStart),
		PeriodEnd:          unixPtr(w.PeriodEnd),
	}, nil
}

func parseSubscription(object json.RawMessage) (SubscriptionObject, error) {
	var w subscriptionWire
	if err := json.Unmarshal(object, &w); err != nil {
		return SubscriptionObject{}, malformed(err, "subscription")
	}
	if w.ID == "" {
		return SubscriptionObject{}, ierr.NewError("subscription id is missing").
			WithHint("Invalid webhook event").
			Mark(ierr.ErrValidation)
	}
	return SubscriptionObject{
		ID:         w.ID,
		CustomerID: string(w.Customer),
		Status:     w.Status,
		CanceledAt: unixPtr(w.CanceledAt),
	}, nil
}

func unixPtr(v *int64) *time.Time {
	if v == nil || *v == 0 {
		return nil
	}
	t := time.Unix(*v, 0).UTC()
	return &t
}

func malformed(err error, object string) error {
	return ierr.WithError(err).
		WithHintf("Invalid %s object in webhook event", object).
		Mark(ierr.ErrValidation)
}
