package interfaces

import (
	"context"
	"time"

	"github.com/vibefunder/billing/internal/domain/webhookevent"
	"github.com/vibefunder/billing/internal/types"
)

// PaymentGateway is billing's view of the external payment processor. Every
// mutating call carries an idempotency key so a repeated call has one effect.
type PaymentGateway interface {
	// EnsureCustomer returns the processor customer for the backer, creating it if needed.
	EnsureCustomer(ctx context.Context, req *EnsureCustomerRequest) (string, error)
	// ResolveDiscount maps a customer facing code to an active processor promotion
	// code id. Unknown or inactive codes return an ErrInvalidDiscount marked error.
	ResolveDiscount(ctx context.Context, code string) (string, error)
	CreateSubscription(ctx context.Context, req *CreateSubscriptionRequest) (*ProcessorSubscription, error)
	ChangePrice(ctx context.Context, req *ChangePriceRequest) (*ProcessorSubscription, error)
	// CancelSubscription treats a subscription the processor already canceled as success.
	CancelSubscription(ctx context.Context, processorSubscriptionID, idempotencyKey string) error
	// SetCancelAtPeriodEnd stops (or restores) the processor's renewal at the end
	// of the current period without ending the subscription now.
	SetCancelAtPeriodEnd(ctx context.Context, processorSubscriptionID string, cancel bool, idempotencyKey string) error
	PauseCollection(ctx context.Context, processorSubscriptionID, idempotencyKey string) error
	ResumeCollection(ctx context.Context, processorSubscriptionID, idempotencyKey string) error
	// AttachPaymentMethod attaches the method to the customer and makes it the
	// subscription's default. Rejections return an ErrInvalidPaymentMethod marked error.
	AttachPaymentMethod(ctx context.Context, req *AttachPaymentMethodRequest) error
}

// WebhookVerifier authenticates a raw webhook delivery and decodes it.
type WebhookVerifier interface {
	// Verify returns an ErrSignatureVerificationFail marked error when the
	// signature does not match the payload.
	Verify(payload []byte, signatureHeader string) (*webhookevent.Event, error)
}

type EnsureCustomerRequest struct {
	BackerID       string
	IdempotencyKey string
}

type CreateSubscriptionRequest struct {
	CustomerID       string
	ProcessorPriceID string
	// PromotionCodeID is the resolved discount, if any.
	PromotionCodeID string
	TrialEnd        *time.Time
	IdempotencyKey  string
	Metadata        map[string]string
}

type ChangePriceRequest struct {
	ProcessorSubscriptionID string
	ProcessorPriceID        string
	ProrationBehavior       types.ProrationBehavior
	// ProrationDate pins the processor's proration to the locally computed instant.
	ProrationDate  *time.Time
	IdempotencyKey string
	Metadata       map[string]string
}

type AttachPaymentMethodRequest struct {
	CustomerID              string
	ProcessorSubscriptionID string
	PaymentMethodID         string
	IdempotencyKey          string
}

// ProcessorSubscription is the processor's state after a call.
type ProcessorSubscription struct {
	ID            string
	CustomerID    string
	Status        string
	LatestInvoice *ProcessorInvoice
}

type ProcessorInvoice struct {
	ID            string
	AmountDue     int64
	AmountPaid    int64
	Currency      string
	Status        string
	BillingReason string
	AttemptCount  int
}
