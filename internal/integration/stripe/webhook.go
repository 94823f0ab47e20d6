package stripe

import (
	"errors"

	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/domain/webhookevent"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/interfaces"
	"github.com/vibefunder/billing/internal/logger"
)

var _ interfaces.WebhookVerifier = (*WebhookVerifier)(nil)

// WebhookVerifier checks the Stripe-Signature header against the endpoint secret.
type WebhookVerifier struct {
	secret string
	logger *logger.Logger
}

func NewWebhookVerifier(cfg *config.Configuration, logger *logger.Logger) *WebhookVerifier {
	return &WebhookVerifier{secret: cfg.Stripe.WebhookSecret, logger: logger}
}

func (v *WebhookVerifier) Verify(payload []byte, signatureHeader string) (*webhookevent.Event, error) {
	if signatureHeader == "" {
		return nil, ierr.NewError("missing Stripe-Signature header").
			WithHint("Webhook signature is missing").
			Mark(ierr.ErrSignatureVerificationFail)
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			v.logger.Warnw("webhook signature verification failed", "error", err)
			return nil, ierr.WithError(err).
				WithHint("Webhook signature verification failed").
				Mark(ierr.ErrSignatureVerificationFail)
		}
		return nil, ierr.WithError(err).
			WithHint("Invalid webhook payload").
			Mark(ierr.ErrValidation)
	}

	var object []byte
	if evt.Data != nil {
		object = evt.Data.Raw
	}
	return webhookevent.Parse(evt.ID, string(evt.Type), evt.Created, object, payload)
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}
