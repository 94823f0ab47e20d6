package stripe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/domain/webhookevent"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/logger"
)

const testWebhookSecret = "whsec_test_secret"

func newTestVerifier() *WebhookVerifier {
	cfg := config.GetDefaultConfig()
	cfg.Stripe.WebhookSecret = testWebhookSecret
	return NewWebhookVerifier(cfg, logger.NewNopLogger())
}

func failedInvoicePayload(eventID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": "invoice.payment_failed",
		"created": 1710000000,
		"data": {
			"object": {
				"id": "in_123",
				"object": "invoice",
				"customer": "cus_123",
				"subscription": "sub_123",
				"amount_due": 2500,
				"amount_paid": 0,
				"currency": "usd",
				"attempt_count": 2,
				"next_payment_attempt": 1710086400,
				"billing_reason": "subscription_cycle"
			}
		}
	}`, eventID))
}

func sign(payload []byte, secret string) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestWebhookVerifierAcceptsValidSignature(t *testing.T) {
	v := newTestVerifier()
	payload := failedInvoicePayload("evt_1")

	evt, err := v.Verify(payload, sign(payload, testWebhookSecret))
	require.NoError(t, err)

	assert.Equal(t, "evt_1", evt.ID)
	failed, ok := evt.Payload.(webhookevent.InvoicePaymentFailed)
	require.True(t, ok)
	assert.Equal(t, "in_123", failed.Invoice.ID)
	assert.Equal(t, "sub_123", failed.Invoice.SubscriptionID)
	assert.Equal(t, 2, failed.Invoice.AttemptCount)
	require.NotNil(t, failed.Invoice.NextPaymentAttempt)
	assert.Equal(t, int64(1710086400), failed.Invoice.NextPaymentAttempt.Unix())
}

func TestWebhookVerifierRejectsBadSignature(t *testing.T) {
	v := newTestVerifier()
	payload := failedInvoicePayload("evt_2")

	_, err := v.Verify(payload, sign(payload, "whsec_other"))
	require.Error(t, err)
	assert.True(t, ierr.Is(err, ierr.ErrSignatureVerificationFail))
}

func TestWebhookVerifierRejectsTamperedPayload(t *testing.T) {
	v := newTestVerifier()
	payload := failedInvoicePayload("evt_3")
	header := sign(payload, testWebhookSecret)

	_, err := v.Verify(failedInvoicePayload("evt_4"), header)
	require.Error(t, err)
	assert.True(t, ierr.Is(err, ierr.ErrSignatureVerificationFail))
}

func TestWebhookVerifierRejectsMissingHeader(t *testing.T) {
	_, err := newTestVerifier().Verify(failedInvoicePayload("evt_5"), "")
	require.Error(t, err)
	assert.True(t, ierr.Is(err, ierr.ErrSignatureVerificationFail))
}
