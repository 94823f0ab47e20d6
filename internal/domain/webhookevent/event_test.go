package webhookevent

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/types"
)

func TestParse(t *testing.T) {
	created := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC).Unix()
	nextAttempt := time.Date(2024, time.May, 4, 12, 0, 0, 0, time.UTC)

	t.Run("payment failed with flat subscription id", func(t *testing.T) {
		object := json.RawMessage(`{
			"id": "in_123",
			"subscription": "sub_123",
			"customer": {"id": "cus_1", "object": "customer"},
			"amount_due": 2500,
			"currency": "usd",
			"attempt_count": 2,
			"billing_reason": "subscription_cycle",
			"next_payment_attempt": ` + jsonInt(nextAttempt.Unix()) + `
		}`)

		evt, err := Parse("evt_1", "invoice.payment_failed", created, object, nil)
		require.NoError(t, err)

		payload, ok := evt.Payload.(InvoicePaymentFailed)
		require.True(t, ok)
		assert.Equal(t, "in_123", payload.Invoice.ID)
		assert.Equal(t, "sub_123", payload.SubscriptionRef())
		assert.Equal(t, "cus_1", payload.Invoice.CustomerID)
		assert.Equal(t, 2, payload.Invoice.AttemptCount)
		require.NotNil(t, payload.Invoice.NextPaymentAttempt)
		assert.True(t, nextAttempt.Equal(*payload.Invoice.NextPaymentAttempt))
		assert.Equal(t, time.Unix(created, 0).UTC(), evt.CreatedAt)
	})

	t.Run("payment succeeded with parent subscription details", func(t *testing.T) {
		object := json.RawMessage(`{
			"id": "in_456",
			"amount_due": 5000,
			"amount_paid": 5000,
			"currency": "usd",
			"attempt_count": 1,
			"next_payment_attempt": null,
			"parent": {"subscription_details": {"subscription": "sub_456"}}
		}`)

		evt, err := Parse("evt_2", "invoice.payment_succeeded", created, object, nil)
		require.NoError(t, err)

		payload, ok := evt.Payload.(InvoicePaymentSucceeded)
		require.True(t, ok)
		assert.Equal(t, "sub_456", payload.SubscriptionRef())
		assert.Nil(t, payload.Invoice.NextPaymentAttempt)
	})

	t.Run("both deletion types map to subscription deleted", func(t *testing.T) {
		object := json.RawMessage(`{"id": "sub_789", "status": "canceled", "customer": "cus_9"}`)

		for _, eventType := range []types.WebhookEventType{
			types.WebhookEventSubscriptionDeleted,
			types.WebhookEventCustomerSubscriptionDeleted,
		} {
			evt, err := Parse("evt_3", eventType.String(), created, object, nil)
			require.NoError(t, err)
			payload, ok := evt.Payload.(SubscriptionDeleted)
			require.True(t, ok, eventType)
			assert.Equal(t, "sub_789", payload.SubscriptionRef())
			assert.Equal(t, "cus_9", payload.Subscription.CustomerID)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		evt, err := Parse("evt_4", "charge.refunded", created, json.RawMessage(`{"id": "ch_1"}`), nil)
		require.NoError(t, err)
		payload, ok := evt.Payload.(Unknown)
		require.True(t, ok)
		assert.Equal(t, "charge.refunded", payload.Type)
		assert.Empty(t, payload.SubscriptionRef())
	})

	t.Run("malformed object", func(t *testing.T) {
		_, err := Parse("evt_5", "invoice.payment_failed", created, json.RawMessage(`[1,2]`), nil)
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := Parse("", "invoice.payment_failed", created, json.RawMessage(`{}`), nil)
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	})
}

func TestRecordLifecycle(t *testing.T) {
	now := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	evt := &Event{ID: "evt_1", Type: types.WebhookEventInvoicePaymentFailed}

	rec := NewRecord(evt, now)
	assert.Equal(t, types.WebhookEventStatusPending, rec.Status)
	assert.JSONEq(t, `{}`, string(rec.Payload))
	assert.False(t, rec.IsTerminal())

	rec.Fail("boom", now)
	assert.False(t, rec.IsTerminal())
	require.NotNil(t, rec.ErrorMessage)

	rec.Finish(types.WebhookEventStatusApplied, now)
	assert.True(t, rec.IsTerminal())
	assert.Nil(t, rec.ErrorMessage)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
