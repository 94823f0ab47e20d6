package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibefunder/billing/internal/config"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/interfaces"
	"github.com/vibefunder/billing/internal/logger"
)

// scriptedGateway returns the scripted errors in order, then succeeds.
type scriptedGateway struct {
	interfaces.PaymentGateway
	errs  []error
	calls int
}

func (s *scriptedGateway) next() error {
	s.calls++
	if s.calls <= len(s.errs) {
		return s.errs[s.calls-1]
	}
	return nil
}

func (s *scriptedGateway) CancelSubscription(ctx context.Context, id, key string) error {
	return s.next()
}

func (s *scriptedGateway) CreateSubscription(ctx context.Context, req *interfaces.CreateSubscriptionRequest) (*interfaces.ProcessorSubscription, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return &interfaces.ProcessorSubscription{ID: "sub_123", Status: "active"}, nil
}

func (s *scriptedGateway) ResolveDiscount(ctx context.Context, code string) (string, error) {
	if err := s.next(); err != nil {
		return "", err
	}
	return "promo_1", nil
}

func unavailable() error {
	return ierr.NewError("503 from processor").Mark(ierr.ErrProcessorUnavailable)
}

func rateLimited() error {
	return ierr.NewError("429 from processor").Mark(ierr.ErrProcessorRateLimited)
}

func testStripeConfig() config.StripeConfig {
	return config.StripeConfig{
		Timeout:              time.Second,
		MaxRetries:           3,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     2 * time.Millisecond,
		RateLimit:            1000,
		RateBurst:            10,
	}
}

func TestRetryingGatewayRetriesTransientFailures(t *testing.T) {
	next := &scriptedGateway{errs: []error{unavailable(), rateLimited()}}
	g := NewRetryingGateway(next, testStripeConfig(), logger.NewNopLogger())

	sub, err := g.CreateSubscription(context.Background(), &interfaces.CreateSubscriptionRequest{IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "sub_123", sub.ID)
	assert.Equal(t, 3, next.calls)
}

func TestRetryingGatewayDoesNotRetryBusinessErrors(t *testing.T) {
	rejected := ierr.NewError("no such promotion code").Mark(ierr.ErrInvalidDiscount)
	next := &scriptedGateway{errs: []error{rejected}}
	g := NewRetryingGateway(next, testStripeConfig(), logger.NewNopLogger())

	_, err := g.ResolveDiscount(context.Background(), "INVALID_CODE")
	require.Error(t, err)
	assert.True(t, ierr.Is(err, ierr.ErrInvalidDiscount))
	assert.Equal(t, 1, next.calls)
}

func TestRetryingGatewayGivesUpAfterMaxRetries(t *testing.T) {
	next := &scriptedGateway{errs: []error{unavailable(), unavailable(), unavailable(), unavailable(), unavailable()}}
	g := NewRetryingGateway(next, testStripeConfig(), logger.NewNopLogger())

	err := g.CancelSubscription(context.Background(), "sub_123", "k")
	require.Error(t, err)
	assert.True(t, ierr.IsProcessorTransient(err))
	assert.Equal(t, 4, next.calls)
}

func TestRetryingGatewayStopsOnCanceledContext(t *testing.T) {
	next := &scriptedGateway{errs: []error{unavailable(), unavailable(), unavailable(), unavailable()}}
	g := NewRetryingGateway(next, testStripeConfig(), logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.CancelSubscription(ctx, "sub_123", "k")
	require.Error(t, err)
	assert.True(t, ierr.IsProcessorTransient(err))
	assert.Equal(t, 0, next.calls)
}
