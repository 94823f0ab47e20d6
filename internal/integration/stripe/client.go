package stripe

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/stripe/stripe-go/v82"
	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/interfaces"
	"github.com/vibefunder/billing/internal/logger"
	sentryService "github.com/vibefunder/billing/internal/sentry"
)

var _ interfaces.PaymentGateway = (*Gateway)(nil)

// Gateway implements the payment gateway on the Stripe API. It makes exactly one
// API attempt per call; retries and rate limiting are layered on top.
type Gateway struct {
	api    *stripe.Client
	logger *logger.Logger
	sentry *sentryService.Service
}

// NewGateway creates a gateway for the configured secret key
func NewGateway(cfg *config.Configuration, logger *logger.Logger, sentry *sentryService.Service) *Gateway {
	return &Gateway{
		api:    stripe.NewClient(cfg.Stripe.SecretKey, nil),
		logger: logger,
		sentry: sentry,
	}
}

// span starts a Sentry span for one API call; the returned func must be deferred.
func (g *Gateway) span(ctx context.Context, operation string, data map[string]interface{}) (context.Context, func()) {
	var span *sentry.Span
	span, ctx = g.sentry.StartProcessorSpan(ctx, operation, data)
	return ctx, func() {
		if span != nil {
			span.Finish()
		}
	}
}
