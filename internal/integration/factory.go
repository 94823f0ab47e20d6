package integration

import (
	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/integration/stripe"
	"github.com/vibefunder/billing/internal/interfaces"
	"github.com/vibefunder/billing/internal/logger"
	sentryService "github.com/vibefunder/billing/internal/sentry"
	"go.uber.org/fx"
)

// Module provides the payment gateway and webhook verifier
func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			NewPaymentGateway,
			NewWebhookVerifier,
		),
	)
}

// NewPaymentGateway returns the Stripe gateway behind the retry decorator
func NewPaymentGateway(cfg *config.Configuration, logger *logger.Logger, sentry *sentryService.Service) interfaces.PaymentGateway {
	return NewRetryingGateway(stripe.NewGateway(cfg, logger, sentry), cfg.Stripe, logger)
}

func NewWebhookVerifier(cfg *config.Configuration, logger *logger.Logger) interfaces.WebhookVerifier {
	return stripe.NewWebhookVerifier(cfg, logger)
}
