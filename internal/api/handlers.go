package api

import (
	"github.com/vibefunder/billing/internal/api/cron"
	v1 "github.com/vibefunder/billing/internal/api/v1"
	"github.com/vibefunder/billing/internal/interfaces"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/service"
	"go.uber.org/fx"
)

// Module provides the HTTP handlers and the gin engine.
func Module() fx.Option {
	return fx.Module("api",
		fx.Provide(
			NewHandlers,
			NewRouter,
		),
	)
}

func NewHandlers(
	subscriptions service.SubscriptionService,
	prices service.PriceCatalogService,
	analytics service.RevenueAnalyticsService,
	webhooks service.WebhookProcessorService,
	dunning service.DunningService,
	verifier interfaces.WebhookVerifier,
	logger *logger.Logger,
) Handlers {
	return Handlers{
		Health:           v1.NewHealthHandler(),
		Subscription:     v1.NewSubscriptionHandler(subscriptions, logger),
		Dunning:          v1.NewDunningHandler(dunning, logger),
		Price:            v1.NewPriceHandler(prices, logger),
		Analytics:        v1.NewAnalyticsHandler(analytics, logger),
		Webhook:          v1.NewWebhookHandler(verifier, webhooks, logger),
		CronSubscription: cron.NewSubscriptionHandler(subscriptions, logger),
		CronDunning:      cron.NewDunningHandler(dunning, logger),
	}
}
