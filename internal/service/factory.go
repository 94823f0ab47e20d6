package service

import (
	"time"

	"github.com/vibefunder/billing/internal/cache"
	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/domain/dunning"
	"github.com/vibefunder/billing/internal/domain/invoice"
	"github.com/vibefunder/billing/internal/domain/price"
	"github.com/vibefunder/billing/internal/domain/proration"
	"github.com/vibefunder/billing/internal/domain/subscription"
	"github.com/vibefunder/billing/internal/domain/webhookevent"
	"github.com/vibefunder/billing/internal/idempotency"
	"github.com/vibefunder/billing/internal/interfaces"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/notification"
	"github.com/vibefunder/billing/internal/postgres"
	"github.com/vibefunder/billing/internal/sentry"
	"go.uber.org/fx"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient
	Sentry *sentry.Service
	Cache  cache.Cache

	// Repositories
	PriceRepo          price.Repository
	SubRepo            subscription.Repository
	InvoiceRepo        invoice.Repository
	WebhookEventRepo   webhookevent.Repository
	DunningAttemptRepo dunning.Repository

	// Payment processor
	Gateway     interfaces.PaymentGateway
	Idempotency *idempotency.Generator

	Calculator proration.Calculator
	Notifier   notification.Publisher

	// Now is the clock every service reads. Tests replace it with a fixed one.
	Now func() time.Time
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	sentry *sentry.Service,
	cache cache.Cache,
	priceRepo price.Repository,
	subRepo subscription.Repository,
	invoiceRepo invoice.Repository,
	webhookEventRepo webhookevent.Repository,
	dunningAttemptRepo dunning.Repository,
	gateway interfaces.PaymentGateway,
	notifier notification.Publisher,
) ServiceParams {
	return ServiceParams{
		Logger:             logger,
		Config:             config,
		DB:                 db,
		Sentry:             sentry,
		Cache:              cache,
		PriceRepo:          priceRepo,
		SubRepo:            subRepo,
		InvoiceRepo:        invoiceRepo,
		WebhookEventRepo:   webhookEventRepo,
		DunningAttemptRepo: dunningAttemptRepo,
		Gateway:            gateway,
		Idempotency:        idempotency.NewGenerator(),
		Calculator:         proration.NewCalculator(config.Billing.ProrationStrategy),
		Notifier:           notifier,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p ServiceParams) now() time.Time {
	if p.Now == nil {
		return time.Now().UTC()
	}
	return p.Now().UTC()
}

// Module provides every billing service to the fx graph.
func Module() fx.Option {
	return fx.Module("service",
		fx.Provide(
			NewServiceParams,
			NewPriceCatalogService,
			NewNotificationService,
			NewDunningService,
			NewSubscriptionService,
			NewWebhookProcessorService,
			NewRevenueAnalyticsService,
		),
	)
}
