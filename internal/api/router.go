package api

import (
	"github.com/gin-gonic/gin"
	"github.com/vibefunder/billing/internal/api/cron"
	v1 "github.com/vibefunder/billing/internal/api/v1"
	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/pyroscope"
	"github.com/vibefunder/billing/internal/rest/middleware"
	"github.com/vibefunder/billing/internal/sentry"
)

type Handlers struct {
	Health       *v1.HealthHandler
	Subscription *v1.SubscriptionHandler
	Dunning      *v1.DunningHandler
	Price        *v1.PriceHandler
	Analytics    *v1.AnalyticsHandler
	Webhook      *v1.WebhookHandler

	CronSubscription *cron.SubscriptionHandler
	CronDunning      *cron.DunningHandler
}

func NewRouter(
	handlers Handlers,
	cfg *config.Configuration,
	logger *logger.Logger,
	sentrySvc *sentry.Service,
	pyroscopeSvc *pyroscope.Service,
) *gin.Engine {
	router := gin.Default()
	router.Use(
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware(cfg),
		middleware.SentryMiddleware(cfg),
		middleware.PyroscopeMiddleware(pyroscopeSvc),
		middleware.ErrorHandler(cfg, logger, sentrySvc),
	)

	router.GET("/health", handlers.Health.Health)

	public := router.Group("/v1")
	// Webhooks authenticate with the processor signature, not a bearer token.
	public.POST("/webhooks/stripe", handlers.Webhook.HandleStripeWebhook)

	private := router.Group("/v1")
	private.Use(middleware.AuthenticateMiddleware(cfg, logger))

	subscriptions := private.Group("/subscriptions")
	{
		subscriptions.POST("", handlers.Subscription.CreateSubscription)
		subscriptions.GET("/:id", handlers.Subscription.GetSubscription)
		subscriptions.POST("/:id/upgrade", handlers.Subscription.UpgradeSubscription)
		subscriptions.POST("/:id/downgrade", handlers.Subscription.DowngradeSubscription)
		subscriptions.POST("/:id/cancel", handlers.Subscription.CancelSubscription)
		subscriptions.POST("/:id/reactivate", handlers.Subscription.ReactivateSubscription)
		subscriptions.POST("/:id/migrate", handlers.Subscription.MigrateSubscription)
		subscriptions.POST("/:id/payment-method", handlers.Subscription.UpdatePaymentMethod)
		subscriptions.POST("/:id/pause", handlers.Subscription.PauseSubscription)
		subscriptions.POST("/:id/resume", handlers.Subscription.ResumeSubscription)
		subscriptions.GET("/:id/dunning-attempts", handlers.Dunning.ListAttempts)
	}

	private.GET("/backers/:backer_id/subscriptions", handlers.Subscription.ListBackerSubscriptions)

	prices := private.Group("/prices")
	{
		prices.POST("", handlers.Price.CreatePrice)
		prices.GET("/:id", handlers.Price.GetPrice)
	}

	private.GET("/analytics/revenue", handlers.Analytics.GetRevenueMetrics)

	cronGroup := private.Group("/cron")
	{
		cronGroup.POST("/subscriptions/rollover", handlers.CronSubscription.RolloverPeriods)
		cronGroup.POST("/dunning/grace-expiry", handlers.CronDunning.ProcessGracePeriodExpiry)
	}

	return router
}
