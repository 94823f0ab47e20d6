package router

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/sentry"
)

const poisonTopicSuffix = ".dlq"

// Router manages all message routing
type Router struct {
	router *message.Router
	logger *logger.Logger
	sentry *sentry.Service
	dlq    *gochannel.GoChannel
}

// NewRouter creates a new message router with retry, panic recovery and a
// dead letter topic for messages that exhaust their retries.
func NewRouter(cfg *config.Configuration, logger *logger.Logger, sentry *sentry.Service) (*Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, logger.GetWatermillLogger())
	if err != nil {
		return nil, err
	}

	dlq := gochannel.NewGoChannel(gochannel.Config{Persistent: false}, logger.GetWatermillLogger())
	poisonQueue, err := middleware.PoisonQueue(dlq, cfg.Notification.Topic+poisonTopicSuffix)
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(
		poisonQueue,
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:          cfg.Notification.MaxRetries,
			InitialInterval:     cfg.Notification.InitialInterval,
			MaxInterval:         cfg.Notification.MaxInterval,
			Multiplier:          2,
			RandomizationFactor: 0.5,
			Logger:              logger.GetWatermillLogger(),
			OnRetryHook: func(retryNum int, delay time.Duration) {
				logger.Infow("retrying message",
					"retry_number", retryNum,
					"max_retries", cfg.Notification.MaxRetries,
					"delay", delay,
				)
			},
		}.Middleware,
	)

	return &Router{
		router: router,
		logger: logger,
		sentry: sentry,
		dlq:    dlq,
	}, nil
}

// AddNoPublishHandler adds a consumer. Errors that retrying cannot fix are
// logged and acked instead of being handed to the retry middleware.
func (r *Router) AddNoPublishHandler(
	handlerName string,
	topicName string,
	subscriber message.Subscriber,
	handlerFunc func(msg *message.Message) error,
	middlewares ...message.HandlerMiddleware,
) {
	handler := r.router.AddNoPublisherHandler(
		handlerName,
		topicName,
		subscriber,
		func(msg *message.Message) error {
			err := handlerFunc(msg)
			if err == nil {
				return nil
			}

			r.logger.Errorw("handler failed",
				"handler", handlerName,
				"error", err,
				"correlation_id", middleware.MessageCorrelationID(msg),
				"message_uuid", msg.UUID,
			)
			if !shouldRetry(r.logger, err) {
				r.sentry.CaptureException(err)
				return nil
			}
			return err
		},
	)

	for _, m := range middlewares {
		handler.AddMiddleware(m)
	}
}

// Running is closed once all handlers are running
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

// Run starts the router and blocks until ctx is canceled or Close is called
func (r *Router) Run(ctx context.Context) error {
	r.logger.Info("starting router")
	return r.router.Run(ctx)
}

// Close gracefully shuts down the router
func (r *Router) Close() error {
	r.logger.Info("closing router")
	if err := r.router.Close(); err != nil {
		return err
	}
	return r.dlq.Close()
}
