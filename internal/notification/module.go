package notification

import (
	"context"

	"github.com/vibefunder/billing/internal/config"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/httpclient"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/pubsub"
	"github.com/vibefunder/billing/internal/pubsub/kafka"
	"github.com/vibefunder/billing/internal/pubsub/memory"
	pubsubRouter "github.com/vibefunder/billing/internal/pubsub/router"
	"github.com/vibefunder/billing/internal/svix"
	"github.com/vibefunder/billing/internal/types"
	"go.uber.org/fx"
)

// Module provides the notification publisher and consumer
var Module = fx.Options(
	fx.Provide(
		providePubSub,
		provideHTTPClient,
		svix.NewClient,
		pubsubRouter.NewRouter,
		NewPublisher,
		NewHandler,
		NewService,
	),
	fx.Invoke(registerLifecycle),
)

func providePubSub(cfg *config.Configuration, logger *logger.Logger) (pubsub.PubSub, error) {
	switch cfg.Notification.PubSub {
	case types.PubSubTypeMemory:
		return memory.NewPubSub(logger), nil
	case types.PubSubTypeKafka:
		return kafka.NewPubSub(cfg, logger)
	}
	return nil, ierr.NewError("unsupported pubsub type").
		WithHint("Unsupported notification transport").
		WithReportableDetails(map[string]any{"pubsub": cfg.Notification.PubSub}).
		Mark(ierr.ErrValidation)
}

func provideHTTPClient(cfg *config.Configuration, logger *logger.Logger) httpclient.Client {
	return httpclient.NewRetryableClient(httpclient.ClientConfig{
		Timeout:      cfg.Notification.Timeout,
		RetryMax:     cfg.Notification.MaxRetries,
		RetryWaitMin: cfg.Notification.InitialInterval,
		RetryWaitMax: cfg.Notification.MaxInterval,
	}, logger)
}

func registerLifecycle(lc fx.Lifecycle, svc *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return svc.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return svc.Stop()
		},
	})
}
