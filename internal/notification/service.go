package notification

import (
	"context"

	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/logger"
	pubsubRouter "github.com/vibefunder/billing/internal/pubsub/router"
	"github.com/vibefunder/billing/internal/types"
)

// Service runs the notification consumer
type Service struct {
	config    *config.Configuration
	publisher Publisher
	handler   Handler
	router    *pubsubRouter.Router
	logger    *logger.Logger
}

func NewService(
	cfg *config.Configuration,
	publisher Publisher,
	h Handler,
	router *pubsubRouter.Router,
	logger *logger.Logger,
) *Service {
	return &Service{
		config:    cfg,
		publisher: publisher,
		handler:   h,
		router:    router,
		logger:    logger,
	}
}

// Start registers the handler and runs the router in the background
func (s *Service) Start(ctx context.Context) error {
	if !s.consuming() {
		s.logger.Infow("notification consumer disabled", "mode", s.config.Deployment.Mode)
		return nil
	}

	s.handler.RegisterHandler(s.router)
	go func() {
		if err := s.router.Run(context.Background()); err != nil {
			s.logger.Errorw("notification router stopped", "error", err)
		}
	}()

	select {
	case <-s.router.Running():
		s.logger.Infow("notification consumer started",
			"topic", s.config.Notification.Topic,
			"delivery", s.config.Notification.Delivery,
		)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// consuming reports whether this process delivers notifications. API-only
// deployments publish and leave delivery to a consumer process.
func (s *Service) consuming() bool {
	return s.config.Notification.Enabled && s.config.Deployment.Mode != types.ModeAPI
}

// Stop closes the router first so no new messages are taken, then the publisher
func (s *Service) Stop() error {
	if s.consuming() {
		if err := s.router.Close(); err != nil {
			s.logger.Errorw("failed to close notification router", "error", err)
			return err
		}
	}
	if err := s.publisher.Close(); err != nil {
		s.logger.Errorw("failed to close notification publisher", "error", err)
		return err
	}
	s.logger.Info("notification service stopped")
	return nil
}
