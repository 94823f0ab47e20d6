package notification

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/vibefunder/billing/internal/config"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/pubsub"
)

// Publisher sends notifications to the notification topic
type Publisher interface {
	Publish(ctx context.Context, n *Notification) error
	Close() error
}

type publisher struct {
	pubSub pubsub.PubSub
	topic  string
	logger *logger.Logger
}

func NewPublisher(pubSub pubsub.PubSub, cfg *config.Configuration, logger *logger.Logger) Publisher {
	return &publisher{
		pubSub: pubSub,
		topic:  cfg.Notification.Topic,
		logger: logger,
	}
}

func (p *publisher) Publish(ctx context.Context, n *Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode notification").
			Mark(ierr.ErrSystem)
	}

	msg := message.NewMessage(n.ID, payload)
	msg.Metadata.Set("type", n.Type.String())
	msg.Metadata.Set("subscription_id", n.SubscriptionID)

	p.logger.Debugw("publishing notification",
		"notification_id", n.ID,
		"type", n.Type,
		"subscription_id", n.SubscriptionID,
		"topic", p.topic,
	)

	if err := p.pubSub.Publish(ctx, p.topic, msg); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to publish notification").
			Mark(ierr.ErrSystem)
	}
	return nil
}

func (p *publisher) Close() error {
	return p.pubSub.Close()
}
