package testutil

import (
	"encoding/json"

	"github.com/samber/lo"
	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/notification"
	"github.com/vibefunder/billing/internal/types"
)

// InMemoryNotificationPublisher is the production notification publisher on top
// of an InMemoryPubSub, with helpers to read back what was sent.
type InMemoryNotificationPublisher struct {
	notification.Publisher
	PubSub *InMemoryPubSub
	topic  string
}

var _ notification.Publisher = (*InMemoryNotificationPublisher)(nil)

func NewInMemoryNotificationPublisher(cfg *config.Configuration, log *logger.Logger) *InMemoryNotificationPublisher {
	ps := NewInMemoryPubSub()
	return &InMemoryNotificationPublisher{
		Publisher: notification.NewPublisher(ps, cfg, log),
		PubSub:    ps,
		topic:     cfg.Notification.Topic,
	}
}

// Sent decodes every notification published so far, in order.
func (p *InMemoryNotificationPublisher) Sent() []*notification.Notification {
	msgs := p.PubSub.GetMessages(p.topic)
	sent := make([]*notification.Notification, 0, len(msgs))
	for _, msg := range msgs {
		var n notification.Notification
		if err := json.Unmarshal(msg.Payload, &n); err != nil {
			continue
		}
		sent = append(sent, &n)
	}
	return sent
}

// SentTypes returns the types of the notifications sent for one subscription.
func (p *InMemoryNotificationPublisher) SentTypes(subscriptionID string) []types.NotificationType {
	return lo.FilterMap(p.Sent(), func(n *notification.Notification, _ int) (types.NotificationType, bool) {
		return n.Type, n.SubscriptionID == subscriptionID
	})
}

func (p *InMemoryNotificationPublisher) Reset() {
	p.PubSub.ClearMessages()
}
