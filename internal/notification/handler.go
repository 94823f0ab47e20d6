package notification

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/vibefunder/billing/internal/config"
	"github.com/vibefunder/billing/internal/httpclient"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/pubsub"
	pubsubRouter "github.com/vibefunder/billing/internal/pubsub/router"
	"github.com/vibefunder/billing/internal/svix"
	"github.com/vibefunder/billing/internal/types"
)

// Handler consumes the notification topic and delivers each message
type Handler interface {
	RegisterHandler(router *pubsubRouter.Router)
}

type handler struct {
	pubSub     pubsub.PubSub
	config     *config.NotificationConfig
	client     httpclient.Client
	svixClient *svix.Client
	logger     *logger.Logger
}

func NewHandler(
	pubSub pubsub.PubSub,
	cfg *config.Configuration,
	client httpclient.Client,
	svixClient *svix.Client,
	logger *logger.Logger,
) Handler {
	return &handler{
		pubSub:     pubSub,
		config:     &cfg.Notification,
		client:     client,
		svixClient: svixClient,
		logger:     logger,
	}
}

func (h *handler) RegisterHandler(router *pubsubRouter.Router) {
	router.AddNoPublishHandler(
		"notification_handler",
		h.config.Topic,
		h.pubSub,
		h.processMessage,
	)
}

func (h *handler) processMessage(msg *message.Message) error {
	ctx := msg.Context()

	var n Notification
	if err := json.Unmarshal(msg.Payload, &n); err != nil {
		h.logger.Errorw("failed to unmarshal notification",
			"error", err,
			"message_uuid", msg.UUID,
		)
		return nil
	}
	if n.RequestID != "" {
		ctx = types.SetRequestID(ctx, n.RequestID)
	}

	switch h.config.Delivery {
	case types.NotificationDeliverySvix:
		return h.deliverSvix(ctx, &n, msg.Payload)
	case types.NotificationDeliveryHTTP:
		return h.deliverHTTP(ctx, &n, msg.Payload)
	default:
		h.logger.WithContext(ctx).Infow("notification",
			"notification_id", n.ID,
			"type", n.Type,
			"subscription_id", n.SubscriptionID,
			"backer_id", n.BackerID,
		)
		return nil
	}
}

func (h *handler) deliverSvix(ctx context.Context, n *Notification, payload []byte) error {
	appID, err := h.svixClient.EnsureApplication(ctx)
	if err != nil {
		return err
	}
	if err := h.svixClient.SendMessage(ctx, appID, n.ID, n.Type.String(), payload); err != nil {
		return err
	}

	h.logger.Infow("notification sent via Svix",
		"notification_id", n.ID,
		"type", n.Type,
		"subscription_id", n.SubscriptionID,
	)
	return nil
}

func (h *handler) deliverHTTP(ctx context.Context, n *Notification, payload []byte) error {
	headers := map[string]string{
		"X-Notification-Id":   n.ID,
		"X-Notification-Type": n.Type.String(),
	}
	for k, v := range h.config.Headers {
		headers[k] = v
	}

	resp, err := h.client.Send(ctx, &httpclient.Request{
		Method:  http.MethodPost,
		URL:     h.config.Endpoint,
		Headers: headers,
		Body:    payload,
	})
	if err != nil {
		return err
	}

	h.logger.Infow("notification delivered",
		"notification_id", n.ID,
		"type", n.Type,
		"subscription_id", n.SubscriptionID,
		"status_code", resp.StatusCode,
	)
	return nil
}
