package svix

import (
	"context"
	"encoding/json"
	"net/url"

	svix "github.com/svix/svix-webhooks/go"
	"github.com/svix/svix-webhooks/go/models"
	"github.com/vibefunder/billing/internal/config"
	ierr "github.com/vibefunder/billing/internal/errors"
)

// Client wraps the Svix SDK client
type Client struct {
	client  *svix.Svix
	appID   string
	enabled bool
}

// NewClient creates a new Svix client. A disabled client accepts and drops every message.
func NewClient(cfg *config.Configuration) (*Client, error) {
	if !cfg.Svix.Enabled {
		return &Client{enabled: false}, nil
	}

	opts := &svix.SvixOptions{}
	if cfg.Svix.BaseURL != "" {
		serverURL, err := url.Parse(cfg.Svix.BaseURL)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Invalid Svix base URL").
				Mark(ierr.ErrValidation)
		}
		opts.ServerUrl = serverURL
	}

	svixClient, err := svix.New(cfg.Svix.AuthToken, opts)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to create Svix client").
			Mark(ierr.ErrSystem)
	}

	return &Client{
		client:  svixClient,
		appID:   cfg.Svix.AppID,
		enabled: true,
	}, nil
}

func (c *Client) Enabled() bool {
	return c.enabled && c.client != nil
}

// EnsureApplication returns the configured application, creating it on first use
func (c *Client) EnsureApplication(ctx context.Context) (string, error) {
	if !c.Enabled() {
		return "", nil
	}

	if _, err := c.client.Application.Get(ctx, c.appID); err == nil {
		return c.appID, nil
	}

	app, err := c.client.Application.Create(ctx, models.ApplicationIn{
		Name: c.appID,
		Uid:  &c.appID,
	}, &svix.ApplicationCreateOptions{})
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to create Svix application").
			Mark(ierr.ErrHTTPClient)
	}
	return app.Id, nil
}

// SendMessage sends one message. The message id doubles as the Svix
// idempotency key so redelivered notifications are not sent twice.
func (c *Client) SendMessage(ctx context.Context, applicationID, messageID, eventType string, payload json.RawMessage) error {
	if !c.Enabled() {
		return nil
	}

	var payloadMap map[string]interface{}
	if err := json.Unmarshal(payload, &payloadMap); err != nil {
		return ierr.WithError(err).
			WithHint("Notification payload is not a JSON object").
			Mark(ierr.ErrValidation)
	}

	_, err := c.client.Message.Create(ctx, applicationID, models.MessageIn{
		EventId:   &messageID,
		EventType: eventType,
		Payload:   payloadMap,
	}, &svix.MessageCreateOptions{IdempotencyKey: &messageID})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to send notification via Svix").
			Mark(ierr.ErrHTTPClient)
	}
	return nil
}
