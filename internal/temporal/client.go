package temporal

import (
	"github.com/vibefunder/billing/internal/config"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/logger"
	"go.temporal.io/sdk/client"
)

// TemporalClient wraps the Temporal SDK client for application use.
type TemporalClient struct {
	Client client.Client
}

// NewTemporalClient dials the Temporal frontend described by cfg.
func NewTemporalClient(cfg *config.Configuration, log *logger.Logger) (*TemporalClient, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Address,
		Namespace: cfg.Temporal.Namespace,
		Logger:    log.GetTemporalLogger(),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Could not connect to Temporal").
			WithReportableDetails(map[string]any{"address": cfg.Temporal.Address}).
			Mark(ierr.ErrSystem)
	}

	log.Infow("temporal client created", "address", cfg.Temporal.Address, "namespace", cfg.Temporal.Namespace)
	return &TemporalClient{Client: c}, nil
}

// Close closes the underlying connection.
func (c *TemporalClient) Close() {
	if c != nil && c.Client != nil {
		c.Client.Close()
	}
}
