package config

import (
	"time"

	"github.com/vibefunder/billing/internal/types"
)

// StripeConfig holds processor credentials and the call policy for every processor request.
type StripeConfig struct {
	SecretKey            string        `mapstructure:"secret_key" validate:"required"`
	WebhookSecret        string        `mapstructure:"webhook_secret" validate:"required"`
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxRetries           int           `mapstructure:"max_retries" validate:"min=0"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval"`
	RateLimit            float64       `mapstructure:"rate_limit"`
	RateBurst            int           `mapstructure:"rate_burst"`
}

// BillingConfig is dunning and proration policy.
type BillingConfig struct {
	MaxPaymentAttempts    int                     `mapstructure:"max_payment_attempts" validate:"min=1"`
	GracePeriodDays       int                     `mapstructure:"grace_period_days" validate:"min=0"`
	ProrationStrategy     types.ProrationStrategy `mapstructure:"proration_strategy"`
	MaxConcurrencyRetries int                     `mapstructure:"max_concurrency_retries" validate:"min=0"`
	SweepBatchSize        int                     `mapstructure:"sweep_batch_size" validate:"min=1"`
	SweepConcurrency      int                     `mapstructure:"sweep_concurrency" validate:"min=1"`
}

// GracePeriod returns the configured grace window.
func (c BillingConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodDays) * 24 * time.Hour
}

// NotificationConfig controls how billing notifications leave the service.
type NotificationConfig struct {
	Enabled         bool                           `mapstructure:"enabled"`
	Topic           string                         `mapstructure:"topic" validate:"required"`
	PubSub          types.PubSubType               `mapstructure:"pubsub" validate:"required"`
	Delivery        types.NotificationDeliveryType `mapstructure:"delivery" validate:"required"`
	Endpoint        string                         `mapstructure:"endpoint"`
	Headers         map[string]string              `mapstructure:"headers"`
	MaxRetries      int                            `mapstructure:"max_retries"`
	InitialInterval time.Duration                  `mapstructure:"initial_interval"`
	MaxInterval     time.Duration                  `mapstructure:"max_interval"`
	Timeout         time.Duration                  `mapstructure:"timeout"`
}
