package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shopify/sarama"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/vibefunder/billing/internal/types"
)

type Configuration struct {
	Deployment   DeploymentConfig   `mapstructure:"deployment" validate:"required"`
	Server       ServerConfig       `mapstructure:"server" validate:"required"`
	Logging      LoggingConfig      `mapstructure:"logging" validate:"required"`
	Postgres     PostgresConfig     `mapstructure:"postgres" validate:"required"`
	Stripe       StripeConfig       `mapstructure:"stripe" validate:"required"`
	Billing      BillingConfig      `mapstructure:"billing" validate:"required"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Notification NotificationConfig `mapstructure:"notification" validate:"required"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Svix         SvixConfig         `mapstructure:"svix"`
	Temporal     TemporalConfig     `mapstructure:"temporal"`
	Sentry       SentryConfig       `mapstructure:"sentry"`
	Pyroscope    PyroscopeConfig    `mapstructure:"pyroscope"`
	Auth         AuthConfig         `mapstructure:"auth" validate:"required"`
}

type DeploymentConfig struct {
	Mode types.RunMode `mapstructure:"mode" validate:"required"`
}

type ServerConfig struct {
	Address        string   `mapstructure:"address" validate:"required"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level types.LogLevel `mapstructure:"level" validate:"required"`
}

type PostgresConfig struct {
	Host                   string        `mapstructure:"host" validate:"required"`
	Port                   int           `mapstructure:"port" validate:"required"`
	User                   string        `mapstructure:"user" validate:"required"`
	Password               string        `mapstructure:"password"`
	DBName                 string        `mapstructure:"dbname" validate:"required"`
	SSLMode                string        `mapstructure:"sslmode"`
	MaxOpenConns           int           `mapstructure:"max_open_conns"`
	MaxIdleConns           int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int           `mapstructure:"conn_max_lifetime_minutes"`
	SlowQueryThreshold     time.Duration `mapstructure:"slow_query_threshold"`
}

type KafkaConfig struct {
	Brokers       []string             `mapstructure:"brokers"`
	ConsumerGroup string               `mapstructure:"consumer_group"`
	ClientID      string               `mapstructure:"client_id"`
	TLS           bool                 `mapstructure:"tls"`
	UseSASL       bool                 `mapstructure:"use_sasl"`
	SASLMechanism sarama.SASLMechanism `mapstructure:"sasl_mechanism"`
	SASLUser      string               `mapstructure:"sasl_user"`
	SASLPassword  string               `mapstructure:"sasl_password"`
}

type SvixConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AuthToken string `mapstructure:"auth_token"`
	BaseURL   string `mapstructure:"base_url"`
	AppID     string `mapstructure:"app_id"`
}

type TemporalConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Address            string `mapstructure:"address"`
	Namespace          string `mapstructure:"namespace"`
	TaskQueue          string `mapstructure:"task_queue"`
	RolloverSchedule   string `mapstructure:"rollover_schedule"`
	GraceSweepSchedule string `mapstructure:"grace_sweep_schedule"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type PyroscopeConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	ServerAddress   string   `mapstructure:"server_address"`
	ApplicationName string   `mapstructure:"application_name"`
	BasicAuthUser   string   `mapstructure:"basic_auth_user"`
	BasicAuthPass   string   `mapstructure:"basic_auth_password"`
	ProfileTypes    []string `mapstructure:"profile_types"`
}

type AuthConfig struct {
	Secret string `mapstructure:"secret" validate:"required"`
	Issuer string `mapstructure:"issuer"`
}

type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	PriceTTL time.Duration `mapstructure:"price_ttl"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/billing")

	setDefaults(v)

	v.SetEnvPrefix("BILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("logging.level", types.LogLevelInfo)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "billing")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "billing")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 30)
	v.SetDefault("postgres.slow_query_threshold", 500*time.Millisecond)

	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.webhook_secret", "")
	v.SetDefault("stripe.timeout", 10*time.Second)
	v.SetDefault("stripe.max_retries", 3)
	v.SetDefault("stripe.retry_initial_interval", 200*time.Millisecond)
	v.SetDefault("stripe.retry_max_interval", 2*time.Second)
	v.SetDefault("stripe.rate_limit", 25.0)
	v.SetDefault("stripe.rate_burst", 10)

	v.SetDefault("billing.max_payment_attempts", 4)
	v.SetDefault("billing.grace_period_days", 7)
	v.SetDefault("billing.proration_strategy", types.ProrationStrategySecondBased)
	v.SetDefault("billing.max_concurrency_retries", 3)
	v.SetDefault("billing.sweep_batch_size", 100)
	v.SetDefault("billing.sweep_concurrency", 4)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.price_ttl", 10*time.Minute)

	v.SetDefault("notification.enabled", true)
	v.SetDefault("notification.topic", "billing.notifications")
	v.SetDefault("notification.pubsub", types.PubSubTypeMemory)
	v.SetDefault("notification.delivery", types.NotificationDeliveryLog)
	v.SetDefault("notification.endpoint", "")
	v.SetDefault("notification.headers", map[string]string{})
	v.SetDefault("notification.max_retries", 3)
	v.SetDefault("notification.initial_interval", time.Second)
	v.SetDefault("notification.max_interval", 30*time.Second)
	v.SetDefault("notification.timeout", 10*time.Second)

	v.SetDefault("kafka.brokers", []string{"localhost:29092"})
	v.SetDefault("kafka.consumer_group", "billing-notifications")
	v.SetDefault("kafka.client_id", "billing")
	v.SetDefault("kafka.tls", false)
	v.SetDefault("kafka.use_sasl", false)
	v.SetDefault("kafka.sasl_mechanism", "PLAIN")
	v.SetDefault("kafka.sasl_user", "")
	v.SetDefault("kafka.sasl_password", "")

	v.SetDefault("svix.enabled", false)
	v.SetDefault("svix.auth_token", "")
	v.SetDefault("svix.base_url", "")
	v.SetDefault("svix.app_id", "")

	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.address", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "billing-sweeps")
	v.SetDefault("temporal.rollover_schedule", "*/10 * * * *")
	v.SetDefault("temporal.grace_sweep_schedule", "0 * * * *")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "local")
	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("pyroscope.enabled", false)
	v.SetDefault("pyroscope.server_address", "")
	v.SetDefault("pyroscope.application_name", "billing")
	v.SetDefault("pyroscope.basic_auth_user", "")
	v.SetDefault("pyroscope.basic_auth_password", "")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "")
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a configuration suitable for tests and scripts.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Stripe: StripeConfig{
			Timeout:              10 * time.Second,
			MaxRetries:           3,
			RetryInitialInterval: time.Millisecond,
			RetryMaxInterval:     5 * time.Millisecond,
			RateLimit:            1000,
			RateBurst:            100,
		},
		Billing: BillingConfig{
			MaxPaymentAttempts:    4,
			GracePeriodDays:       7,
			ProrationStrategy:     types.ProrationStrategySecondBased,
			MaxConcurrencyRetries: 3,
			SweepBatchSize:        100,
			SweepConcurrency:      4,
		},
		Cache: CacheConfig{Enabled: true, PriceTTL: time.Minute},
		Notification: NotificationConfig{
			Enabled:  true,
			Topic:    "billing.notifications",
			PubSub:   types.PubSubTypeMemory,
			Delivery: types.NotificationDeliveryLog,
		},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}

// GetURL returns the DSN in URL form, as golang-migrate expects.
func (c PostgresConfig) GetURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}
