package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Cache struct {
	Enabled  bool          `default:"true" envconfig:"ENABLED"`
	Backend  string        `default:"redis" envconfig:"BACKEND"` // redis|memory
	Addr     string        `envconfig:"ADDR"`                    // redis URL, used when SECRET_ID is empty
	TTL      time.Duration `default:"60s" envconfig:"TTL"`
	Capacity int           `default:"10000" envconfig:"CAPACITY"` // memory backend only
}

type Metrics struct {
	Namespace string `default:"PizzaTracker" envconfig:"NAMESPACE"`
	Service   string `default:"pizza-tracker" envconfig:"SERVICE"`
}

type AWS struct {
	Region      string `default:"us-east-1" envconfig:"REGION"`
	Endpoint    string `envconfig:"ENDPOINT_OVERRIDE"` // e.g. LocalStack
	MaxAttempts int    `default:"3" envconfig:"MAX_ATTEMPTS"`
}

type Config struct {
	TableName        string        `required:"true" envconfig:"TABLE_NAME"`
	TypeIndexName    string        `default:"type" envconfig:"TYPE_INDEX_NAME"`
	IdempotencyTable string        `envconfig:"IDEMPOTENCY_TABLE"`
	IdempotencyTTL   time.Duration `default:"48h" envconfig:"IDEMPOTENCY_TTL"`

	// SecretID names the Secrets Manager secret holding the cache credential.
	SecretID string `envconfig:"SECRET_ID"`

	// RestrictToCreator selects the customer deployment: customer cache keys,
	// creator-only reads, the caller's own order list and customer submit.
	// When false the deployment serves the admin/staff UI.
	RestrictToCreator bool `default:"true" envconfig:"RESTRICT_TO_CREATOR"`

	NotificationsEnabled bool   `default:"false" envconfig:"NOTIFICATIONS_ENABLED"`
	QueueURL             string `envconfig:"ORDERS_QUEUE_URL"`

	RunLocal      bool   `default:"false" envconfig:"RUN_LOCAL"`
	HTTPAddr      string `default:":8080" envconfig:"HTTP_ADDR"`
	LogProduction bool   `default:"true" envconfig:"LOG_PRODUCTION"`

	AWS     AWS
	Cache   Cache
	Metrics Metrics
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var c Config

	if err := envconfig.Process("", &c); err != nil {
		return Config{}, err
	}

	return c, nil
}
