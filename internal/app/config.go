package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/text/currency"
)

// Config holds runtime configuration for the sync job and its worker.
type Config struct {
	AppEnv    string `envconfig:"APP_ENV" default:"development" validate:"required"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty" validate:"oneof=pretty json"`

	AWSRegion string `envconfig:"AWS_REGION" validate:"required"`
	SecretID  string `envconfig:"SECRET_ID" default:"db/currency-echange-rate" validate:"required"`
	SecretKey string `envconfig:"SECRET_KEY" default:"fusion_snowflake" validate:"required"`

	WarehouseDatabase string `envconfig:"WAREHOUSE_DATABASE" validate:"required"`
	WarehouseRole     string `envconfig:"WAREHOUSE_ROLE"`
	WarehouseName     string `envconfig:"WAREHOUSE_NAME"`
	WarehouseSchema   string `envconfig:"WAREHOUSE_SCHEMA" default:"currency" validate:"required"`
	WarehousePort     uint16 `envconfig:"WAREHOUSE_PORT" default:"5432" validate:"required"`
	WarehouseSSLMode  string `envconfig:"WAREHOUSE_SSLMODE" default:"require" validate:"oneof=disable allow prefer require verify-ca verify-full"`

	S3Bucket string `envconfig:"S3_BUCKET_NAME" validate:"required"`

	RatesBaseURL      string        `envconfig:"OER_BASE_URL" default:"https://openexchangerates.org/api/latest.json" validate:"required,url"`
	RatesAppID        string        `envconfig:"OER_APP_ID"`
	RatesBaseCurrency string        `envconfig:"OER_BASE_CURRENCY" default:"USD" validate:"required,len=3"`
	RatesTimeout      time.Duration `envconfig:"OER_TIMEOUT" default:"30s" validate:"gt=0"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	OpsAddr   string `envconfig:"OPS_ADDR" default:":9090"`
	SyncCron  string `envconfig:"SYNC_CRON" default:"5 * * * *"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and normalises the base currency.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("app: config is nil")
	}
	c.RatesBaseCurrency = strings.ToUpper(strings.TrimSpace(c.RatesBaseCurrency))
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("app: invalid config: %w", err)
	}
	if _, err := currency.ParseISO(c.RatesBaseCurrency); err != nil {
		return fmt.Errorf("app: invalid base currency %q: %w", c.RatesBaseCurrency, err)
	}
	return nil
}

// IsProduction returns true when the job runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
