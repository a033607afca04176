// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration of the shop.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseDriver string
	DatabaseDSN    string

	JWTSecret string

	RabbitMQURL            string
	NotificationMaxRetries int

	Payment PaymentConfig
	Pricing PricingConfig

	SeedDemoData      bool
	SeedAdminPassword string
}

// PaymentConfig configures the gateway client and signature checks.
type PaymentConfig struct {
	GatewayURL      string
	KeyID           string
	KeySecret       string
	WebhookSecret   string
	Currency        string
	Timeout         time.Duration
	BreakerFailures int
	BreakerReset    time.Duration
}

// PricingConfig holds checkout charges.
type PricingConfig struct {
	TaxRate               decimal.Decimal
	ShippingFees          map[string]decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

var shippingMethods = []string{"standard", "express", "same_day"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "bloomshop.db")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("NOTIFICATION_MAX_RETRIES", 3)
	v.SetDefault("PAYMENT_GATEWAY_URL", "https://api.razorpay.com")
	v.SetDefault("PAYMENT_KEY_ID", "")
	v.SetDefault("PAYMENT_KEY_SECRET", "")
	v.SetDefault("PAYMENT_WEBHOOK_SECRET", "")
	v.SetDefault("PAYMENT_CURRENCY", "INR")
	v.SetDefault("PAYMENT_TIMEOUT", "10s")
	v.SetDefault("PAYMENT_BREAKER_FAILURES", 5)
	v.SetDefault("PAYMENT_BREAKER_RESET", "30s")
	v.SetDefault("TAX_RATE", "0.04")
	v.SetDefault("SHIPPING_FEE_STANDARD", "10")
	v.SetDefault("SHIPPING_FEE_EXPRESS", "25")
	v.SetDefault("SHIPPING_FEE_SAME_DAY", "40")
	v.SetDefault("FREE_SHIPPING_THRESHOLD", "0")
	v.SetDefault("SEED_DEMO_DATA", false)
	v.SetDefault("SEED_ADMIN_PASSWORD", "")
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:                   v.GetString("APP_PORT"),
		Env:                    v.GetString("APP_ENV"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		DatabaseDriver:         strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabaseDSN:            v.GetString("DATABASE_DSN"),
		JWTSecret:              v.GetString("JWT_SECRET"),
		RabbitMQURL:            v.GetString("RABBITMQ_URL"),
		NotificationMaxRetries: v.GetInt("NOTIFICATION_MAX_RETRIES"),
		Payment: PaymentConfig{
			GatewayURL:      strings.TrimRight(v.GetString("PAYMENT_GATEWAY_URL"), "/"),
			KeyID:           v.GetString("PAYMENT_KEY_ID"),
			KeySecret:       v.GetString("PAYMENT_KEY_SECRET"),
			WebhookSecret:   v.GetString("PAYMENT_WEBHOOK_SECRET"),
			Currency:        strings.ToUpper(v.GetString("PAYMENT_CURRENCY")),
			Timeout:         v.GetDuration("PAYMENT_TIMEOUT"),
			BreakerFailures: v.GetInt("PAYMENT_BREAKER_FAILURES"),
			BreakerReset:    v.GetDuration("PAYMENT_BREAKER_RESET"),
		},
		SeedDemoData:      v.GetBool("SEED_DEMO_DATA"),
		SeedAdminPassword: v.GetString("SEED_ADMIN_PASSWORD"),
	}

	var err error
	if cfg.Pricing.TaxRate, err = amount(v, "TAX_RATE"); err != nil {
		return nil, err
	}
	if cfg.Pricing.FreeShippingThreshold, err = amount(v, "FREE_SHIPPING_THRESHOLD"); err != nil {
		return nil, err
	}
	cfg.Pricing.ShippingFees = make(map[string]decimal.Decimal, len(shippingMethods))
	for _, method := range shippingMethods {
		fee, err := amount(v, "SHIPPING_FEE_"+strings.ToUpper(method))
		if err != nil {
			return nil, err
		}
		cfg.Pricing.ShippingFees[method] = fee
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func amount(v *viper.Viper, key string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.GetString(key))
	if err != nil {
		return decimal.Zero, fmt.Errorf("config %s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("config %s must not be negative", key)
	}
	return d, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("config JWT_SECRET is required")
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config DATABASE_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	if c.Payment.Timeout <= 0 {
		return fmt.Errorf("config PAYMENT_TIMEOUT must be positive")
	}
	if c.NotificationMaxRetries < 0 {
		return fmt.Errorf("config NOTIFICATION_MAX_RETRIES must not be negative")
	}
	return nil
}
