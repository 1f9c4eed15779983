// Package config loads worker and starter settings from an optional YAML
// file and environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting.
type Config struct {
	Temporal Temporal `yaml:"temporal"`
	Hours    Hours    `yaml:"hours"`
	Pricing  Pricing  `yaml:"pricing"`
	Database Database `yaml:"database"`
	RabbitMQ RabbitMQ `yaml:"rabbitmq"`
	LogLevel string   `yaml:"log_level"`
}

type Temporal struct {
	Address       string `yaml:"address"`
	Namespace     string `yaml:"namespace"`
	TaskQueue     string `yaml:"task_queue"`
	BuildID       string `yaml:"build_id"`
	EncryptionKey string `yaml:"encryption_key"`
}

type Hours struct {
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	Enforce     bool          `yaml:"enforce"`
	ClosedLabel string        `yaml:"closed_label"`
}

type Pricing struct {
	TaxRate     string `yaml:"tax_rate"`
	DeliveryFee string `yaml:"delivery_fee"`
}

type Database struct {
	URL string `yaml:"url"`
}

type RabbitMQ struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Temporal: Temporal{
			Address:   "localhost:7233",
			Namespace: "default",
			TaskQueue: "order-processing-queue",
			BuildID:   "2.0.0",
		},
		Hours: Hours{
			BaseURL:     "http://localhost:8081",
			Timeout:     10 * time.Second,
			ClosedLabel: "Fermé",
		},
		Pricing: Pricing{
			TaxRate:     "0.08",
			DeliveryFee: "5.99",
		},
		RabbitMQ: RabbitMQ{Exchange: "order_status"},
		LogLevel: "info",
	}
}

// Load reads path (a missing file is not an error), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Temporal.Address, "TEMPORAL_ADDRESS")
	setString(&c.Temporal.Namespace, "TEMPORAL_NAMESPACE")
	setString(&c.Temporal.TaskQueue, "TASK_QUEUE")
	setString(&c.Temporal.BuildID, "BUILD_ID")
	setString(&c.Temporal.EncryptionKey, "ENCRYPTION_KEY")
	setString(&c.Hours.BaseURL, "HOURS_URL")
	setString(&c.Pricing.TaxRate, "TAX_RATE")
	setString(&c.Pricing.DeliveryFee, "DELIVERY_FEE")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.RabbitMQ.URL, "RABBITMQ_URL")
	setString(&c.RabbitMQ.Exchange, "RABBITMQ_EXCHANGE")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v, ok := os.LookupEnv("ENFORCE_HOURS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ENFORCE_HOURS: %w", err)
		}
		c.Hours.Enforce = b
	}
	if v, ok := os.LookupEnv("HOURS_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HOURS_TIMEOUT: %w", err)
		}
		c.Hours.Timeout = d
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	if c.Temporal.Address == "" {
		return errors.New("temporal address is required")
	}
	if c.Temporal.TaskQueue == "" {
		return errors.New("task queue is required")
	}
	if c.Hours.Timeout <= 0 {
		return errors.New("hours timeout must be positive")
	}
	if _, err := c.TaxRate(); err != nil {
		return err
	}
	if _, err := c.DeliveryFee(); err != nil {
		return err
	}
	return nil
}

// TaxRate parses the nominal tax rate.
func (c Config) TaxRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.Pricing.TaxRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid tax rate %q: %w", c.Pricing.TaxRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("tax rate %s out of range [0, 1)", rate)
	}
	return rate, nil
}

// DeliveryFee parses the flat delivery fee.
func (c Config) DeliveryFee() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(c.Pricing.DeliveryFee)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid delivery fee %q: %w", c.Pricing.DeliveryFee, err)
	}
	if fee.IsNegative() {
		return decimal.Zero, fmt.Errorf("delivery fee %s is negative", fee)
	}
	return fee, nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
