// Package config loads service settings from ALLOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const prefix = "ALLOT"

type Config struct {
	Addr        string `envconfig:"ADDR" default:":8080"`
	GRPCAddr    string `envconfig:"GRPC_ADDR" default:":9090"`
	PGDSN       string `envconfig:"PG_DSN"`
	AuthSecret  string `envconfig:"AUTH_SECRET" required:"true"`
	AuthIssuer  string `envconfig:"AUTH_ISSUER" default:"allot"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	TxTimeout     time.Duration `envconfig:"TX_TIMEOUT" default:"5s"`
	MaxTxAttempts int           `envconfig:"MAX_TX_ATTEMPTS" default:"3"`

	RateBurst   int      `envconfig:"RATE_BURST" default:"20"`
	RatePerSec  float64  `envconfig:"RATE_PER_SEC" default:"10"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"allot.events"`

	// Cron spec for the unit status reconciler; empty disables it.
	ReconcileSchedule string `envconfig:"RECONCILE_SCHEDULE"`
}

// Load reads the environment and validates the result.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process(prefix, &c); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	c.CORSOrigins = trimAll(c.CORSOrigins)
	c.KafkaBrokers = trimAll(c.KafkaBrokers)
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.AuthSecret) == "" {
		errs = append(errs, errors.New("ALLOT_AUTH_SECRET is required"))
	}
	if c.TxTimeout <= 0 {
		errs = append(errs, errors.New("ALLOT_TX_TIMEOUT must be positive"))
	}
	if c.MaxTxAttempts < 1 {
		errs = append(errs, errors.New("ALLOT_MAX_TX_ATTEMPTS must be at least 1"))
	}
	if c.RateBurst < 1 || c.RatePerSec <= 0 {
		errs = append(errs, errors.New("ALLOT_RATE_BURST and ALLOT_RATE_PER_SEC must be positive"))
	}
	if len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.KafkaTopic) == "" {
		errs = append(errs, errors.New("ALLOT_KAFKA_TOPIC is required with brokers"))
	}
	return errors.Join(errs...)
}

// Production reports whether internal error detail must be hidden.
func (c Config) Production() bool {
	return c.Environment == "production"
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
