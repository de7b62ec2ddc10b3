package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the application configuration, populated from the
// environment.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
	Addr        string `envconfig:"API_ADDR" default:":8080"`

	// DatabaseURL selects the ledger store: postgres:// or
	// postgresql:// for PostgreSQL, any other non-empty value is
	// treated as a sqlite file path, and empty runs in-memory
	// (development only).
	DatabaseURL string `envconfig:"DATABASE_URL"`

	RedisAddr             string `envconfig:"REDIS_ADDR"`
	RateLimitCapacity     int    `envconfig:"API_RATE_LIMIT_CAPACITY" default:"20"`
	RateLimitRefillPerSec int    `envconfig:"API_RATE_LIMIT_REFILL_PER_SEC" default:"10"`

	MaxBodyBytes int64  `envconfig:"API_MAX_BODY_BYTES" default:"1048576"`
	IPAllowlist  string `envconfig:"API_IP_ALLOWLIST"`

	TLSCert string `envconfig:"API_TLS_CERT"`
	TLSKey  string `envconfig:"API_TLS_KEY"`
	TLSCA   string `envconfig:"API_TLS_CA"`

	// Restaurants is a comma-separated list of restaurant ids to
	// provision the standard chart of accounts for at startup.
	Restaurants string `envconfig:"RESTAURANT_IDS"`

	// CatalogFile optionally points at a JSON product catalog to load
	// at startup, standing in for the external catalog service.
	CatalogFile string `envconfig:"PRODUCT_CATALOG_FILE"`
}

// Load populates and validates the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable for the selected
// environment.
func (c *Config) Validate() error {
	if c.Environment == "production" || c.Environment == "staging" {
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required in " + c.Environment)
		}
		if !c.UsesPostgres() {
			return errors.New("DATABASE_URL must be a postgres URL in " + c.Environment)
		}
	}

	tlsSet := 0
	for _, v := range []string{c.TLSCert, c.TLSKey, c.TLSCA} {
		if v != "" {
			tlsSet++
		}
	}
	if tlsSet != 0 && tlsSet != 3 {
		return errors.New("API_TLS_CERT, API_TLS_KEY, and API_TLS_CA must be set together")
	}
	return nil
}

// UsesPostgres reports whether DatabaseURL points at PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// TLSEnabled reports whether the TLS triplet is configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != "" && c.TLSCA != ""
}

// RestaurantIDs returns the configured restaurant ids.
func (c *Config) RestaurantIDs() []string {
	var out []string
	for _, id := range strings.Split(c.Restaurants, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
