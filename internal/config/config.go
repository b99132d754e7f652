package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for the timeline service.
// Environment variables are parsed from the JURISCOPE_ prefix.
type Config struct {
	// DBDriver selects the store backend: postgres (default) or sqlite.
	DBDriver string `envconfig:"DB_DRIVER" default:"postgres"`

	// HTTP configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Postgres configuration
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// SQLite configuration (local mode)
	SQLitePath string `envconfig:"SQLITE_PATH" default:""`

	// Court-registry API client
	RegistryBaseURL        string `envconfig:"REGISTRY_BASE_URL" default:""`
	RegistryAPIKey         string `envconfig:"REGISTRY_API_KEY" default:""`
	RegistryTimeoutSeconds int    `envconfig:"REGISTRY_TIMEOUT_SECONDS" default:"30"`

	// Comma-separated API keys accepted by the service; empty means allow-all (dev mode).
	APIKeys string `envconfig:"API_KEYS" default:""`

	// Merge worker
	MergeJobBatchSize       int `envconfig:"MERGE_JOB_BATCH_SIZE" default:"20"`
	MergeJobIntervalSeconds int `envconfig:"MERGE_JOB_INTERVAL_SECONDS" default:"5"`

	// Health checking
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
}

// ResolveDefaults validates driver selection and its required settings.
func (c *Config) ResolveDefaults() error {
	switch c.DBDriver {
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("JURISCOPE_POSTGRES_DSN is required for DB_DRIVER=postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("JURISCOPE_SQLITE_PATH is required for DB_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.RegistryTimeoutSeconds <= 0 {
		return fmt.Errorf("REGISTRY_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

// New creates a Config by parsing environment variables.
// Example: JURISCOPE_HTTP_PORT, JURISCOPE_POSTGRES_DSN.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("JURISCOPE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("db_driver", cfg.DBDriver).
		Int("port", cfg.HTTPPort).
		Str("registry_base_url", cfg.RegistryBaseURL).
		Str("postgres_dsn_present", func() string {
			if cfg.PostgresDSN != "" {
				return "true"
			}
			return "false"
		}()).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config suitable for unit tests (sqlite in a temp path).
func NewForTesting() *Config {
	return &Config{
		DBDriver:                  "sqlite",
		SQLitePath:                ":memory:",
		HTTPPort:                  8080,
		RegistryTimeoutSeconds:    5,
		MergeJobBatchSize:         20,
		MergeJobIntervalSeconds:   5,
		HealthIntervalSeconds:     30,
		HealthProbeTimeoutSeconds: 2,
	}
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
