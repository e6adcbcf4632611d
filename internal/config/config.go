package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level ledger.yaml configuration. Every field has
// a working default; the DATABASE_URL environment variable overrides the
// database URL so deployments never write credentials to disk.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Ledger         LedgerConfig         `yaml:"ledger"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// ReconciliationConfig controls the automated pipeline.
type ReconciliationConfig struct {
	// AutoThreshold is the minimum confidence (0-100) for automatic posting.
	AutoThreshold int `yaml:"auto_threshold"`
	// ReviewThreshold is the minimum confidence for persisting a suggestion.
	ReviewThreshold int `yaml:"review_threshold"`
	// BatchLimit caps the transactions picked up by one batch run.
	BatchLimit int `yaml:"batch_limit"`
}

// LedgerConfig controls posting-side behavior.
type LedgerConfig struct {
	// ChartCacheTTL bounds staleness of the cached chart of accounts.
	ChartCacheTTL time.Duration `yaml:"chart_cache_ttl"`
}

// Default returns a Config with the product's standing defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Reconciliation: ReconciliationConfig{
			AutoThreshold:   90,
			ReviewThreshold: 70,
			BatchLimit:      100,
		},
		Ledger: LedgerConfig{
			ChartCacheTTL: 30 * time.Second,
		},
	}
}

// Load reads a ledger.yaml file from disk, applies defaults for omitted
// fields and environment overrides, and validates the result. An empty path
// returns the defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if addr := os.Getenv("SERVER_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate rejects threshold combinations the pipeline cannot honor.
func (c *Config) Validate() error {
	r := c.Reconciliation
	if r.AutoThreshold < 1 || r.AutoThreshold > 100 {
		return fmt.Errorf("auto_threshold %d out of range 1-100", r.AutoThreshold)
	}
	if r.ReviewThreshold < 0 || r.ReviewThreshold > 100 {
		return fmt.Errorf("review_threshold %d out of range 0-100", r.ReviewThreshold)
	}
	if r.ReviewThreshold > r.AutoThreshold {
		return fmt.Errorf("review_threshold %d exceeds auto_threshold %d", r.ReviewThreshold, r.AutoThreshold)
	}
	if r.BatchLimit < 1 {
		return fmt.Errorf("batch_limit must be positive, got %d", r.BatchLimit)
	}
	return nil
}
