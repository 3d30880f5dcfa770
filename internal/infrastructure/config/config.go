// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv("")
//	dbPath := cfg.Storage.DatabasePath
//	batchSize := cfg.Reconciliation.BatchSize
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/terminalledger/commission-recon/internal/domain/matcher"
)

// Config represents the entire application configuration
type Config struct {
	Storage        StorageConfig        `yaml:"storage"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	API            APIConfig            `yaml:"api"`
	Observability  ObservabilityConfig  `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ReconciliationConfig holds defaults for the matching engine.
// CLI flags override these per run.
type ReconciliationConfig struct {
	BatchSize         int     `yaml:"batch_size"`          // commit every N successful matches
	MaxTimeDiffHours  float64 `yaml:"max_time_diff_hours"` // reject candidates beyond this window
	MorningCutoffHour int     `yaml:"morning_cutoff_hour"` // next-day settlement tolerance
	AmountTolerance   string  `yaml:"amount_tolerance"`    // decimal string, "0" = exact sums only
	DetailLimit       int     `yaml:"detail_limit"`        // max entries per report detail list
}

// APIConfig holds API server configuration
type APIConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g. ${RECON_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			DatabasePath: getEnv("RECON_DB_PATH", "reconciliation.db"),
		},
		Reconciliation: ReconciliationConfig{
			BatchSize:         getEnvInt("RECON_BATCH_SIZE", 0),
			MorningCutoffHour: getEnvInt("RECON_MORNING_CUTOFF_HOUR", 0),
			AmountTolerance:   os.Getenv("RECON_AMOUNT_TOLERANCE"),
		},
		API: APIConfig{
			Port: getEnvInt("RECON_API_PORT", 0),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("RECON_LOG_LEVEL", "info"),
				Format: getEnv("RECON_LOG_FORMAT", "text"),
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries the config file first, falling back to environment variables.
// An empty path means "config.yaml" in the working directory.
func LoadOrEnv(path string) *Config {
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := Load(path)
	if err != nil {
		return LoadFromEnv()
	}
	return cfg
}

// applyDefaults fills in zero values with engine defaults
func (c *Config) applyDefaults() {
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "reconciliation.db"
	}
	if c.Reconciliation.BatchSize <= 0 {
		c.Reconciliation.BatchSize = 100
	}
	if c.Reconciliation.MaxTimeDiffHours <= 0 {
		c.Reconciliation.MaxTimeDiffHours = 24
	}
	if c.Reconciliation.MorningCutoffHour <= 0 {
		c.Reconciliation.MorningCutoffHour = 12
	}
	if c.Reconciliation.AmountTolerance == "" {
		c.Reconciliation.AmountTolerance = "0"
	}
	if c.Reconciliation.DetailLimit <= 0 {
		c.Reconciliation.DetailLimit = 100
	}
	if c.API.Port <= 0 {
		c.API.Port = 8080
	}
	if len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
}

// MatcherConfig builds the matching engine settings from the reconciliation
// section. Fails when amount_tolerance is not a valid decimal.
func (c *Config) MatcherConfig() (matcher.Config, error) {
	tolerance, err := decimal.NewFromString(c.Reconciliation.AmountTolerance)
	if err != nil {
		return matcher.Config{}, fmt.Errorf("invalid amount_tolerance %q: %w", c.Reconciliation.AmountTolerance, err)
	}

	cfg := matcher.DefaultConfig()
	cfg.AmountTolerance = tolerance
	cfg.MaxTimeDiffHours = c.Reconciliation.MaxTimeDiffHours
	cfg.MorningCutoffHour = c.Reconciliation.MorningCutoffHour
	return cfg, nil
}

// Validate checks the configuration for obvious mistakes
func (c *Config) Validate() error {
	if c.Reconciliation.MorningCutoffHour > 23 {
		return fmt.Errorf("morning_cutoff_hour must be 0-23, got %d", c.Reconciliation.MorningCutoffHour)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
