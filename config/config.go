// Package config loads the settings of an exploration session from the environment.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// The environment prefix of every setting, e.g. DSTG_REFINEMENT_CEILING.
const Prefix = "DSTG"

// Config holds the settings of an exploration session.
type Config struct {
	// Max number of escalation rounds spent on a single interaction.
	RefinementCeiling int `envconfig:"REFINEMENT_CEILING" default:"5"`
	// Highest precision level of the default reducer.
	MaxPrecision     int  `envconfig:"MAX_PRECISION" default:"4"`
	ReducerCacheSize int  `envconfig:"REDUCER_CACHE_SIZE" default:"512"`
	PathCacheSize    int  `envconfig:"PATH_CACHE_SIZE" default:"256"`
	CheckInvariants  bool `envconfig:"CHECK_INVARIANTS" default:"false"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"LOG_DEV" default:"false"`

	GRPCAddr  string `envconfig:"GRPC_ADDR" default:"localhost:50061"`
	ReportDir string `envconfig:"REPORT_DIR" default:"./dstg-report"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		RefinementCeiling: 5,
		MaxPrecision:      4,
		ReducerCacheSize:  512,
		PathCacheSize:     256,
		CheckInvariants:   false,
		LogLevel:          "info",
		LogDevelopment:    false,
		GRPCAddr:          "localhost:50061",
		ReportDir:         "./dstg-report",
	}
}

// Validate rejects settings the session cannot run with.
func (c *Config) Validate() error {
	if c.RefinementCeiling < 0 {
		return fmt.Errorf("config: refinement ceiling must not be negative, got %d", c.RefinementCeiling)
	}
	if c.MaxPrecision < 0 {
		return fmt.Errorf("config: max precision must not be negative, got %d", c.MaxPrecision)
	}
	if c.ReducerCacheSize <= 0 || c.PathCacheSize <= 0 {
		return fmt.Errorf("config: cache sizes must be positive")
	}
	return nil
}
