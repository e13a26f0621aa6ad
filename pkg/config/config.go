// Package config resolves the runtime configuration for retain.
//
// Defaults are overridden by RETAIN_* environment variables. Tunables that
// belong to a specific store (memory caps, eviction batch size) are seeded
// from this configuration when a data directory is first initialized and
// thereafter live in that directory's state.json.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Defaults for a fresh data directory.
const (
	DefaultMaxMemories       = 100
	DefaultMemoriesToLoad    = 10
	DefaultEvictionBatchSize = 10
	DefaultTokenNormalizeCap = 100000
)

// DefaultDataDirName is the data directory created under the working
// directory when RETAIN_DATA_PATH is not set.
const DefaultDataDirName = ".retain"

// Config is the resolved runtime configuration.
type Config struct {
	// DataPath is the base directory holding memories/, archives/, the
	// catalogs, and logs/.
	DataPath string `env:"RETAIN_DATA_PATH"`

	MaxMemories       int `env:"RETAIN_MAX_MEMORIES"`
	MemoriesToLoad    int `env:"RETAIN_MEMORIES_TO_LOAD"`
	EvictionBatchSize int `env:"RETAIN_EVICTION_BATCH_SIZE"`

	// TokenCounting enables token-aware difficulty scoring.
	TokenCounting     bool `env:"RETAIN_TOKEN_COUNTING"`
	TokenNormalizeCap int  `env:"RETAIN_TOKEN_NORMALIZE_CAP"`
}

// Load resolves the configuration from defaults and environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		MaxMemories:       DefaultMaxMemories,
		MemoriesToLoad:    DefaultMemoriesToLoad,
		EvictionBatchSize: DefaultEvictionBatchSize,
		TokenCounting:     true,
		TokenNormalizeCap: DefaultTokenNormalizeCap,
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}

	if cfg.DataPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: resolve working directory: %w", err)
		}
		cfg.DataPath = filepath.Join(cwd, DefaultDataDirName)
	}

	return cfg, nil
}

// LogDir returns the directory session log files are written to.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataPath, "logs")
}
