// Package config loads corpact settings from YAML or TOML files with
// CORPACT_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/corpact/pkg/corpact/internalerr"
)

var validate = validator.New()

// Load reads path over Default(), applies environment overrides and
// validates the result. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %v: %w", path, err, internalerr.ErrInvalidConfig)
		}
		if err := cfg.decode(path, data); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode unmarshals data by file extension. A file that sets keywords
// replaces the default buckets rather than merging into them.
func (c *Config) decode(path string, data []byte) error {
	defaults := c.Keywords
	c.Keywords = nil

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %v: %w", path, err, internalerr.ErrInvalidConfig)
	}

	if c.Keywords == nil {
		c.Keywords = defaults
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if path := os.Getenv("CORPACT_DB_PATH"); path != "" {
		cfg.Store.Path = path
	}
	if driver := os.Getenv("CORPACT_STORE_DRIVER"); driver != "" {
		cfg.Store.Driver = strings.ToLower(driver)
	}
	if url := os.Getenv("CORPACT_FEED_URL"); url != "" {
		cfg.Feed.BaseURL = url
	}
	if level := os.Getenv("CORPACT_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if sched := os.Getenv("CORPACT_SCHEDULE"); sched != "" {
		cfg.Ingest.Schedule = sched
	}
}
