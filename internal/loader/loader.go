// Package loader handles configuration file loading and validation.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Validating the result before the daemon starts

package loader

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quantio/quantd/internal/errors"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	// Server validation
	if cfg.Server.Listen == "" {
		errs.AddField("server.listen", "cannot be empty")
	}

	// Auth validation
	for i, t := range cfg.Auth.Tokens {
		if t.ID == "" {
			errs.AddField(fmt.Sprintf("auth.tokens[%d].id", i), "cannot be empty")
		}
		if t.Token == "" {
			errs.AddField(fmt.Sprintf("auth.tokens[%d].token", i), "cannot be empty")
		}
	}

	// Bucket validation
	switch cfg.Bucket.Provider {
	case "filesystem":
		if cfg.Bucket.Filesystem.Directory == "" {
			errs.AddField("bucket.filesystem.directory", "cannot be empty")
		}
	case "s3":
		if cfg.Bucket.S3.Bucket == "" {
			errs.AddField("bucket.s3.bucket", "cannot be empty")
		}
		if cfg.Bucket.S3.Endpoint == "" {
			errs.AddField("bucket.s3.endpoint", "cannot be empty")
		}
	default:
		errs.AddField("bucket.provider", fmt.Sprintf("unknown provider %q", cfg.Bucket.Provider))
	}

	// Data validation
	if cfg.Data.PriceObject == "" {
		errs.AddField("data.price_object", "cannot be empty")
	}
	if cfg.Data.CacheDir == "" {
		errs.AddField("data.cache_dir", "cannot be empty")
	}

	// Sessions validation
	if cfg.Sessions.Dir == "" {
		errs.AddField("sessions.dir", "cannot be empty")
	}

	// Store validation
	if cfg.Store.MaxSeries <= 0 {
		errs.AddField("store.max_series", "must be positive")
	}

	// Sample validation
	if cfg.Sample.TargetPoints < 2 {
		errs.AddField("sample.target_points", "must be at least 2")
	}
	if cfg.Sample.MinPoints < cfg.Sample.TargetPoints {
		errs.AddField("sample.min_points", "cannot be below sample.target_points")
	}

	// Artifacts validation
	if cfg.Artifacts.SigningKey != "" && len(cfg.Artifacts.SigningKey) < 16 {
		errs.AddField("artifacts.signing_key", "must be at least 16 bytes")
	}

	// Universe validation
	if cfg.Universe.Path == "" {
		errs.AddField("universe.path", "cannot be empty")
	}
	if cfg.Universe.Table == "" {
		errs.AddField("universe.table", "cannot be empty")
	}

	// Agent validation
	if cfg.Agent.Enabled && cfg.Agent.Model == "" {
		errs.AddField("agent.model", "cannot be empty when enabled")
	}

	return errs.Err()
}
