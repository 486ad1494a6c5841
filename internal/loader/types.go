// Package loader - Configuration Types
//
// Defines the YAML configuration structure for quantd.
//
//	server:     Listen address, timeouts, shutdown behavior
//	auth:       API tokens
//	bucket:     Object storage holding price parquet files (filesystem or s3)
//	data:       Price source object and local cache
//	sessions:   Session dataset persistence
//	store:      In-memory series handle store
//	sample:     Preview downsampling
//	artifacts:  Published chart/dataset artifacts and URL signing
//	universe:   Instrument universe database (DuckDB)
//	agent:      Natural-language ticker resolution (LLM)
//	logging:    Log level and format

package loader

import (
	"time"

	"github.com/quantio/quantd/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for quantd.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Auth configures API authentication tokens.
	Auth AuthConfig `yaml:"auth"`

	// Bucket configures the object store holding price data.
	Bucket BucketConfig `yaml:"bucket"`

	// Data configures the price source and local cache.
	Data DataConfig `yaml:"data"`

	// Sessions configures session dataset persistence.
	Sessions SessionsConfig `yaml:"sessions"`

	// Store configures the in-memory series handle store.
	Store StoreConfig `yaml:"store"`

	// Sample configures preview downsampling.
	Sample SampleConfig `yaml:"sample"`

	// Artifacts configures published artifact storage and signed URLs.
	Artifacts ArtifactsConfig `yaml:"artifacts"`

	// Universe configures the instrument universe database.
	Universe UniverseConfig `yaml:"universe"`

	// Agent configures natural-language ticker resolution.
	Agent AgentConfig `yaml:"agent"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// =============================================================================
// Server
// =============================================================================

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Listen is the HTTP listen address.
	// Format: "host:port" or ":port"
	// Default: "0.0.0.0:8080"
	Listen string `yaml:"listen"`

	// ReadTimeout bounds request reads.
	ReadTimeout Duration `yaml:"read_timeout"`

	// WriteTimeout bounds response writes. Materialize and fetch of large
	// windows can be slow, so this is generous by default.
	WriteTimeout Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	// ExternalURL is the base URL clients reach this server at. Used when
	// building signed artifact download links. Defaults to
	// "http://<listen>" when empty.
	ExternalURL string `yaml:"external_url"`
}

// =============================================================================
// Auth
// =============================================================================

// AuthConfig configures API authentication.
type AuthConfig struct {
	// Tokens is the list of accepted bearer tokens. Empty disables auth.
	Tokens []TokenConfig `yaml:"tokens"`
}

// TokenConfig is a single API token.
type TokenConfig struct {
	// ID identifies the token in logs.
	ID string `yaml:"id"`

	// Token is the secret value. Supports ${ENV} expansion.
	Token string `yaml:"token"`
}

// =============================================================================
// Bucket
// =============================================================================

// BucketConfig configures the object store backing price data and
// artifacts.
type BucketConfig struct {
	// Provider selects the backend: "filesystem" or "s3".
	Provider string `yaml:"provider"`

	// Filesystem configures the filesystem provider.
	Filesystem FilesystemBucketConfig `yaml:"filesystem"`

	// S3 configures the s3 provider.
	S3 S3BucketConfig `yaml:"s3"`
}

// FilesystemBucketConfig is the local directory provider.
type FilesystemBucketConfig struct {
	Directory string `yaml:"directory"`
}

// S3BucketConfig is the S3-compatible provider.
type S3BucketConfig struct {
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Insecure  bool   `yaml:"insecure"`
}

// =============================================================================
// Data
// =============================================================================

// DataConfig configures the price source.
type DataConfig struct {
	// PriceObject is the object key of the wide price parquet file.
	PriceObject string `yaml:"price_object"`

	// CacheDir is the local directory downloaded objects are cached in.
	CacheDir string `yaml:"cache_dir"`
}

// =============================================================================
// Sessions
// =============================================================================

// SessionsConfig configures session dataset persistence.
type SessionsConfig struct {
	// Dir is the directory session documents are written under, one
	// subdirectory per session.
	Dir string `yaml:"dir"`
}

// =============================================================================
// Store
// =============================================================================

// StoreConfig configures the in-memory series handle store.
type StoreConfig struct {
	// MaxSeries caps stored series; the oldest entry is evicted past it.
	MaxSeries int `yaml:"max_series"`
}

// =============================================================================
// Sample
// =============================================================================

// SampleConfig configures preview downsampling.
type SampleConfig struct {
	// MinPoints is the series length above which previews are downsampled.
	MinPoints int `yaml:"min_points"`

	// TargetPoints is the approximate size of a downsampled preview.
	TargetPoints int `yaml:"target_points"`
}

// =============================================================================
// Artifacts
// =============================================================================

// ArtifactsConfig configures published artifacts.
type ArtifactsConfig struct {
	// Prefix is the object key prefix artifacts are written under.
	Prefix string `yaml:"prefix"`

	// SigningKey is the HMAC key signed download URLs are derived from.
	// Supports ${ENV} expansion.
	SigningKey string `yaml:"signing_key"`

	// URLTTL is how long a signed download URL stays valid.
	URLTTL Duration `yaml:"url_ttl"`
}

// =============================================================================
// Universe
// =============================================================================

// UniverseConfig configures the instrument universe database.
type UniverseConfig struct {
	// Path is the DuckDB database file. ":memory:" for ephemeral.
	Path string `yaml:"path"`

	// Table is the universe table name.
	Table string `yaml:"table"`

	// ImportCSV, when set, is a CSV file imported into the table at
	// startup if the table is empty.
	ImportCSV string `yaml:"import_csv"`
}

// =============================================================================
// Agent
// =============================================================================

// AgentConfig configures natural-language ticker resolution.
type AgentConfig struct {
	// Enabled turns the LLM resolver on. When off, queries fall back to
	// symbol extraction against the universe table.
	Enabled bool `yaml:"enabled"`

	// Model is the generative model name.
	Model string `yaml:"model"`

	// APIKey is the API key. Supports ${ENV} expansion; falls back to the
	// GEMINI_API_KEY environment variable when empty.
	APIKey string `yaml:"api_key"`
}

// =============================================================================
// Logging
// =============================================================================

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          config.DefaultListenAddress,
			ReadTimeout:     Duration(config.DefaultReadTimeout),
			WriteTimeout:    Duration(config.DefaultWriteTimeout),
			ShutdownTimeout: Duration(config.DefaultShutdownTimeout),
		},

		Bucket: BucketConfig{
			Provider: "filesystem",
			Filesystem: FilesystemBucketConfig{
				Directory: "data",
			},
		},

		Data: DataConfig{
			PriceObject: config.DefaultPriceObject,
			CacheDir:    config.DefaultSourceCacheDir,
		},

		Sessions: SessionsConfig{
			Dir: config.DefaultSessionsDir,
		},

		Store: StoreConfig{
			MaxSeries: config.DefaultMaxSeries,
		},

		Sample: SampleConfig{
			MinPoints:    config.DefaultMinPointsToSample,
			TargetPoints: config.DefaultTargetPoints,
		},

		Artifacts: ArtifactsConfig{
			Prefix: config.DefaultArtifactPrefix,
			URLTTL: Duration(config.DefaultArtifactTTL),
		},

		Universe: UniverseConfig{
			Path:  config.DefaultUniversePath,
			Table: config.DefaultUniverseTable,
		},

		Agent: AgentConfig{
			Model: config.DefaultAgentModel,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		// Try as int (seconds)
		var i int
		if err := unmarshal(&i); err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
