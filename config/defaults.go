// Package config provides configuration defaults and utilities
// for the quantd application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default HTTP listen address.
	// Override via config: server.listen
	DefaultListenAddress = "0.0.0.0:8080"

	// DefaultReadTimeout bounds how long a request body read may take.
	// Override via config: server.read_timeout
	DefaultReadTimeout = 30 * time.Second

	// DefaultWriteTimeout bounds how long a response write may take.
	// Materialize responses carry downsampled tables, so this stays generous.
	// Override via config: server.write_timeout
	DefaultWriteTimeout = 60 * time.Second

	// DefaultShutdownTimeout is how long graceful shutdown waits for
	// in-flight requests before closing the listener.
	DefaultShutdownTimeout = 30 * time.Second
)

// =============================================================================
// Columnar Source Defaults
// =============================================================================

const (
	// DefaultPriceObject is the object key of the wide price parquet file
	// inside the configured bucket (columns: date + one per ticker).
	// Override via config: data.price_object
	DefaultPriceObject = "prices_latest.parquet"

	// DefaultSourceCacheDir is where remote parquet objects are cached
	// locally between reads.
	// Override via config: data.cache_dir
	DefaultSourceCacheDir = "cache"
)

// =============================================================================
// Series Store Defaults
// =============================================================================

const (
	// DefaultMaxSeries caps the number of entries held by the in-memory
	// series store. When exceeded, the oldest entry is evicted. Entries
	// are immutable, so eviction only invalidates stale handles.
	// Override via config: store.max_series
	DefaultMaxSeries = 4096

	// HandleLength is the length of series handles in hex characters.
	// 8 hex chars = 32 bits of randomness. Collisions are retried at
	// issue time; after issue a handle is stable for the store lifetime.
	HandleLength = 8
)

// =============================================================================
// Session Defaults
// =============================================================================

const (
	// DefaultSessionsDir is the root directory for per-session state
	// (wide table, summary, metadata documents).
	// Override via config: sessions.dir
	DefaultSessionsDir = "sessions"

	// DefaultPreviewRows is how many trailing rows a transform returns
	// as its preview.
	DefaultPreviewRows = 5
)

// =============================================================================
// Downsampler Defaults
// =============================================================================

const (
	// DefaultMinPointsToSample is the row count above which materialized
	// tables are downsampled before transport.
	// Override via config: sample.min_points
	DefaultMinPointsToSample = 200

	// DefaultTargetPoints is the approximate row count of a downsampled
	// table. The final row is always force-included, so results may hold
	// up to target+1 rows.
	// Override via config: sample.target_points
	DefaultTargetPoints = 100
)

// =============================================================================
// Artifact Defaults
// =============================================================================

const (
	// DefaultArtifactTTL is how long signed artifact URLs stay valid.
	// Override via config: artifacts.url_ttl
	DefaultArtifactTTL = time.Hour

	// DefaultArtifactPrefix is the bucket prefix under which processed
	// results are published.
	// Override via config: artifacts.prefix
	DefaultArtifactPrefix = "users"
)

// =============================================================================
// Universe Defaults
// =============================================================================

const (
	// DefaultUniversePath is the DuckDB database file holding the
	// instrument universe. Empty means in-memory.
	// Override via config: universe.path
	DefaultUniversePath = "universe.db"

	// DefaultUniverseTable is the table name for the instrument universe.
	DefaultUniverseTable = "universe"
)

// =============================================================================
// Agent Defaults
// =============================================================================

const (
	// DefaultAgentModel is the Gemini model used for NL to SQL ticker
	// resolution when an API key is configured.
	// Override via config: agent.model
	DefaultAgentModel = "gemini-2.0-flash"
)
