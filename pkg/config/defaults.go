package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default values for optional settings.
const (
	DefaultPort             = 8080
	DefaultMetricsPort      = 9090
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultMaxUploadBytes   = 512 << 20
	DefaultRateLimit        = 5.0
	DefaultRateLimitBurst   = 10
	DefaultLocalDir         = "www/public"
	DefaultSyncConcurrency  = 16
	DefaultFetchTimeout     = 30 * time.Second
	DefaultJournalRetain    = 500
	DefaultS3MaxRetries     = 1
	DefaultSweepInterval    = time.Hour
	DefaultStoreType        = "s3"
	defaultTempDirComponent = "docmirror"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Credentials and the bucket name have no defaults
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStoreDefaults(&cfg.Store)
	applyStorageDefaults(&cfg.Storage)
	applySyncDefaults(&cfg.Sync)
	applyJournalDefaults(&cfg.Journal)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets HTTP server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = DefaultRateLimitBurst
	}
}

// applyStoreDefaults sets object store defaults.
func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = DefaultStoreType
	}

	// Initialize maps if nil
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}

	if _, ok := cfg.S3["max_retries"]; !ok {
		cfg.S3["max_retries"] = DefaultS3MaxRetries
	}
}

// applyStorageDefaults sets local directory defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.LocalDir == "" {
		cfg.LocalDir = DefaultLocalDir
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), defaultTempDirComponent)
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
}

// applySyncDefaults sets mirror tuning defaults.
func applySyncDefaults(cfg *SyncConfig) {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultSyncConcurrency
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
}

// applyJournalDefaults sets operation journal defaults.
func applyJournalDefaults(cfg *JournalConfig) {
	if cfg.Path == "" {
		cfg.Path = filepath.Join(getConfigDir(), "journal")
	}
	if cfg.Retain == 0 {
		cfg.Retain = DefaultJournalRetain
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// The result still lacks credentials and a bucket name, so it does not pass
// Validate on its own.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
