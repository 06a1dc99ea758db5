package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete docmirror configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DOCMIRROR_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
//
// Store Configuration Pattern:
// The object store section carries a type selector plus one type-specific
// map per implementation; only the map matching the selected type is decoded
// (see CreateObjectStore).
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains HTTP listener settings
	Server ServerConfig `mapstructure:"server"`

	// Auth holds the administrator credentials for the admin API
	Auth AuthConfig `mapstructure:"auth"`

	// Store selects and configures the remote object store
	Store StoreConfig `mapstructure:"store"`

	// Storage holds local directories
	Storage StorageConfig `mapstructure:"storage"`

	// Sync tunes the object store mirror
	Sync SyncConfig `mapstructure:"sync"`

	// Journal configures the operation history database
	Journal JournalConfig `mapstructure:"journal"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	// Host is the interface to bind
	Host string `mapstructure:"host"`

	// Port is the TCP port for documentation and admin routes
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// MaxUploadBytes caps the size of an uploaded archive
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" validate:"required,gt=0"`

	// RateLimit throttles the admin routes per client address
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig configures the admin API token bucket.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. 0 disables limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`

	// Burst is the bucket capacity
	Burst uint `mapstructure:"burst"`
}

// AuthConfig holds the single administrator account.
type AuthConfig struct {
	Username string `mapstructure:"username" validate:"required"`
	Password string `mapstructure:"password" validate:"required"`
}

// StoreConfig specifies the object store.
//
// The Type field determines which implementation is used. Only the
// corresponding type-specific section is used.
type StoreConfig struct {
	// Type specifies which object store implementation to use
	// Valid values: s3, memory
	Type string `mapstructure:"type" validate:"required,oneof=s3 memory"`

	// Bucket is the bucket mirrored into the content tree
	Bucket string `mapstructure:"bucket" validate:"required"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`
}

// StorageConfig holds local directories.
type StorageConfig struct {
	// LocalDir is the served content tree
	LocalDir string `mapstructure:"local_dir" validate:"required"`

	// TempDir holds uploads and backup snapshots during a deploy
	TempDir string `mapstructure:"temp_dir" validate:"required"`

	// ArtifactMaxAge is the age after which leftover uploads and backups in
	// TempDir are deleted. 0 keeps them forever.
	ArtifactMaxAge time.Duration `mapstructure:"artifact_max_age" validate:"gte=0"`

	// SweepInterval is how often TempDir is swept
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gte=0"`
}

// SyncConfig tunes the object store mirror.
type SyncConfig struct {
	// Concurrency bounds in-flight object fetches
	Concurrency int `mapstructure:"concurrency" validate:"required,min=1,max=1024"`

	// FetchTimeout bounds a single object fetch
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" validate:"required,gt=0"`

	// RefreshInterval schedules periodic clean downloads. 0 disables.
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"gte=0"`
}

// JournalConfig configures the operation history.
type JournalConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Path is the BadgerDB directory
	Path string `mapstructure:"path" validate:"required_if=Enabled true"`

	// Retain is the number of records kept
	Retain int `mapstructure:"retain" validate:"gte=0"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port for the metrics HTTP server
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
}

// envKeys lists every scalar key that may be set from the environment alone,
// without a matching entry in the config file.
var envKeys = []string{
	"logging.level", "logging.format", "logging.output",
	"server.host", "server.port", "server.shutdown_timeout", "server.max_upload_bytes",
	"server.rate_limit.requests_per_second", "server.rate_limit.burst",
	"auth.username", "auth.password",
	"store.type", "store.bucket",
	"store.s3.region", "store.s3.endpoint", "store.s3.path_style",
	"store.s3.access_key_id", "store.s3.secret_access_key", "store.s3.max_retries",
	"store.memory.seed_dir",
	"storage.local_dir", "storage.temp_dir", "storage.artifact_max_age", "storage.sweep_interval",
	"sync.concurrency", "sync.fetch_timeout", "sync.refresh_interval",
	"journal.enabled", "journal.path", "journal.retain",
	"metrics.enabled", "metrics.port",
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if err := setupViper(v, configPath); err != nil {
		return nil, err
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variables and config file lookup.
//
// Environment variables use the DOCMIRROR_ prefix and underscores:
// DOCMIRROR_STORE_BUCKET=docs, DOCMIRROR_SYNC_CONCURRENCY=32.
func setupViper(v *viper.Viper, configPath string) error {
	v.SetEnvPrefix("DOCMIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	return nil
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			// Missing file is acceptable: environment and defaults apply
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/docmirror, ~/.config/docmirror, or
// "." when the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "docmirror")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "docmirror")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
