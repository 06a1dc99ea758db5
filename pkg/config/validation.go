package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if cfg.Store.Type == "s3" {
		var s3Opts S3StoreOptions
		if err := decodeOptions(cfg.Store.S3, &s3Opts); err != nil {
			return fmt.Errorf("store.s3: %w", err)
		}
		if s3Opts.Region == "" {
			return fmt.Errorf("store.s3.region: required when store.type is s3")
		}
		// Static credentials come as a pair
		if (s3Opts.AccessKeyID == "") != (s3Opts.SecretAccessKey == "") {
			return fmt.Errorf("store.s3: access_key_id and secret_access_key must be set together")
		}
	}

	// A deploy clears local_dir, so temp_dir must live outside it
	local, err := filepath.Abs(cfg.Storage.LocalDir)
	if err != nil {
		return fmt.Errorf("storage.local_dir: %w", err)
	}
	temp, err := filepath.Abs(cfg.Storage.TempDir)
	if err != nil {
		return fmt.Errorf("storage.temp_dir: %w", err)
	}
	if local == temp || strings.HasPrefix(temp, local+string(filepath.Separator)) {
		return fmt.Errorf("storage.temp_dir: %q must not be inside local_dir %q", cfg.Storage.TempDir, cfg.Storage.LocalDir)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Server.Port {
		return fmt.Errorf("metrics.port: %d conflicts with server.port", cfg.Metrics.Port)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		// Return the first validation error with context
		e := validationErrs[0]
		if e.Field() == "Password" {
			return fmt.Errorf("%s: validation failed on '%s' tag", e.Namespace(), e.Tag())
		}
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
