package config

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/docmirror/internal/logger"
	"github.com/marmos91/docmirror/pkg/journal"
	"github.com/marmos91/docmirror/pkg/store"
	"github.com/marmos91/docmirror/pkg/store/memory"
	storeS3 "github.com/marmos91/docmirror/pkg/store/s3"
	"github.com/mitchellh/mapstructure"
)

// S3StoreOptions is the decoded form of the store.s3 section.
type S3StoreOptions struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	PathStyle       bool   `mapstructure:"path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// MemoryStoreOptions is the decoded form of the store.memory section.
type MemoryStoreOptions struct {
	// SeedDir is a local directory whose files are loaded into the bucket
	SeedDir string `mapstructure:"seed_dir"`
}

// decodeOptions decodes a type-specific map, converting the string values
// that environment variables produce.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}

// CreateObjectStore creates an object store based on configuration.
//
// This factory function uses the Type field to determine which store implementation
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the store's constructor.
//
// Supported types:
//   - "s3": Uses pkg/store/s3 (Amazon S3 or compatible storage)
//   - "memory": Uses pkg/store/memory, optionally seeded from a local directory
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Object store configuration
//   - metrics: S3 metrics collector (nil for no-op)
//
// Returns:
//   - store.ObjectStore: Initialized object store
//   - error: Configuration or initialization error
func CreateObjectStore(ctx context.Context, cfg *StoreConfig, metrics storeS3.S3Metrics) (store.ObjectStore, error) {
	switch cfg.Type {
	case "s3":
		return createS3ObjectStore(ctx, cfg.S3, metrics)
	case "memory":
		return createMemoryObjectStore(ctx, cfg.Bucket, cfg.Memory)
	default:
		return nil, fmt.Errorf("unknown object store type: %q (supported: s3, memory)", cfg.Type)
	}
}

// createS3ObjectStore creates an S3-based object store.
func createS3ObjectStore(ctx context.Context, options map[string]any, metrics storeS3.S3Metrics) (store.ObjectStore, error) {
	var storeCfg S3StoreOptions
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 object store config: %w", err)
	}

	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 object store: region is required")
	}

	client, err := NewS3Client(ctx, storeCfg)
	if err != nil {
		return nil, err
	}

	objectStore, err := storeS3.NewS3ObjectStore(storeS3.S3ObjectStoreConfig{
		Client:  client,
		Metrics: metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 object store: %w", err)
	}

	logger.Info("S3 object store initialized: region=%s, endpoint=%s", storeCfg.Region, storeCfg.Endpoint)

	return objectStore, nil
}

// NewS3Client builds an S3 client from decoded store options.
//
// MaxRetries is the total number of attempts per request: the mirror reports
// a failed fetch and leaves recovery to the next clean download, so the
// default is a single attempt.
func NewS3Client(ctx context.Context, opts S3StoreOptions) (*s3.Client, error) {
	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(opts.Region))

	// Set credentials if provided, otherwise use default credential chain
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxAttempts := opts.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = DefaultS3MaxRetries
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxAttempts
		})
	}))

	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			// Custom endpoint for MinIO, Localstack, etc.
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle || opts.Endpoint != ""
	})

	return client, nil
}

// createMemoryObjectStore creates an in-memory object store holding bucket.
// When seed_dir is set, every regular file below it becomes an object keyed
// by its slash-separated relative path.
func createMemoryObjectStore(ctx context.Context, bucket string, options map[string]any) (store.ObjectStore, error) {
	var storeCfg MemoryStoreOptions
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory object store config: %w", err)
	}

	objectStore := memory.NewMemoryObjectStore()
	objectStore.CreateBucket(bucket)

	if storeCfg.SeedDir == "" {
		logger.Info("Memory object store initialized: bucket=%s (empty)", bucket)
		return objectStore, nil
	}

	count := 0
	err := filepath.WalkDir(storeCfg.SeedDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(storeCfg.SeedDir, path)
		if err != nil {
			return err
		}
		body, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		objectStore.Put(bucket, filepath.ToSlash(rel), body)
		count++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed memory object store from %q: %w", storeCfg.SeedDir, err)
	}

	logger.Info("Memory object store initialized: bucket=%s, seeded %d objects from %s", bucket, count, storeCfg.SeedDir)

	return objectStore, nil
}

// OpenJournal opens the operation journal, or returns nil when it is disabled.
func OpenJournal(cfg *JournalConfig) (*journal.Journal, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	j, err := journal.Open(journal.Config{
		Path:   cfg.Path,
		Retain: cfg.Retain,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	logger.Info("Operation journal opened: path=%s, retain=%d", cfg.Path, cfg.Retain)
	return j, nil
}
