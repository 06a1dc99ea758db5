// Package s3 implements the read-only ObjectStore on Amazon S3 or any
// S3-compatible endpoint (MinIO, Localstack, Cubbit DS3).
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/docmirror/pkg/store"
)

// S3ObjectStore implements store.ObjectStore on an S3 client.
//
// Key Design:
// Object keys are used verbatim as paths relative to the local tree, so the
// bucket layout is exactly the site layout ("index.html", "css/site.css").
//
// Retries:
// The client's retryer governs retries. The mirror expects a failed fetch to
// be reported rather than retried indefinitely, so the client is normally
// built with a small MaxAttempts (see config.NewS3Client).
//
// Thread Safety:
// Safe for concurrent use; *s3.Client is goroutine-safe.
type S3ObjectStore struct {
	client  *s3.Client
	metrics S3Metrics
}

// S3ObjectStoreConfig contains configuration for the S3 object store.
type S3ObjectStoreConfig struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Metrics is optional; nil disables collection
	Metrics S3Metrics
}

// NewS3ObjectStore creates an S3-backed object store.
//
// No request is issued: bucket reachability is discovered on first use so the
// service can start while the store is down.
func NewS3ObjectStore(cfg S3ObjectStoreConfig) (*S3ObjectStore, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &S3ObjectStore{
		client:  cfg.Client,
		metrics: metrics,
	}, nil
}

// List implements store.ObjectStore using ListObjectsV2 pagination.
func (s *S3ObjectStore) List(ctx context.Context, bucket string) (keys []string, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("ListObjects", time.Since(start), err)
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	keys = []string{}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})

	for paginator.HasMorePages() {
		page, pageErr := paginator.NextPage(ctx)
		if pageErr != nil {
			err = mapError(pageErr, fmt.Sprintf("list bucket %q", bucket))
			return nil, err
		}

		for _, obj := range page.Contents {
			if obj.Key == nil || store.IsDirectoryMarker(*obj.Key) {
				continue
			}
			keys = append(keys, *obj.Key)
		}
	}

	return keys, nil
}

// Fetch implements store.ObjectStore. The whole body is read into memory.
func (s *S3ObjectStore) Fetch(ctx context.Context, bucket, key string) (body []byte, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("GetObject", time.Since(start), err)
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	result, getErr := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if getErr != nil {
		err = mapError(getErr, fmt.Sprintf("get object %s/%s", bucket, key))
		return nil, err
	}

	rc := &metricsReadCloser{
		ReadCloser: result.Body,
		metrics:    s.metrics,
		operation:  "read",
	}
	defer func() { _ = rc.Close() }()

	body, err = io.ReadAll(rc)
	if err != nil {
		err = fmt.Errorf("%w: read object %s/%s: %v", store.ErrStore, bucket, key, err)
		return nil, err
	}

	return body, nil
}

// mapError translates SDK errors into the store error kinds. Cancellation is
// passed through unchanged; a deadline is a store failure that still
// matches context.DeadlineExceeded.
func mapError(err error, op string) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", store.ErrStore, op, err)
	}

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%s: %w", op, store.ErrObjectNotFound)
	}

	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return fmt.Errorf("%s: %w", op, store.ErrBucketNotFound)
	}

	return fmt.Errorf("%w: %s: %v", store.ErrStore, op, err)
}
