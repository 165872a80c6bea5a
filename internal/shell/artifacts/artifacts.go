// Package artifacts stages function archives in S3-compatible storage.
// This is part of the Imperative Shell - handles I/O with object storage.
//
// Archives too large for an inline upload are deployed from a bucket. The
// Stager uploads an archive and returns the bucket and key the remote
// deployer references instead of the archive bytes.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNoBucket is returned when staging is configured without a bucket.
var ErrNoBucket = errors.New("artifact bucket is not configured")

// Location is where a staged archive lives.
type Location struct {
	Bucket string
	Key    string
	Size   int64
}

// Stager uploads archives ahead of deployment.
type Stager interface {
	// Stage uploads the archive at archivePath under key.
	Stage(ctx context.Context, archivePath, key string) (*Location, error)
}

// ObjectKey returns the key of an archive for one remote function in one run.
// Pattern: {keyPrefix}{remoteName}/{runID}.zip
//
// Example:
//
//	ObjectKey("lambdaship/", "myapp-prod-api", "0190c2a4") // returns "lambdaship/myapp-prod-api/0190c2a4.zip"
func ObjectKey(keyPrefix, remoteName, runID string) string {
	return keyPrefix + path.Join(remoteName, runID+".zip")
}

// S3Config holds configuration for S3-compatible storage.
type S3Config struct {
	Endpoint  string // host:port, e.g. "s3.amazonaws.com" or "localhost:9000"
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// S3Stager implements Stager using minio-go.
type S3Stager struct {
	client *minio.Client
	bucket string
	region string
	logger *slog.Logger

	ensureOnce sync.Once
	ensureErr  error
}

// NewS3Stager creates a stager for cfg.Bucket.
func NewS3Stager(cfg S3Config, logger *slog.Logger) (*S3Stager, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "s3.amazonaws.com"
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://"), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return &S3Stager{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		logger: logger.With("component", "artifacts", "bucket", cfg.Bucket),
	}, nil
}

// EnsureBucket ensures the bucket exists, creating it if necessary. The
// check runs once per stager; later calls return the first result.
func (s *S3Stager) EnsureBucket(ctx context.Context) error {
	s.ensureOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.ensureErr = fmt.Errorf("check bucket %s: %w", s.bucket, err)
			return
		}
		if exists {
			return
		}
		s.logger.Info("creating artifact bucket")
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			s.ensureErr = fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	})
	return s.ensureErr
}

// Stage uploads the archive after making sure the bucket exists.
func (s *S3Stager) Stage(ctx context.Context, archivePath, key string) (*Location, error) {
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	info, err := s.client.FPutObject(ctx, s.bucket, key, archivePath, minio.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code != "" {
			return nil, fmt.Errorf("upload %s to s3://%s/%s: %s: %w", archivePath, s.bucket, key, resp.Code, err)
		}
		return nil, fmt.Errorf("upload %s to s3://%s/%s: %w", archivePath, s.bucket, key, err)
	}

	s.logger.Debug("staged archive", "key", info.Key, "size", info.Size)
	return &Location{Bucket: s.bucket, Key: info.Key, Size: info.Size}, nil
}

// Ensure S3Stager implements Stager.
var _ Stager = (*S3Stager)(nil)
