package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"weather-cache/internal/models"
)

// ErrNotFound is joined with ErrStorage when the object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// Config holds S3 connection settings.
type Config struct {
	// Endpoint is the S3 host (e.g., "s3.amazonaws.com" or "localhost:9000")
	Endpoint string

	// Region is the bucket region, used when the bucket has to be created
	Region string

	// Bucket is the S3 bucket name
	Bucket string

	// AccessKey and SecretKey authenticate against the endpoint
	AccessKey string
	SecretKey string

	// UseSSL enables HTTPS connections
	UseSSL bool

	// ListPageSize is the number of keys requested per listing page.
	// Default: 1000 (the S3 maximum)
	ListPageSize int

	// Client is an optional pre-configured client.
	// If provided, Endpoint/AccessKey/SecretKey are ignored
	Client *minio.Client
}

// validate checks if the configuration is valid.
// Either Client OR (Endpoint + AccessKey + SecretKey) must be provided.
func (c *Config) validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.Client != nil {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when client is not provided")
	}
	if c.AccessKey == "" {
		return fmt.Errorf("access key is required when client is not provided")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("secret key is required when client is not provided")
	}
	return nil
}

// MinioStore implements ArtifactStore on any S3-compatible service.
type MinioStore struct {
	client   *minio.Client
	bucket   string
	region   string
	pageSize int
	logger   *slog.Logger
}

// NewMinioStore creates a store. It does not contact the endpoint.
func NewMinioStore(cfg Config, logger *slog.Logger) (*MinioStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client := cfg.Client
	if client == nil {
		var err error
		client, err = minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
	}

	pageSize := cfg.ListPageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	return &MinioStore{
		client:   client,
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		pageSize: pageSize,
		logger:   logger.With("component", "storage", "bucket", cfg.Bucket),
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return translate("bucket exists", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return translate("make bucket", s.bucket, err)
	}
	s.logger.Info("bucket created")
	return nil
}

// Address returns the s3:// URL of key.
func (s *MinioStore) Address(key string) string {
	return "s3://" + s.bucket + "/" + key
}

// Put writes doc as indented JSON and returns its s3:// address.
func (s *MinioStore) Put(ctx context.Context, key string, doc json.RawMessage) (string, error) {
	var body bytes.Buffer
	if err := json.Indent(&body, doc, "", "  "); err != nil {
		return "", fmt.Errorf("%w: put %q: invalid JSON document: %w", ErrStorage, key, err)
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, &body, int64(body.Len()), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", translate("put", key, err)
	}
	return s.Address(key), nil
}

// Get reads the document at address. Bare keys are accepted too.
func (s *MinioStore) Get(ctx context.Context, address string) (json.RawMessage, error) {
	key := s.keyFromAddress(address)

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate("get", key, err)
	}
	defer func() {
		_ = obj.Close()
	}()

	// GetObject is lazy; request errors surface on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translate("get", key, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: get %q: stored document is not valid JSON", ErrStorage, key)
	}
	return json.RawMessage(data), nil
}

// FindLatest streams the listing under prefix and keeps the newest artifact
// modified at or after cutoff. Pages are consumed as they arrive and never
// held in memory together.
func (s *MinioStore) FindLatest(ctx context.Context, prefix string, cutoff time.Time) (models.Locator, bool, error) {
	// Cancelling stops the listing goroutine if we return early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
		MaxKeys:   s.pageSize,
	})

	best, found, err := latestArtifact(objects, prefix, cutoff)
	if err != nil {
		return models.Locator{}, false, translate("list", prefix, err)
	}
	if !found {
		return models.Locator{}, false, nil
	}

	return models.Locator{
		Prefix:       prefix,
		Key:          best.Key,
		Address:      s.Address(best.Key),
		LastModified: best.LastModified,
	}, true, nil
}

// latestArtifact is the running-maximum reduction behind FindLatest.
// Ties keep the first object seen.
func latestArtifact(objects <-chan minio.ObjectInfo, prefix string, cutoff time.Time) (minio.ObjectInfo, bool, error) {
	var best minio.ObjectInfo
	found := false

	for obj := range objects {
		if obj.Err != nil {
			return minio.ObjectInfo{}, false, obj.Err
		}
		if !IsArtifactKey(prefix, obj.Key) || obj.LastModified.Before(cutoff) {
			continue
		}
		if !found || obj.LastModified.After(best.LastModified) {
			best = obj
			found = true
		}
	}

	return best, found, nil
}

func (s *MinioStore) keyFromAddress(address string) string {
	if key, ok := strings.CutPrefix(address, "s3://"+s.bucket+"/"); ok {
		return key
	}
	return address
}

// translate maps a minio error onto ErrStorage, adding ErrNotFound for
// missing keys and buckets.
func translate(op, key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %s %q: %w", ErrStorage, op, key, errors.Join(ErrNotFound, err))
	}
	return fmt.Errorf("%w: %s %q: %w", ErrStorage, op, key, err)
}

// Ensure MinioStore implements ArtifactStore
var _ ArtifactStore = (*MinioStore)(nil)
