package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/killallgit/dataset-importer/pkg/config"
)

// S3Store implements ObjectStore on an S3 compatible service (AWS S3, MinIO,
// the Aliyun OSS S3 endpoint)
type S3Store struct {
	client *minio.Client
	bucket string
	region string
}

// S3Option customizes the minio client
type S3Option func(*minio.Options)

// WithTransport replaces the HTTP transport used by the client
func WithTransport(rt http.RoundTripper) S3Option {
	return func(o *minio.Options) {
		o.Transport = rt
	}
}

// NewS3Store creates a store for cfg.Bucket
func NewS3Store(cfg config.S3Storage, opts ...S3Option) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage.s3.bucket is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
	}

	options := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	}
	for _, opt := range opts {
		opt(options)
	}

	client, err := minio.New(endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	return &S3Store{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// Bucket returns the bucket name
func (s *S3Store) Bucket() string { return s.bucket }

// Region returns the configured region
func (s *S3Store) Region() string { return s.region }

// Endpoint returns the endpoint URL
func (s *S3Store) Endpoint() string { return s.client.EndpointURL().String() }

// Get opens an object for reading
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, translateS3Error(err, key)
	}

	// GetObject is lazy, Stat performs the request
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, 0, translateS3Error(err, key)
	}
	return obj, info.Size, nil
}

// Put uploads an object
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, translateS3Error(err, key))
	}
	return nil
}

// Stat returns object metadata
func (s *S3Store) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, translateS3Error(err, key)
	}
	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}, nil
}

// Delete removes an object
func (s *S3Store) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !IsNotFound(translateS3Error(err, key)) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// PresignGet returns a presigned download URL
func (s *S3Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return u.String(), nil
}

// PresignPut returns a presigned upload URL
func (s *S3Store) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return u.String(), nil
}

func translateS3Error(err error, key string) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || (resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket") {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}

// transientCodes are S3 error codes worth retrying
var transientCodes = map[string]bool{
	"InternalError":        true,
	"ServiceUnavailable":   true,
	"SlowDown":             true,
	"RequestTimeout":       true,
	"RequestTimeTooSkewed": true,
}

// IsTransient reports whether an object store error may succeed on retry.
// Missing objects and access errors never do.
func IsTransient(err error) bool {
	if err == nil || IsNotFound(err) || errors.Is(err, ErrInvalidKey) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if os.IsTimeout(err) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.StatusCode >= 500 || transientCodes[resp.Code]
	}

	msg := err.Error()
	for _, pattern := range []string{"connection reset", "connection refused", "broken pipe", "timeout", "EOF"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
