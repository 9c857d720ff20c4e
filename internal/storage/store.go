package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/killallgit/dataset-importer/pkg/config"
)

// ErrNotFound is returned when an object does not exist
var ErrNotFound = errors.New("object not found")

// ErrInvalidKey is returned for keys that are empty or escape the store root
var ErrInvalidKey = errors.New("invalid object key")

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// ObjectStore defines the operations the importer needs from an object store
type ObjectStore interface {
	// Get opens an object for reading and returns its size
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// Put writes an object; size may be -1 when unknown
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Stat returns object metadata without reading the content
	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// Delete removes an object, missing objects are not an error
	Delete(ctx context.Context, key string) error

	// PresignGet returns a time-limited download URL
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)

	// PresignPut returns a time-limited upload URL
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// IsNotFound reports whether err means the object does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// CleanKey normalizes an object key and rejects keys escaping the root
func CleanKey(key string) (string, error) {
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	cleaned := path.Clean(key)
	if cleaned == "." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

// New creates the object store selected by cfg.Backend
func New(cfg config.StorageConfig, publicURL string) (ObjectStore, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.Local.BasePath, cfg.Local.SigningKey, publicURL)
	case "s3":
		return NewS3Store(cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
