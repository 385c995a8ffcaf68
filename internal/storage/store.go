package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Locator identifies one stored object independent of any access URL.
type Locator struct {
	Namespace string // bucket name, or directory for local/mem backends
	Key       string
}

func (l Locator) String() string {
	return l.Namespace + "/" + l.Key
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ETag        string // MD5 for S3/GCS, empty for local
	ContentType string
	ModTime     time.Time
	Metadata    map[string]string
}

// PutOptions carries optional attributes written with an object.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectStore is the object-store surface the relay needs. Keys are relative
// to the store prefix.
type ObjectStore interface {
	// Put streams r into key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) error

	// Get copies the object at key into w.
	Get(ctx context.Context, key string, w io.Writer) (int64, error)

	// Head returns metadata about a stored object.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// SignedURL returns a URL granting read access to key for expiry.
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// List returns all objects under prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Locate returns the locator for key.
	Locate(key string) Locator

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// StorageConfig configures the storage backend.
type StorageConfig struct {
	Backend string // "local" | "gcs" | "s3" | "mem"

	// Local filesystem
	LocalDir string // /path/to/media/

	// GCS and S3 (S3 also works for B2, R2, MinIO)
	Bucket   string
	Endpoint string // custom endpoint for B2/MinIO/R2
	Region   string

	// Signed URLs for the local backend
	SignBaseURL string
	SignSecret  string

	// Common
	Prefix string // path prefix within bucket or local dir
}

// NewObjectStore creates a storage backend based on configuration.
func NewObjectStore(cfg StorageConfig) (*BlobStore, error) {
	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir, cfg.Prefix, cfg.SignBaseURL, cfg.SignSecret)
	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("Bucket required for gcs backend")
		}
		return NewGCSStore(cfg.Bucket, cfg.Prefix)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("Bucket required for s3 backend")
		}
		return NewS3Store(cfg.Bucket, cfg.Prefix, cfg.Endpoint, cfg.Region)
	case "mem":
		return NewMemStore(cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
