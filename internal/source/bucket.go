package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob" // GCS driver
	_ "gocloud.dev/blob/s3blob"  // S3 driver
)

// BucketSource reads one object from any gocloud bucket URL, e.g.
// s3://bucket/path/clip.mp4?region=us-east-1 or gs://bucket/path/song.mp3.
type BucketSource struct {
	ref       string
	bucketURL string
	key       string
	size      int64
	open      func(ctx context.Context, bucketURL string) (*blob.Bucket, error)
}

// NewBucketSource splits ref into bucket URL and object key.
func NewBucketSource(ref string) (*BucketSource, error) {
	bucketURL, key, err := splitObjectURL(ref)
	if err != nil {
		return nil, err
	}
	return &BucketSource{ref: ref, bucketURL: bucketURL, key: key, open: blob.OpenBucket}, nil
}

// NewBucketObjectSource reads key from an already opened bucket.
func NewBucketObjectSource(bucket *blob.Bucket, key string, size int64) *BucketSource {
	return &BucketSource{
		ref:  key,
		key:  key,
		size: size,
		open: func(context.Context, string) (*blob.Bucket, error) { return bucket, nil },
	}
}

func (s *BucketSource) Name() string { return baseName(s.key) }

func (s *BucketSource) Size() int64 { return s.size }

func (s *BucketSource) Fetch(ctx context.Context, dst string, progress ProgressFunc) (int64, error) {
	bucket, err := s.open(ctx, s.bucketURL)
	if err != nil {
		return 0, &ReadError{Source: s.ref, Err: fmt.Errorf("open bucket: %w", err)}
	}
	if s.bucketURL != "" {
		defer bucket.Close()
	}

	r, err := bucket.NewReader(ctx, s.key, nil)
	if err != nil {
		return 0, &ReadError{Source: s.ref, Err: err}
	}
	defer r.Close()

	if s.size == 0 {
		s.size = r.Size()
	}
	return copyToFile(ctx, s.ref, r, dst, progress)
}

// splitObjectURL turns scheme://bucket/key?params into (scheme://bucket?params, key).
func splitObjectURL(ref string) (string, string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("%w: %s needs bucket and key", ErrInvalidSource, ref)
	}
	bucketURL := u.Scheme + "://" + u.Host
	if u.RawQuery != "" {
		bucketURL += "?" + u.RawQuery
	}
	return bucketURL, key, nil
}
