package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gocloud.dev/blob"

	"github.com/withObsrvr/obsrvr-media-relay/internal/metrics"
)

// BlobStore implements ObjectStore on top of a gocloud bucket.
type BlobStore struct {
	bucket    *blob.Bucket
	backend   string
	namespace string
	uriBase   string
	prefix    string
}

var _ ObjectStore = (*BlobStore)(nil)

func newBlobStore(bucket *blob.Bucket, backend, namespace, uriBase, prefix string) *BlobStore {
	return &BlobStore{
		bucket:    bucket,
		backend:   backend,
		namespace: namespace,
		uriBase:   uriBase,
		prefix:    prefix,
	}
}

// Backend returns the backend name ("s3", "gcs", "local", "mem").
func (s *BlobStore) Backend() string { return s.backend }

func (s *BlobStore) path(key string) string {
	return s.prefix + key
}

// OpenPath opens the object at a bucket path, prefix included, as signed
// URLs carry it. The reader is seekable; the caller must close it.
func (s *BlobStore) OpenPath(ctx context.Context, path string) (r *blob.Reader, err error) {
	defer func() { s.record("open", err) }()

	r, err = s.bucket.NewReader(ctx, path, nil)
	if err != nil {
		return nil, s.wrap("open", path, err)
	}
	return r, nil
}

// Put streams r to the object at key. A failed copy aborts the write so no
// partial object becomes visible.
func (s *BlobStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (err error) {
	defer func() { s.record("put", err) }()
	path := s.path(key)

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := s.bucket.NewWriter(wctx, path, &blob.WriterOptions{
		ContentType: opts.ContentType,
		Metadata:    opts.Metadata,
	})
	if err != nil {
		return s.wrap("put", key, fmt.Errorf("create writer for %s: %w", path, err))
	}

	if _, err := io.Copy(w, r); err != nil {
		cancel()
		w.Close()
		return s.wrap("put", key, fmt.Errorf("write data to %s: %w", path, err))
	}

	if err := w.Close(); err != nil {
		return s.wrap("put", key, fmt.Errorf("close writer for %s: %w", path, err))
	}
	return nil
}

// Get copies the object at key into w.
func (s *BlobStore) Get(ctx context.Context, key string, w io.Writer) (n int64, err error) {
	defer func() { s.record("get", err) }()
	path := s.path(key)

	r, err := s.bucket.NewReader(ctx, path, nil)
	if err != nil {
		return 0, s.wrap("get", key, fmt.Errorf("open reader for %s: %w", path, err))
	}
	defer r.Close()

	n, err = io.Copy(w, r)
	if err != nil {
		return n, s.wrap("get", key, fmt.Errorf("read %s: %w", path, err))
	}
	return n, nil
}

// Head returns metadata about a stored object.
func (s *BlobStore) Head(ctx context.Context, key string) (info *ObjectInfo, err error) {
	defer func() { s.record("head", err) }()

	attrs, err := s.bucket.Attributes(ctx, s.path(key))
	if err != nil {
		return nil, s.wrap("head", key, err)
	}

	return &ObjectInfo{
		Key:         key,
		Size:        attrs.Size,
		ETag:        attrs.ETag,
		ContentType: attrs.ContentType,
		ModTime:     attrs.ModTime,
		Metadata:    attrs.Metadata,
	}, nil
}

// SignedURL returns a time-limited GET URL for key.
func (s *BlobStore) SignedURL(ctx context.Context, key string, expiry time.Duration) (u string, err error) {
	defer func() { s.record("sign", err) }()

	u, err = s.bucket.SignedURL(ctx, s.path(key), &blob.SignedURLOptions{
		Expiry: expiry,
		Method: http.MethodGet,
	})
	if err != nil {
		return "", s.wrap("sign", key, err)
	}
	return u, nil
}

// Delete removes key.
func (s *BlobStore) Delete(ctx context.Context, key string) (err error) {
	defer func() { s.record("delete", err) }()

	if err := s.bucket.Delete(ctx, s.path(key)); err != nil {
		return s.wrap("delete", key, err)
	}
	return nil
}

// List returns all objects with the given prefix. Keys are relative to the
// store prefix.
func (s *BlobStore) List(ctx context.Context, prefix string) (out []ObjectInfo, err error) {
	defer func() { s.record("list", err) }()

	iter := s.bucket.List(&blob.ListOptions{Prefix: s.path(prefix)})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, s.wrap("list", prefix, err)
		}
		if obj.IsDir {
			continue
		}
		out = append(out, ObjectInfo{
			Key:     strings.TrimPrefix(obj.Key, s.prefix),
			Size:    obj.Size,
			ModTime: obj.ModTime,
			ETag:    fmt.Sprintf("%x", obj.MD5),
		})
	}
	return out, nil
}

// Locate returns the locator for key.
func (s *BlobStore) Locate(key string) Locator {
	return Locator{Namespace: s.namespace, Key: s.path(key)}
}

// URI returns the canonical URI for the given key.
func (s *BlobStore) URI(key string) string {
	return s.uriBase + s.path(key)
}

// Close releases the bucket connection.
func (s *BlobStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

func (s *BlobStore) wrap(op, key string, err error) error {
	return &OpError{Op: op, Backend: s.backend, Key: key, Err: err}
}

func (s *BlobStore) record(op string, err error) {
	m := metrics.Get()
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		m.IncStorageErrors(metrics.Labels{Backend: s.backend, Class: Classify(err).String()})
	}
	m.IncStorageOps(metrics.Labels{Operation: op, Result: result})
}
