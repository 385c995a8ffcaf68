package storage

import (
	"context"
	"io"
	"time"

	"github.com/withObsrvr/obsrvr-media-relay/internal/retry"
)

// Retrying routes every ObjectStore call through a retry.Retrier.
type Retrying struct {
	store ObjectStore
	r     *retry.Retrier
}

var _ ObjectStore = (*Retrying)(nil)

// NewRetrying wraps store. The policy classifier defaults to Classify.
func NewRetrying(store ObjectStore, policy retry.Policy, opts ...retry.Option) *Retrying {
	if policy.Classify == nil {
		policy.Classify = Classify
	}
	return &Retrying{store: store, r: retry.New(policy, opts...)}
}

// WithStatus returns a copy whose retries report through fn.
func (s *Retrying) WithStatus(fn retry.StatusFunc) *Retrying {
	return &Retrying{store: s.store, r: s.r.With(retry.WithStatus(fn))}
}

// Unwrap returns the underlying store.
func (s *Retrying) Unwrap() ObjectStore { return s.store }

// Put retries the upload, rewinding r before each new attempt. A reader that
// cannot seek gets a single attempt; a retryable failure then comes back as
// *retry.ExhaustedError without waiting.
func (s *Retrying) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) error {
	seeker, ok := r.(io.Seeker)
	if !ok {
		err := s.store.Put(ctx, key, r, opts)
		if err == nil || ctx.Err() != nil {
			return err
		}
		if classify := s.r.Policy().Classify; classify == nil || classify(err) == retry.Retryable {
			return &retry.ExhaustedError{Op: "put", Attempts: 1, Err: err}
		}
		return err
	}

	attempt := 0
	return s.r.Do(ctx, "put", func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return &OpError{Op: "put", Key: key, Err: err}
			}
		}
		return s.store.Put(ctx, key, r, opts)
	})
}

// Get retries the download. w must tolerate being rewritten from the start;
// if it implements Truncate and Seek it is reset before each new attempt.
func (s *Retrying) Get(ctx context.Context, key string, w io.Writer) (int64, error) {
	attempt := 0
	return retry.Value(ctx, s.r, "get", func(ctx context.Context) (int64, error) {
		attempt++
		if attempt > 1 {
			if err := rewind(w); err != nil {
				return 0, &OpError{Op: "get", Key: key, Err: err}
			}
		}
		return s.store.Get(ctx, key, w)
	})
}

func (s *Retrying) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	return retry.Value(ctx, s.r, "head", func(ctx context.Context) (*ObjectInfo, error) {
		return s.store.Head(ctx, key)
	})
}

func (s *Retrying) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return retry.Value(ctx, s.r, "sign", func(ctx context.Context) (string, error) {
		return s.store.SignedURL(ctx, key, expiry)
	})
}

func (s *Retrying) Delete(ctx context.Context, key string) error {
	return s.r.Do(ctx, "delete", func(ctx context.Context) error {
		return s.store.Delete(ctx, key)
	})
}

func (s *Retrying) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	return retry.Value(ctx, s.r, "list", func(ctx context.Context) ([]ObjectInfo, error) {
		return s.store.List(ctx, prefix)
	})
}

func (s *Retrying) Locate(key string) Locator { return s.store.Locate(key) }

func (s *Retrying) URI(key string) string { return s.store.URI(key) }

func (s *Retrying) Close() error { return s.store.Close() }

type truncateSeeker interface {
	Truncate(size int64) error
	io.Seeker
}

// rewind resets a partially written destination.
func rewind(w io.Writer) error {
	ts, ok := w.(truncateSeeker)
	if !ok {
		return ErrNotRewindable
	}
	if err := ts.Truncate(0); err != nil {
		return err
	}
	_, err := ts.Seek(0, io.SeekStart)
	return err
}
