package source

import (
	"context"
	"net/url"
	"time"

	"github.com/cavaliercoder/grab"
)

const defaultPollInterval = 250 * time.Millisecond

// URLSource downloads an http(s) URL.
type URLSource struct {
	url          string
	size         int64
	client       *grab.Client
	pollInterval time.Duration
}

// NewURLSource creates a source for rawURL with an advisory size (0 if unknown).
func NewURLSource(rawURL string, size int64) *URLSource {
	client := grab.NewClient()
	client.UserAgent = "media-relay"
	return &URLSource{
		url:          rawURL,
		size:         size,
		client:       client,
		pollInterval: defaultPollInterval,
	}
}

func (s *URLSource) Name() string {
	if u, err := url.Parse(s.url); err == nil {
		return baseName(u.Path)
	}
	return "download"
}

func (s *URLSource) Size() int64 { return s.size }

// Fetch downloads into dst, polling the transfer for progress.
func (s *URLSource) Fetch(ctx context.Context, dst string, progress ProgressFunc) (int64, error) {
	req, err := grab.NewRequest(dst, s.url)
	if err != nil {
		return 0, &ReadError{Source: s.url, Err: err}
	}
	req = req.WithContext(ctx)
	req.NoResume = true

	resp := s.client.Do(req)

	t := time.NewTicker(s.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if progress != nil {
				progress(resp.BytesComplete())
			}
		case <-resp.Done:
			n := resp.BytesComplete()
			if progress != nil {
				progress(n)
			}
			if err := resp.Err(); err != nil {
				if ctx.Err() != nil {
					return n, ctx.Err()
				}
				return n, &ReadError{Source: s.url, Err: err}
			}
			return n, nil
		}
	}
}
