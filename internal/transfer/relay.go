package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/obsrvr-media-relay/internal/events"
	"github.com/withObsrvr/obsrvr-media-relay/internal/links"
	"github.com/withObsrvr/obsrvr-media-relay/internal/logging"
	"github.com/withObsrvr/obsrvr-media-relay/internal/metrics"
	"github.com/withObsrvr/obsrvr-media-relay/internal/notify"
	"github.com/withObsrvr/obsrvr-media-relay/internal/storage"
	"github.com/withObsrvr/obsrvr-media-relay/internal/util"
)

// RelayConfig holds settings for operations outside a single run.
type RelayConfig struct {
	MaxConcurrent int
	ShareTTL      time.Duration
}

// Relay is the entry point for everything a user can do with stored media:
// transfer it in, share it again, list, delete or fetch it back.
type Relay struct {
	pipeline *Pipeline
	issuer   *links.Issuer
	registry *links.Registry
	cfg      RelayConfig
	log      *slog.Logger
}

// NewRelay wraps p. registry may be nil, in which case no short keys are
// handed out.
func NewRelay(p *Pipeline, registry *links.Registry, cfg RelayConfig) *Relay {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.ShareTTL <= 0 {
		cfg.ShareTTL = 24 * time.Hour
	}
	return &Relay{
		pipeline: p,
		issuer:   links.NewIssuer(p.store, p.cfg.PlayerBaseURL),
		registry: registry,
		cfg:      cfg,
		log:      logging.Component("relay"),
	}
}

// Transfer runs one request through the pipeline and registers the issued
// link under a short key.
func (r *Relay) Transfer(ctx context.Context, req Request) *Result {
	res := r.pipeline.Run(ctx, req)
	if res.Link != nil && r.registry != nil {
		res.ShortKey = r.registry.Put(links.Share{
			Key:       res.Key,
			Name:      res.Name,
			Kind:      res.Kind,
			Size:      res.Size,
			Link:      *res.Link,
			PlayerURL: res.PlayerURL,
		})
	}
	return res
}

// RunAll runs reqs with at most MaxConcurrent in flight. Results are returned
// in request order; runs never affect one another.
func (r *Relay) RunAll(ctx context.Context, reqs []Request) []*Result {
	results := make([]*Result, len(reqs))

	var g errgroup.Group
	g.SetLimit(r.cfg.MaxConcurrent)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			results[i] = r.Transfer(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Share issues a new link for an already stored object. ttl 0 uses the
// configured share lifetime.
func (r *Relay) Share(ctx context.Context, key string, ttl time.Duration) (*links.Share, error) {
	if ttl <= 0 {
		ttl = r.cfg.ShareTTL
	}
	s, err := r.issuer.Share(ctx, key, ttl)
	if err != nil {
		if m := metrics.Get(); m != nil && !storage.IsNotFound(err) {
			m.IncLinkIssuanceFailures()
		}
		return nil, err
	}
	if r.registry != nil {
		r.registry.Put(*s)
	}
	r.log.Info("share issued", "key", key, "expires_at", s.Link.ExpiresAt)
	return s, nil
}

// Resolve looks up a share by its short key.
func (r *Relay) Resolve(short string) (links.Share, bool) {
	if r.registry == nil {
		return links.Share{}, false
	}
	return r.registry.Get(short)
}

// List returns the objects stored under prefix.
func (r *Relay) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	return r.pipeline.store.List(ctx, prefix)
}

// Delete removes a stored object and any share registered for it.
func (r *Relay) Delete(ctx context.Context, key string) error {
	if err := r.pipeline.store.Delete(ctx, key); err != nil {
		return err
	}
	if r.registry != nil {
		r.registry.Forget(key)
	}
	events.Emit(context.WithoutCancel(ctx), r.pipeline.events, events.Event{
		EventType: events.TypeDeleted,
		Object:    events.ObjectInfo{Key: key, URI: r.pipeline.store.URI(key)},
	})
	r.log.Info("object deleted", "key", key)
	return nil
}

// Fetch downloads a stored object to dst, reporting progress to n. A partial
// file is removed on failure.
func (r *Relay) Fetch(ctx context.Context, key, dst string, n notify.Notifier) (int64, error) {
	if n == nil {
		n = notify.Nop{}
	}
	info, err := r.pipeline.store.Head(ctx, key)
	if err != nil {
		return 0, err
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}

	status := notify.NewDispatcher(n, r.pipeline.cfg.Notify)
	defer status.Close()
	target := uuid.NewString()
	defer r.pipeline.throttles.Forget(target)

	name := path.Base(key)
	m := newMeter("Downloading", name, target, info.Size, r.pipeline.throttles, status.Post, r.pipeline.now)
	got, err := r.pipeline.store.Get(ctx, key, &progressFile{f: f, fn: m.Observe})
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close %s: %w", dst, cerr)
	}
	if err != nil {
		if rerr := util.RemoveFile(dst); rerr != nil {
			r.log.Warn("failed to remove partial download", "path", dst, "error", rerr)
		}
		status.Post(FailureMessage(err))
		return got, err
	}
	m.Finish(got)

	if mt := metrics.Get(); mt != nil {
		mt.AddTransferBytes(metrics.Labels{Direction: "download"}, float64(got))
	}
	status.Post(fmt.Sprintf("Fetched %s (%s) to %s", name, humanize.IBytes(uint64(got)), dst))
	r.log.Info("object fetched", "key", key, "bytes", got, "path", dst)
	return got, nil
}
