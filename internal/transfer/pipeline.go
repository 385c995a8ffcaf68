package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/withObsrvr/obsrvr-media-relay/internal/events"
	"github.com/withObsrvr/obsrvr-media-relay/internal/links"
	"github.com/withObsrvr/obsrvr-media-relay/internal/logging"
	"github.com/withObsrvr/obsrvr-media-relay/internal/metrics"
	"github.com/withObsrvr/obsrvr-media-relay/internal/notify"
	"github.com/withObsrvr/obsrvr-media-relay/internal/progress"
	"github.com/withObsrvr/obsrvr-media-relay/internal/retry"
	"github.com/withObsrvr/obsrvr-media-relay/internal/staging"
	"github.com/withObsrvr/obsrvr-media-relay/internal/storage"
)

// Config holds pipeline settings.
type Config struct {
	PlayerBaseURL string
	// LinkTTL is used when a request does not set its own.
	LinkTTL time.Duration
	// MaxFileSize rejects larger declared sizes; 0 disables the check.
	MaxFileSize int64
	// SizeMismatchTolerance is the fraction of the declared size a fetch may
	// differ by before the mismatch is logged as a warning.
	SizeMismatchTolerance float64
	Notify                notify.Options
}

// Pipeline moves content from a source into storage and issues a link for it.
// A Pipeline is safe for concurrent Runs; each Run owns its own state.
type Pipeline struct {
	store     *storage.Retrying
	area      *staging.Area
	throttles *progress.Table
	events    events.Emitter
	cfg       Config
	now       func() time.Time
	log       *slog.Logger
}

// NewPipeline creates a pipeline. store must be the retrying wrapper so every
// storage call is bounded by the retry policy.
func NewPipeline(store *storage.Retrying, area *staging.Area, throttles *progress.Table, emitter events.Emitter, cfg Config) *Pipeline {
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 7 * 24 * time.Hour
	}
	if emitter == nil {
		emitter = events.Noop{}
	}
	return &Pipeline{
		store:     store,
		area:      area,
		throttles: throttles,
		events:    emitter,
		cfg:       cfg,
		now:       time.Now,
		log:       logging.Component("pipeline"),
	}
}

// run is the state of a single Run call.
type run struct {
	p      *Pipeline
	req    Request
	id     string
	name   string
	target string
	state  *State
	res    *Result
	status *notify.Dispatcher
	store  *storage.Retrying
	log    *slog.Logger

	contentType string
}

// Run executes one transfer to completion. It never returns raw errors:
// failures are reported in the Result.
//
// The lifecycle is:
//  1. Reject requests above the size limit
//  2. Fetch the source into a staging artifact, reporting progress
//  3. Checksum and classify the staged content
//  4. Store it under a fresh key (retried)
//  5. Issue an access link (retried); failure here still counts as stored
//
// The staging artifact is removed on every exit path.
func (p *Pipeline) Run(ctx context.Context, req Request) *Result {
	if logging.CorrelationID(ctx) == "" {
		ctx = logging.WithCorrelationID(ctx, logging.GenerateCorrelationID())
	}
	r := p.newRun(ctx, req)
	defer r.close(ctx)

	r.execute(ctx)
	return r.res
}

func (p *Pipeline) newRun(ctx context.Context, req Request) *run {
	id := uuid.NewString()
	now := p.now()

	name := req.SuggestedName
	if name == "" && req.Source != nil {
		name = req.Source.Name()
	}
	name = SanitizeName(name)

	declared := req.DeclaredSize
	if declared == 0 && req.Source != nil {
		declared = req.Source.Size()
	}

	target := req.Target
	if target == "" {
		target = id
	}

	notifier := req.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	r := &run{
		p:      p,
		req:    req,
		id:     id,
		name:   name,
		target: target,
		state: &State{
			TotalBytes:   declared,
			StartedAt:    now,
			LastSampleAt: now,
			Phase:        PhaseFetching,
		},
		res: &Result{
			TransferID: id,
			Name:       name,
			Phase:      PhaseFetching,
		},
		status: notify.NewDispatcher(notifier, p.cfg.Notify),
		log:    logging.TransferLogger(ctx, id).With("name", name),
	}
	r.store = p.store.WithStatus(r.onRetry)

	if m := metrics.Get(); m != nil {
		m.AddInFlight(1)
	}
	r.log.Info("transfer started", "declared_size", declared)
	r.emitPhase(ctx)
	return r
}

func (r *run) execute(ctx context.Context) {
	// Step 1: Size gate
	if limit := r.p.cfg.MaxFileSize; limit > 0 && r.state.TotalBytes > limit {
		r.fail(fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, r.state.TotalBytes, limit))
		return
	}
	if r.req.Source == nil {
		r.fail(errors.New("no source"))
		return
	}

	// Step 2: Fetch into staging
	artifact, err := r.p.area.Create(r.name)
	if err != nil {
		r.fail(err)
		return
	}
	defer func() {
		if err := artifact.Remove(); err != nil {
			r.log.Warn("failed to remove staging artifact", "path", artifact.Path, "error", err)
		}
	}()

	n, err := r.fetch(ctx, artifact)
	if err != nil {
		r.fail(err)
		return
	}

	// Step 3: Inspect staged content
	r.inspect(artifact.Path, n)

	// Step 4: Store
	if !r.advance(ctx, PhaseStoring) {
		return
	}
	if err := r.upload(ctx, artifact.Path, n); err != nil {
		r.fail(err)
		return
	}

	// Step 5: Issue link
	if !r.advance(ctx, PhaseFinalizing) {
		return
	}
	r.finalize(ctx)
}

func (r *run) fetch(ctx context.Context, artifact *staging.Artifact) (int64, error) {
	m := newMeter("Downloading", r.name, r.target, r.state.TotalBytes, r.p.throttles, r.status.Post, r.p.now)

	n, err := r.req.Source.Fetch(ctx, artifact.Path, m.Observe)
	r.state.LastSampleAt, r.state.LastSampleBytes = m.Last()
	r.state.BytesDone = n
	if err != nil {
		return n, err
	}
	m.Finish(n)

	if mt := metrics.Get(); mt != nil {
		mt.AddTransferBytes(metrics.Labels{Direction: "inbound"}, float64(n))
	}
	r.checkSize(n)
	r.res.Size = n
	return n, nil
}

// checkSize compares fetched bytes with the declared size. The declared size
// is advisory, so a mismatch is only logged.
func (r *run) checkSize(n int64) {
	declared := r.state.TotalBytes
	if declared <= 0 || n == declared {
		return
	}
	if m := metrics.Get(); m != nil {
		m.IncSizeMismatches()
	}
	drift := math.Abs(float64(n-declared)) / float64(declared)
	if drift > r.p.cfg.SizeMismatchTolerance {
		r.log.Warn("declared size mismatch", "declared", declared, "actual", n, "drift", drift)
	} else {
		r.log.Debug("declared size mismatch", "declared", declared, "actual", n, "drift", drift)
	}
}

func (r *run) inspect(path string, n int64) {
	sum, err := staging.FileChecksum(path)
	if err != nil {
		r.log.Warn("checksum failed", "error", err)
	}
	r.res.Checksum = sum
	r.res.Kind, r.contentType = links.Classify(r.name, path)
	r.log.Debug("staged content", "bytes", n, "checksum", sum, "kind", r.res.Kind, "content_type", r.contentType)
}

func (r *run) upload(ctx context.Context, path string, size int64) error {
	key := r.resolveKey()
	r.res.Key = key
	r.log = r.log.With("key", key)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()

	m := newMeter("Uploading", r.name, r.target, size, r.p.throttles, r.status.Post, r.p.now)
	body := &progressReader{r: f, fn: m.Observe}

	r.state.Attempt = 1
	err = r.store.Put(ctx, key, body, storage.PutOptions{
		ContentType: r.contentType,
		Metadata: map[string]string{
			"checksum":      r.res.Checksum,
			"original-name": r.name,
			"transfer-id":   r.id,
		},
	})
	if err != nil {
		return err
	}
	m.Finish(size)
	r.state.LastSampleAt, r.state.LastSampleBytes = m.Last()

	r.res.Locator = r.store.Locate(key)
	r.res.URI = r.store.URI(key)
	if mt := metrics.Get(); mt != nil {
		mt.AddTransferBytes(metrics.Labels{Direction: "upload"}, float64(size))
	}
	r.log.Info("object stored", "uri", r.res.URI, "bytes", size)
	return nil
}

// resolveKey picks the destination key. Generated keys carry the run's
// own suffix, so concurrent runs with the same name never share a key.
func (r *run) resolveKey() string {
	if r.req.DestinationKey != "" {
		return r.req.DestinationKey
	}
	return uniqueKey(ObjectKey(r.req.Owner, r.name, r.state.StartedAt), r.id[:8])
}

func (r *run) finalize(ctx context.Context) {
	ttl := r.req.LinkTTL
	if ttl <= 0 {
		ttl = r.p.cfg.LinkTTL
	}

	issuer := links.NewIssuer(r.store, r.p.cfg.PlayerBaseURL)
	link, err := issuer.Issue(ctx, r.res.Key, ttl)
	if err != nil {
		if ctx.Err() != nil {
			r.fail(ctx.Err())
			return
		}
		r.log.Warn("stored without shareable link", "error", err)
		if m := metrics.Get(); m != nil {
			m.IncLinkIssuanceFailures()
		}
		r.res.Err = &LinkIssuanceError{Key: r.res.Key, Err: err}
		r.res.Outcome = OutcomeStoredNoLink
	} else {
		r.res.Link = &link
		r.res.PlayerURL, _ = links.PlayerURL(r.p.cfg.PlayerBaseURL, r.res.Kind, link.URL)
		r.res.Outcome = OutcomeStored
	}

	r.state.Phase = PhaseDone
	r.res.Phase = PhaseDone
}

// advance moves to the next phase unless the run was cancelled.
func (r *run) advance(ctx context.Context, next Phase) bool {
	if ctx.Err() != nil {
		r.fail(ctx.Err())
		return false
	}
	r.state.Phase = next
	r.res.Phase = next
	r.log.Info("phase", "phase", next)
	r.emitPhase(ctx)
	return true
}

func (r *run) fail(err error) {
	if errors.Is(err, context.Canceled) && !errors.Is(err, ErrCancelled) {
		err = fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	r.res.FailedIn = r.state.Phase
	r.state.Phase = PhaseFailed
	r.res.Phase = PhaseFailed
	r.res.Outcome = OutcomeFailed
	r.res.Err = err
	r.log.Error("transfer failed", "phase", r.res.FailedIn, "error", err)
}

func (r *run) onRetry(s retry.Status) {
	r.state.Attempt = s.Attempt + 1
	r.status.Post(fmt.Sprintf("%s: storage %s failed (attempt %d/%d), retrying in %s",
		r.name, s.Op, s.Attempt, s.Max, s.Delay))
}

func (r *run) close(ctx context.Context) {
	now := r.p.now()
	r.res.Duration = now.Sub(r.state.StartedAt)
	r.res.State = *r.state

	r.status.Post(r.res.UserMessage())
	r.status.Close()
	r.p.throttles.Forget(r.target)

	evt := r.event(events.TypeFinished)
	evt.Transfer.Outcome = r.res.Outcome.String()
	if r.res.Err != nil {
		evt.Transfer.Error = r.res.Err.Error()
	}
	events.Emit(context.WithoutCancel(ctx), r.p.events, evt)

	if m := metrics.Get(); m != nil {
		l := metrics.Labels{Outcome: r.res.Outcome.String()}
		m.AddInFlight(-1)
		m.IncTransfers(l)
		m.ObserveTransferDuration(l, r.res.Duration.Seconds())
	}
	r.log.Info("transfer finished",
		"outcome", r.res.Outcome,
		"bytes", r.state.BytesDone,
		"duration", r.res.Duration,
	)
}

func (r *run) emitPhase(ctx context.Context) {
	events.Emit(context.WithoutCancel(ctx), r.p.events, r.event(events.TypePhase))
}

func (r *run) event(typ string) events.Event {
	return events.Event{
		EventType: typ,
		Transfer: events.TransferInfo{
			ID:    r.id,
			Owner: r.req.Owner,
			Phase: r.state.Phase.String(),
		},
		Object: events.ObjectInfo{
			Key:      r.res.Key,
			URI:      r.res.URI,
			Checksum: r.res.Checksum,
			ByteSize: r.state.BytesDone,
			Kind:     string(r.res.Kind),
		},
	}
}
