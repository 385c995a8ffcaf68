package transfer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/withObsrvr/obsrvr-media-relay/internal/events"
	"github.com/withObsrvr/obsrvr-media-relay/internal/notify"
	"github.com/withObsrvr/obsrvr-media-relay/internal/progress"
	"github.com/withObsrvr/obsrvr-media-relay/internal/retry"
	"github.com/withObsrvr/obsrvr-media-relay/internal/staging"
	"github.com/withObsrvr/obsrvr-media-relay/internal/storage"
)

const testPlayerBase = "https://player.example.com"

type instantTimer struct{ c chan time.Time }

func (t *instantTimer) Start(time.Duration) { t.c <- time.Now() }
func (t *instantTimer) Stop()               {}
func (t *instantTimer) C() <-chan time.Time { return t.c }

func newInstantTimer() backoff.Timer { return &instantTimer{c: make(chan time.Time, 1)} }

// recorder collects every status text it receives.
type recorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *recorder) Update(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recorder) All() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func (r *recorder) Last() string {
	all := r.All()
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1]
}

type fixture struct {
	pipeline *Pipeline
	blob     *storage.BlobStore
	store    *storage.Retrying
	staging  string
}

type fixtureOption func(*fixtureOptions)

type fixtureOptions struct {
	unsigned bool
	wrap     func(storage.ObjectStore) storage.ObjectStore
	classify retry.Classifier
	cfg      func(*Config)
	emitter  events.Emitter
}

func unsigned() fixtureOption { return func(o *fixtureOptions) { o.unsigned = true } }

func wrapStore(fn func(storage.ObjectStore) storage.ObjectStore, classify retry.Classifier) fixtureOption {
	return func(o *fixtureOptions) {
		o.wrap = fn
		o.classify = classify
	}
}

func withConfig(fn func(*Config)) fixtureOption { return func(o *fixtureOptions) { o.cfg = fn } }

func withEmitter(e events.Emitter) fixtureOption { return func(o *fixtureOptions) { o.emitter = e } }

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	var o fixtureOptions
	for _, opt := range opts {
		opt(&o)
	}

	dir := t.TempDir()
	secret := "test-secret"
	if o.unsigned {
		secret = ""
	}
	blob, err := storage.NewLocalStore(filepath.Join(dir, "objects"), "", "http://localhost:8080/files", secret)
	require.NoError(t, err)
	t.Cleanup(func() { blob.Close() })

	var inner storage.ObjectStore = blob
	if o.wrap != nil {
		inner = o.wrap(blob)
	}
	store := storage.NewRetrying(inner,
		retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Classify: o.classify},
		retry.WithTimer(newInstantTimer))

	stagingDir := filepath.Join(dir, "staging")
	area, err := staging.NewArea(stagingDir)
	require.NoError(t, err)

	cfg := Config{
		PlayerBaseURL:         testPlayerBase,
		LinkTTL:               time.Hour,
		SizeMismatchTolerance: 0.1,
		Notify:                notify.Options{Limit: rate.Inf},
	}
	if o.cfg != nil {
		o.cfg(&cfg)
	}
	throttles := progress.NewTable(64, progress.DefaultInterval, time.Minute)

	return &fixture{
		pipeline: NewPipeline(store, area, throttles, o.emitter, cfg),
		blob:     blob,
		store:    store,
		staging:  stagingDir,
	}
}

// stagedFiles lists whatever is left in the staging directory.
func (f *fixture) stagedFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.staging)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func writeFile(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	data := []byte(strings.Repeat("0123456789abcdef", size/16+1)[:size])
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}
