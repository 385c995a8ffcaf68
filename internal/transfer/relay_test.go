package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/obsrvr-media-relay/internal/links"
	"github.com/withObsrvr/obsrvr-media-relay/internal/source"
	"github.com/withObsrvr/obsrvr-media-relay/internal/storage"
)

func newTestRelay(t *testing.T, opts ...fixtureOption) (*Relay, *fixture) {
	t.Helper()
	f := newFixture(t, opts...)
	return NewRelay(f.pipeline, links.NewRegistry(16), RelayConfig{MaxConcurrent: 2, ShareTTL: time.Hour}), f
}

func TestRelayTransferRegistersShortKey(t *testing.T) {
	r, _ := newTestRelay(t)

	res := r.Transfer(context.Background(), Request{Source: source.NewStringSource("a.mp3", "abc"), Owner: "1"})
	require.NoError(t, res.Err)
	require.NotEmpty(t, res.ShortKey)

	share, ok := r.Resolve(res.ShortKey)
	require.True(t, ok)
	assert.Equal(t, res.Key, share.Key)
	assert.Equal(t, res.Link.URL, share.Link.URL)
	assert.Equal(t, links.Audio, share.Kind)
}

func TestRelayRunAll(t *testing.T) {
	r, f := newTestRelay(t)

	var reqs []Request
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("track%d.mp3", i)
		reqs = append(reqs, Request{Source: source.NewStringSource(name, name), Owner: "9"})
	}
	results := r.RunAll(context.Background(), reqs)

	require.Len(t, results, len(reqs))
	seen := map[string]bool{}
	for i, res := range results {
		require.NoError(t, res.Err)
		assert.Equal(t, fmt.Sprintf("track%d.mp3", i), res.Name)
		assert.False(t, seen[res.Key], "duplicate key %s", res.Key)
		seen[res.Key] = true
	}

	objs, err := r.List(context.Background(), "user_9/")
	require.NoError(t, err)
	assert.Len(t, objs, len(reqs))
	assert.Empty(t, f.stagedFiles(t))
}

func TestRelayShare(t *testing.T) {
	r, _ := newTestRelay(t)
	ctx := context.Background()
	res := r.Transfer(ctx, Request{Source: source.NewStringSource("movie.mkv", "frames"), DestinationKey: "user_3/movie.mkv"})
	require.NoError(t, res.Err)

	share, err := r.Share(ctx, "user_3/movie.mkv", 0)
	require.NoError(t, err)
	assert.Equal(t, links.Video, share.Kind)
	assert.EqualValues(t, 6, share.Size)
	assert.WithinDuration(t, time.Now().Add(time.Hour), share.Link.ExpiresAt, time.Minute)
	assert.NotEmpty(t, share.PlayerURL)

	got, ok := r.Resolve(links.ShortKey("user_3/movie.mkv"))
	require.True(t, ok)
	assert.Equal(t, share.Link.URL, got.Link.URL)

	_, err = r.Share(ctx, "user_3/missing.mkv", time.Minute)
	require.Error(t, err)
	assert.True(t, storage.IsNotFound(err))
}

func TestRelayDelete(t *testing.T) {
	r, _ := newTestRelay(t)
	ctx := context.Background()
	res := r.Transfer(ctx, Request{Source: source.NewStringSource("a.mp3", "abc"), Owner: "5"})
	require.NoError(t, res.Err)

	require.NoError(t, r.Delete(ctx, res.Key))

	_, ok := r.Resolve(res.ShortKey)
	assert.False(t, ok)
	objs, err := r.List(ctx, "user_5/")
	require.NoError(t, err)
	assert.Empty(t, objs)

	err = r.Delete(ctx, res.Key)
	assert.True(t, storage.IsNotFound(err))
}

func TestRelayFetch(t *testing.T) {
	r, _ := newTestRelay(t)
	ctx := context.Background()
	res := r.Transfer(ctx, Request{Source: source.NewStringSource("doc.txt", "hello relay")})
	require.NoError(t, res.Err)

	dst := filepath.Join(t.TempDir(), "out.txt")
	rec := &recorder{}
	n, err := r.Fetch(ctx, res.Key, dst, rec)
	require.NoError(t, err)
	assert.EqualValues(t, 11, n)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello relay", string(data))
	assert.Contains(t, rec.Last(), "Fetched doc.txt")
}

func TestRelayFetchMissingLeavesNoFile(t *testing.T) {
	r, _ := newTestRelay(t)
	dst := filepath.Join(t.TempDir(), "out.bin")

	_, err := r.Fetch(context.Background(), "nope/x.bin", dst, nil)
	require.Error(t, err)
	assert.True(t, storage.IsNotFound(err))
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}
