package links

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/obsrvr-media-relay/internal/storage"
)

func newSigningStore(t *testing.T) *storage.BlobStore {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir(), "", "http://localhost:8080/files/", "secret")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestIssuerShare(t *testing.T) {
	store := newSigningStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "user_7/1700000000_talk.mp3", strings.NewReader("ID3..."), storage.PutOptions{}))

	issuer := NewIssuer(store, "https://relay.example.com")
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	issuer.now = func() time.Time { return fixed }

	s, err := issuer.Share(ctx, "user_7/1700000000_talk.mp3", 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, Audio, s.Kind)
	assert.Equal(t, "1700000000_talk.mp3", s.Name)
	assert.Equal(t, int64(6), s.Size)
	assert.Equal(t, fixed.Add(24*time.Hour), s.Link.ExpiresAt)
	assert.True(t, strings.HasPrefix(s.PlayerURL, "https://relay.example.com/player/audio/"))

	tok := strings.TrimPrefix(s.PlayerURL, "https://relay.example.com/player/audio/")
	decoded, err := Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, s.Link.URL, decoded)
}

func TestIssuerShareMissingObject(t *testing.T) {
	issuer := NewIssuer(newSigningStore(t), "https://relay.example.com")
	_, err := issuer.Share(context.Background(), "user_7/nope.mp4", time.Hour)
	require.Error(t, err)
	assert.True(t, storage.IsNotFound(err))
}

func TestIssuerRejectsNonPositiveTTL(t *testing.T) {
	issuer := NewIssuer(newSigningStore(t), "https://relay.example.com")
	_, err := issuer.Issue(context.Background(), "k", 0)
	assert.Error(t, err)
}

func TestRegistryExpiresWithLink(t *testing.T) {
	reg := NewRegistry(10)
	now := time.Now()

	s := Share{Key: "user_1/a.mp4", Link: AccessLink{URL: "https://x", ExpiresAt: now.Add(time.Hour)}}
	short := reg.Put(s)
	assert.Len(t, short, 16)
	assert.Equal(t, ShortKey("user_1/a.mp4"), short)

	got, ok := reg.Get(short)
	require.True(t, ok)
	assert.Equal(t, s.Link, got.Link)

	reg.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, ok = reg.Get(short)
	assert.False(t, ok)

	expired := Share{Key: "user_1/b.mp4", Link: AccessLink{ExpiresAt: now}}
	_, ok = reg.Get(reg.Put(expired))
	assert.False(t, ok)
}

func TestAccessLinkExpired(t *testing.T) {
	now := time.Now()
	l := AccessLink{ExpiresAt: now}
	assert.True(t, l.Expired(now))
	assert.False(t, l.Expired(now.Add(-time.Second)))
}
