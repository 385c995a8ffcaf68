package links

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/withObsrvr/obsrvr-media-relay/internal/metrics"
	"github.com/withObsrvr/obsrvr-media-relay/internal/storage"
)

// Share is an issued link for one stored object together with its player URL.
type Share struct {
	Key       string     `json:"key"`
	Name      string     `json:"name"`
	Kind      Kind       `json:"kind"`
	Size      int64      `json:"size"`
	Link      AccessLink `json:"link"`
	PlayerURL string     `json:"player_url,omitempty"`
}

// Issuer asks the store for signed URLs. Pass a retrying store so every
// call is bounded by the retry policy.
type Issuer struct {
	store      storage.ObjectStore
	playerBase string
	now        func() time.Time
}

// NewIssuer creates an issuer producing player URLs under playerBase.
func NewIssuer(store storage.ObjectStore, playerBase string) *Issuer {
	return &Issuer{store: store, playerBase: playerBase, now: time.Now}
}

// PlayerBase returns the base URL of the web player.
func (i *Issuer) PlayerBase() string { return i.playerBase }

// Issue returns a fresh AccessLink for key valid for ttl.
func (i *Issuer) Issue(ctx context.Context, key string, ttl time.Duration) (AccessLink, error) {
	if ttl <= 0 {
		return AccessLink{}, fmt.Errorf("link lifetime must be positive, got %s", ttl)
	}
	issuedAt := i.now()
	u, err := i.store.SignedURL(ctx, key, ttl)
	if err != nil {
		return AccessLink{}, fmt.Errorf("sign %s: %w", key, err)
	}
	if m := metrics.Get(); m != nil {
		m.IncLinksIssued()
	}
	return AccessLink{URL: u, ExpiresAt: issuedAt.Add(ttl)}, nil
}

// Share checks that key exists, issues a link for it and derives the player
// URL from its name and stored content type. A missing object surfaces the
// store's not-found error.
func (i *Issuer) Share(ctx context.Context, key string, ttl time.Duration) (*Share, error) {
	info, err := i.store.Head(ctx, key)
	if err != nil {
		return nil, err
	}

	link, err := i.Issue(ctx, key, ttl)
	if err != nil {
		return nil, err
	}

	name := path.Base(key)
	kind := KindFromName(name)
	if kind == Other {
		kind = KindFromMIME(info.ContentType)
	}

	s := &Share{Key: key, Name: name, Kind: kind, Size: info.Size, Link: link}
	s.PlayerURL, _ = PlayerURL(i.playerBase, kind, link.URL)
	return s, nil
}
