package links

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Registry maps short keys to issued shares so callers can refer to a share
// with a compact handle. Entries live exactly as long as their link.
type Registry struct {
	cache *ttlcache.Cache[string, Share]
	now   func() time.Time
}

// NewRegistry creates a registry holding at most capacity shares.
func NewRegistry(capacity uint64) *Registry {
	if capacity == 0 {
		capacity = 1000
	}
	return &Registry{
		cache: ttlcache.New[string, Share](
			ttlcache.WithCapacity[string, Share](capacity),
		),
		now: time.Now,
	}
}

// ShortKey derives the compact handle for an object key.
func ShortKey(objectKey string) string {
	sum := sha256.Sum256([]byte(objectKey))
	return hex.EncodeToString(sum[:8])
}

// Put records s and returns its short key. Already expired shares are not stored.
func (r *Registry) Put(s Share) string {
	short := ShortKey(s.Key)
	ttl := s.Link.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		r.cache.Delete(short)
		return short
	}
	r.cache.Set(short, s, ttl)
	return short
}

// Get returns the share for short if its link is still valid.
func (r *Registry) Get(short string) (Share, bool) {
	item := r.cache.Get(short)
	if item == nil {
		return Share{}, false
	}
	s := item.Value()
	if s.Link.Expired(r.now()) {
		r.cache.Delete(short)
		return Share{}, false
	}
	return s, true
}

// Len returns the number of live entries.
func (r *Registry) Len() int { return r.cache.Len() }

// Start runs the expiry loop until Stop is called.
func (r *Registry) Start() { go r.cache.Start() }

// Stop ends the expiry loop.
func (r *Registry) Stop() { r.cache.Stop() }

// Forget drops the share for objectKey, if any.
func (r *Registry) Forget(objectKey string) {
	r.cache.Delete(ShortKey(objectKey))
}
