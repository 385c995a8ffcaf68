package links

import (
	"strings"
	"time"
)

// AccessLink is a time-limited URL for one stored object. ExpiresAt is set
// at issuance; an expired link is replaced, never extended.
type AccessLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the link is no longer valid at now.
func (l AccessLink) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// PlayerURL builds {base}/player/{kind}/{token}. Other yields no URL.
func PlayerURL(base string, kind Kind, accessURL string) (string, bool) {
	if !kind.Playable() {
		return "", false
	}
	return strings.TrimRight(base, "/") + "/player/" + string(kind) + "/" + Encode(accessURL, kind), true
}
