// Package links issues time-limited access links for stored objects and
// converts them to and from compact player tokens.
package links

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DecodeError reports a malformed player token.
type DecodeError struct {
	Token  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid player token: %s: %v", e.Reason, e.Err)
	}
	return "invalid player token: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode turns an access URL into a URL-safe token without padding. The media
// kind travels next to the token in the player path, never inside it, so it
// is accepted here only to keep call sites symmetric with PlayerURL.
func Encode(accessURL string, _ Kind) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString([]byte(accessURL)), "=")
}

// Decode restores the access URL carried by token.
func Decode(token string) (string, error) {
	if token == "" {
		return "", &DecodeError{Token: token, Reason: "empty token"}
	}
	for _, r := range token {
		if !isTokenRune(r) {
			return "", &DecodeError{Token: token, Reason: fmt.Sprintf("invalid character %q", r)}
		}
	}
	if len(token)%4 == 1 {
		return "", &DecodeError{Token: token, Reason: "impossible token length"}
	}

	padded := token + strings.Repeat("=", (4-len(token)%4)%4)
	raw, err := base64.URLEncoding.Strict().DecodeString(padded)
	if err != nil {
		return "", &DecodeError{Token: token, Reason: "not url-safe base64", Err: err}
	}
	if !utf8.Valid(raw) {
		return "", &DecodeError{Token: token, Reason: "not utf-8"}
	}
	return string(raw), nil
}

func isTokenRune(r rune) bool {
	return r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_'
}
