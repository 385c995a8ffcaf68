package storage

import (
	"fmt"
	"net/url"
	"path/filepath"

	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"

	"github.com/withObsrvr/obsrvr-media-relay/internal/util"
)

// NewLocalStore creates a store rooted at a local directory. When signSecret
// is set, SignedURL returns HMAC-signed URLs under signBaseURL; otherwise
// signing is unsupported and link issuance fails.
func NewLocalStore(baseDir, prefix, signBaseURL, signSecret string) (*BlobStore, error) {
	// Ensure base directory exists
	if err := util.EnsureDir(baseDir); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", baseDir, err)
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", baseDir, err)
	}

	opts := &fileblob.Options{}
	if signSecret != "" {
		signer, err := NewHMACSigner(signBaseURL, signSecret)
		if err != nil {
			return nil, err
		}
		opts.URLSigner = signer
	}

	bucket, err := fileblob.OpenBucket(abs, opts)
	if err != nil {
		return nil, fmt.Errorf("open local bucket %s: %w", abs, err)
	}

	return newBlobStore(bucket, "local", abs, "file://"+filepath.ToSlash(abs)+"/", prefix), nil
}

// NewMemStore creates an in-process store. Objects vanish on Close.
func NewMemStore(prefix string) *BlobStore {
	return newBlobStore(memblob.OpenBucket(nil), "mem", "mem", "mem://", prefix)
}

// NewHMACSigner returns the signer local stores use for SignedURL. The player
// server uses the same signer to verify /files links.
func NewHMACSigner(baseURL, secret string) (*fileblob.URLSignerHMAC, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse sign base url %q: %w", baseURL, err)
	}
	return fileblob.NewURLSignerHMAC(base, []byte(secret)), nil
}
