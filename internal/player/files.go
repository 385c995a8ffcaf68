package player

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"path"

	"github.com/gin-gonic/gin"
	"gocloud.dev/blob"

	"github.com/withObsrvr/obsrvr-media-relay/internal/storage"
)

// KeyVerifier checks a signed URL and returns the bucket path it grants.
// fileblob.URLSignerHMAC implements it.
type KeyVerifier interface {
	KeyFromURL(ctx context.Context, u *url.URL) (string, error)
}

// PathOpener opens an object by bucket path. storage.BlobStore implements it.
type PathOpener interface {
	OpenPath(ctx context.Context, path string) (*blob.Reader, error)
}

type fileRoute struct {
	verifier KeyVerifier
	objects  PathOpener
	log      *slog.Logger
}

func (f *fileRoute) serve(c *gin.Context) {
	key, err := f.verifier.KeyFromURL(c.Request.Context(), c.Request.URL)
	if err != nil {
		c.HTML(http.StatusForbidden, "error", errorPage{Title: "Link expired", Message: "This link has expired or is not valid."})
		return
	}

	r, err := f.objects.OpenPath(c.Request.Context(), key)
	if err != nil {
		if storage.IsNotFound(err) {
			c.HTML(http.StatusNotFound, "error", errorPage{Title: "Not found", Message: "File not found."})
			return
		}
		f.log.Warn("open signed object failed", "key", key, "error", err)
		c.HTML(http.StatusBadGateway, "error", errorPage{Title: "Unavailable", Message: "Storage is unavailable, please try again later."})
		return
	}
	defer r.Close()

	if ct := r.ContentType(); ct != "" {
		c.Header("Content-Type", ct)
	}
	http.ServeContent(c.Writer, c.Request, path.Base(key), r.ModTime(), r)
}
