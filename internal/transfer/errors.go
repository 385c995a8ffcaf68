package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/withObsrvr/obsrvr-media-relay/internal/retry"
	"github.com/withObsrvr/obsrvr-media-relay/internal/source"
	"github.com/withObsrvr/obsrvr-media-relay/internal/storage"
)

var (
	// ErrCancelled marks a run stopped by its context.
	ErrCancelled = fmt.Errorf("transfer cancelled: %w", context.Canceled)

	// ErrTooLarge rejects requests above the configured size limit.
	ErrTooLarge = errors.New("file exceeds size limit")
)

// LinkIssuanceError means the object was stored but no access link could be
// issued. It downgrades a run to OutcomeStoredNoLink instead of failing it.
type LinkIssuanceError struct {
	Key string
	Err error
}

func (e *LinkIssuanceError) Error() string {
	return fmt.Sprintf("issue link for %s: %v", e.Key, e.Err)
}

func (e *LinkIssuanceError) Unwrap() error { return e.Err }

// UserMessage is the short text shown to the person who asked for the
// transfer.
func (r *Result) UserMessage() string {
	switch r.Outcome {
	case OutcomeStored:
		msg := fmt.Sprintf("Stored %s (%s).\nLink valid until %s:\n%s",
			r.Name, humanize.IBytes(uint64(r.Size)),
			r.Link.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"), r.Link.URL)
		if r.PlayerURL != "" {
			msg += "\nPlay: " + r.PlayerURL
		}
		return msg
	case OutcomeStoredNoLink:
		return fmt.Sprintf("Stored %s, but no shareable link could be created. Try sharing it again later.", r.Name)
	}
	return FailureMessage(r.Err)
}

// FailureMessage maps an error to a short user-facing explanation.
func FailureMessage(err error) string {
	switch {
	case err == nil:
		return "Transfer failed."
	case errors.Is(err, context.Canceled):
		return "Transfer cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "Transfer timed out."
	case errors.Is(err, ErrTooLarge):
		return "File is too large to transfer."
	case storage.IsNotFound(err):
		return "File not found."
	case source.IsReadError(err):
		return "Transfer failed: the file could not be read."
	case retry.IsExhausted(err):
		return "Transfer failed: storage is unavailable, please try again later."
	}
	return "Transfer failed."
}
