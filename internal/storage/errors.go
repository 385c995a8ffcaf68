package storage

import (
	"errors"
	"fmt"

	"gocloud.dev/gcerrors"

	"github.com/withObsrvr/obsrvr-media-relay/internal/retry"
)

// ErrNotRewindable is returned when a put must be retried but its reader
// cannot be rewound to the start.
var ErrNotRewindable = errors.New("reader cannot be rewound for retry")

// OpError records a failed storage operation and the backend error behind it.
type OpError struct {
	Op      string
	Backend string
	Key     string
	Err     error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("storage %s %s (%s): %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Classify separates transient storage failures from terminal ones.
// Missing objects or buckets, denied access, bad arguments, unsupported
// operations and cancellation are terminal; throttling, timeouts, internal
// and unknown errors are retryable.
func Classify(err error) retry.Class {
	if err == nil {
		return retry.Retryable
	}
	if errors.Is(err, ErrNotRewindable) {
		return retry.Terminal
	}

	switch gcerrors.Code(err) {
	case gcerrors.NotFound,
		gcerrors.PermissionDenied,
		gcerrors.InvalidArgument,
		gcerrors.FailedPrecondition,
		gcerrors.Unimplemented,
		gcerrors.AlreadyExists,
		gcerrors.Canceled:
		return retry.Terminal
	case gcerrors.ResourceExhausted,
		gcerrors.DeadlineExceeded,
		gcerrors.Internal:
		return retry.Retryable
	}
	return retry.Retryable
}

// IsNotFound reports whether err means the object (or bucket) does not exist.
func IsNotFound(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}
