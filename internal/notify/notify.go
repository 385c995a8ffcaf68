// Package notify delivers transfer status text to whoever started the
// transfer. Delivery is best effort and never slows a transfer down.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Notifier edits or posts one status message. Implementations may be slow,
// rate limited or failing.
type Notifier interface {
	Update(ctx context.Context, text string) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, text string) error

func (f Func) Update(ctx context.Context, text string) error { return f(ctx, text) }

// Nop discards every update.
type Nop struct{}

func (Nop) Update(context.Context, string) error { return nil }

// WriterNotifier prints each update to w, separated by blank lines.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) Update(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintf(n.w, "%s\n\n", text)
	return err
}

// LogNotifier writes updates to a logger at debug level.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Update(_ context.Context, text string) error {
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	log.Debug("status", "text", text)
	return nil
}
