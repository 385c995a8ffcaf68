package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/withObsrvr/obsrvr-media-relay/internal/logging"
	"github.com/withObsrvr/obsrvr-media-relay/internal/metrics"
)

// ErrClosed is returned by Emit once the emitter has been closed.
var ErrClosed = errors.New("events: emitter closed")

// Async hands events to an inner emitter from a single goroutine, in the
// order they were emitted. Emit never blocks; when the queue is full the
// event is dropped and counted.
type Async struct {
	inner   Emitter
	timeout time.Duration
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Event

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAsync starts delivering to inner. size bounds the queue and timeout
// bounds each delivery, retries included.
func NewAsync(inner Emitter, size int, timeout time.Duration) *Async {
	if size < 1 {
		size = 256
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Async{
		inner:   inner,
		timeout: timeout,
		log:     logging.Component("events"),
		queue:   make(chan Event, size),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Emit queues evt. The context is not used: delivery happens later.
func (a *Async) Emit(_ context.Context, evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- evt:
	default:
		a.drop(evt, "queue full")
	}
	return nil
}

func (a *Async) run() {
	defer close(a.done)
	for evt := range a.queue {
		if a.ctx.Err() != nil {
			a.drop(evt, "shutting down")
			continue
		}
		ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
		Emit(ctx, a.inner, evt)
		cancel()
	}
}

func (a *Async) drop(evt Event, reason string) {
	a.log.Warn("dropping event",
		"reason", reason,
		"event_type", evt.EventType,
		"transfer_id", evt.Transfer.ID,
	)
	if m := metrics.Get(); m != nil {
		m.IncEventsDropped()
	}
}

// Close stops accepting events and gives the queue one delivery timeout to
// drain. Events still queued after that are dropped.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()
	select {
	case <-a.done:
	case <-timer.C:
		a.cancel()
		<-a.done
	}
	a.cancel()
	return a.inner.Close()
}
