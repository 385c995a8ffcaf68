package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/withObsrvr/obsrvr-media-relay/internal/logging"
	"github.com/withObsrvr/obsrvr-media-relay/internal/metrics"
)

// Options tunes a Dispatcher.
type Options struct {
	// Limit and Burst bound how often the remote message is edited.
	Limit rate.Limit
	Burst int
	// Timeout bounds a single delivery, including the rate-limit wait.
	Timeout time.Duration
	Log     *slog.Logger
}

// Dispatcher forwards updates to a Notifier from its own goroutine. Only the
// most recent pending update is kept; older ones are superseded. Post never
// blocks and delivery errors are logged, never returned.
type Dispatcher struct {
	n       Notifier
	limiter *rate.Limiter
	timeout time.Duration
	log     *slog.Logger

	pending chan string
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once

	mu        sync.Mutex
	delivered int
	failed    int
}

// NewDispatcher starts a dispatcher for n.
func NewDispatcher(n Notifier, opts Options) *Dispatcher {
	if opts.Limit == 0 {
		opts.Limit = rate.Every(time.Second)
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Log == nil {
		opts.Log = logging.Component("notify")
	}

	d := &Dispatcher{
		n:       n,
		limiter: rate.NewLimiter(opts.Limit, opts.Burst),
		timeout: opts.Timeout,
		log:     opts.Log,
		pending: make(chan string, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Post queues text, replacing any update not yet delivered.
func (d *Dispatcher) Post(text string) {
	select {
	case <-d.stop:
		return
	default:
	}
	for {
		select {
		case d.pending <- text:
			return
		default:
		}
		select {
		case <-d.pending:
			if m := metrics.Get(); m != nil {
				m.IncNotificationsDropped(metrics.Labels{Reason: "superseded"})
			}
		default:
		}
	}
}

// Close delivers whatever is still pending and stops the dispatcher.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.stop) })
	<-d.done
}

// Stats returns the number of delivered and failed updates.
func (d *Dispatcher) Stats() (delivered, failed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delivered, d.failed
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case text := <-d.pending:
			d.deliver(text)
		case <-d.stop:
			select {
			case text := <-d.pending:
				d.deliver(text)
			default:
			}
			return
		}
	}
}

func (d *Dispatcher) deliver(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		d.fail("rate_limited", err)
		return
	}
	if err := d.n.Update(ctx, text); err != nil {
		d.fail("error", err)
		return
	}

	d.mu.Lock()
	d.delivered++
	d.mu.Unlock()
	if m := metrics.Get(); m != nil {
		m.IncNotificationsSent()
	}
}

func (d *Dispatcher) fail(reason string, err error) {
	d.mu.Lock()
	d.failed++
	d.mu.Unlock()
	d.log.Warn("status update failed", "reason", reason, "error", err)
	if m := metrics.Get(); m != nil {
		m.IncNotificationsDropped(metrics.Labels{Reason: reason})
	}
}
