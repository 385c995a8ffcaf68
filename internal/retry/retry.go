// Package retry runs storage calls under a bounded exponential backoff,
// separating failures worth another attempt from those that are final.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/withObsrvr/obsrvr-media-relay/internal/logging"
	"github.com/withObsrvr/obsrvr-media-relay/internal/metrics"
)

// Class tells the retrier what to do with a failed attempt.
type Class int

const (
	Retryable Class = iota
	Terminal
)

func (c Class) String() string {
	if c == Terminal {
		return "terminal"
	}
	return "retryable"
}

// Classifier maps an error to a Class.
type Classifier func(error) Class

// Policy configures a Retrier. It is not mutated after construction.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration
	Classify Classifier
}

// DefaultPolicy is three attempts starting at one second.
func DefaultPolicy(classify Classifier) Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Classify:    classify,
	}
}

func (p Policy) classify(err error) Class {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Terminal
	}
	if p.Classify == nil {
		return Retryable
	}
	return p.Classify(err)
}

// schedule builds the wait sequence base, 2*base, 4*base, ... bounded to
// MaxAttempts-1 waits.
func (p Policy) schedule(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.StopBackOff{}
	if p.MaxAttempts > 1 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.BaseDelay
		eb.RandomizationFactor = 0
		eb.Multiplier = 2
		eb.MaxInterval = p.MaxDelay
		if eb.MaxInterval <= 0 {
			eb.MaxInterval = time.Duration(math.MaxInt64)
		}
		eb.MaxElapsedTime = 0
		eb.Reset()
		b = backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// Status describes a pending retry: attempt is the 1-based number of the
// attempt that just failed and Delay the wait before the next one.
type Status struct {
	Op      string
	Attempt int
	Max     int
	Delay   time.Duration
	Err     error
}

// StatusFunc receives a Status before every retry wait.
type StatusFunc func(Status)

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsExhausted reports whether err carries an ExhaustedError.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// Retrier executes operations under a Policy.
type Retrier struct {
	policy   Policy
	onRetry  StatusFunc
	newTimer func() backoff.Timer
	log      *slog.Logger
}

// Option customizes a Retrier.
type Option func(*Retrier)

// WithStatus installs a hook called before each retry wait.
func WithStatus(fn StatusFunc) Option {
	return func(r *Retrier) { r.onRetry = fn }
}

// WithTimer replaces the wall-clock timer used between attempts.
func WithTimer(fn func() backoff.Timer) Option {
	return func(r *Retrier) { r.newTimer = fn }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(log *slog.Logger) Option {
	return func(r *Retrier) { r.log = log }
}

// New creates a Retrier.
func New(policy Policy, opts ...Option) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	r := &Retrier{
		policy: policy,
		log:    logging.Component("retry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the policy the retrier was built with.
func (r *Retrier) Policy() Policy { return r.policy }

// With returns a copy of r with extra options applied.
func (r *Retrier) With(opts ...Option) *Retrier {
	cp := *r
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}

// Do runs fn until it succeeds, fails with a terminal error, the attempt
// budget is spent or ctx is done. Terminal errors come back unchanged;
// an exhausted budget comes back as *ExhaustedError.
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var (
		attempts int
		last     error
		terminal bool
	)

	operation := func() error {
		if err := ctx.Err(); err != nil {
			terminal = true
			last = err
			return backoff.Permanent(err)
		}
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err
		if r.policy.classify(err) == Terminal {
			terminal = true
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		r.log.Warn("operation failed, retrying",
			"op", op,
			"attempt", attempts,
			"max_attempts", r.policy.MaxAttempts,
			"delay", delay,
			"error", err,
		)
		if m := metrics.Get(); m != nil {
			m.IncRetryAttempts(metrics.Labels{Operation: op})
		}
		if r.onRetry != nil {
			r.onRetry(Status{Op: op, Attempt: attempts, Max: r.policy.MaxAttempts, Delay: delay, Err: err})
		}
	}

	var timer backoff.Timer
	if r.newTimer != nil {
		timer = r.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, r.policy.schedule(ctx), notify, timer)
	switch {
	case err == nil:
		return nil
	case terminal:
		return last
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return &ExhaustedError{Op: op, Attempts: attempts, Err: last}
	}
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, r *Retrier, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
