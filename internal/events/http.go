package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/withObsrvr/obsrvr-media-relay/internal/logging"
	"github.com/withObsrvr/obsrvr-media-relay/internal/retry"
)

// statusError is a non-2xx webhook response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string { return fmt.Sprintf("http %d: %s", e.code, e.body) }

// classifyHTTP retries server errors and throttling; other 4xx are final.
func classifyHTTP(err error) retry.Class {
	if se, ok := err.(*statusError); ok {
		if se.code >= 500 || se.code == http.StatusTooManyRequests {
			return retry.Retryable
		}
		return retry.Terminal
	}
	return retry.Retryable
}

// HTTPEmitter posts events to a webhook endpoint.
type HTTPEmitter struct {
	endpoint string
	client   *http.Client
	chain    *ChainTracker
	retrier  *retry.Retrier
	log      *slog.Logger
}

// NewHTTPEmitter creates a webhook emitter. Chain heads persist under
// stateDir when it is set.
func NewHTTPEmitter(endpoint, stateDir string) (*HTTPEmitter, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("webhook endpoint required")
	}
	chain, err := NewChainTracker(stateDir)
	if err != nil {
		return nil, fmt.Errorf("create chain tracker: %w", err)
	}

	log := logging.Component("events")
	return &HTTPEmitter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		chain:    chain,
		retrier:  retry.New(retry.DefaultPolicy(classifyHTTP), retry.WithLogger(log)),
		log:      log,
	}, nil
}

// Emit links evt into its chain and posts it with retries.
func (e *HTTPEmitter) Emit(ctx context.Context, evt Event) error {
	stamp(&evt)
	if err := e.chain.Link(&evt); err != nil {
		return fmt.Errorf("link event: %w", err)
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := e.retrier.Do(ctx, "webhook", func(ctx context.Context) error {
		return e.post(ctx, body)
	}); err != nil {
		return fmt.Errorf("webhook emit failed: %w", err)
	}
	return nil
}

// post sends a single POST request to the endpoint.
func (e *HTTPEmitter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		e.log.Debug("webhook delivered", "status", resp.StatusCode)
		return nil
	}

	// Read error body
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &statusError{code: resp.StatusCode, body: string(respBody)}
}

// Close releases resources.
func (e *HTTPEmitter) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
