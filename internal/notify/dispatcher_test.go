package notify

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type recorder struct {
	mu    sync.Mutex
	texts []string
	block chan struct{}
	err   error
}

func (r *recorder) Update(ctx context.Context, text string) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return r.err
}

func (r *recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func TestDispatcherDeliversFinalOnClose(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, Options{Limit: rate.Inf})

	d.Post("10%")
	d.Post("100%")
	d.Close()

	texts := rec.Texts()
	require.NotEmpty(t, texts)
	assert.Equal(t, "100%", texts[len(texts)-1])
}

func TestDispatcherPostNeverBlocks(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	d := NewDispatcher(rec, Options{Limit: rate.Inf, Timeout: time.Second})

	start := time.Now()
	for i := 0; i < 1000; i++ {
		d.Post("tick")
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	d.Post("final")
	close(rec.block)
	d.Close()

	texts := rec.Texts()
	assert.LessOrEqual(t, len(texts), 2)
	assert.Equal(t, "final", texts[len(texts)-1])
}

func TestDispatcherSwallowsErrors(t *testing.T) {
	rec := &recorder{err: errors.New("message to edit not found")}
	d := NewDispatcher(rec, Options{Limit: rate.Inf})

	d.Post("a")
	d.Close()

	delivered, failed := d.Stats()
	assert.Equal(t, 0, delivered)
	assert.Equal(t, 1, failed)

	// posting after close is ignored
	d.Post("late")
	d.Close()
}

func TestWriterNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewWriterNotifier(&buf)
	require.NoError(t, n.Update(context.Background(), "Uploading: a.mp4"))
	assert.Equal(t, "Uploading: a.mp4\n\n", buf.String())
}
