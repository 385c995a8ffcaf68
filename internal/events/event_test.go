package events

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/withObsrvr/obsrvr-media-relay/internal/config"
)

func sampleEvent() Event {
	return Event{
		EventType: TypeFinished,
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Transfer: TransferInfo{
			ID:      "3b1f0a6e-transfer",
			Owner:   "42",
			Phase:   "done",
			Outcome: "stored",
		},
		Object: ObjectInfo{
			Key:      "user_42/1704067200_clip.mp4",
			Checksum: "sha256:abc123",
			ByteSize: 1234,
			Kind:     "video",
		},
	}
}

func TestComputeEventHash(t *testing.T) {
	event := sampleEvent()
	event.SetChainHashes("")

	// Hash should be computed and non-empty
	if event.Chain.EventHash == "" {
		t.Error("EventHash should be computed")
	}

	// Hash should start with sha256:
	if len(event.Chain.EventHash) < 7 || event.Chain.EventHash[:7] != "sha256:" {
		t.Errorf("EventHash should start with 'sha256:', got: %s", event.Chain.EventHash)
	}

	// PrevEventHash should be empty for first in chain
	if event.Chain.PrevEventHash != "" {
		t.Errorf("PrevEventHash should be empty for first in chain, got: %s", event.Chain.PrevEventHash)
	}
}

func TestHashChainDeterminism(t *testing.T) {
	a, b := sampleEvent(), sampleEvent()
	a.SetChainHashes("sha256:prev")
	b.SetChainHashes("sha256:prev")
	if a.Chain.EventHash != b.Chain.EventHash {
		t.Errorf("identical events should hash equally: %s vs %s", a.Chain.EventHash, b.Chain.EventHash)
	}

	c := sampleEvent()
	c.SetChainHashes("sha256:other")
	if a.Chain.EventHash == c.Chain.EventHash {
		t.Error("different prev hash should change the event hash")
	}
}

func TestChainKey(t *testing.T) {
	e := sampleEvent()
	if got := e.ChainKey(); got != "owner/42" {
		t.Errorf("ChainKey = %q", got)
	}
	e.Transfer.Owner = ""
	if got := e.ChainKey(); got != "anonymous" {
		t.Errorf("ChainKey = %q", got)
	}
}

func TestFileEmitterChainsEvents(t *testing.T) {
	dir := t.TempDir()
	emitter, err := NewFileEmitter(dir)
	if err != nil {
		t.Fatalf("NewFileEmitter failed: %v", err)
	}

	first := sampleEvent()
	second := sampleEvent()
	second.EventType = TypeDeleted
	for _, evt := range []Event{first, second} {
		if err := emitter.Emit(context.Background(), evt); err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
	}

	f, err := os.Open(emitter.Path(&first))
	if err != nil {
		t.Fatalf("open events file: %v", err)
	}
	defer f.Close()

	var got []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var evt Event
		if err := json.Unmarshal(sc.Bytes(), &evt); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		got = append(got, evt)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Chain.PrevEventHash != "" {
		t.Errorf("first event should start the chain")
	}
	if got[1].Chain.PrevEventHash != got[0].Chain.EventHash {
		t.Errorf("second event should link to first")
	}
	if got[0].Version != Version || got[0].EventID == "" {
		t.Errorf("event not stamped: %+v", got[0])
	}

	// chain heads survive a restart
	again, err := NewFileEmitter(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	head, err := again.chain.GetHead("owner/42")
	if err != nil || head != got[1].Chain.EventHash {
		t.Errorf("head = %q, %v", head, err)
	}
}

func TestHTTPEmitterRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var evt Event
		if err := json.Unmarshal(body, &evt); err != nil {
			t.Errorf("bad body: %v", err)
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	emitter, err := NewHTTPEmitter(srv.URL, "")
	if err != nil {
		t.Fatalf("NewHTTPEmitter failed: %v", err)
	}
	defer emitter.Close()

	if err := emitter.Emit(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestHTTPEmitterClientErrorIsFinal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad event", http.StatusBadRequest)
	}))
	defer srv.Close()

	emitter, _ := NewHTTPEmitter(srv.URL, "")
	if err := emitter.Emit(context.Background(), sampleEvent()); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single call, got %d", calls.Load())
	}
}

func TestNewEmitterModes(t *testing.T) {
	if _, ok := NewEmitter(config.EventsConfig{Mode: "none"}).(Noop); !ok {
		t.Error("none should give Noop")
	}
	if _, ok := NewEmitter(config.EventsConfig{Mode: "file", Dir: t.TempDir()}).(*FileEmitter); !ok {
		t.Error("file should give FileEmitter")
	}
	if _, ok := NewEmitter(config.EventsConfig{Mode: "webhook"}).(Noop); !ok {
		t.Error("webhook without endpoint should degrade to Noop")
	}
	webhook := NewEmitter(config.EventsConfig{Mode: "webhook", Endpoint: "http://127.0.0.1:1/events"})
	defer webhook.Close()
	if _, ok := webhook.(*Async); !ok {
		t.Errorf("webhook should be queued, got %T", webhook)
	}
}

// blockingEmitter holds every delivery until release is closed.
type blockingEmitter struct {
	release chan struct{}
	got     chan Event
}

func (b *blockingEmitter) Emit(ctx context.Context, evt Event) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.got <- evt
	return nil
}

func (b *blockingEmitter) Close() error { return nil }

func TestAsyncEmitDoesNotWaitForUnavailableWebhook(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	inner, err := NewHTTPEmitter(srv.URL, "")
	if err != nil {
		t.Fatalf("NewHTTPEmitter failed: %v", err)
	}
	emitter := NewAsync(inner, 8, 200*time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := emitter.Emit(context.Background(), sampleEvent()); err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
	}
	if took := time.Since(start); took > 100*time.Millisecond {
		t.Errorf("Emit blocked for %s", took)
	}

	start = time.Now()
	if err := emitter.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if took := time.Since(start); took > 2*time.Second {
		t.Errorf("Close took %s", took)
	}
	if calls.Load() == 0 {
		t.Error("expected at least one delivery attempt")
	}
	if err := emitter.Emit(context.Background(), sampleEvent()); err != ErrClosed {
		t.Errorf("Emit after Close = %v, want ErrClosed", err)
	}
}

func TestAsyncDropsWhenQueueFull(t *testing.T) {
	inner := &blockingEmitter{release: make(chan struct{}), got: make(chan Event, 8)}
	emitter := NewAsync(inner, 1, time.Second)

	for i := 0; i < 5; i++ {
		evt := sampleEvent()
		evt.Transfer.ID = string(rune('a' + i))
		if err := emitter.Emit(context.Background(), evt); err != nil {
			t.Fatalf("Emit %d failed: %v", i, err)
		}
	}
	close(inner.release)
	emitter.Close()
	close(inner.got)

	var ids []string
	for evt := range inner.got {
		ids = append(ids, evt.Transfer.ID)
	}
	// One event in delivery, one queued; the rest dropped.
	if len(ids) < 1 || len(ids) > 2 {
		t.Fatalf("delivered %v, want one or two events", ids)
	}
	if ids[0] != "a" {
		t.Errorf("first delivered = %q, want a", ids[0])
	}
}
