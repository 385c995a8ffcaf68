package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/withObsrvr/obsrvr-media-relay/internal/config"
	"github.com/withObsrvr/obsrvr-media-relay/internal/logging"
	"github.com/withObsrvr/obsrvr-media-relay/internal/metrics"
)

// Version of the event schema.
const Version = "1.0"

// Producer is stamped on every event.
var Producer = ProducerInfo{Name: "media-relay", Version: "dev"}

// Emitter is the interface for lifecycle event emission.
type Emitter interface {
	Emit(ctx context.Context, evt Event) error
	Close() error
}

// NewEmitter creates an appropriate emitter based on configuration. A sink
// that cannot be created degrades to the no-op emitter.
func NewEmitter(cfg config.EventsConfig) Emitter {
	log := logging.Component("events")

	switch cfg.Mode {
	case "webhook":
		emitter, err := NewHTTPEmitter(cfg.Endpoint, cfg.Dir)
		if err != nil {
			log.Warn("failed to create webhook emitter, using no-op", "error", err)
			return Noop{}
		}
		log.Info("using webhook emitter", "endpoint", cfg.Endpoint, "queue_size", cfg.QueueSize)
		return NewAsync(emitter, cfg.QueueSize, cfg.EmitTimeout)
	case "file":
		emitter, err := NewFileEmitter(cfg.Dir)
		if err != nil {
			log.Warn("failed to create file emitter, using no-op", "error", err)
			return Noop{}
		}
		log.Info("using file emitter", "dir", cfg.Dir)
		return emitter
	default:
		log.Debug("events disabled, using no-op emitter")
		return Noop{}
	}
}

// Noop discards events.
type Noop struct{}

func (Noop) Emit(context.Context, Event) error { return nil }
func (Noop) Close() error                      { return nil }

// stamp fills the fields every emitter sets.
func stamp(evt *Event) {
	evt.Version = Version
	evt.EventID = GenerateEventID()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.Producer = Producer
}

// Emit sends evt and logs instead of failing; lifecycle events never abort
// a transfer.
func Emit(ctx context.Context, e Emitter, evt Event) {
	if e == nil {
		return
	}
	if err := e.Emit(ctx, evt); err != nil {
		slog.Warn("event emission failed",
			"component", "events",
			"event_type", evt.EventType,
			"transfer_id", evt.Transfer.ID,
			"error", err,
		)
		if m := metrics.Get(); m != nil {
			m.IncEventErrors(metrics.Labels{Emitter: "default"})
		}
	}
}
