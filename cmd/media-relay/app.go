package main

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/withObsrvr/obsrvr-media-relay/internal/config"
	"github.com/withObsrvr/obsrvr-media-relay/internal/events"
	"github.com/withObsrvr/obsrvr-media-relay/internal/links"
	"github.com/withObsrvr/obsrvr-media-relay/internal/notify"
	"github.com/withObsrvr/obsrvr-media-relay/internal/progress"
	"github.com/withObsrvr/obsrvr-media-relay/internal/retry"
	"github.com/withObsrvr/obsrvr-media-relay/internal/staging"
	"github.com/withObsrvr/obsrvr-media-relay/internal/storage"
	"github.com/withObsrvr/obsrvr-media-relay/internal/transfer"
)

const (
	// throttleIdle is how long an unused progress throttle entry is kept.
	throttleIdle = 10 * time.Minute
	// stagingMaxAge is the age after which a staged file is considered
	// abandoned.
	stagingMaxAge = 24 * time.Hour
)

// app holds the components every subcommand shares.
type app struct {
	cfg      config.Config
	blob     *storage.BlobStore
	relay    *transfer.Relay
	registry *links.Registry
	emitter  events.Emitter
}

func newApp(cfg config.Config) (*app, error) {
	blob, err := storage.NewObjectStore(storage.StorageConfig{
		Backend:     cfg.Storage.Backend,
		LocalDir:    cfg.Storage.LocalDir,
		Bucket:      cfg.Storage.Bucket,
		Endpoint:    cfg.Storage.Endpoint,
		Region:      cfg.Storage.Region,
		SignBaseURL: cfg.Storage.SignBaseURL,
		SignSecret:  cfg.Storage.SignSecret,
		Prefix:      cfg.Storage.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage: %w", err)
	}

	store := storage.NewRetrying(blob, retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	})

	area, err := staging.NewArea(cfg.Transfer.StagingDir)
	if err != nil {
		blob.Close()
		return nil, err
	}

	if _, err := area.Sweep(stagingMaxAge, time.Now()); err != nil {
		slog.Warn("staging sweep failed", "dir", area.Dir(), "error", err)
	}

	emitter := events.NewEmitter(cfg.Events)
	throttles := progress.NewTable(cfg.Notify.Targets, cfg.Transfer.ProgressInterval, throttleIdle)
	pipeline := transfer.NewPipeline(store, area, throttles, emitter, transfer.Config{
		PlayerBaseURL:         cfg.Links.PlayerBaseURL,
		LinkTTL:               cfg.Links.DefaultTTL,
		MaxFileSize:           cfg.Transfer.MaxFileSize,
		SizeMismatchTolerance: cfg.Transfer.SizeMismatchTolerance,
		Notify: notify.Options{
			Limit: rate.Limit(cfg.Notify.EditsPerSecond),
			Burst: cfg.Notify.Burst,
		},
	})

	registry := links.NewRegistry(uint64(cfg.Links.RegistrySize))
	relay := transfer.NewRelay(pipeline, registry, transfer.RelayConfig{
		MaxConcurrent: cfg.Transfer.MaxConcurrent,
		ShareTTL:      cfg.Links.ShareTTL,
	})

	slog.Debug("relay ready",
		"backend", blob.Backend(),
		"staging_dir", area.Dir(),
		"max_concurrent", cfg.Transfer.MaxConcurrent,
	)
	return &app{cfg: cfg, blob: blob, relay: relay, registry: registry, emitter: emitter}, nil
}

func (a *app) Close() {
	if err := a.emitter.Close(); err != nil {
		slog.Warn("close event emitter", "error", err)
	}
	if err := a.blob.Close(); err != nil {
		slog.Warn("close storage", "error", err)
	}
}
