package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/withObsrvr/obsrvr-media-relay/internal/util"
)

// FileEmitter appends events as JSON lines to one file per UTC day.
type FileEmitter struct {
	mu    sync.Mutex
	dir   string
	chain *ChainTracker
}

// NewFileEmitter creates an emitter writing under dir.
func NewFileEmitter(dir string) (*FileEmitter, error) {
	if dir == "" {
		dir = "./events"
	}

	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create events dir: %w", err)
	}

	chain, err := NewChainTracker(dir)
	if err != nil {
		return nil, fmt.Errorf("create chain tracker: %w", err)
	}

	return &FileEmitter{dir: dir, chain: chain}, nil
}

// Emit links evt into its chain and appends it.
func (f *FileEmitter) Emit(_ context.Context, evt Event) error {
	stamp(&evt)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.chain.Link(&evt); err != nil {
		return fmt.Errorf("link event: %w", err)
	}
	return f.append(&evt)
}

func (f *FileEmitter) append(evt *Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	path := f.Path(evt)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

// Path returns the file an event is written to.
func (f *FileEmitter) Path(evt *Event) string {
	return filepath.Join(f.dir, "events-"+evt.Timestamp.UTC().Format("20060102")+".jsonl")
}

// Close releases resources.
func (f *FileEmitter) Close() error { return nil }
