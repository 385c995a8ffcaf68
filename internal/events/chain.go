package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/withObsrvr/obsrvr-media-relay/internal/util"
)

var (
	// ErrNoChainHead indicates no previous event exists for this chain.
	ErrNoChainHead = errors.New("no chain head found")
)

// ChainTracker manages the chain heads for event linking. With an empty
// directory heads are kept in memory only.
type ChainTracker struct {
	mu       sync.RWMutex
	heads    map[string]string // chainKey -> eventHash
	filePath string
}

// NewChainTracker creates a chain tracker that persists to the given directory.
func NewChainTracker(dir string) (*ChainTracker, error) {
	ct := &ChainTracker{heads: make(map[string]string)}
	if dir == "" {
		return ct, nil
	}

	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create chain tracker dir: %w", err)
	}
	ct.filePath = filepath.Join(dir, "chain-heads.json")

	// Load existing chain heads
	if err := ct.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load chain heads: %w", err)
	}

	return ct, nil
}

// GetHead returns the last event hash for a chain.
func (ct *ChainTracker) GetHead(chainKey string) (string, error) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	hash, ok := ct.heads[chainKey]
	if !ok || hash == "" {
		return "", ErrNoChainHead
	}
	return hash, nil
}

// Link fills in the chain hashes of evt and advances the head. The lock is
// held across both so concurrent transfers of one owner cannot fork a chain.
func (ct *ChainTracker) Link(evt *Event) error {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	key := evt.ChainKey()
	evt.SetChainHashes(ct.heads[key])
	ct.heads[key] = evt.Chain.EventHash
	return ct.save()
}

// load reads chain heads from the JSON file.
func (ct *ChainTracker) load() error {
	data, err := os.ReadFile(ct.filePath)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &ct.heads)
}

// save writes chain heads to the JSON file.
func (ct *ChainTracker) save() error {
	if ct.filePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(ct.heads, "", "  ")
	if err != nil {
		return err
	}

	// Write atomically using temp file
	tmpPath := ct.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpPath, ct.filePath)
}

// GenerateEventID creates a unique event ID.
func GenerateEventID() string {
	return "evt_" + uuid.NewString()
}
