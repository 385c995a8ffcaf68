// Package events records the lifecycle of transfers as a hash-chained audit
// log, one chain per owner.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Event types.
const (
	TypePhase    = "transfer_phase"
	TypeFinished = "transfer_finished"
	TypeDeleted  = "object_deleted"
)

// Event is one audit record.
type Event struct {
	Version   string    `json:"version"`
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`

	Transfer TransferInfo `json:"transfer"`
	Object   ObjectInfo   `json:"object"`
	Producer ProducerInfo `json:"producer"`
	Chain    ChainInfo    `json:"chain"`
}

// TransferInfo identifies the transfer and where it stands.
type TransferInfo struct {
	ID      string `json:"id"`
	Owner   string `json:"owner"`
	Phase   string `json:"phase"`
	Outcome string `json:"outcome,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ObjectInfo describes the stored object, when there is one.
type ObjectInfo struct {
	Key      string `json:"key"`
	URI      string `json:"uri,omitempty"`
	Checksum string `json:"checksum,omitempty"`
	ByteSize int64  `json:"byte_size"`
	Kind     string `json:"kind,omitempty"`
}

// ProducerInfo identifies the software that produced the event.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ChainInfo links an event to the previous one in its chain.
type ChainInfo struct {
	PrevEventHash string `json:"prev_event_hash"`
	EventHash     string `json:"event_hash"`
}

// ChainKey returns the chain this event belongs to.
func (e *Event) ChainKey() string {
	if e.Transfer.Owner == "" {
		return "anonymous"
	}
	return "owner/" + e.Transfer.Owner
}

// SetChainHashes links the event to prevHash and computes its own hash.
func (e *Event) SetChainHashes(prevHash string) {
	e.Chain.PrevEventHash = prevHash
	e.Chain.EventHash = ComputeEventHash(e)
}

// ComputeEventHash computes the SHA256 hash of an event over its JSON form,
// excluding the event_hash field itself.
func ComputeEventHash(evt *Event) string {
	evtCopy := *evt
	evtCopy.Chain.EventHash = ""

	canonical, err := json.Marshal(evtCopy)
	if err != nil {
		return ""
	}

	hash := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(hash[:])
}
