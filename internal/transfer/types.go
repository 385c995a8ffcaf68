package transfer

import (
	"time"

	"github.com/withObsrvr/obsrvr-media-relay/internal/links"
	"github.com/withObsrvr/obsrvr-media-relay/internal/notify"
	"github.com/withObsrvr/obsrvr-media-relay/internal/source"
	"github.com/withObsrvr/obsrvr-media-relay/internal/storage"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

// Phase is the position of a run in Fetching -> Storing -> Finalizing -> Done,
// with Failed reachable from every phase.
type Phase int

const (
	PhaseFetching Phase = iota
	PhaseStoring
	PhaseFinalizing
	PhaseFailed
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseFetching:
		return "fetching"
	case PhaseStoring:
		return "storing"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseFailed:
		return "failed"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// Outcome summarizes how a run ended.
type Outcome int

const (
	// OutcomeStored: the object is stored and a link was issued.
	OutcomeStored Outcome = iota
	// OutcomeStoredNoLink: the object is stored but no link could be issued.
	OutcomeStoredNoLink
	// OutcomeFailed: nothing usable was stored.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStored:
		return "stored"
	case OutcomeStoredNoLink:
		return "stored_no_link"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Request describes one transfer. It is not modified by the pipeline.
type Request struct {
	Source source.Source

	// DeclaredSize is advisory; 0 means use Source.Size().
	DeclaredSize int64
	// SuggestedName defaults to Source.Name().
	SuggestedName string
	// DestinationKey defaults to ObjectKey(Owner, name, now).
	DestinationKey string
	Owner          string

	// LinkTTL is the lifetime of the issued link; 0 uses the pipeline default.
	LinkTTL time.Duration

	// Notifier receives status text; nil discards it.
	Notifier notify.Notifier
	// Target identifies the status message being edited. Defaults to the
	// transfer ID.
	Target string
}

// State is the mutable progress of one run, owned by that run alone.
type State struct {
	BytesDone       int64
	TotalBytes      int64
	StartedAt       time.Time
	LastSampleAt    time.Time
	LastSampleBytes int64
	Attempt         int
	Phase           Phase
}

// Result is what a run reports back to its caller.
type Result struct {
	TransferID string
	Outcome    Outcome
	Phase      Phase // PhaseDone or PhaseFailed
	FailedIn   Phase // phase that was running when the run failed

	Name     string
	Key      string
	Locator  storage.Locator
	URI      string
	Kind     links.Kind
	Size     int64
	Checksum string

	Link      *links.AccessLink
	PlayerURL string
	ShortKey  string

	Err      error
	Duration time.Duration

	// State is the run's state when it ended.
	State State
}

// Stored reports whether the object reached storage.
func (r *Result) Stored() bool {
	return r.Outcome == OutcomeStored || r.Outcome == OutcomeStoredNoLink
}
