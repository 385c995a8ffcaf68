// Package progress turns byte counters into rates, ETAs and throttled
// human-readable status lines.
package progress

import (
	"time"

	"github.com/dustin/go-humanize"
)

// ByteRate is a transfer rate in bytes per second.
type ByteRate float64

func (r ByteRate) String() string {
	if r <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(r)) + "/s"
}

// Indeterminate is the ETA reported when the rate is zero or the total is unknown.
const Indeterminate time.Duration = -1

// Sample is the result of feeding one observation to a Tracker.
type Sample struct {
	Rate ByteRate
	ETA  time.Duration // Indeterminate when unknown
}

// Known reports whether the ETA could be computed.
func (s Sample) Known() bool { return s.ETA >= 0 }

// Tracker derives an instantaneous rate from the last two observations.
// A Tracker belongs to a single transfer and is not safe for concurrent use.
type Tracker struct {
	total     int64
	startedAt time.Time
	lastAt    time.Time
	lastBytes int64
	rate      ByteRate
}

// NewTracker starts tracking a transfer of total bytes (0 if unknown).
func NewTracker(total int64, start time.Time) *Tracker {
	return &Tracker{
		total:     total,
		startedAt: start,
		lastAt:    start,
	}
}

// Sample records bytesSoFar at now. If no time has passed since the last
// observation the previous rate is kept.
func (t *Tracker) Sample(bytesSoFar int64, now time.Time) Sample {
	elapsed := now.Sub(t.lastAt)
	if elapsed > 0 {
		delta := bytesSoFar - t.lastBytes
		if delta < 0 {
			delta = 0
		}
		t.rate = ByteRate(float64(delta) / elapsed.Seconds())
		t.lastAt = now
		t.lastBytes = bytesSoFar
	}
	return Sample{Rate: t.rate, ETA: t.eta(bytesSoFar)}
}

func (t *Tracker) eta(bytesSoFar int64) time.Duration {
	if t.total <= 0 {
		return Indeterminate
	}
	remaining := t.total - bytesSoFar
	if remaining <= 0 {
		return 0
	}
	if t.rate <= 0 {
		return Indeterminate
	}
	return time.Duration(float64(remaining) / float64(t.rate) * float64(time.Second))
}

// Total returns the expected size, 0 if unknown.
func (t *Tracker) Total() int64 { return t.total }

// Elapsed returns the time since tracking started.
func (t *Tracker) Elapsed(now time.Time) time.Duration { return now.Sub(t.startedAt) }

// Average returns the mean rate over the whole transfer.
func (t *Tracker) Average(bytes int64, now time.Time) ByteRate {
	secs := t.Elapsed(now).Seconds()
	if secs <= 0 {
		return 0
	}
	return ByteRate(float64(bytes) / secs)
}
