package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerRateAndETA(t *testing.T) {
	start := time.Unix(1700000000, 0)
	tr := NewTracker(1000, start)

	s := tr.Sample(100, start.Add(time.Second))
	assert.Equal(t, ByteRate(100), s.Rate)
	assert.True(t, s.Known())
	assert.Equal(t, 9*time.Second, s.ETA)

	s = tr.Sample(500, start.Add(2*time.Second))
	assert.Equal(t, ByteRate(400), s.Rate)
	assert.Equal(t, 1250*time.Millisecond, s.ETA)
}

func TestTrackerDuplicateTimestampKeepsRate(t *testing.T) {
	start := time.Unix(1700000000, 0)
	tr := NewTracker(1000, start)

	first := tr.Sample(200, start.Add(time.Second))
	dup := tr.Sample(300, start.Add(time.Second))
	assert.Equal(t, first.Rate, dup.Rate)

	back := tr.Sample(300, start.Add(500*time.Millisecond))
	assert.Equal(t, first.Rate, back.Rate)

	// the skipped bytes count toward the next real interval
	next := tr.Sample(400, start.Add(2*time.Second))
	assert.Equal(t, ByteRate(200), next.Rate)
}

func TestTrackerIndeterminateETA(t *testing.T) {
	start := time.Unix(1700000000, 0)

	stalled := NewTracker(1000, start)
	s := stalled.Sample(0, start.Add(time.Second))
	assert.Equal(t, ByteRate(0), s.Rate)
	assert.False(t, s.Known())
	assert.Equal(t, Indeterminate, s.ETA)

	unknown := NewTracker(0, start)
	s = unknown.Sample(1<<20, start.Add(time.Second))
	assert.Greater(t, float64(s.Rate), 0.0)
	assert.False(t, s.Known())
}

func TestTrackerNeverNegative(t *testing.T) {
	start := time.Unix(1700000000, 0)
	tr := NewTracker(1000, start)

	tr.Sample(800, start.Add(time.Second))
	s := tr.Sample(100, start.Add(2*time.Second)) // counter reset by a retried upload
	assert.Equal(t, ByteRate(0), s.Rate)
	assert.False(t, s.Known())

	done := tr.Sample(1200, start.Add(3*time.Second))
	assert.Equal(t, time.Duration(0), done.ETA)
}

func TestTrackerAverage(t *testing.T) {
	start := time.Unix(1700000000, 0)
	tr := NewTracker(1000, start)
	assert.Equal(t, ByteRate(250), tr.Average(1000, start.Add(4*time.Second)))
	assert.Equal(t, ByteRate(0), tr.Average(1000, start))
}

func TestByteRateString(t *testing.T) {
	assert.Equal(t, "0 B/s", ByteRate(0).String())
	assert.Equal(t, "1.0 MiB/s", ByteRate(1<<20).String())
}
