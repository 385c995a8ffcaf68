package progress

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultInterval is the minimum spacing between progress notifications.
const DefaultInterval = 2 * time.Second

// Throttle gates notifications to at most one per interval. The first
// sample and the final sample always pass.
type Throttle struct {
	interval time.Duration
	last     time.Time
	emitted  bool
}

// NewThrottle creates a throttle; a non-positive interval uses DefaultInterval.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Throttle{interval: interval}
}

// ShouldEmit reports whether a notification may be sent at now.
func (t *Throttle) ShouldEmit(now time.Time, isFinal bool) bool {
	if isFinal || !t.emitted {
		return true
	}
	return now.Sub(t.last) >= t.interval
}

// MarkEmitted records that a notification went out at now.
func (t *Throttle) MarkEmitted(now time.Time) {
	t.last = now
	t.emitted = true
}

// Table holds one Throttle per notification target. Progress callbacks may
// arrive from storage SDK goroutines, so check-and-mark happens under a lock.
// Idle entries expire so abandoned targets do not accumulate.
type Table struct {
	mu       sync.Mutex
	interval time.Duration
	entries  *expirable.LRU[string, *Throttle]
}

// NewTable creates a table holding at most size targets, each forgotten
// after idle without activity.
func NewTable(size int, interval, idle time.Duration) *Table {
	if size <= 0 {
		size = 1024
	}
	if idle <= 0 {
		idle = time.Hour
	}
	return &Table{
		interval: interval,
		entries:  expirable.NewLRU[string, *Throttle](size, nil, idle),
	}
}

// Allow reports whether target may be notified at now and, if so, marks it.
func (t *Table) Allow(target string, now time.Time, isFinal bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	th, ok := t.entries.Get(target)
	if !ok {
		th = NewThrottle(t.interval)
	}
	if !th.ShouldEmit(now, isFinal) {
		return false
	}
	th.MarkEmitted(now)
	t.entries.Add(target, th)
	return true
}

// Forget drops the entry for target.
func (t *Table) Forget(target string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries.Remove(target)
}

// Len returns the number of tracked targets.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries.Len()
}
