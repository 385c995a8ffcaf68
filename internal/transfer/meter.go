package transfer

import (
	"io"
	"sync"
	"time"

	"github.com/withObsrvr/obsrvr-media-relay/internal/progress"
)

// meter turns byte counts from a copy loop into throttled status posts. It
// may be fed from SDK goroutines; post must not block.
type meter struct {
	mu        sync.Mutex
	action    string
	name      string
	target    string
	total     int64
	done      int64
	lastAt    time.Time
	tracker   *progress.Tracker
	throttles *progress.Table
	post      func(string)
	now       func() time.Time
	finalSent bool
}

func newMeter(action, name, target string, total int64, throttles *progress.Table, post func(string), now func() time.Time) *meter {
	return &meter{
		action:    action,
		name:      name,
		target:    target,
		total:     total,
		tracker:   progress.NewTracker(total, now()),
		throttles: throttles,
		post:      post,
		now:       now,
	}
}

// Observe records bytesSoFar and posts a status line if the throttle allows.
func (m *meter) Observe(bytesSoFar int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	final := m.total > 0 && bytesSoFar >= m.total
	m.emit(bytesSoFar, final)
}

// Finish posts the final status line unless Observe already did.
func (m *meter) Finish(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.finalSent && bytes == m.done {
		return
	}
	m.emit(bytes, true)
}

// Last returns the time and byte count of the latest observation.
func (m *meter) Last() (time.Time, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAt, m.done
}

func (m *meter) emit(bytes int64, final bool) {
	now := m.now()
	m.done = bytes
	m.lastAt = now
	sample := m.tracker.Sample(bytes, now)
	if !m.throttles.Allow(m.target, now, final) {
		return
	}
	if final {
		m.finalSent = true
	}
	m.post(progress.Render(progress.Snapshot{
		Action:  m.action,
		Name:    m.name,
		Done:    bytes,
		Total:   m.total,
		Sample:  sample,
		Elapsed: m.tracker.Elapsed(now),
	}))
}

// progressReader reports bytes read through fn. Seeking resets the count so
// a retried upload starts over.
type progressReader struct {
	r  io.ReadSeeker
	n  int64
	fn func(int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.n += int64(n)
		p.fn(p.n)
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.r.Seek(offset, whence)
	if err == nil {
		p.n = pos
	}
	return pos, err
}

// progressFile reports bytes written to a download target. It keeps the
// Truncate and Seek methods so a retried download can rewind it.
type progressFile struct {
	f interface {
		io.Writer
		io.Seeker
		Truncate(int64) error
	}
	n  int64
	fn func(int64)
}

func (p *progressFile) Write(b []byte) (int, error) {
	n, err := p.f.Write(b)
	if n > 0 {
		p.n += int64(n)
		p.fn(p.n)
	}
	return n, err
}

func (p *progressFile) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.f.Seek(offset, whence)
	if err == nil {
		p.n = pos
	}
	return pos, err
}

func (p *progressFile) Truncate(size int64) error {
	return p.f.Truncate(size)
}
