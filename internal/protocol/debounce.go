package protocol

import (
	"sync"
	"time"
)

// DefaultDebounceInterval is the minimum spacing between debounced frames.
const DefaultDebounceInterval = 400 * time.Millisecond

// Debouncer drops debounced sends that arrive within interval of the previous
// transmission. Committed sends always pass and reset the window.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewDebouncer returns a debouncer. A nil clock means time.Now.
func NewDebouncer(interval time.Duration, now func() time.Time) *Debouncer {
	if now == nil {
		now = time.Now
	}
	return &Debouncer{interval: interval, now: now}
}

// Allow decides whether a send goes out, and records it as the last transmission if so.
func (d *Debouncer) Allow(debounced bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.now()
	if debounced && !d.last.IsZero() && t.Sub(d.last) < d.interval {
		return false
	}
	d.last = t
	return true
}

// LastSent returns the time of the last allowed send, zero if none.
func (d *Debouncer) LastSent() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}
