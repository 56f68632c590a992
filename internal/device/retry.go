package device

import (
	"sync"
	"time"
)

// TickerFunc starts a periodic tick source and returns its channel and stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// RetrySchedule holds at most one reconnect ticker. It is shared by every Manager in
// the process, so rebuilding a manager never multiplies the cadence. Each tick calls
// back every owner still waiting, and only an owner can withdraw itself.
type RetrySchedule struct {
	mu        sync.Mutex
	stop      chan struct{}
	waiting   map[interface{}]func()
	newTicker TickerFunc
}

// DefaultRetry is the process-wide schedule used unless a manager is given another.
var DefaultRetry = NewRetrySchedule(nil)

// NewRetrySchedule returns an unarmed schedule. A nil ticker source means time.NewTicker.
func NewRetrySchedule(newTicker TickerFunc) *RetrySchedule {
	if newTicker == nil {
		newTicker = realTicker
	}
	return &RetrySchedule{newTicker: newTicker, waiting: make(map[interface{}]func())}
}

// Arm registers fn for owner and starts the ticker if none is running. It reports
// whether this call started the ticker; a running ticker keeps its interval.
func (r *RetrySchedule) Arm(owner interface{}, interval time.Duration, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiting[owner] = fn
	if r.stop != nil {
		return false
	}
	ticks, stopTicker := r.newTicker(interval)
	stop := make(chan struct{})
	r.stop = stop

	go func() {
		defer stopTicker()
		for {
			select {
			case <-stop:
				return
			case <-ticks:
				for _, fn := range r.due(stop) {
					fn()
				}
			}
		}
	}()
	return true
}

// due returns the callbacks for one tick, or nothing if stop was already closed.
func (r *RetrySchedule) due(stop chan struct{}) []func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != stop {
		return nil
	}
	fns := make([]func(), 0, len(r.waiting))
	for _, fn := range r.waiting {
		fns = append(fns, fn)
	}
	return fns
}

// Disarm withdraws owner and stops the ticker once nobody waits. It reports whether
// owner was waiting.
func (r *RetrySchedule) Disarm(owner interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.waiting[owner]; !ok {
		return false
	}
	delete(r.waiting, owner)
	if len(r.waiting) == 0 && r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
	return true
}

// Armed reports whether the ticker is running.
func (r *RetrySchedule) Armed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stop != nil
}
