// Package roundtimer provides the cancellable deadline of a trading round.
package roundtimer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Timer fires a callback once when a round's deadline elapses. The callback
// and Stop race on a single flag, so the callback runs at most once and never
// after Stop has returned true.
type Timer struct {
	mu    sync.Mutex
	t     *time.Timer
	fired *atomic.Bool
	round int
	ends  time.Time
}

// New creates an idle timer.
func New() *Timer {
	return &Timer{}
}

// Start arms the timer for round. Any previously armed deadline is stopped
// first. fire receives the round it was armed for.
func (t *Timer) Start(d time.Duration, round int, fire func(round int)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()

	flag := &atomic.Bool{}
	t.fired = flag
	t.round = round
	t.ends = time.Now().Add(d)
	t.t = time.AfterFunc(d, func() {
		if flag.CompareAndSwap(false, true) {
			fire(round)
		}
	})
}

// Stop cancels the armed deadline. It returns true when the callback had not
// run yet and now never will.
func (t *Timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopLocked()
}

func (t *Timer) stopLocked() bool {
	if t.t == nil {
		return false
	}
	t.t.Stop()
	stopped := t.fired.CompareAndSwap(false, true)
	t.t = nil
	t.fired = nil
	t.ends = time.Time{}
	return stopped
}

// Deadline returns when the armed round ends, if a deadline is armed.
func (t *Timer) Deadline() (time.Time, int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.t == nil {
		return time.Time{}, 0, false
	}
	return t.ends, t.round, true
}
