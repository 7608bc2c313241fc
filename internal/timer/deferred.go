package timer

import (
	"sync"
	"time"
)

// Deferred runs a callback once after a delay, and can be rescheduled or
// cancelled any number of times before it fires.
//
// Each Schedule starts a new generation. A callback from an older
// generation that was already in flight when Schedule or Stop ran is
// discarded, so fn runs at most once per generation and never for a
// cancelled one.
//
// Thread-safety: all methods are safe for concurrent use. fn is invoked
// without any Deferred lock held.
type Deferred struct {
	clock Clock
	fn    func()

	mu       sync.Mutex
	gen      uint64
	pending  Timer
	deadline time.Time
}

// NewDeferred creates an unarmed Deferred that calls fn when it fires.
func NewDeferred(clock Clock, fn func()) *Deferred {
	if clock == nil {
		clock = System{}
	}
	return &Deferred{clock: clock, fn: fn}
}

// Schedule arms the timer to fire after delay, replacing any pending
// deadline. A non-positive delay fires as soon as the clock allows.
func (d *Deferred) Schedule(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		d.pending.Stop()
	}
	d.gen++
	gen := d.gen
	d.deadline = d.clock.Now().Add(delay)
	d.pending = d.clock.AfterFunc(delay, func() { d.fire(gen) })
}

// ScheduleAt arms the timer to fire at deadline.
func (d *Deferred) ScheduleAt(deadline time.Time) {
	d.Schedule(deadline.Sub(d.clock.Now()))
}

// Stop cancels the pending deadline. It reports whether a deadline was
// pending. Safe to call on a timer that was never armed.
func (d *Deferred) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending == nil {
		return false
	}
	d.pending.Stop()
	d.pending = nil
	d.deadline = time.Time{}
	d.gen++
	return true
}

// Deadline returns the pending fire time, if any.
func (d *Deferred) Deadline() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deadline, d.pending != nil
}

// Pending reports whether the timer is armed and has not fired.
func (d *Deferred) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

func (d *Deferred) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	d.pending = nil
	d.deadline = time.Time{}
	d.mu.Unlock()

	d.fn()
}
