package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/roach88/cachesync/internal/timer"
)

// Epoch is the start time of every FakeClock. Tests express instants as
// offsets from Epoch so traces stay readable.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// FakeClock is a deterministic timer.Clock for tests.
//
// Time only moves when Advance or AdvanceTo is called. Callbacks that
// become due are run synchronously on the advancing goroutine, in deadline
// order (ties broken by registration order), with the clock set to each
// callback's deadline while it runs.
//
// Thread-safety: All methods are safe for concurrent use. Callbacks run
// without the clock's lock held, so they may call back into the clock.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int64
	timers []*fakeTimer
}

type fakeTimer struct {
	clock  *FakeClock
	when   time.Time
	seq    int64
	fn     func()
	active bool
}

// NewFakeClock creates a FakeClock set to Epoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: Epoch}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Elapsed returns the time since Epoch.
func (c *FakeClock) Elapsed() time.Duration {
	return c.Now().Sub(Epoch)
}

// AfterFunc registers f to run once the clock reaches now+d.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) timer.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &fakeTimer{
		clock:  c,
		when:   c.now.Add(d),
		seq:    c.seq,
		fn:     f,
		active: true,
	}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d, running due callbacks.
func (c *FakeClock) Advance(d time.Duration) {
	c.AdvanceTo(c.Now().Add(d))
}

// AdvanceTo moves the clock to target, running every callback due at or
// before target. Moving backwards is a no-op.
func (c *FakeClock) AdvanceTo(target time.Time) {
	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			if target.After(c.now) {
				c.now = target
			}
			c.mu.Unlock()
			return
		}
		next.active = false
		if next.when.After(c.now) {
			c.now = next.when
		}
		c.mu.Unlock()

		next.fn()
	}
}

// Pending returns the number of registered callbacks that have not run or
// been stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compactLocked()
	return len(c.timers)
}

// NextDeadline returns the deadline of the earliest pending callback.
func (c *FakeClock) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.nextDueLocked(maxTime)
	if next == nil {
		return time.Time{}, false
	}
	return next.when, true
}

var maxTime = time.Unix(1<<62, 0)

func (c *FakeClock) nextDueLocked(target time.Time) *fakeTimer {
	c.compactLocked()
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].when.Equal(c.timers[j].when) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].when.Before(c.timers[j].when)
	})
	if len(c.timers) == 0 || c.timers[0].when.After(target) {
		return nil
	}
	return c.timers[0]
}

func (c *FakeClock) compactLocked() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if t.active {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(c.timers); i++ {
		c.timers[i] = nil
	}
	c.timers = live
}

// Stop deactivates the timer. Returns false if it already ran or was stopped.
func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if !t.active {
		return false
	}
	t.active = false
	return true
}
