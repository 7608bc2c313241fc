// Package timer provides the cancellable, reschedulable one-shot delay used
// to implement a debounce window.
//
// Time is read through the Clock interface so callers can substitute a
// deterministic clock in tests (see testutil.FakeClock).
package timer

import "time"

// Clock is a source of wall time and delayed callbacks.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f on its own goroutine after d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc callback.
type Timer interface {
	// Stop prevents the callback from running. It returns false if the
	// callback already ran or the timer was already stopped.
	Stop() bool
}

// System is the Clock backed by the time package.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time {
	return time.Now()
}

// AfterFunc wraps time.AfterFunc.
func (System) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
