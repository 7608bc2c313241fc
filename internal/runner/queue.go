package runner

import (
	"sync"

	"github.com/roach88/cachesync/internal/persister"
)

// unitQueue is a thread-safe FIFO queue of runnable units.
//
// The queue is unbounded so Ready never blocks a timer goroutine.
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type unitQueue struct {
	mu     sync.Mutex
	units  []persister.Unit
	closed bool
	signal chan struct{} // Signals availability (buffered, size 1)
}

func newUnitQueue() *unitQueue {
	return &unitQueue{
		units:  make([]persister.Unit, 0, 8),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a unit to the back of the queue.
// Returns false if the queue is closed.
func (q *unitQueue) Enqueue(u persister.Unit) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.units = append(q.units, u)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front unit without blocking.
func (q *unitQueue) TryDequeue() (persister.Unit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.units) == 0 {
		return nil, false
	}

	u := q.units[0]
	// Nil out the slot so the backing array does not retain the unit.
	q.units[0] = nil
	if len(q.units) == 1 {
		q.units = q.units[:0]
	} else {
		q.units = q.units[1:]
	}

	return u, true
}

// Wait returns a channel that signals when units may be available.
// It is closed when the queue is closed.
func (q *unitQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *unitQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.units)
}

// Closed reports whether Close was called.
func (q *unitQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops further enqueues and wakes all waiters.
func (q *unitQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
