package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/cachesync/internal/timer"
)

// RecordingSaver is a persister.Saver that records every call.
//
// It tracks how many saves were in flight at once so tests can assert that
// saves never overlap, and can be told to fail or to hold each save open.
//
// Thread-safety: All methods are safe for concurrent use.
type RecordingSaver struct {
	clock timer.Clock

	mu        sync.Mutex
	times     []time.Time
	active    int
	maxActive int
	failures  []error
	hold      time.Duration
	gate      chan struct{}
}

// NewRecordingSaver creates a saver that stamps saves with clock.
// A nil clock uses wall time.
func NewRecordingSaver(clock timer.Clock) *RecordingSaver {
	if clock == nil {
		clock = timer.System{}
	}
	return &RecordingSaver{clock: clock}
}

// Save records the call. It returns the next queued failure, if any.
func (s *RecordingSaver) Save(ctx context.Context) error {
	s.mu.Lock()
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	hold := s.hold
	gate := s.gate
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if hold > 0 {
		time.Sleep(hold)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.times = append(s.times, s.clock.Now())
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return err
	}
	return nil
}

// FailNext queues errors returned by the next saves, in order.
func (s *RecordingSaver) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Hold makes every save sleep for d before completing.
func (s *RecordingSaver) Hold(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = d
}

// Gate makes every save block until the returned channel is closed.
func (s *RecordingSaver) Gate() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	return s.gate
}

// Count returns the number of completed saves (successful or failed).
func (s *RecordingSaver) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.times)
}

// Times returns the clock reading at the end of each save.
func (s *RecordingSaver) Times() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Time, len(s.times))
	copy(out, s.times)
	return out
}

// Active returns the number of saves currently in flight.
func (s *RecordingSaver) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// MaxConcurrent returns the largest number of saves ever in flight at once.
func (s *RecordingSaver) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxActive
}
