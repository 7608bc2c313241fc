package runner

import "sync/atomic"

// sequence is a monotonic logical clock that stamps enlistments, so the
// shutdown sweep flushes older epochs before newer ones regardless of
// wall-clock resolution.
//
// Thread-safety: safe for concurrent use (atomic operations).
type sequence struct {
	seq atomic.Int64
}

// Next returns the next sequence number.
func (s *sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last issued number without incrementing.
func (s *sequence) Current() int64 {
	return s.seq.Load()
}
