package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// errInjected is returned by save attempts listed in fail_saves.
var errInjected = errors.New("injected save failure")

// traceSaver records every save attempt as a trace event.
type traceSaver struct {
	h    *harness
	fail map[int]bool

	mu        sync.Mutex
	attempts  int
	active    int
	maxActive int
}

func newTraceSaver(h *harness, failSaves []int) *traceSaver {
	fail := make(map[int]bool, len(failSaves))
	for _, n := range failSaves {
		fail[n] = true
	}
	return &traceSaver{h: h, fail: fail}
}

func (s *traceSaver) Save(context.Context) error {
	s.mu.Lock()
	s.attempts++
	n := s.attempts
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	s.h.result.SaveTimesMS = append(s.h.result.SaveTimesMS, s.h.clock.Elapsed().Milliseconds())
	if s.fail[n] {
		s.h.result.Failed++
		s.h.record("save", fmt.Sprintf("n=%d error=%v", n, errInjected))
		return errInjected
	}
	s.h.record("save", fmt.Sprintf("n=%d", n))
	return nil
}

func (s *traceSaver) maxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxActive
}
