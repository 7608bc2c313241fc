package persister

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/cachesync/internal/runlock"
	"github.com/roach88/cachesync/internal/timer"
)

// Saver persists the current in-memory content of the artifact.
// It must tolerate being called repeatedly.
type Saver interface {
	Save(ctx context.Context) error
}

// Unit is deferred work a Runner can schedule. *Persister implements it.
type Unit interface {
	ID() string
	Run(ctx context.Context) error
	ShouldFlushOnShutdown() bool
	Dispose()
}

// Runner schedules enlisted units.
type Runner interface {
	// Enlist registers u for later execution. Returns false if the runner
	// is shutting down or otherwise unavailable.
	Enlist(u Unit) bool

	// Ready marks an enlisted unit runnable. Returns false if the runner
	// will not run it, in which case the caller must.
	Ready(u Unit) bool
}

// State is the debounce state of one instance.
type State int

const (
	// StateIdle means enlisted with no timer armed.
	StateIdle State = iota
	// StatePending means a timer is armed.
	StatePending
	// StateReleased is terminal.
	StateReleased
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Persister debounces touches into saves for one epoch of an artifact.
// See the package documentation for the state machine.
type Persister struct {
	id       string
	saver    Saver
	settings *settings
	runLock  *runlock.Lock
	enlist   sync.Once

	mu         sync.Mutex
	released   bool
	runner     Runner
	timer      *timer.Deferred
	firstTouch time.Time
	next       *Persister
}

// New creates the initial, untouched instance for an artifact and enlists
// it with runner. A nil runner, or one that refuses enlistment, yields a
// detached instance whose touches save synchronously.
func New(runner Runner, saver Saver, opts ...Option) *Persister {
	p := newPersister(newSettings(opts), runner, saver)
	p.enlistOnce()
	return p
}

func newPersister(s *settings, runner Runner, saver Saver) *Persister {
	return &Persister{
		id:       s.ids.Generate(),
		saver:    saver,
		settings: s,
		runLock:  runlock.New(),
		runner:   runner,
	}
}

// ID returns the instance ID.
func (p *Persister) ID() string {
	return p.id
}

// Touch records that the artifact content changed and returns the handle
// to use for the next touch. The caller must replace its stored handle
// with the returned one.
//
// The returned error is non-nil only when no runner can schedule the save,
// so Touch saved synchronously and that save failed.
func (p *Persister) Touch(ctx context.Context) (*Persister, error) {
	p.enlistOnce()

	p.mu.Lock()
	if !p.released {
		p.touchLocked(p.settings.clock.Now())
		p.mu.Unlock()
		return p, nil
	}

	if p.runner == nil {
		p.mu.Unlock()
		p.settings.logger.Debug("no runner for released persister, saving now", "persister", p.id)
		return p, p.Run(ctx)
	}

	next := p.next
	if next == nil {
		next = newPersister(p.settings, p.runner, p.saver)
		p.next = next
	}
	p.mu.Unlock()

	return next.Touch(ctx)
}

// touchLocked arms or extends the debounce window. Caller holds p.mu and
// p is not released.
func (p *Persister) touchLocked(now time.Time) {
	if p.timer == nil {
		p.timer = timer.NewDeferred(p.settings.clock, p.onTimer)
		p.firstTouch = now
		p.timer.Schedule(p.settings.wait)
		p.settings.logger.Debug("persister armed", "persister", p.id, "wait", p.settings.wait)
		return
	}

	ceiling := p.firstTouch.Add(p.settings.maxWait)
	if !now.Before(ceiling) {
		return
	}
	deadline := now.Add(p.settings.wait)
	if deadline.After(ceiling) {
		deadline = ceiling
	}
	p.timer.ScheduleAt(deadline)
}

// enlistOnce registers p with its runner. On refusal p becomes released
// and detached.
func (p *Persister) enlistOnce() {
	p.enlist.Do(func() {
		p.mu.Lock()
		runner := p.runner
		p.mu.Unlock()

		if runner != nil && runner.Enlist(p) {
			return
		}

		p.mu.Lock()
		p.released = true
		p.runner = nil
		p.mu.Unlock()

		p.settings.logger.Warn("persister detached, saves will run on the caller",
			"persister", p.id,
			"error", newEnlistError(p.id),
		)
	})
}

// release claims the Released transition. It returns true only for the
// caller that performed it.
func (p *Persister) release() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return false
	}
	p.released = true
	p.firstTouch = time.Time{}
	if p.timer != nil {
		p.timer.Stop()
	}
	return true
}

func (p *Persister) onTimer() {
	if !p.release() {
		return
	}

	p.mu.Lock()
	runner := p.runner
	p.mu.Unlock()

	if runner != nil && runner.Ready(p) {
		return
	}

	p.settings.logger.Warn("runner unavailable, saving on timer goroutine", "persister", p.id)
	if err := p.Run(context.Background()); err != nil {
		p.settings.logger.Error("save failed", "persister", p.id, "error", err)
	}
}

// Run saves the artifact. It releases the instance, waits for any other
// in-flight Run of this instance, then calls the Saver once.
//
// A second concurrent Run does not short-circuit: it saves again after the
// first completes, since content may have changed while the first ran.
// ctx bounds both the wait for the run lock and the save itself. A save
// that has started is never interrupted by Dispose.
func (p *Persister) Run(ctx context.Context) error {
	p.release()

	saving := false
	err := p.runLock.Do(ctx, func(ctx context.Context) error {
		saving = true
		start := p.settings.clock.Now()
		if err := p.saver.Save(ctx); err != nil {
			return err
		}
		p.settings.logger.Debug("artifact saved",
			"persister", p.id,
			"duration", p.settings.clock.Now().Sub(start),
		)
		return nil
	})
	switch {
	case err == nil:
		return nil
	case !saving:
		return newCancelledError(p.id, err)
	default:
		return newSaveError(p.id, err)
	}
}

// ShouldFlushOnShutdown reports whether a timer was ever armed, i.e. a
// write is or was pending and must not be lost at shutdown.
func (p *Persister) ShouldFlushOnShutdown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

// Dispose cancels the timer if armed and releases the instance. Idempotent.
// A pending write is dropped unless the runner flushes it; a later Touch
// on this handle rotates to a successor, which saves immediately if the
// runner no longer accepts units.
func (p *Persister) Dispose() {
	p.release()
}

// State returns the current debounce state.
func (p *Persister) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.released:
		return StateReleased
	case p.timer != nil:
		return StatePending
	default:
		return StateIdle
	}
}

// Released reports whether the instance reached its terminal state.
func (p *Persister) Released() bool {
	return p.State() == StateReleased
}

// Detached reports whether no runner will ever schedule this instance.
func (p *Persister) Detached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runner == nil
}

// Deadline returns when the armed timer will fire.
func (p *Persister) Deadline() (time.Time, bool) {
	p.mu.Lock()
	t := p.timer
	p.mu.Unlock()
	if t == nil {
		return time.Time{}, false
	}
	return t.Deadline()
}
