// Package runlock provides the mutual exclusion used to serialize saves.
//
// A Lock can be acquired from a plain blocking call site (Lock) and from a
// cancellable one (LockContext). Both styles contend on the same weighted
// semaphore, so mixing them on one Lock never deadlocks: a blocked
// LockContext caller simply waits its turn or gives up when its context ends.
package runlock

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Lock is a mutual-exclusion lock usable from blocking and context-aware
// call sites. The zero value is not usable; use New.
//
// Thread-safety: all methods are safe for concurrent use.
type Lock struct {
	sem *semaphore.Weighted
}

// New creates an unlocked Lock.
func New() *Lock {
	return &Lock{sem: semaphore.NewWeighted(1)}
}

// Lock blocks until the lock is held. For call sites with no context to
// honor, such as startup restore.
func (l *Lock) Lock() {
	// Background never cancels, so Acquire cannot fail.
	_ = l.sem.Acquire(context.Background(), 1)
}

// LockContext blocks until the lock is held or ctx is done.
// On failure the lock is not held and ctx.Err() is returned.
func (l *Lock) LockContext(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// Unlock releases the lock. Panics if the lock is not held.
func (l *Lock) Unlock() {
	l.sem.Release(1)
}

// Do runs fn while holding the lock. The lock is released on every exit
// path, including a panic in fn.
func (l *Lock) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.LockContext(ctx); err != nil {
		return err
	}
	defer l.Unlock()
	return fn(ctx)
}
