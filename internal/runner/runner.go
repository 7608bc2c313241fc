package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/cachesync/internal/persister"
)

// Reason records why a unit was executed.
type Reason string

const (
	// ReasonReady means the unit's timer fired.
	ReasonReady Reason = "ready"
	// ReasonShutdown means the unit was flushed by Shutdown.
	ReasonShutdown Reason = "shutdown"
)

// Stats summarizes runner activity.
type Stats struct {
	Enlisted int64 // units ever enlisted
	Pending  int   // units enlisted and not yet executed
	Ran      int64 // executions that succeeded
	Failed   int64 // executions that failed after any retries
}

// Runner schedules persister units.
//
// Thread-safety model:
//   - Enlist(), Ready(), Pending(), Stats(): safe from any goroutine
//   - Run(): call from exactly one goroutine
//   - Shutdown(): safe from any goroutine; only the first call sweeps
type Runner struct {
	queue      *unitQueue
	seq        sequence
	logger     *slog.Logger
	tracer     trace.Tracer
	newBackOff func() backoff.BackOff

	mu       sync.Mutex
	enlisted map[persister.Unit]int64
	swept    map[persister.Unit]struct{} // claimed by the shutdown sweep
	closed   bool
	inflight sync.WaitGroup

	ran    atomic.Int64
	failed atomic.Int64
}

var _ persister.Runner = (*Runner)(nil)

// New creates a Runner. Options can set the logger, tracer and retry policy.
func New(opts ...Option) *Runner {
	r := &Runner{
		queue:    newUnitQueue(),
		logger:   slog.Default(),
		tracer:   defaultTracer(),
		enlisted: make(map[persister.Unit]int64),
		swept:    make(map[persister.Unit]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enlist registers u. Returns false once Shutdown has begun.
// Enlisting an already enlisted unit is a no-op that returns true.
func (r *Runner) Enlist(u persister.Unit) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.logger.Debug("enlistment refused: runner shutting down", "unit", u.ID())
		return false
	}
	if _, ok := r.enlisted[u]; ok {
		return true
	}
	r.enlisted[u] = r.seq.Next()
	return true
}

// Ready marks an enlisted unit runnable. It returns false if nothing here
// will run u, in which case the caller must.
//
// Once Shutdown has begun, Ready returns true only for units the sweep
// still holds or has claimed: those are flushed by the sweep.
func (r *Runner) Ready(u persister.Unit) bool {
	r.mu.Lock()
	_, ok := r.enlisted[u]
	_, swept := r.swept[u]
	closed := r.closed
	r.mu.Unlock()

	if closed {
		return ok || swept
	}
	if !ok {
		return false
	}
	// A failed enqueue means Shutdown closed the queue after the check
	// above; u is still enlisted, so the sweep will run it.
	r.queue.Enqueue(u)
	return true
}

// Pending returns the number of enlisted units not yet executed.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.enlisted)
}

// Stats returns a snapshot of runner counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Enlisted: r.seq.Current(),
		Pending:  r.Pending(),
		Ran:      r.ran.Load(),
		Failed:   r.failed.Load(),
	}
}

// Run executes runnable units until ctx is cancelled or Shutdown closes
// the queue. Unit failures are logged and do not stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("runner starting")

	for {
		if u, ok := r.queue.TryDequeue(); ok {
			r.dispatch(ctx, u)
			continue
		}

		select {
		case <-ctx.Done():
			r.logger.Info("runner stopping: context cancelled")
			return ctx.Err()

		case <-r.queue.Wait():
			// The signal channel is closed with the queue, so this case
			// fires immediately once Shutdown has begun.
			if r.queue.Closed() && r.queue.Len() == 0 {
				r.logger.Info("runner stopping: queue closed")
				return nil
			}
		}
	}
}

// Drain executes every queued unit on the calling goroutine and returns
// how many were taken from the queue. It must not be called while Run is
// active. Deterministic tests use it in place of Run.
func (r *Runner) Drain(ctx context.Context) int {
	n := 0
	for {
		u, ok := r.queue.TryDequeue()
		if !ok {
			return n
		}
		n++
		r.dispatch(ctx, u)
	}
}

// dispatch claims and executes a unit taken from the queue.
func (r *Runner) dispatch(ctx context.Context, u persister.Unit) {
	r.mu.Lock()
	if r.closed {
		// The shutdown sweep owns every remaining unit.
		r.mu.Unlock()
		return
	}
	if _, ok := r.enlisted[u]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.enlisted, u)
	r.inflight.Add(1)
	r.mu.Unlock()

	defer r.inflight.Done()
	_ = r.execute(ctx, u, ReasonReady)
}

// claim moves u from the enlisted set to the swept set. Returns false if
// another path already took it.
func (r *Runner) claim(u persister.Unit) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.enlisted[u]; !ok {
		return false
	}
	delete(r.enlisted, u)
	r.swept[u] = struct{}{}
	return true
}

// Shutdown stops accepting units and flushes every enlisted unit that has
// a pending write. It returns the joined flush errors. If ctx ends before
// the sweep finishes, the remaining flushes are abandoned and reported.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.queue.Close()
	r.inflight.Wait()

	units := r.sweepOrder()
	r.logger.Info("runner shutting down", "enlisted", len(units))

	var errs []error
	flushed := 0
	for _, u := range units {
		if !r.claim(u) {
			continue
		}
		if !u.ShouldFlushOnShutdown() {
			// Dispose releases u, so a later touch rotates to a successor
			// that saves on the caller. A touch that landed before Dispose
			// armed the timer and is flushed below.
			u.Dispose()
			if !u.ShouldFlushOnShutdown() {
				continue
			}
		}
		if err := ctx.Err(); err != nil {
			r.logger.Error("shutdown flush abandoned", "unit", u.ID(), "error", err)
			errs = append(errs, fmt.Errorf("flush %s: %w", u.ID(), err))
			u.Dispose()
			continue
		}
		if err := r.execute(ctx, u, ReasonShutdown); err != nil {
			errs = append(errs, err)
		}
		flushed++
	}

	r.logger.Info("runner shut down", "flushed", flushed, "failed", len(errs))
	return errors.Join(errs...)
}

// sweepOrder returns the enlisted units oldest first.
func (r *Runner) sweepOrder() []persister.Unit {
	r.mu.Lock()
	defer r.mu.Unlock()

	units := make([]persister.Unit, 0, len(r.enlisted))
	for u := range r.enlisted {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool {
		return r.enlisted[units[i]] < r.enlisted[units[j]]
	})
	return units
}

// execute runs a claimed unit under a span, applying the retry policy,
// then disposes it.
func (r *Runner) execute(ctx context.Context, u persister.Unit, reason Reason) error {
	ctx, span := r.tracer.Start(ctx, "cachesync.unit.run", trace.WithAttributes(
		attribute.String("cachesync.unit.id", u.ID()),
		attribute.String("cachesync.unit.reason", string(reason)),
	))
	defer span.End()

	attempts := 0
	op := func() error {
		attempts++
		err := u.Run(ctx)
		if err != nil && persister.IsCancelled(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var err error
	if r.newBackOff == nil {
		err = op()
	} else {
		err = backoff.Retry(op, backoff.WithContext(r.newBackOff(), ctx))
	}
	u.Dispose()

	span.SetAttributes(attribute.Int("cachesync.unit.attempts", attempts))
	if err != nil {
		r.failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("unit failed",
			"unit", u.ID(),
			"reason", reason,
			"attempts", attempts,
			"error", err,
		)
		return err
	}

	r.ran.Add(1)
	r.logger.Info("unit ran",
		"unit", u.ID(),
		"reason", reason,
		"attempts", attempts,
	)
	return nil
}
