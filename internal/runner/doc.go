// Package runner is the work queue that schedules persister units.
//
// ARCHITECTURE:
//
// Units are enlisted once and executed at most once unless re-enlisted.
// A unit becomes runnable when its debounce timer fires (Ready); the Run
// loop dequeues runnable units in FIFO order and executes them on its own
// goroutine.
//
// Claiming: every execution path (Run loop, shutdown sweep) removes the
// unit from the enlisted set under the runner lock before running it, so a
// unit that is both queued and swept still runs once.
//
// Shutdown:
//  1. Refuse new enlistments and close the queue
//  2. Wait for in-flight executions
//  3. Sweep remaining enlisted units in enlistment order: run those whose
//     ShouldFlushOnShutdown is true, then Dispose every unit
//
// Units are disposed only after they were flushed, so a pending write is
// never cancelled ahead of the flush. An idle unit is disposed first and
// checked again, so a touch that raced the sweep is still flushed.
//
// After Shutdown, Ready accepts only units the sweep holds or has claimed.
// Any other unit is told to run itself.
//
// ERROR HANDLING: a failed unit is logged, recorded on its span and counted
// ("log and continue"). An optional backoff policy retries failed saves;
// the persister itself never retries.
package runner
