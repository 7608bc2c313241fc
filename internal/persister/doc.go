// Package persister implements the debounce state machine that turns
// frequent "content changed" touches into infrequent, serialized saves of a
// single artifact.
//
// LIFECYCLE:
//
// A Persister moves through three states:
//
//	Idle     enlisted with a Runner, no timer armed
//	Pending  timer armed, first-touch time recorded
//	Released terminal; the save is running, ran, or will run via the Runner
//
// Touch arms the timer (Idle -> Pending) or pushes it out by the wait
// quantum (Pending), but never past firstTouch+MaxWait. When the timer
// fires the instance is released and handed to the Runner, which calls Run.
//
// HANDLE ROTATION:
//
// A released instance cannot be re-armed. Touching it creates (once) an
// enlisted successor and touches that instead, so Touch may return a
// different *Persister than it was called on. Callers must store the
// returned handle; Cell does this for them.
//
// CONCURRENCY:
//
// State flags are guarded by a short mutex that is never held across I/O,
// Runner calls, or the run lock. Saves are serialized per instance by a
// separate run lock (see package runlock). Release is a single idempotent
// claim shared by the timer path and Run, so the Idle/Pending -> Released
// transition happens exactly once whatever the race order.
//
// When no Runner will ever schedule an instance (enlistment refused, or the
// runner has shut down), the save runs synchronously on the goroutine that
// needed it rather than being dropped.
package persister
