package timer_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cachesync/internal/testutil"
	"github.com/roach88/cachesync/internal/timer"
)

func TestDeferred_FiresOnceAfterDelay(t *testing.T) {
	clock := testutil.NewFakeClock()
	var fired int
	d := timer.NewDeferred(clock, func() { fired++ })

	d.Schedule(4 * time.Second)
	deadline, ok := d.Deadline()
	require.True(t, ok)
	assert.Equal(t, testutil.Epoch.Add(4*time.Second), deadline)

	clock.Advance(3999 * time.Millisecond)
	assert.Equal(t, 0, fired)

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, fired)
	assert.False(t, d.Pending())

	clock.Advance(time.Minute)
	assert.Equal(t, 1, fired)
}

func TestDeferred_RescheduleReplacesDeadline(t *testing.T) {
	clock := testutil.NewFakeClock()
	var firedAt []time.Duration
	d := timer.NewDeferred(clock, func() { firedAt = append(firedAt, clock.Elapsed()) })

	d.Schedule(4 * time.Second)
	clock.Advance(2 * time.Second)
	d.Schedule(4 * time.Second)

	clock.Advance(10 * time.Second)
	assert.Equal(t, []time.Duration{6 * time.Second}, firedAt)
}

func TestDeferred_ScheduleAt(t *testing.T) {
	clock := testutil.NewFakeClock()
	var firedAt time.Duration
	d := timer.NewDeferred(clock, func() { firedAt = clock.Elapsed() })

	d.ScheduleAt(testutil.Epoch.Add(30 * time.Second))
	clock.Advance(time.Minute)
	assert.Equal(t, 30*time.Second, firedAt)
}

func TestDeferred_StopCancels(t *testing.T) {
	clock := testutil.NewFakeClock()
	var fired int
	d := timer.NewDeferred(clock, func() { fired++ })

	assert.False(t, d.Stop(), "stopping an unarmed timer reports nothing pending")

	d.Schedule(time.Second)
	assert.True(t, d.Stop())
	assert.False(t, d.Stop(), "Stop is idempotent")

	clock.Advance(time.Minute)
	assert.Equal(t, 0, fired)
	_, ok := d.Deadline()
	assert.False(t, ok)
}

func TestDeferred_CanRearmAfterFiring(t *testing.T) {
	clock := testutil.NewFakeClock()
	var fired int
	d := timer.NewDeferred(clock, func() { fired++ })

	d.Schedule(time.Second)
	clock.Advance(time.Second)
	d.Schedule(time.Second)
	clock.Advance(time.Second)

	assert.Equal(t, 2, fired)
}

func TestDeferred_NegativeDelayFiresOnNextAdvance(t *testing.T) {
	clock := testutil.NewFakeClock()
	var fired int
	d := timer.NewDeferred(clock, func() { fired++ })

	d.Schedule(-time.Second)
	clock.Advance(0)
	assert.Equal(t, 1, fired)
}

func TestDeferred_SystemClock(t *testing.T) {
	var fired atomic.Int32
	done := make(chan struct{})
	d := timer.NewDeferred(nil, func() {
		fired.Add(1)
		close(done)
	})

	d.Schedule(5 * time.Millisecond)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("system timer did not fire")
	}
	assert.Equal(t, int32(1), fired.Load())
}
