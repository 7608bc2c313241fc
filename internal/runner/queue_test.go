package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitQueue_FIFO(t *testing.T) {
	q := newUnitQueue()

	for _, id := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(newStubUnit(id, true)))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"A", "B", "C"} {
		u, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, u.ID())
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestUnitQueue_EnqueueAfterClose(t *testing.T) {
	q := newUnitQueue()
	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(newStubUnit("late", true)))

	select {
	case <-q.Wait():
	default:
		t.Fatal("Wait channel should be closed after Close")
	}
}

func TestUnitQueue_SignalCoalesces(t *testing.T) {
	q := newUnitQueue()
	q.Enqueue(newStubUnit("A", true))
	q.Enqueue(newStubUnit("B", true))

	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce into one")
	default:
	}
	assert.Equal(t, 2, q.Len())
}
