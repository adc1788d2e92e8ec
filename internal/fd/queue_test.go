package fd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueOrdersByPriorityThenCreationTime(t *testing.T) {
	q := NewQueue()
	_, err := q.Enqueue("5_1700000100_00001_aaaa", "host1")
	require.NoError(t, err)
	_, err = q.Enqueue("0_1700000200_00002_bbbb", "host1")
	require.NoError(t, err)
	_, err = q.Enqueue("5_1700000050_00003_cccc", "host1")
	require.NoError(t, err)

	ordered := q.PeekOrdered()
	require.Len(t, ordered, 3)
	require.Equal(t, byte('0'), ordered[0].Priority)
	require.Equal(t, "bbbb", ordered[0].JobID)
	require.Equal(t, "cccc", ordered[1].JobID) // priority 5, earlier creation time
	require.Equal(t, "aaaa", ordered[2].JobID)
}

func TestQueueRejectsDuplicateName(t *testing.T) {
	q := NewQueue()
	_, err := q.Enqueue("5_1700000100_00001_aaaa", "host1")
	require.NoError(t, err)
	_, err = q.Enqueue("5_1700000100_00001_aaaa", "host1")
	require.Error(t, err)
}

func TestQueueRemoveAndGet(t *testing.T) {
	q := NewQueue()
	_, err := q.Enqueue("5_1700000100_00001_aaaa", "host1")
	require.NoError(t, err)

	_, ok := q.Get("5_1700000100_00001_aaaa")
	require.True(t, ok)

	require.True(t, q.Remove("5_1700000100_00001_aaaa"))
	require.False(t, q.Remove("5_1700000100_00001_aaaa"))

	require.Equal(t, 0, q.Len())
}

// TestQueueEmptyBoundaryB1 is boundary behavior B1: an empty queue's
// ordered view is empty and never panics.
func TestQueueEmptyBoundaryB1(t *testing.T) {
	q := NewQueue()
	require.Empty(t, q.PeekOrdered())
	require.Equal(t, 0, q.Len())
}
