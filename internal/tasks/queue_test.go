package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue()
	q.Enqueue("t1")
	q.Enqueue("t2")
	q.Enqueue("t3")

	id, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "t1", id)

	assert.Equal(t, 2, q.Size())
}

func TestQueueReturnToFrontPrepends(t *testing.T) {
	q := NewQueue()
	q.Enqueue("t1")
	q.Enqueue("t2")

	id, _ := q.Dequeue()
	assert.Equal(t, "t1", id)

	q.ReturnToFront(id)

	next, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "t1", next)
}

func TestQueueDequeueEmpty(t *testing.T) {
	q := NewQueue()
	assert.True(t, q.IsEmpty())

	_, ok := q.Dequeue()
	assert.False(t, ok)
}

// TestQueueTaskConservation verifies no task id is lost or duplicated
// across an enqueue/dequeue cycle.
func TestQueueTaskConservation(t *testing.T) {
	q := NewQueue()
	ids := []string{"t1", "t2", "t3", "t4", "t5"}
	for _, id := range ids {
		q.Enqueue(id)
	}

	seen := map[string]bool{}
	for {
		id, ok := q.Dequeue()
		if !ok {
			break
		}
		assert.False(t, seen[id], "task %s dequeued twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, len(ids))
}
