package tasks

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ingestor/internal/errs"
	"github.com/codeready-toolchain/ingestor/internal/model"
)

func newTask(batchID, taskID string) model.ScrapingTask {
	return model.ScrapingTask{TaskID: taskID, BatchID: batchID, LinkID: taskID, URL: "http://example.com/" + taskID}
}

func TestTrackerRegisterDuplicateRejected(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Register(newTask("b1", "t1")))

	err := tr.Register(newTask("b1", "t1"))
	assert.True(t, errs.Is(err, errs.CodeDuplicateTaskID))
}

func TestTrackerTransitionRejectsWrongFromState(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Register(newTask("b1", "t1")))

	// Can't complete a task that hasn't started.
	err := tr.MarkCompleted("t1", "ok", "path")
	assert.True(t, errs.Is(err, errs.CodeStateMismatch))

	require.NoError(t, tr.MarkStarted("t1", "worker-1"))
	require.NoError(t, tr.MarkCompleted("t1", "ok", "path"))

	task, ok := tr.Get("t1")
	require.True(t, ok)
	assert.Equal(t, model.TaskCompleted, task.Status)
	assert.Equal(t, "path", task.ArtifactPath)
}

func TestTrackerStatisticsComputedOnRead(t *testing.T) {
	tr := NewTracker()
	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, tr.Register(newTask("b1", id)))
	}
	require.NoError(t, tr.MarkStarted("t1", "w1"))
	require.NoError(t, tr.MarkCompleted("t1", "ok", "p1"))
	require.NoError(t, tr.MarkStarted("t2", "w1"))
	require.NoError(t, tr.MarkFailed("t2", "boom"))

	bp := tr.Statistics("b1", 3)
	assert.Equal(t, 3, bp.RegisteredCount)
	assert.Equal(t, 1, bp.Completed)
	assert.Equal(t, 1, bp.Failed)
	assert.Equal(t, 1, bp.Pending)
	assert.False(t, bp.IsComplete)

	require.NoError(t, tr.MarkStarted("t3", "w1"))
	require.NoError(t, tr.MarkCompleted("t3", "ok", "p3"))

	bp = tr.Statistics("b1", 3)
	assert.True(t, bp.IsComplete)
	assert.True(t, bp.CanProceed)
	assert.Equal(t, 1.0, bp.CompletionRate)
}

// TestTrackerExpectedTotalZeroRecoveryPath covers the recovery
// path: when the caller never learned the final expected count (0), the
// batch is judged complete once every currently-registered task reaches a
// terminal state, instead of waiting forever for an unreachable target.
func TestTrackerExpectedTotalZeroRecoveryPath(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Register(newTask("b1", "t1")))
	require.NoError(t, tr.MarkStarted("t1", "w1"))
	require.NoError(t, tr.MarkCompleted("t1", "ok", "p1"))

	bp := tr.Statistics("b1", 0)
	assert.True(t, bp.IsComplete)
}

// TestTrackerCompletionRateExcludesCancelled asserts cancelled tasks count
// toward the denominator (registered) but never the numerator, and that
// the denominator is the max of expected_total and registered_count, not
// whichever is nonzero first.
func TestTrackerCompletionRateExcludesCancelled(t *testing.T) {
	tr := NewTracker()
	for _, id := range []string{"t1", "t2", "t3", "t4"} {
		require.NoError(t, tr.Register(newTask("b1", id)))
	}
	require.NoError(t, tr.MarkStarted("t1", "w1"))
	require.NoError(t, tr.MarkCompleted("t1", "ok", "p1"))
	require.NoError(t, tr.Cancel("t2"))
	require.NoError(t, tr.Cancel("t3"))

	// expected_total (2) is less than registered_count (4): denominator
	// must still be the max, 4, not the expected_total.
	bp := tr.Statistics("b1", 2)
	assert.Equal(t, 1, bp.Completed)
	assert.Equal(t, 2, bp.Cancelled)
	assert.Equal(t, 0.25, bp.CompletionRate, "cancelled tasks must not count toward the numerator")
}

// TestTrackerNoDoubleAssignment stresses concurrent Transition calls
// against the same task id, behind a barrier, verifying exactly one
// caller ever observes success.
func TestTrackerNoDoubleAssignment(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Register(newTask("b1", "t1")))

	const n = 50
	var wg sync.WaitGroup
	var successes int
	var mu sync.Mutex
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if err := tr.MarkStarted("t1", "worker"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
}
