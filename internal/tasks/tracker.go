// Package tasks implements the Task State Tracker (C2) and Task Queue
// (C3). Each is guarded by a single lock: the Tracker is a map+RWMutex
// registry scaled down from sessions to scraping tasks, the Queue a
// mutex-guarded slice.
package tasks

import (
	"sync"
	"time"

	"github.com/codeready-toolchain/ingestor/internal/errs"
	"github.com/codeready-toolchain/ingestor/internal/model"
)

// Tracker owns every ScrapingTask's canonical state. All reads return
// Clone()d copies; callers never hold a pointer into the tracker's map.
type Tracker struct {
	mu    sync.RWMutex
	tasks map[string]*model.ScrapingTask
	byBatch map[string][]string // batch_id -> ordered task ids, insertion order
}

func NewTracker() *Tracker {
	return &Tracker{
		tasks:   make(map[string]*model.ScrapingTask),
		byBatch: make(map[string][]string),
	}
}

// Register adds a new task in Pending status. Returns errs.ErrDuplicateTaskID
// if task.TaskID already exists ("task ids are unique within a
// batch; registering a duplicate is rejected, not overwritten").
func (t *Tracker) Register(task model.ScrapingTask) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.tasks[task.TaskID]; exists {
		return errs.New(errs.CodeDuplicateTaskID, "C2", errs.ErrDuplicateTaskID)
	}
	task.Status = model.TaskPending
	cp := task
	t.tasks[task.TaskID] = &cp
	t.byBatch[task.BatchID] = append(t.byBatch[task.BatchID], task.TaskID)
	return nil
}

// Transition performs a compare-and-swap style move: it only applies if the
// task's current status equals from, returning errs.ErrStateMismatch
// otherwise (status DAG is enforced here, not by callers).
func (t *Tracker) Transition(taskID string, from, to model.TaskStatus, mutate func(*model.ScrapingTask)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[taskID]
	if !ok {
		return errs.New(errs.CodeStateMismatch, "C2", errs.ErrStateMismatch)
	}
	if task.Status != from {
		return errs.New(errs.CodeStateMismatch, "C2", errs.ErrStateMismatch)
	}
	switch {
	case from == model.TaskPending && (to == model.TaskProcessing || to == model.TaskCancelled):
	case from == model.TaskProcessing && (to == model.TaskCompleted || to == model.TaskFailed):
	default:
		return errs.New(errs.CodeStateMismatch, "C2", errs.ErrStateMismatch)
	}
	task.Status = to
	if mutate != nil {
		mutate(task)
	}
	return nil
}

// Get returns a copy of the task, or false if unknown.
func (t *Tracker) Get(taskID string) (model.ScrapingTask, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	task, ok := t.tasks[taskID]
	if !ok {
		return model.ScrapingTask{}, false
	}
	return task.Clone(), true
}

// ListByBatch returns copies of every task registered for batchID, in
// registration order.
func (t *Tracker) ListByBatch(batchID string) []model.ScrapingTask {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := t.byBatch[batchID]
	out := make([]model.ScrapingTask, 0, len(ids))
	for _, id := range ids {
		if task, ok := t.tasks[id]; ok {
			out = append(out, task.Clone())
		}
	}
	return out
}

// Statistics computes BatchProgress from the current task snapshot
// ("computed on read, no derived counters stored").
func (t *Tracker) Statistics(batchID string, expectedTotal int) model.BatchProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	bp := model.BatchProgress{ExpectedTotal: expectedTotal}
	ids := t.byBatch[batchID]
	bp.RegisteredCount = len(ids)
	for _, id := range ids {
		task, ok := t.tasks[id]
		if !ok {
			continue
		}
		switch task.Status {
		case model.TaskCompleted:
			bp.Completed++
		case model.TaskFailed:
			bp.Failed++
		case model.TaskProcessing:
			bp.InProgress++
		case model.TaskPending:
			bp.Pending++
		case model.TaskCancelled:
			bp.Cancelled++
		}
	}
	denom := expectedTotal
	if bp.RegisteredCount > denom {
		denom = bp.RegisteredCount
	}
	if denom > 0 {
		bp.CompletionRate = float64(bp.Completed+bp.Failed) / float64(denom)
	}
	// CanProceed/IsComplete: every registered task has reached a terminal
	// status, and registration matches what the caller expected (or, on
	// the expected_total==0 recovery path, at least one task is
	// registered; the registered count is then the only target).
	allTerminal := true
	for _, id := range ids {
		task, ok := t.tasks[id]
		if !ok || !task.Status.IsTerminal() {
			allTerminal = false
			break
		}
	}
	bp.IsComplete = allTerminal && bp.RegisteredCount > 0 && (expectedTotal == 0 || bp.RegisteredCount >= expectedTotal)
	bp.CanProceed = bp.IsComplete
	return bp
}

// MarkStarted transitions Pending -> Processing and stamps StartedAt plus
// the assigned worker id, atomically with the status change.
func (t *Tracker) MarkStarted(taskID, workerID string) error {
	now := time.Now().UTC()
	return t.Transition(taskID, model.TaskPending, model.TaskProcessing, func(task *model.ScrapingTask) {
		task.AssignedWorkerID = workerID
		task.StartedAt = &now
	})
}

// MarkCompleted transitions Processing -> Completed.
func (t *Tracker) MarkCompleted(taskID, result, artifactPath string) error {
	now := time.Now().UTC()
	return t.Transition(taskID, model.TaskProcessing, model.TaskCompleted, func(task *model.ScrapingTask) {
		task.Result = result
		task.ArtifactPath = artifactPath
		task.CompletedAt = &now
	})
}

// MarkFailed transitions Processing -> Failed.
func (t *Tracker) MarkFailed(taskID, errMsg string) error {
	now := time.Now().UTC()
	return t.Transition(taskID, model.TaskProcessing, model.TaskFailed, func(task *model.ScrapingTask) {
		task.Error = errMsg
		task.CompletedAt = &now
	})
}

// Cancel moves a Pending task to Cancelled. A task in any other status
// (including Processing, which is left to finish) is unchanged and
// errs.ErrStateMismatch is returned.
func (t *Tracker) Cancel(taskID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[taskID]
	if !ok {
		return errs.New(errs.CodeStateMismatch, "C2", errs.ErrStateMismatch)
	}
	if task.Status != model.TaskPending {
		return errs.New(errs.CodeStateMismatch, "C2", errs.ErrStateMismatch)
	}
	task.Status = model.TaskCancelled
	now := time.Now().UTC()
	task.CompletedAt = &now
	return nil
}
