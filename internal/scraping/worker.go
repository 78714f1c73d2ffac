package scraping

import (
	"context"
	"sync"
	"time"

	"github.com/codeready-toolchain/ingestor/internal/eventbus"
	"github.com/codeready-toolchain/ingestor/internal/model"
)

const maxAssignAttempts = 3 // bounded retry

type worker struct {
	id   string
	pool *Pool

	mu             sync.Mutex
	state          model.WorkerState
	currentTaskID  string
	tasksCompleted int
	tasksFailed    int
	lastActivity   time.Time
}

func (w *worker) health() model.WorkerHealth {
	w.mu.Lock()
	defer w.mu.Unlock()
	return model.WorkerHealth{
		WorkerID:       w.id,
		State:          w.state,
		CurrentTaskID:  w.currentTaskID,
		TasksCompleted: w.tasksCompleted,
		TasksFailed:    w.tasksFailed,
		LastActivity:   w.lastActivity,
	}
}

// runSupervised runs the worker loop and, if it panics, records the
// failure and respawns a replacement worker under a new id so the pool
// never drops below its configured size.
func (w *worker) runSupervised(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.pool.log.Error("scraping worker panicked, replacing", "worker_id", w.id, "panic", r)
			w.pool.mu.Lock()
			delete(w.pool.workers, w.id)
			w.pool.mu.Unlock()
			select {
			case <-w.pool.stopCh:
			default:
				w.pool.wg.Add(1)
				go func() {
					defer w.pool.wg.Done()
					replacement := &worker{id: w.id + "-r", pool: w.pool}
					w.pool.mu.Lock()
					w.pool.workers[replacement.id] = replacement
					w.pool.mu.Unlock()
					replacement.runSupervised(ctx)
				}()
			}
		}
	}()
	w.run(ctx)
}

func (w *worker) run(ctx context.Context) {
	w.setState(model.WorkerIdle, "")
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.pool.stopCh:
			return
		default:
		}

		task, ok := w.claimNext(ctx)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-w.pool.stopCh:
				return
			case <-time.After(w.pool.cfg.QueueCheckInterval):
			}
			continue
		}

		w.process(ctx, task)
	}
}

// claimNext implements the bounded-retry assignment algorithm: under the
// pool's single assignment lock it dequeues a task id and attempts the
// Pending->Processing transition. An id that is unknown, belongs to a
// cancelled batch, or fails the transition (already claimed or no longer
// Pending) is discarded and the next id is tried; after maxAssignAttempts
// discarded ids it returns no assignment for this pass.
func (w *worker) claimNext(ctx context.Context) (model.ScrapingTask, bool) {
	for attempt := 0; attempt < maxAssignAttempts; attempt++ {
		w.pool.assignMu.Lock()
		taskID, ok := w.pool.queue.Dequeue()
		if !ok {
			w.pool.assignMu.Unlock()
			return model.ScrapingTask{}, false
		}

		task, found := w.pool.tracker.Get(taskID)
		if !found {
			w.pool.assignMu.Unlock()
			continue
		}
		if w.pool.isCancelled(task.BatchID) {
			_ = w.pool.tracker.Cancel(taskID)
			w.pool.assignMu.Unlock()
			continue
		}
		if err := w.pool.tracker.MarkStarted(taskID, w.id); err != nil {
			// Lost the race or task already left Pending; the queue
			// entry is simply discarded, never returned to front, since
			// re-delivering an already-claimed id would only risk a
			// double assignment this lock exists to prevent.
			w.pool.assignMu.Unlock()
			continue
		}
		w.pool.assignMu.Unlock()

		task.Status = model.TaskProcessing
		task.AssignedWorkerID = w.id
		return task, true
	}
	return model.ScrapingTask{}, false
}

func (w *worker) setState(state model.WorkerState, taskID string) {
	w.mu.Lock()
	w.state = state
	w.currentTaskID = taskID
	w.lastActivity = time.Now().UTC()
	w.mu.Unlock()
}

func (w *worker) process(ctx context.Context, task model.ScrapingTask) {
	w.setState(model.WorkerProcessing, task.TaskID)
	defer w.setState(model.WorkerIdle, "")

	_ = w.pool.bus.Publish(task.BatchID, eventbus.KindScrapeProgress, eventbus.ScrapeProgressPayload{
		LinkID: task.LinkID, Stage: "started", Progress: 0,
	})

	scraper, err := w.pool.factory.New(task.LinkKind)
	if err != nil {
		w.fail(task, err.Error())
		return
	}
	defer scraper.Close()

	_ = w.pool.limiter.Wait(ctx)

	content, wordCount, language, err := scraper.Extract(ctx, task.URL)
	if err != nil {
		w.fail(task, err.Error())
		return
	}

	artifact := model.Artifact{
		BatchID:  task.BatchID,
		LinkID:   task.LinkID,
		LinkKind: task.LinkKind,
		URL:      task.URL,
		Content:  content,
		Metadata: model.ArtifactMetadata{
			Source:         task.URL,
			ExtractionTime: time.Now().UTC(),
			WordCount:      wordCount,
			Language:       language,
		},
	}

	path, err := w.pool.persist.Save(task.BatchID, task.LinkID, artifact)
	if err != nil {
		w.fail(task, err.Error())
		return
	}

	if err := w.pool.tracker.MarkCompleted(task.TaskID, "ok", path); err != nil {
		w.pool.log.Error("scraping worker: mark completed failed", "task_id", task.TaskID, "err", err)
	}
	w.mu.Lock()
	w.tasksCompleted++
	w.mu.Unlock()

	_ = w.pool.bus.Publish(task.BatchID, eventbus.KindScrapeComplete, eventbus.ScrapeCompletePayload{
		LinkID: task.LinkID, Success: true, ArtifactPath: path,
	})
}

func (w *worker) fail(task model.ScrapingTask, reason string) {
	if err := w.pool.tracker.MarkFailed(task.TaskID, reason); err != nil {
		w.pool.log.Error("scraping worker: mark failed failed", "task_id", task.TaskID, "err", err)
	}
	w.mu.Lock()
	w.tasksFailed++
	w.mu.Unlock()
	_ = w.pool.bus.Publish(task.BatchID, eventbus.KindScrapeComplete, eventbus.ScrapeCompletePayload{
		LinkID: task.LinkID, Success: false, Error: reason,
	})
}
