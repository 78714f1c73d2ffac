package summarize

import (
	"context"
	"time"

	"github.com/codeready-toolchain/ingestor/internal/eventbus"
	"github.com/codeready-toolchain/ingestor/internal/model"
)

func (m *Manager) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		default:
		}

		key, artifact, ok := m.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		m.summarizeOne(ctx, key, artifact)
	}
}

// dequeue moves the head of the queue into in_progress, atomically with
// removing it from in_queue, so the two sets never both contain the same
// key (disjointness invariant). A key belonging to a batch
// cancelled between enqueue and dequeue is dropped instead of started.
func (m *Manager) dequeue() (linkKey, model.Artifact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return linkKey{}, model.Artifact{}, false
	}
	key := m.queue[0]
	m.queue = m.queue[1:]
	delete(m.inQueue, key)

	artifact := m.pending[key]
	delete(m.pending, key)

	if m.cancelled[key.batchID] {
		return linkKey{}, model.Artifact{}, false
	}
	m.inProgress[key] = artifact
	return key, artifact, true
}

func (m *Manager) summarizeOne(ctx context.Context, key linkKey, artifact model.Artifact) {
	defer func() {
		m.mu.Lock()
		delete(m.inProgress, key)
		m.mu.Unlock()
	}()

	_ = m.bus.Publish(key.batchID, eventbus.KindSummaryProgress, eventbus.SummaryProgressPayload{
		LinkID: key.linkID, Stage: "started", Progress: 0,
	})

	summary, err := m.sum.Summarize(ctx, artifact)
	if err != nil {
		_ = m.bus.Publish(key.batchID, eventbus.KindSummaryComplete, eventbus.SummaryCompletePayload{
			LinkID: key.linkID, Success: false, Error: err.Error(),
		})
		m.log.Warn("summarization failed", "batch_id", key.batchID, "link_id", key.linkID, "err", err)
		return
	}

	if _, err := m.store.SaveSummary(key.batchID, key.linkID, summary); err != nil {
		_ = m.bus.Publish(key.batchID, eventbus.KindSummaryComplete, eventbus.SummaryCompletePayload{
			LinkID: key.linkID, Success: false, Error: err.Error(),
		})
		m.log.Error("summarization: persist failed", "batch_id", key.batchID, "link_id", key.linkID, "err", err)
		return
	}

	_ = m.bus.Publish(key.batchID, eventbus.KindSummaryComplete, eventbus.SummaryCompletePayload{
		LinkID: key.linkID, Success: true,
	})
}
