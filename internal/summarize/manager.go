// Package summarize implements the Summarization Manager (C7):
// a subscriber to scrape_complete events that feeds a small worker pool
// producing per-link summaries, with idempotent enqueue tracking so a
// duplicate event for a link still queued or in progress never
// double-schedules it. A link whose summarization has already finished
// is not remembered: a later event for it enqueues it again.
package summarize

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/ingestor/internal/config"
	"github.com/codeready-toolchain/ingestor/internal/eventbus"
	"github.com/codeready-toolchain/ingestor/internal/model"
)

// Summarizer produces a Summary from an artifact's content. The concrete
// implementation wraps the Streaming LLM Client (C9); kept as an
// interface here so C7 can be tested without a live model.
type Summarizer interface {
	Summarize(ctx context.Context, artifact model.Artifact) (model.Summary, error)
}

// Store is the subset of the Result Persister (C6) the manager needs.
type Store interface {
	SaveSummary(batchID, linkID string, s model.Summary) (path string, err error)
}

type linkKey struct {
	batchID string
	linkID  string
}

// Manager owns the per-link in_queue and in_progress sets, kept disjoint
// under a single lock (a link is in at most one of the two at any time),
// and the set of cancelled batch ids. Links of a cancelled batch that are
// already in progress stay in in_progress until they finish.
type Manager struct {
	cfg   *config.SummarizationConfig
	log   *slog.Logger
	bus   *eventbus.Bus
	store Store
	sum   Summarizer

	mu         sync.Mutex
	queue      []linkKey
	inQueue    map[linkKey]bool
	pending    map[linkKey]model.Artifact // artifacts waiting in queue
	inProgress map[linkKey]model.Artifact
	cancelled  map[string]bool
	lastActive time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewManager(cfg *config.SummarizationConfig, log *slog.Logger, bus *eventbus.Bus, store Store, sum Summarizer) *Manager {
	return &Manager{
		cfg:        cfg,
		log:        log,
		bus:        bus,
		store:      store,
		sum:        sum,
		inQueue:    make(map[linkKey]bool),
		inProgress: make(map[linkKey]model.Artifact),
		cancelled:  make(map[string]bool),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the M-worker pool (default M=3).
func (m *Manager) Start(ctx context.Context) {
	n := m.cfg.WorkerPoolSize
	if n <= 0 {
		n = 3
	}
	for i := 0; i < n; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.runWorker(ctx)
		}()
	}
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// OnScrapeComplete is the scrape_complete handler: it decides,
// idempotently, whether a link needs to enter the queue. A link already
// queued, in progress, or belonging to a cancelled batch is skipped
// silently rather than re-enqueued.
func (m *Manager) OnScrapeComplete(batchID, linkID string, artifact model.Artifact) {
	key := linkKey{batchID: batchID, linkID: linkID}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelled[batchID] || m.inQueue[key] {
		return
	}
	if _, busy := m.inProgress[key]; busy {
		return
	}
	m.inQueue[key] = true
	m.queue = append(m.queue, key)
	m.lastActive = time.Now().UTC()
	m.artifacts()[key] = artifact
}

// artifacts is a small accessor so OnScrapeComplete can stash the
// artifact alongside the queue entry without a second locked map type.
func (m *Manager) artifacts() map[linkKey]model.Artifact {
	if m.pending == nil {
		m.pending = make(map[linkKey]model.Artifact)
	}
	return m.pending
}

// CancelBatch marks batchID cancelled: queued-but-not-started links are
// dropped; links already in progress are allowed to finish, since an
// in-flight summarization call cannot be aborted mid-stream, but their
// results are not re-enqueued or retried (cancellation).
func (m *Manager) CancelBatch(batchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled[batchID] = true

	kept := m.queue[:0]
	for _, k := range m.queue {
		if k.batchID == batchID {
			delete(m.inQueue, k)
			delete(m.pending, k)
			continue
		}
		kept = append(kept, k)
	}
	m.queue = kept
}

// ResumeBatch clears the cancelled flag so a later re-registration of the
// same batch id can enqueue again (resumption).
func (m *Manager) ResumeBatch(batchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cancelled, batchID)
}

// IsComplete reports whether batchID has nothing queued or in progress,
// and at least SettleDelay has elapsed since the last enqueue, guarding
// against the race where a completion check runs between a scrape_complete
// event firing and OnScrapeComplete being invoked.
func (m *Manager) IsComplete(batchID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.queue {
		if k.batchID == batchID {
			return false
		}
	}
	for k := range m.inProgress {
		if k.batchID == batchID {
			return false
		}
	}
	return time.Since(m.lastActive) >= m.cfg.SettleDelay
}
