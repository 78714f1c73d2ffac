// Package scraping implements the Scraping Control Center (C5): a
// fixed-size worker pool that claims pending tasks from C3, runs the
// matching C4 scraper, hands the result to the Result Persister (C6),
// and reports progress on the Event Bus (C1). Uses a WorkerPool/Worker
// split with Start/Stop, per-worker panic recovery and replacement, and
// a Health() aggregation call.
package scraping

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/codeready-toolchain/ingestor/internal/config"
	"github.com/codeready-toolchain/ingestor/internal/eventbus"
	"github.com/codeready-toolchain/ingestor/internal/model"
	"github.com/codeready-toolchain/ingestor/internal/scrapers"
	"github.com/codeready-toolchain/ingestor/internal/tasks"
)

// Persister is the subset of the Result Persister (C6) the pool depends
// on, kept as an interface so tests can substitute an in-memory fake.
type Persister interface {
	Save(batchID, linkID string, artifact model.Artifact) (path string, err error)
}

// Pool is the fixed W-worker scraping pool (W defaults to 8).
type Pool struct {
	cfg     *config.ScrapingConfig
	log     *slog.Logger
	tracker *tasks.Tracker
	queue   *tasks.Queue
	factory *scrapers.Factory
	bus     *eventbus.Bus
	persist Persister
	limiter *rate.Limiter

	// assignMu is the single assignment lock: dequeue,
	// transition Pending->Processing, and recording the assignment all
	// happen while it is held, so two workers can never be handed the
	// same task id.
	assignMu sync.Mutex

	mu        sync.Mutex
	workers   map[string]*worker
	cancels   map[string]bool // batch ids flagged cancelled
	confirmed map[string]bool // batch ids that already published all_scraping_complete
	wg        sync.WaitGroup
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewPool(cfg *config.ScrapingConfig, log *slog.Logger, tracker *tasks.Tracker, queue *tasks.Queue, factory *scrapers.Factory, bus *eventbus.Bus, persist Persister) *Pool {
	return &Pool{
		cfg:     cfg,
		log:     log,
		tracker: tracker,
		queue:   queue,
		factory: factory,
		bus:     bus,
		persist: persist,
		limiter: rate.NewLimiter(rate.Limit(20), 20),
		workers:   make(map[string]*worker),
		cancels:   make(map[string]bool),
		confirmed: make(map[string]bool),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the fixed-size pool. Each worker runs in its own
// goroutine and is individually restarted if it panics.
func (p *Pool) Start(ctx context.Context) {
	n := p.cfg.WorkerPoolSize
	if n <= 0 {
		n = 8
	}
	for i := 0; i < n; i++ {
		p.spawnWorker(ctx, workerID(i))
	}
}

func workerID(i int) string {
	return "scrape-worker-" + strconv.Itoa(i)
}

func (p *Pool) spawnWorker(ctx context.Context, id string) {
	w := &worker{id: id, pool: p}
	p.mu.Lock()
	p.workers[id] = w
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		w.runSupervised(ctx)
	}()
}

// Stop signals every worker to exit its loop and waits for them to drain.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// CancelBatch marks batchID cancelled and moves its Pending tasks to
// Cancelled at once; tasks already Processing are left to finish, and
// workers cancel any of the batch's ids they dequeue afterwards.
func (p *Pool) CancelBatch(batchID string) {
	p.mu.Lock()
	p.cancels[batchID] = true
	p.mu.Unlock()

	for _, task := range p.tracker.ListByBatch(batchID) {
		if task.Status == model.TaskPending {
			_ = p.tracker.Cancel(task.TaskID)
		}
	}
}

func (p *Pool) isCancelled(batchID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancels[batchID]
}

// ConfirmAllComplete polls Statistics until every registered task for
// batchID has reached a terminal status, or the configured wait elapses.
// When expectedTotal is 0 (caller never learned the final count),
// completeness is judged against the currently registered count instead
// of blocking forever on an unreachable target. On success it publishes
// all_scraping_complete exactly once for batchID, unless the batch was
// cancelled.
func (p *Pool) ConfirmAllComplete(ctx context.Context, batchID string, expectedTotal int) (model.BatchProgress, bool) {
	deadline := time.Now().Add(p.cfg.ConfirmCompleteWait)
	ticker := time.NewTicker(p.cfg.QueueCheckInterval)
	defer ticker.Stop()

	for {
		bp := p.tracker.Statistics(batchID, expectedTotal)
		if bp.IsComplete {
			p.publishAllComplete(batchID, bp)
			return bp, true
		}
		if time.Now().After(deadline) {
			return bp, false
		}
		select {
		case <-ctx.Done():
			return bp, false
		case <-ticker.C:
		}
	}
}

// publishAllComplete emits all_scraping_complete for batchID exactly once.
// A cancelled batch never reaches completion in the normal sense, so no
// event is published for it.
func (p *Pool) publishAllComplete(batchID string, bp model.BatchProgress) {
	p.mu.Lock()
	if p.confirmed[batchID] || p.cancels[batchID] {
		p.mu.Unlock()
		return
	}
	p.confirmed[batchID] = true
	p.mu.Unlock()

	_ = p.bus.Publish(batchID, eventbus.KindAllScrapingComplete, eventbus.AllScrapingCompletePayload{
		CompletionRate: bp.CompletionRate,
		Registered:     bp.RegisteredCount,
		ExpectedTotal:  bp.ExpectedTotal,
	})
}

// Health returns a snapshot of every worker's current state.
func (p *Pool) Health() []model.WorkerHealth {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.WorkerHealth, 0, len(p.workers))
	for _, w := range p.workers {
		out = append(out, w.health())
	}
	return out
}
