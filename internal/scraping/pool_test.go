package scraping

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ingestor/internal/config"
	"github.com/codeready-toolchain/ingestor/internal/eventbus"
	"github.com/codeready-toolchain/ingestor/internal/model"
	"github.com/codeready-toolchain/ingestor/internal/scrapers"
	"github.com/codeready-toolchain/ingestor/internal/tasks"
)

type fakePersister struct{}

func (fakePersister) Save(batchID, linkID string, a model.Artifact) (string, error) {
	return "fake/" + linkID, nil
}

func newTestPool(t *testing.T) (*Pool, *tasks.Tracker, *tasks.Queue) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus, err := eventbus.New(&config.EventBusConfig{SubscriberBuffer: 256}, log)
	require.NoError(t, err)
	t.Cleanup(bus.Close)

	tr := tasks.NewTracker()
	q := tasks.NewQueue()
	factory := scrapers.NewFactory()
	cfg := &config.ScrapingConfig{
		WorkerPoolSize:      4,
		QueueCheckInterval:  10 * time.Millisecond,
		PersistenceAttempts: 1,
		ConfirmCompleteWait: time.Second,
	}
	p := NewPool(cfg, log, tr, q, factory, bus, fakePersister{})
	return p, tr, q
}

// TestClaimNextNoDoubleAssignment stresses the single-assignment lock
// (assignMu): many workers contend for a fixed set of queued task ids
// behind a barrier, and no task id may ever be handed to more than one
// worker.
func TestClaimNextNoDoubleAssignment(t *testing.T) {
	p, tr, q := newTestPool(t)

	const numTasks = 30
	const numWorkers = 12
	for i := 0; i < numTasks; i++ {
		id := model.ScrapingTask{TaskID: fmtTaskID(i), BatchID: "b1", LinkID: fmtTaskID(i), URL: "http://x/" + fmtTaskID(i)}
		require.NoError(t, tr.Register(id))
		q.Enqueue(id.TaskID)
	}

	workers := make([]*worker, numWorkers)
	for i := range workers {
		workers[i] = &worker{id: fmtTaskID(1000 + i), pool: p}
	}

	var mu sync.Mutex
	claimed := map[string]int{}
	var wg sync.WaitGroup
	start := make(chan struct{})
	ctx := context.Background()

	for _, w := range workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			<-start
			for {
				task, ok := w.claimNext(ctx)
				if !ok {
					return
				}
				mu.Lock()
				claimed[task.TaskID]++
				mu.Unlock()
			}
		}(w)
	}
	close(start)
	wg.Wait()

	assert.Len(t, claimed, numTasks, "every task should be claimed exactly once across all workers")
	for id, count := range claimed {
		assert.Equal(t, 1, count, "task %s claimed more than once", id)
	}
}

func TestConfirmAllCompleteExpectedTotalZero(t *testing.T) {
	p, tr, _ := newTestPool(t)
	require.NoError(t, tr.Register(model.ScrapingTask{TaskID: "t1", BatchID: "b1", LinkID: "l1", URL: "http://x"}))
	require.NoError(t, tr.MarkStarted("t1", "w1"))
	require.NoError(t, tr.MarkCompleted("t1", "ok", "p1"))

	bp, ok := p.ConfirmAllComplete(context.Background(), "b1", 0)
	assert.True(t, ok)
	assert.True(t, bp.IsComplete)
}

// TestConfirmAllCompletePublishesOnce asserts all_scraping_complete is
// published on the bus exactly once for a batch, even across repeated
// ConfirmAllComplete calls.
func TestConfirmAllCompletePublishesOnce(t *testing.T) {
	p, tr, _ := newTestPool(t)
	require.NoError(t, tr.Register(model.ScrapingTask{TaskID: "t1", BatchID: "b1", LinkID: "l1", URL: "http://x"}))
	require.NoError(t, tr.MarkStarted("t1", "w1"))
	require.NoError(t, tr.MarkCompleted("t1", "ok", "p1"))

	sub, err := p.bus.Subscribe("b1")
	require.NoError(t, err)
	t.Cleanup(sub.Close)

	_, ok := p.ConfirmAllComplete(context.Background(), "b1", 1)
	assert.True(t, ok)
	_, ok = p.ConfirmAllComplete(context.Background(), "b1", 1)
	assert.True(t, ok)

	var seen int
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-sub.C:
			if ev.Type == eventbus.KindAllScrapingComplete {
				seen++
			}
		case <-deadline:
			assert.Equal(t, 1, seen, "all_scraping_complete must be published exactly once")
			return
		}
	}
}

// TestConfirmAllCompleteSuppressedWhenCancelled asserts a cancelled batch
// never gets an all_scraping_complete event even once every task settles.
func TestConfirmAllCompleteSuppressedWhenCancelled(t *testing.T) {
	p, tr, _ := newTestPool(t)
	require.NoError(t, tr.Register(model.ScrapingTask{TaskID: "t1", BatchID: "b1", LinkID: "l1", URL: "http://x"}))
	require.NoError(t, tr.Cancel("t1"))
	p.CancelBatch("b1")

	sub, err := p.bus.Subscribe("b1")
	require.NoError(t, err)
	t.Cleanup(sub.Close)

	_, ok := p.ConfirmAllComplete(context.Background(), "b1", 1)
	assert.True(t, ok)

	select {
	case ev := <-sub.C:
		assert.NotEqual(t, eventbus.KindAllScrapingComplete, ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func fmtTaskID(i int) string {
	return "t" + strconv.Itoa(i)
}
