package summarize

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ingestor/internal/config"
	"github.com/codeready-toolchain/ingestor/internal/eventbus"
	"github.com/codeready-toolchain/ingestor/internal/model"
)

type countingSummarizer struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSummarizer) Summarize(ctx context.Context, a model.Artifact) (model.Summary, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	text := "summary of " + a.LinkID
	return model.Summary{LinkID: a.LinkID, TranscriptSummary: &text}, nil
}

func (s *countingSummarizer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeStore struct {
	mu    sync.Mutex
	saved []model.Summary
}

func (s *fakeStore) SaveSummary(batchID, linkID string, sum model.Summary) (string, error) {
	s.mu.Lock()
	s.saved = append(s.saved, sum)
	s.mu.Unlock()
	return "fake/" + linkID + "_summary.json", nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func newTestManager(t *testing.T) (*Manager, *countingSummarizer, *fakeStore) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus, err := eventbus.New(&config.EventBusConfig{SubscriberBuffer: 256}, log)
	require.NoError(t, err)
	t.Cleanup(bus.Close)

	sum := &countingSummarizer{}
	store := &fakeStore{}
	cfg := &config.SummarizationConfig{WorkerPoolSize: 2, SettleDelay: 20 * time.Millisecond, CompletionWait: time.Second}
	m := NewManager(cfg, log, bus, store, sum)
	return m, sum, store
}

// TestManagerOnScrapeCompleteIdempotent verifies a duplicate scrape_complete
// event for the same link is not enqueued twice.
func TestManagerOnScrapeCompleteIdempotent(t *testing.T) {
	m, sum, store := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	artifact := model.Artifact{BatchID: "b1", LinkID: "l1", Content: "hello"}
	m.OnScrapeComplete("b1", "l1", artifact)
	m.OnScrapeComplete("b1", "l1", artifact)
	m.OnScrapeComplete("b1", "l1", artifact)

	require.Eventually(t, func() bool {
		return m.IsComplete("b1")
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, sum.count())
	assert.Equal(t, 1, store.count())
}

func TestManagerCancelBatchDropsQueuedNotStarted(t *testing.T) {
	m, sum, _ := newTestManager(t)

	m.OnScrapeComplete("b1", "l1", model.Artifact{BatchID: "b1", LinkID: "l1"})
	m.CancelBatch("b1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, sum.count())
}

func TestManagerIsCompleteFalseWhileQueued(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.OnScrapeComplete("b1", "l1", model.Artifact{BatchID: "b1", LinkID: "l1"})
	assert.False(t, m.IsComplete("b1"))
}
