package phases

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ingestor/internal/config"
	"github.com/codeready-toolchain/ingestor/internal/eventbus"
	"github.com/codeready-toolchain/ingestor/internal/llm"
	"github.com/codeready-toolchain/ingestor/internal/model"
	"github.com/codeready-toolchain/ingestor/internal/research/session"
)

type failingClient struct{}

func (failingClient) Stream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk, 1)
	ch <- llm.Chunk{Err: errors.New("model unavailable")}
	close(ch)
	return ch, nil
}

type emptySummaryLoader struct{}

func (emptySummaryLoader) LoadSummaries(batchID string) ([]model.Summary, error) {
	return nil, nil
}

func newTestCtx(t *testing.T, llmClient llm.Client, sess *session.Session) Ctx {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus, err := eventbus.New(&config.EventBusConfig{SubscriberBuffer: 16}, log)
	require.NoError(t, err)
	t.Cleanup(bus.Close)

	return Ctx{
		Session:   sess,
		LLM:       llmClient,
		Bus:       bus,
		Research:  &config.ResearchConfig{},
		Summaries: emptySummaryLoader{},
		Log:       log,
	}
}

// TestRunRoleFallsBackToDefaultOnLLMFailure asserts a failed completion
// call does not abort Phase 0.5: the session still gets a usable role.
func TestRunRoleFallsBackToDefaultOnLLMFailure(t *testing.T) {
	sess := session.New("s1", "b1")
	pctx := newTestCtx(t, failingClient{}, sess)

	err := RunRole(context.Background(), pctx)
	require.NoError(t, err)
	assert.Equal(t, defaultRole, sess.GetRole())
}
