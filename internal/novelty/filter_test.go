package novelty

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ingestor/internal/model"
)

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFilterKeepsFirstDropsExactDuplicate(t *testing.T) {
	store := NewMemStore()
	embedder := NewHashEmbedder(64)
	f := NewFilter(store, embedder, 0.85, testLog())

	findings := []model.Finding{
		{Summary: "the widget factory opened in 1998"},
		{Summary: "the widget factory opened in 1998"},
	}

	results, err := f.Filter(context.Background(), "s1", findings)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Kept)
	assert.False(t, results[1].Kept, "exact duplicate must be filtered")
	assert.GreaterOrEqual(t, results[1].Similarity, 0.85)
}

func TestFilterKeepsDistinctFindings(t *testing.T) {
	store := NewMemStore()
	embedder := NewHashEmbedder(64)
	f := NewFilter(store, embedder, 0.85, testLog())

	findings := []model.Finding{
		{Summary: "the widget factory opened in 1998"},
		{Summary: "stock prices fell sharply amid unrelated news about weather patterns"},
	}

	results, err := f.Filter(context.Background(), "s1", findings)
	require.NoError(t, err)
	assert.True(t, results[0].Kept)
	assert.True(t, results[1].Kept)
}

// TestFilterAllFilteredRetainsHighestSimilarity covers the edge case
// where every finding in a batch would be filtered as a duplicate of
// prior history: the single highest-similarity one is kept anyway so the
// window still contributes something.
func TestFilterAllFilteredRetainsHighestSimilarity(t *testing.T) {
	store := NewMemStore()
	embedder := NewHashEmbedder(64)
	f := NewFilter(store, embedder, 0.85, testLog())

	seedText := "the widget factory opened in 1998"
	seedVec, err := embedder.Embed(context.Background(), seedText)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), "s1", "seed", seedVec))

	findings := []model.Finding{
		{Summary: seedText},
		{Summary: seedText},
	}

	results, err := f.Filter(context.Background(), "s1", findings)
	require.NoError(t, err)

	kept := 0
	for _, r := range results {
		if r.Kept {
			kept++
		}
	}
	assert.Equal(t, 1, kept, "exactly one finding must survive the all-filtered edge case")
}

func TestFilterAdvisorySkipOnEmbeddingFailure(t *testing.T) {
	store := NewMemStore()
	f := NewFilter(store, failingEmbedder{}, 0.85, testLog())

	results, err := f.Filter(context.Background(), "s1", []model.Finding{{Summary: "anything"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Kept, "embedding failure must not block the pipeline")
}

type failingEmbedder struct{}

func (failingEmbedder) Dimension() int { return 64 }
func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, assertErr{}
}

type assertErr struct{}

func (assertErr) Error() string { return "embedding unavailable" }
