package novelty

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/ingestor/internal/model"
)

// Filter implements the Novelty Filter (C11): it keeps
// findings whose embedding is not within threshold cosine similarity of
// any finding already recorded for the session, updating the store with
// every kept finding so later calls see the growing history.
type Filter struct {
	store     Store
	embedder  Embedder
	threshold float64
	log       *slog.Logger

	mu    sync.Mutex
	cache map[string][]float32 // text -> embedding, shared across sessions, avoids recomputing identical text
}

func NewFilter(store Store, embedder Embedder, threshold float64, log *slog.Logger) *Filter {
	if threshold <= 0 {
		threshold = 0.85
	}
	return &Filter{
		store:     store,
		embedder:  embedder,
		threshold: threshold,
		log:       log,
		cache:     make(map[string][]float32),
	}
}

// Result pairs a finding with the decision made about it.
type Result struct {
	Finding    model.Finding
	Kept       bool
	Similarity float64 // highest similarity observed against prior findings
}

// Filter evaluates each finding against the session's prior history, in
// order, recording kept findings into the store as it goes so a finding
// later in the same batch can be deduplicated against one earlier in it.
//
// If every finding in the batch is filtered as a duplicate, the single
// highest-similarity one is retained anyway (edge case): a
// paging window that produced at least one finding must contribute
// something, or downstream synthesis silently loses a window's work.
func (f *Filter) Filter(ctx context.Context, sessionID string, findings []model.Finding) ([]Result, error) {
	results := make([]Result, len(findings))
	keptAny := false
	bestIdx, bestSim := -1, -1.0

	for i, finding := range findings {
		vec, err := f.embed(ctx, finding.Summary)
		if err != nil {
			// Advisory: embedding failure never blocks the pipeline, the
			// finding is treated as novel and kept.
			f.log.Warn("novelty filter: embedding failed, keeping finding", "session_id", sessionID, "err", err)
			results[i] = Result{Finding: finding, Kept: true}
			f.record(ctx, sessionID, finding, vec)
			keptAny = true
			continue
		}

		sim, err := f.maxSimilarity(ctx, sessionID, vec)
		if err != nil {
			f.log.Warn("novelty filter: query failed, keeping finding", "session_id", sessionID, "err", err)
			results[i] = Result{Finding: finding, Kept: true}
			f.record(ctx, sessionID, finding, vec)
			keptAny = true
			continue
		}

		if sim > bestSim {
			bestSim, bestIdx = sim, i
		}

		kept := sim < f.threshold
		results[i] = Result{Finding: finding, Kept: kept, Similarity: sim}
		if kept {
			f.record(ctx, sessionID, finding, vec)
			keptAny = true
		}
	}

	if !keptAny && bestIdx >= 0 {
		results[bestIdx].Kept = true
		vec, err := f.embed(ctx, findings[bestIdx].Summary)
		if err == nil {
			f.record(ctx, sessionID, findings[bestIdx], vec)
		}
	}

	return results, nil
}

func (f *Filter) embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	if v, ok := f.cache[text]; ok {
		f.mu.Unlock()
		return v, nil
	}
	f.mu.Unlock()

	vec, err := f.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("novelty: embed: %w", err)
	}

	f.mu.Lock()
	f.cache[text] = vec
	f.mu.Unlock()
	return vec, nil
}

func (f *Filter) maxSimilarity(ctx context.Context, sessionID string, vec []float32) (float64, error) {
	points, err := f.store.Query(ctx, sessionID, vec, 1)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, nil
	}
	return points[0].Score, nil
}

func (f *Filter) record(ctx context.Context, sessionID string, finding model.Finding, vec []float32) {
	if vec == nil {
		return
	}
	if err := f.store.Upsert(ctx, sessionID, uuid.NewString(), vec); err != nil {
		f.log.Warn("novelty filter: upsert failed", "session_id", sessionID, "err", err)
	}
}
