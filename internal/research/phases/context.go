// Package phases implements the five sequential research phases (C10):
// Role Generation (0.5), Discover (1), Plan (2), Execute (3),
// Synthesize (4). Each phase is a function over a shared Ctx rather than
// a struct with methods, following the pattern of runner functions
// operating over a shared dispatch context.
package phases

import (
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/ingestor/internal/config"
	"github.com/codeready-toolchain/ingestor/internal/eventbus"
	"github.com/codeready-toolchain/ingestor/internal/llm"
	"github.com/codeready-toolchain/ingestor/internal/model"
	"github.com/codeready-toolchain/ingestor/internal/novelty"
	"github.com/codeready-toolchain/ingestor/internal/research/session"
)

// SummaryLoader gives Phase 3 Execute access to every summary persisted
// for the batch so far (C6's output), without depending on the artifact
// package's concrete Persister type.
type SummaryLoader interface {
	LoadSummaries(batchID string) ([]model.Summary, error)
}

// Ctx bundles the dependencies every phase needs. It is assembled once by
// the Research Orchestrator (C12) and passed by value to each phase call.
type Ctx struct {
	Session   *session.Session
	LLM       llm.Client
	Bus       *eventbus.Bus
	Novelty   *novelty.Filter
	Research  *config.ResearchConfig
	Summaries SummaryLoader
	Log       *slog.Logger

	// UserGuidance is captured from the operator before Phase 0.5 runs
	// and is available to every later phase's prompt.
	UserGuidance string
	// UserContext is captured from the operator's Phase 1 goal-selection
	// response and is empty for any phase that runs before Phase 1
	// completes.
	UserContext string

	// Save persists the session; phases call it at most once, at their
	// own natural checkpoint, rather than after every internal step.
	Save func() error
}

func (c Ctx) publishPhase(phase, name string, entering bool) {
	_ = c.Bus.Publish(c.Session.BatchID(), eventbus.KindResearchPhaseChange, eventbus.ResearchPhaseChangePayload{
		Phase: phase, PhaseName: name, Entering: entering,
	})
}

// userIntentBlock renders the User Intent section prepended to every
// phase prompt except Phase 0.5. UserContext is blank for any phase
// that runs before Phase 1 has captured it.
func (c Ctx) userIntentBlock() string {
	if c.UserGuidance == "" && c.UserContext == "" {
		return ""
	}
	return fmt.Sprintf("User Intent:\nGuidance: %s\nContext: %s\n\n", c.UserGuidance, c.UserContext)
}
