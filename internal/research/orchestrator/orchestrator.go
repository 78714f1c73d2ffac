// Package orchestrator implements the Research Orchestrator (C12): it
// sequences the five research phases (C10) over one session (C8),
// saving after every phase transition and checking the session's
// cancellation flag between phases.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/ingestor/internal/config"
	"github.com/codeready-toolchain/ingestor/internal/eventbus"
	"github.com/codeready-toolchain/ingestor/internal/llm"
	"github.com/codeready-toolchain/ingestor/internal/novelty"
	"github.com/codeready-toolchain/ingestor/internal/research/phases"
	"github.com/codeready-toolchain/ingestor/internal/research/session"
)

// Orchestrator runs one research session end to end.
type Orchestrator struct {
	cfg       *config.Config
	log       *slog.Logger
	bus       *eventbus.Bus
	llmClient llm.Client
	noveltyF  *novelty.Filter
	summaries phases.SummaryLoader
	stateRoot string
}

func New(cfg *config.Config, log *slog.Logger, bus *eventbus.Bus, llmClient llm.Client, noveltyF *novelty.Filter, summaries phases.SummaryLoader) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		log:       log,
		bus:       bus,
		llmClient: llmClient,
		noveltyF:  noveltyF,
		summaries: summaries,
		stateRoot: cfg.StateRoot,
	}
}

// RunSession executes Phase 0.5 through Phase 4 for sess in order,
// persisting sess after every transition, and returns the final Markdown
// report. A cancelled session stops between phases rather than
// mid-phase-call, since an in-flight LLM stream is not abortable cleanly
// partway through a structured JSON response.
func (o *Orchestrator) RunSession(ctx context.Context, sess *session.Session) (string, error) {
	pctx := phases.Ctx{
		Session:      sess,
		LLM:          o.llmClient,
		Bus:          o.bus,
		Novelty:      o.noveltyF,
		Research:     &o.cfg.Research,
		Summaries:    o.summaries,
		Log:          o.log,
		UserGuidance: sess.GetUserGuidance(),
		Save:         func() error { return sess.Save(o.stateRoot) },
	}

	steps := []struct {
		name string
		run  func(context.Context, phases.Ctx) error
	}{
		{"role_generation", phases.RunRole},
		{"discover", phases.RunDiscover},
		{"plan", phases.RunPlan},
		{"execute", phases.RunExecute},
	}

	for _, step := range steps {
		if sess.IsCancelled() {
			return "", fmt.Errorf("orchestrator: session %s cancelled before %s", sess.SessionID(), step.name)
		}
		if err := step.run(ctx, pctx); err != nil {
			return "", fmt.Errorf("orchestrator: %s: %w", step.name, err)
		}
		if step.name == "discover" {
			pctx.UserContext = sess.GetUserContext()
		}
		if err := sess.Save(o.stateRoot); err != nil {
			o.log.Error("orchestrator: save after phase failed", "session_id", sess.SessionID(), "phase", step.name, "err", err)
		}
	}

	if sess.IsCancelled() {
		return "", fmt.Errorf("orchestrator: session %s cancelled before synthesize", sess.SessionID())
	}
	report, err := phases.RunSynthesize(ctx, pctx)
	if err != nil {
		return "", fmt.Errorf("orchestrator: synthesize: %w", err)
	}
	if err := sess.Save(o.stateRoot); err != nil {
		o.log.Error("orchestrator: save after synthesize failed", "session_id", sess.SessionID(), "err", err)
	}

	return report, nil
}

// Cancel flags sess for cancellation and releases any prompt it may be
// waiting on, so a suspended Discover phase wakes up and exits instead of
// blocking forever (cancellation).
func (o *Orchestrator) Cancel(sess *session.Session, pendingPromptID string) {
	sess.SetCancelled(true)
	if pendingPromptID != "" {
		o.bus.CancelPrompt(pendingPromptID)
	}
}
