package phases

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/ingestor/internal/llm"
	"github.com/codeready-toolchain/ingestor/internal/model"
)

// defaultRole is used whenever Phase 0.5's completion call fails: role
// derivation failure is non-fatal, so the session still gets a usable
// persona rather than aborting the run.
const defaultRole = "a careful, methodical research analyst with no particular domain specialization"

// RunRole is Phase 0.5: a single completion call that
// derives a short role/persona description for the research run from the
// batch's summarized source material, stored on the session and used as
// the system prompt prefix for every later phase. A failed completion
// call falls back to defaultRole instead of aborting the session.
func RunRole(ctx context.Context, pctx Ctx) error {
	pctx.publishPhase("0.5", "role_generation", true)
	defer pctx.publishPhase("0.5", "role_generation", false)

	summaries, err := pctx.Summaries.LoadSummaries(pctx.Session.BatchID())
	if err != nil {
		return fmt.Errorf("phase 0.5: load summaries: %w", err)
	}

	var sb []llm.Message
	sb = append(sb, llm.Message{Role: "user", Content: buildRolePrompt(summaries)})

	text, _, err := llm.CollectText(ctx, pctx.LLM, llm.Request{
		System:    "You determine the analytical persona best suited to research this material. Respond with one paragraph, no preamble.",
		Messages:  sb,
		MaxTokens: 512,
	})
	if err != nil {
		if pctx.Log != nil {
			pctx.Log.Warn("phase 0.5: role generation failed, using default role", "err", err)
		}
		text = defaultRole
	}

	pctx.Session.SetRole(text)
	return nil
}

func buildRolePrompt(summaries []model.Summary) string {
	if len(summaries) == 0 {
		return "No source material has been summarized yet. Propose a general-purpose research persona."
	}
	s := "Source material summaries:\n"
	for _, sm := range summaries {
		if sm.TranscriptSummary != nil {
			s += "- " + *sm.TranscriptSummary + "\n"
		}
		if sm.CommentsSummary != nil {
			s += "- " + *sm.CommentsSummary + "\n"
		}
	}
	return s
}
