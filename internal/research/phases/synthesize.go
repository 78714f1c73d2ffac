package phases

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/ingestor/internal/errs"
	"github.com/codeready-toolchain/ingestor/internal/eventbus"
	"github.com/codeready-toolchain/ingestor/internal/llm"
)

// RunSynthesize is Phase 4: stream the final Markdown
// report token by token onto the event bus while also accumulating it for
// the session record. Findings are referenced in the prompt as [EVID-NN]
// so the model can cite them in the generated report.
func RunSynthesize(ctx context.Context, pctx Ctx) (string, error) {
	pctx.publishPhase("4", "synthesize", true)
	defer pctx.publishPhase("4", "synthesize", false)

	evidence := buildEvidenceBlock(pctx)

	stream, err := pctx.LLM.Stream(ctx, llm.Request{
		System: "Given the role \"" + pctx.Session.GetRole() + "\", write a Markdown research report synthesizing " +
			"the findings below. Cite findings inline using their [EVID-NN] tag. End with a short conclusion.",
		Messages: []llm.Message{{
			Role:    "user",
			Content: pctx.userIntentBlock() + "Selected goal: " + pctx.Session.GetSelectedGoal() + "\n\n" + evidence,
		}},
		MaxTokens: 4096,
	})
	if err != nil {
		return "", fmt.Errorf("phase 4: %w", err)
	}

	var sb strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			return sb.String(), errs.New(errs.CodeStreamInterrupted, "C10", chunk.Err)
		}
		if chunk.Content != "" {
			sb.WriteString(chunk.Content)
			_ = pctx.Bus.Publish(pctx.Session.BatchID(), eventbus.KindResearchStreamToken, eventbus.ResearchStreamTokenPayload{
				Phase: "4", Fragment: chunk.Content,
			})
		}
	}

	report := sb.String()
	pctx.Session.SetSynthesis(report)
	return report, nil
}

func buildEvidenceBlock(pctx Ctx) string {
	entries := pctx.Session.ScratchpadSnapshot()
	var sb strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&sb, "[EVID-%02d] (step %d, confidence %.2f) %s\n", i+1, e.StepID, e.Confidence, e.Findings.Summary)
		if len(e.Findings.PointsOfInterest) > 0 {
			fmt.Fprintf(&sb, "  points of interest: %s\n", strings.Join(e.Findings.PointsOfInterest, "; "))
		}
	}
	if sb.Len() == 0 {
		return "No findings were recorded."
	}
	return sb.String()
}
