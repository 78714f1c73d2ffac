package phases

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/ingestor/internal/llm"
	"github.com/codeready-toolchain/ingestor/internal/model"
)

type planSteps struct {
	Steps []model.PlanStep `json:"steps"`
}

// RunPlan is Phase 2: decompose the selected goal into an
// ordered sequence of steps, each naming the data it needs from the
// summarized source material.
func RunPlan(ctx context.Context, pctx Ctx) error {
	pctx.publishPhase("2", "plan", true)
	defer pctx.publishPhase("2", "plan", false)

	var plan planSteps
	_, err := llm.CollectJSON(ctx, pctx.LLM, llm.Request{
		System: "Given the role \"" + pctx.Session.GetRole() + "\" and the selected research goal, " +
			"produce an ordered plan as JSON: {\"steps\":[{\"step_id\":1,\"goal\":...,\"required_data\":...,\"notes\":...}]}. " +
			"Respond with JSON only.",
		Messages: []llm.Message{{
			Role:    "user",
			Content: pctx.userIntentBlock() + "Selected goal: " + pctx.Session.GetSelectedGoal(),
		}},
		MaxTokens: 1024,
	}, &plan)
	if err != nil {
		return fmt.Errorf("phase 2: %w", err)
	}
	if len(plan.Steps) == 0 {
		return fmt.Errorf("phase 2: model returned an empty plan")
	}

	pctx.Session.SetPlan(plan.Steps)
	return nil
}
