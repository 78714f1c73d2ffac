package phases

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/ingestor/internal/eventbus"
	"github.com/codeready-toolchain/ingestor/internal/llm"
	"github.com/codeready-toolchain/ingestor/internal/model"
)

type discoverGoals struct {
	Goals []model.ResearchGoal `json:"goals"`
}

// RunDiscover is Phase 1: generate candidate research
// goals, then suspend the session waiting for the operator to choose one
// via deliver_user_response. If only one goal is feasible, it is selected
// automatically without prompting (edge case).
func RunDiscover(ctx context.Context, pctx Ctx) error {
	pctx.publishPhase("1", "discover", true)
	defer pctx.publishPhase("1", "discover", false)

	summaries, err := pctx.Summaries.LoadSummaries(pctx.Session.BatchID())
	if err != nil {
		return fmt.Errorf("phase 1: load summaries: %w", err)
	}

	var goals discoverGoals
	_, err = llm.CollectJSON(ctx, pctx.LLM, llm.Request{
		System: "Given the role \"" + pctx.Session.GetRole() + "\" and the summarized source material below, " +
			"propose 5-10 candidate research goals as JSON: {\"goals\":[{\"goal_text\":...,\"rationale\":...,\"feasibility\":\"high|medium|low\"}]}. Respond with JSON only.",
		Messages:  []llm.Message{{Role: "user", Content: pctx.userIntentBlock() + buildRolePrompt(summaries)}},
		MaxTokens: 1024,
	}, &goals)
	if err != nil {
		return fmt.Errorf("phase 1: generate goals: %w", err)
	}
	if len(goals.Goals) == 0 {
		return fmt.Errorf("phase 1: model returned no candidate goals")
	}

	feasible := feasibleGoals(goals.Goals)
	if len(feasible) == 1 {
		pctx.Session.SetGoals(goals.Goals, feasible[0].GoalText)
		return nil
	}

	promptID := uuid.NewString()
	choices := make([]string, len(goals.Goals))
	for i, g := range goals.Goals {
		choices[i] = g.GoalText
	}

	pctx.Session.RegisterPrompt(model.UserPrompt{
		PromptID:   promptID,
		PromptText: "Select a research goal",
		Choices:    choices,
	})
	respCh := pctx.Bus.RegisterPrompt(ctx, pctx.Session.BatchID(), promptID)

	_ = pctx.Bus.Publish(pctx.Session.BatchID(), eventbus.KindUserInputRequired, eventbus.UserInputRequiredPayload{
		PromptID:   promptID,
		PromptText: "Select a research goal",
		Choices:    choices,
	})

	select {
	case <-ctx.Done():
		pctx.Bus.CancelPrompt(promptID)
		return ctx.Err()
	case response, ok := <-respCh:
		if !ok {
			return fmt.Errorf("phase 1: prompt %s cancelled", promptID)
		}
		pctx.Session.ResolvePrompt(promptID, response)
		pctx.Session.SetGoals(goals.Goals, response)
		pctx.Session.SetUserContext(response)
		return nil
	}
}

func feasibleGoals(goals []model.ResearchGoal) []model.ResearchGoal {
	var out []model.ResearchGoal
	for _, g := range goals {
		if g.Feasibility == "high" || g.Feasibility == "" {
			out = append(out, g)
		}
	}
	if len(out) == 0 {
		return goals
	}
	return out
}
