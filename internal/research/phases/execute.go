package phases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codeready-toolchain/ingestor/internal/eventbus"
	"github.com/codeready-toolchain/ingestor/internal/llm"
	"github.com/codeready-toolchain/ingestor/internal/model"
)

type stepFindings struct {
	Findings []model.Finding `json:"findings"`
	Insight  string          `json:"insight"`
	Confidence float64       `json:"confidence"`
}

// stepAccumulator merges every window's kept findings for one plan step
// into the single ScratchpadEntry that step is allowed to own, deduping
// points_of_interest by normalized text as they arrive.
type stepAccumulator struct {
	stepID     int
	summary    string
	points     []string
	seen       map[string]bool
	details    []string
	insights   []string
	confidence float64
}

func newStepAccumulator(stepID int) *stepAccumulator {
	return &stepAccumulator{stepID: stepID, seen: make(map[string]bool)}
}

func normalizePOI(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// merge folds one window's finding into the accumulator, extending
// points_of_interest in place and skipping anything already recorded
// (case/whitespace-insensitive).
func (a *stepAccumulator) merge(finding model.Finding, insight string, confidence float64) {
	if a.summary == "" {
		a.summary = finding.Summary
	}
	for _, p := range finding.PointsOfInterest {
		key := normalizePOI(p)
		if key == "" || a.seen[key] {
			continue
		}
		a.seen[key] = true
		a.points = append(a.points, p)
	}
	if finding.AnalysisDetails != "" {
		a.details = append(a.details, finding.AnalysisDetails)
	}
	if insight != "" {
		a.insights = append(a.insights, insight)
	}
	if confidence > a.confidence {
		a.confidence = confidence
	}
}

// finalize runs a second dedup pass over the accumulated
// points_of_interest (defensive against any duplicate the incremental
// merge missed) and produces the single ScratchpadEntry this step owns.
func (a *stepAccumulator) finalize() model.ScratchpadEntry {
	deduped := make([]string, 0, len(a.points))
	seen := make(map[string]bool, len(a.points))
	for _, p := range a.points {
		key := normalizePOI(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, p)
	}
	return model.ScratchpadEntry{
		StepID: a.stepID,
		Findings: model.Finding{
			Summary:          a.summary,
			PointsOfInterest: deduped,
			AnalysisDetails:  strings.Join(a.details, "\n"),
		},
		Insights:   strings.Join(a.insights, "\n"),
		Confidence: a.confidence,
		CreatedAt:  time.Now().UTC(),
	}
}

// RunExecute is Phase 3: walks each plan step, paging
// through the available source text in PageWindowSizeChars windows so a
// single step's material never exceeds one completion call's practical
// context. Each window's findings pass through the Novelty Filter (C11),
// then accumulate into that step's single ScratchpadEntry; the entry is
// written to the session exactly once per step, after its last window,
// not once per window. The session is saved once, after the final
// window of the final step, not after every window, so no step's entry
// is on disk until the whole phase has finished.
func RunExecute(ctx context.Context, pctx Ctx) error {
	pctx.publishPhase("3", "execute", true)
	defer pctx.publishPhase("3", "execute", false)

	plan := pctx.Session.GetPlan()
	summaries, err := pctx.Summaries.LoadSummaries(pctx.Session.BatchID())
	if err != nil {
		return fmt.Errorf("phase 3: load summaries: %w", err)
	}
	sourceText := buildRolePrompt(summaries)
	windowSize := pctx.Research.PageWindowSizeChars
	if windowSize <= 0 {
		windowSize = 20000
	}
	windows := windowText(sourceText, windowSize)

	lastActivity := time.Now()
	for _, step := range plan {
		if pctx.Session.IsCancelled() {
			return context.Canceled
		}
		acc := newStepAccumulator(step.StepID)
		for wi, window := range windows {
			if err := ctx.Err(); err != nil {
				return err
			}

			findings, err := runStepWindow(ctx, pctx, step, window, wi, len(windows))
			if err != nil {
				return fmt.Errorf("phase 3: step %d window %d: %w", step.StepID, wi, err)
			}

			novel, err := pctx.Novelty.Filter(ctx, pctx.Session.SessionID(), findings.Findings)
			if err != nil {
				return fmt.Errorf("phase 3: novelty filter: %w", err)
			}

			for _, r := range novel {
				if !r.Kept {
					continue
				}
				acc.merge(r.Finding, findings.Insight, findings.Confidence)
			}

			if time.Since(lastActivity) >= pctx.Research.HeartbeatSeconds {
				_ = pctx.Bus.Publish(pctx.Session.BatchID(), eventbus.KindWorkflowProgress, eventbus.WorkflowProgressPayload{
					Message: "research execute heartbeat",
				})
				lastActivity = time.Now()
			}
		}
		pctx.Session.AppendScratchpad(acc.finalize())
	}

	if pctx.Save != nil {
		if err := pctx.Save(); err != nil {
			return fmt.Errorf("phase 3: save session: %w", err)
		}
	}
	return nil
}

func runStepWindow(ctx context.Context, pctx Ctx, step model.PlanStep, window string, windowIdx, windowCount int) (stepFindings, error) {
	var out stepFindings
	_, err := llm.CollectJSON(ctx, pctx.LLM, llm.Request{
		System: "Given the role \"" + pctx.Session.GetRole() + "\" and the plan step below, analyze the provided " +
			"source window and extract findings as JSON: {\"findings\":[{\"summary\":...,\"points_of_interest\":[...]," +
			"\"analysis_details\":...}],\"insight\":...,\"confidence\":0.0-1.0}. Respond with JSON only.",
		Messages: []llm.Message{{
			Role: "user",
			Content: pctx.userIntentBlock() + fmt.Sprintf("Step goal: %s\nRequired data: %s\nWindow %d/%d:\n%s\nPrior cumulative summary:\n%s",
				step.Goal, step.RequiredData, windowIdx+1, windowCount, window, pctx.Session.CumulativeSummary()),
		}},
		MaxTokens: 2048,
	}, &out)
	if err != nil {
		return out, err
	}
	return out, nil
}

// windowText splits text into chunks of at most size bytes, breaking
// after the last newline before the cut point when there is one so a
// window doesn't split a source entry mid-line; otherwise it cuts at
// exactly size bytes.
func windowText(text string, size int) []string {
	if len(text) <= size {
		return []string{text}
	}
	var windows []string
	for len(text) > 0 {
		if len(text) <= size {
			windows = append(windows, text)
			break
		}
		cut := size
		if idx := lastNewlineBefore(text, size); idx > 0 {
			cut = idx
		}
		windows = append(windows, text[:cut])
		text = text[cut:]
	}
	return windows
}

func lastNewlineBefore(text string, limit int) int {
	for i := limit; i > 0; i-- {
		if text[i-1] == '\n' {
			return i
		}
	}
	return -1
}
