package summarize

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/ingestor/internal/llm"
	"github.com/codeready-toolchain/ingestor/internal/model"
)

// LLMSummarizer adapts a llm.Client into the Summarizer contract C7
// depends on, condensing one artifact's content into a Summary.
type LLMSummarizer struct {
	client llm.Client
}

func NewLLMSummarizer(client llm.Client) *LLMSummarizer {
	return &LLMSummarizer{client: client}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, artifact model.Artifact) (model.Summary, error) {
	text, _, err := llm.CollectText(ctx, s.client, llm.Request{
		System:    "Summarize the following scraped content in 3-5 sentences, preserving concrete facts and figures.",
		Messages:  []llm.Message{{Role: "user", Content: artifact.Content}},
		MaxTokens: 512,
	})
	if err != nil {
		return model.Summary{}, fmt.Errorf("llm summarizer: %w", err)
	}

	summary := model.Summary{LinkID: artifact.LinkID}
	switch artifact.LinkKind {
	case model.LinkKindVideoComments:
		summary.CommentsSummary = &text
	default:
		summary.TranscriptSummary = &text
	}
	return summary, nil
}
