// Package llm defines the Streaming LLM Client contract (C9):
// a provider-agnostic Stream call returning an iterator of Chunks, plus
// collect_text/collect_json helpers for callers that just want the final
// result. The concrete provider lives in providers/anthropic.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/ingestor/internal/errs"
)

// Message is one turn of the conversation sent to the model.
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// Request is a single completion request (role/system prompt,
// message history, optional max tokens, whether to request structured
// JSON output).
type Request struct {
	System      string
	Messages    []Message
	MaxTokens   int
	JSONSchema  json.RawMessage // optional response schema; the anthropic provider does not forward it
}

// Usage reports token accounting for a completed request.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Chunk is one element of a streamed response: either a content
// fragment, or — on the final chunk — the terminal usage block. The
// stream ends with a usage-only chunk, never interleaved with content.
type Chunk struct {
	Content string
	Done    bool
	Usage   *Usage
	Err     error
}

// Client is the contract every provider implements.
type Client interface {
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}

// CollectText drains a stream into a single string, surfacing the first
// error chunk (if any) as errs.CodeStreamInterrupted.
func CollectText(ctx context.Context, client Client, req Request) (string, Usage, error) {
	stream, err := client.Stream(ctx, req)
	if err != nil {
		return "", Usage{}, err
	}
	var text string
	var usage Usage
	for chunk := range stream {
		if chunk.Err != nil {
			return text, usage, errs.New(errs.CodeStreamInterrupted, "C9", chunk.Err)
		}
		text += chunk.Content
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
	}
	select {
	case <-ctx.Done():
		return text, usage, errs.New(errs.CodeStreamInterrupted, "C9", ctx.Err())
	default:
	}
	return text, usage, nil
}

// CollectJSON drains a stream and unmarshals the accumulated text into v,
// returning errs.CodeInvalidJSON if the model did not produce valid JSON.
func CollectJSON(ctx context.Context, client Client, req Request, v any) (Usage, error) {
	text, usage, err := CollectText(ctx, client, req)
	if err != nil {
		return usage, err
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return usage, errs.New(errs.CodeInvalidJSON, "C9", fmt.Errorf("%w: %s", err, truncate(text, 200)))
	}
	return usage, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
