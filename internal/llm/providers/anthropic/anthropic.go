// Package anthropic implements the llm.Client contract (C9) against the
// Anthropic Messages streaming API, grounded on the SSE event-handling
// pattern shared across the pack's provider adapters (switch over
// MessageStreamEventUnion.AsAny()).
package anthropic

import (
	"context"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/codeready-toolchain/ingestor/internal/llm"
)

const defaultModel sdk.Model = "claude-sonnet-4-5"

const streamBufferSize = 16

// Provider wraps the Anthropic SDK client.
type Provider struct {
	client sdk.Client
	model  sdk.Model
}

func New(apiKey string) *Provider {
	return &Provider{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultModel,
	}
}

func (p *Provider) Stream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	params := p.convertRequest(req)

	stream := p.client.Messages.NewStreaming(ctx, params)

	// Consume the first event synchronously so connection-level failures
	// (auth, network, 4xx) surface directly to the caller instead of as a
	// mid-stream error chunk.
	if !stream.Next() {
		err := stream.Err()
		_ = stream.Close()
		if err != nil {
			return nil, fmt.Errorf("anthropic: stream start: %w", err)
		}
		ch := make(chan llm.Chunk)
		close(ch)
		return ch, nil
	}
	first := stream.Current()

	ch := make(chan llm.Chunk, streamBufferSize)
	go func() {
		defer close(ch)
		defer stream.Close()
		p.consume(ctx, stream, first, ch)
	}()
	return ch, nil
}

func (p *Provider) convertRequest(req llm.Request) sdk.MessageNewParams {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	messages := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := sdk.NewTextBlock(m.Content)
		switch m.Role {
		case "assistant":
			messages = append(messages, sdk.NewAssistantMessage(block))
		default:
			messages = append(messages, sdk.NewUserMessage(block))
		}
	}

	params := sdk.MessageNewParams{
		Model:     p.model,
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	return params
}

type streamState struct {
	inputTokens int64
}

func (p *Provider) consume(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion], first sdk.MessageStreamEventUnion, ch chan<- llm.Chunk) {
	state := streamState{}

	p.processEvent(ctx, &state, first, ch)
	for stream.Next() {
		if ctx.Err() != nil {
			return
		}
		p.processEvent(ctx, &state, stream.Current(), ch)
	}
	if err := stream.Err(); err != nil {
		emit(ctx, ch, llm.Chunk{Err: fmt.Errorf("anthropic: stream: %w", err)})
	}
}

func (p *Provider) processEvent(ctx context.Context, state *streamState, event sdk.MessageStreamEventUnion, ch chan<- llm.Chunk) {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		state.inputTokens = ev.Message.Usage.InputTokens

	case sdk.ContentBlockDeltaEvent:
		if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok {
			emit(ctx, ch, llm.Chunk{Content: delta.Text})
		}

	case sdk.MessageDeltaEvent:
		outputTokens := ev.Usage.OutputTokens
		emit(ctx, ch, llm.Chunk{
			Done: true,
			Usage: &llm.Usage{
				PromptTokens:     int(state.inputTokens),
				CompletionTokens: int(outputTokens),
				TotalTokens:      int(state.inputTokens + outputTokens),
			},
		})
	}
}

func emit(ctx context.Context, ch chan<- llm.Chunk, chunk llm.Chunk) {
	select {
	case ch <- chunk:
	case <-ctx.Done():
	}
}
