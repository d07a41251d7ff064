// Package llmclient pins the one vendor interface the core consumes: an
// LLM client that yields a stream of content / tool-use / stop events.
// It adapts the kept provider implementations in internal/agent/providers
// to this narrower surface so the orchestrator never depends on vendor
// wire formats directly.
package llmclient

import (
	"context"

	"github.com/agentrt/core/internal/agent"
	"github.com/agentrt/core/pkg/models"
)

// EventKind discriminates a StreamEvent.
type EventKind string

const (
	EventContentStart EventKind = "content_start"
	EventContentDelta EventKind = "content_delta"
	EventContentStop  EventKind = "content_stop"
	EventStop         EventKind = "stop"
	EventError        EventKind = "error"
)

// ContentBlockKind mirrors the content_block.type values on the wire.
type ContentBlockKind string

const (
	BlockText       ContentBlockKind = "text"
	BlockThinking   ContentBlockKind = "thinking"
	BlockToolUse    ContentBlockKind = "tool_use"
	BlockToolResult ContentBlockKind = "tool_result"
)

// StreamEvent is the pinned event shape the orchestrator consumes.
type StreamEvent struct {
	Kind     EventKind
	Index    int
	Block    ContentBlockKind
	Delta    string
	ToolCall *models.ToolCall

	InputTokens  int
	OutputTokens int
	StopReason   string

	Err error
}

// Message is the pinned conversation message shape.
type Message struct {
	Role        string
	Content     string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
}

// Request is the pinned completion request shape.
type Request struct {
	Model                string
	System               []SystemBlock
	Messages             []Message
	Tools                []agent.Tool
	MaxTokens            int
	EnableThinking       bool
	ThinkingBudgetTokens int
}

// SystemBlock carries a rendered system prompt fragment plus its cache
// layer, so a provider that supports prompt caching can map it onto a
// native primitive.
type SystemBlock struct {
	Text       string
	CacheLayer int
}

// Client is the pinned interface. Implementations translate Request into
// a provider-native call and translate the provider's native stream into
// StreamEvents.
type Client interface {
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
	SupportsTools() bool
	SupportsCaching() bool
}

// providerAdapter wraps a kept agent.LLMProvider implementation (e.g. the
// Anthropic provider) behind the pinned Client interface.
type providerAdapter struct {
	provider agent.LLMProvider
}

// FromProvider adapts an agent.LLMProvider to Client.
func FromProvider(p agent.LLMProvider) Client {
	return &providerAdapter{provider: p}
}

func (a *providerAdapter) SupportsTools() bool   { return a.provider.SupportsTools() }
func (a *providerAdapter) SupportsCaching() bool  { return true }

func (a *providerAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	var systemText string
	for i, block := range req.System {
		if i > 0 {
			systemText += "\n\n"
		}
		systemText += block.Text
	}

	messages := make([]agent.CompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, agent.CompletionMessage{
			Role:        m.Role,
			Content:     m.Content,
			ToolCalls:   m.ToolCalls,
			ToolResults: m.ToolResults,
		})
	}

	chunks, err := a.provider.Complete(ctx, &agent.CompletionRequest{
		Model:                req.Model,
		System:               systemText,
		Messages:             messages,
		Tools:                req.Tools,
		MaxTokens:            req.MaxTokens,
		EnableThinking:       req.EnableThinking,
		ThinkingBudgetTokens: req.ThinkingBudgetTokens,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan StreamEvent, 8)
	go translate(chunks, out)
	return out, nil
}

func translate(chunks <-chan *agent.CompletionChunk, out chan<- StreamEvent) {
	defer close(out)
	index := 0
	textOpen := false
	for chunk := range chunks {
		switch {
		case chunk.Error != nil:
			out <- StreamEvent{Kind: EventError, Err: chunk.Error}
			return
		case chunk.ToolCall != nil:
			if textOpen {
				out <- StreamEvent{Kind: EventContentStop, Index: index}
				index++
				textOpen = false
			}
			out <- StreamEvent{Kind: EventContentStart, Index: index, Block: BlockToolUse, ToolCall: chunk.ToolCall}
			out <- StreamEvent{Kind: EventContentStop, Index: index}
			index++
		case chunk.ThinkingStart:
			out <- StreamEvent{Kind: EventContentStart, Index: index, Block: BlockThinking}
		case chunk.Thinking != "":
			out <- StreamEvent{Kind: EventContentDelta, Index: index, Block: BlockThinking, Delta: chunk.Thinking}
		case chunk.ThinkingEnd:
			out <- StreamEvent{Kind: EventContentStop, Index: index}
			index++
		case chunk.Text != "":
			if !textOpen {
				out <- StreamEvent{Kind: EventContentStart, Index: index, Block: BlockText}
				textOpen = true
			}
			out <- StreamEvent{Kind: EventContentDelta, Index: index, Block: BlockText, Delta: chunk.Text}
		case chunk.Done:
			if textOpen {
				out <- StreamEvent{Kind: EventContentStop, Index: index}
				index++
				textOpen = false
			}
			out <- StreamEvent{Kind: EventStop, InputTokens: chunk.InputTokens, OutputTokens: chunk.OutputTokens, StopReason: "end_turn"}
		}
	}
}
