package service

import (
	"context"
	"fmt"

	"github.com/nilcaream/bobai/internal/domain/entity"
	"github.com/nilcaream/bobai/internal/domain/tool"
)

// LLMClient is one streaming chat request to a tool-enabled provider.
// StreamChat emits events on the channel as they are decoded and
// returns when the stream terminates. The sequence is finite and
// non-restartable: it ends with a finish event or with the returned
// error. A non-2xx response fails before any event is emitted.
//
// The caller owns the channel and must drain it concurrently;
// StreamChat never closes it.
type LLMClient interface {
	StreamChat(ctx context.Context, req *ChatRequest, events chan<- StreamEvent) error
}

// ChatRequest is one provider call: a model, the ordered history and an
// optional tool catalogue.
type ChatRequest struct {
	Model    string
	Messages []ChatMessage
	Tools    []tool.Definition
}

// ChatMessage is one entry of the submitted history, in the provider's
// message shape. Assistant messages may carry ToolCalls; tool messages
// carry the ToolCallID they answer.
type ChatMessage struct {
	Role       string
	Content    string
	ToolCalls  []entity.ToolCallRecord
	ToolCallID string
}

// StreamEventType tags decoded provider stream events.
type StreamEventType string

const (
	StreamText          StreamEventType = "text"
	StreamToolCallStart StreamEventType = "tool_call_start"
	StreamToolCallDelta StreamEventType = "tool_call_delta"
	StreamFinish        StreamEventType = "finish"
)

// Finish reasons. Anything the provider reports other than "tool_calls"
// maps to FinishStop.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
)

// StreamEvent is one typed event of a provider stream.
//
// Index is the provider's local numbering of concurrent tool calls
// within one assistant turn; the same index recurs across chunks and
// distinct indices may interleave arbitrarily. It is never persisted.
type StreamEvent struct {
	Type StreamEventType

	Text string // StreamText: content delta

	Index    int    // StreamToolCallStart / StreamToolCallDelta
	ID       string // StreamToolCallStart: provider-assigned call id
	Name     string // StreamToolCallStart: function name
	Fragment string // StreamToolCallDelta: arguments fragment

	FinishReason string // StreamFinish: FinishStop or FinishToolCalls
}

// ProviderError is a non-2xx provider response or a malformed stream.
// It carries the status code and raw body so the failure can be
// persisted into the conversation and shown to the client.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("Provider error (%d): %s", e.StatusCode, e.Body)
}
