package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/nilcaream/bobai/internal/domain/entity"
	"github.com/nilcaream/bobai/internal/domain/tool"
)

// DefaultMaxIterations bounds provider calls within one turn when the
// caller does not set a ceiling.
const DefaultMaxIterations = 20

// EventSink receives agent events in emission order.
type EventSink func(entity.AgentEvent) error

// MessageSink receives each durable message the loop produces, in
// append order. Returning an error aborts the turn before the message
// takes effect.
type MessageSink func(role, content string, meta *entity.MessageMeta) error

// LoopRequest is one turn's input to the agent loop.
type LoopRequest struct {
	Model         string
	History       []ChatMessage
	Registry      *tool.Registry
	ProjectRoot   string
	MaxIterations int

	OnEvent   EventSink
	OnMessage MessageSink
}

// AgentLoop drives the provider until it stops requesting tools.
type AgentLoop struct {
	client LLMClient
	logger *zap.Logger
}

// NewAgentLoop creates the loop around one provider client.
func NewAgentLoop(client LLMClient, logger *zap.Logger) *AgentLoop {
	return &AgentLoop{client: client, logger: logger}
}

// pendingCall accumulates one tool call's fragments keyed by the
// provider's request-local index.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// iterationResult is what one provider call accumulated.
type iterationResult struct {
	text   string
	calls  map[int]*pendingCall
	finish string
}

// Run executes one turn. Events stream to OnEvent as they happen;
// durable messages go to OnMessage in append order (assistant before
// its tool results). Tool calls execute sequentially in ascending index
// order. A provider failure aborts the turn with that error; everything
// at the tool layer is folded back into the conversation instead.
func (l *AgentLoop) Run(ctx context.Context, req *LoopRequest) error {
	ceiling := req.MaxIterations
	if ceiling <= 0 {
		ceiling = DefaultMaxIterations
	}

	conv := append([]ChatMessage(nil), req.History...)
	var tools []tool.Definition
	if req.Registry != nil {
		tools = req.Registry.List()
	}

	for iteration := 1; iteration <= ceiling; iteration++ {
		result, err := l.streamIteration(ctx, req, conv, tools)
		if err != nil {
			return err
		}

		if result.finish != FinishToolCalls || len(result.calls) == 0 {
			return req.OnMessage(entity.RoleAssistant, result.text, nil)
		}

		records, indices := orderedCalls(result.calls)
		assistant := ChatMessage{
			Role:      entity.RoleAssistant,
			Content:   result.text,
			ToolCalls: records,
		}
		if err := req.OnMessage(entity.RoleAssistant, result.text, &entity.MessageMeta{ToolCalls: records}); err != nil {
			return err
		}
		conv = append(conv, assistant)

		for _, index := range indices {
			call := result.calls[index]
			output, err := l.executeCall(ctx, req, call)
			if err != nil {
				return err
			}
			if err := req.OnMessage(entity.RoleTool, output, &entity.MessageMeta{ToolCallID: call.id}); err != nil {
				return err
			}
			conv = append(conv, ChatMessage{
				Role:       entity.RoleTool,
				Content:    output,
				ToolCallID: call.id,
			})
		}
	}

	// Still asking for tools at the ceiling: terminate the turn with a
	// synthetic assistant message instead of erroring.
	noun := "iterations"
	if ceiling == 1 {
		noun = "iteration"
	}
	stopped := fmt.Sprintf("Stopped after %d %s — possible runaway loop.", ceiling, noun)
	l.logger.Warn("Iteration ceiling reached", zap.Int("ceiling", ceiling))

	if err := req.OnEvent(entity.AgentEvent{Type: entity.EventText, Text: stopped}); err != nil {
		return err
	}
	return req.OnMessage(entity.RoleAssistant, stopped, nil)
}

// streamIteration performs one provider call, forwarding text deltas as
// events and accumulating tool-call fragments.
func (l *AgentLoop) streamIteration(ctx context.Context, req *LoopRequest, conv []ChatMessage, tools []tool.Definition) (*iterationResult, error) {
	events := make(chan StreamEvent, 64)
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.client.StreamChat(ctx, &ChatRequest{
			Model:    req.Model,
			Messages: conv,
			Tools:    tools,
		}, events)
		close(events)
	}()

	result := &iterationResult{calls: make(map[int]*pendingCall)}
	var text strings.Builder
	var sinkErr error

	for event := range events {
		if sinkErr != nil {
			continue // drain; the stream goroutine must not block
		}
		switch event.Type {
		case StreamText:
			text.WriteString(event.Text)
			sinkErr = req.OnEvent(entity.AgentEvent{Type: entity.EventText, Text: event.Text})

		case StreamToolCallStart:
			result.calls[event.Index] = &pendingCall{id: event.ID, name: event.Name}

		case StreamToolCallDelta:
			call, ok := result.calls[event.Index]
			if !ok {
				// Fragment before its start chunk; seed an anonymous slot
				// so nothing is dropped.
				call = &pendingCall{}
				result.calls[event.Index] = call
			}
			call.args.WriteString(event.Fragment)

		case StreamFinish:
			result.finish = event.FinishReason
		}
	}

	if err := <-errCh; err != nil {
		return nil, err
	}
	if sinkErr != nil {
		return nil, sinkErr
	}

	result.text = text.String()
	if result.finish == "" {
		result.finish = FinishStop
	}
	return result, nil
}

// executeCall runs one accumulated tool call and emits its event pair.
func (l *AgentLoop) executeCall(ctx context.Context, req *LoopRequest, call *pendingCall) (string, error) {
	args := parseArguments(call.args.String())

	if err := req.OnEvent(entity.AgentEvent{
		Type:       entity.EventToolCall,
		ToolCallID: call.id,
		ToolName:   call.name,
		Arguments:  args,
	}); err != nil {
		return "", err
	}

	result := l.invoke(ctx, req, call.name, args)

	l.logger.Debug("Tool executed",
		zap.String("tool", call.name),
		zap.Bool("is_error", result.IsError),
		zap.Int("output_bytes", len(result.Output)),
	)

	if err := req.OnEvent(entity.AgentEvent{
		Type:       entity.EventToolResult,
		ToolCallID: call.id,
		ToolName:   call.name,
		Output:     result.Output,
		IsError:    result.IsError,
	}); err != nil {
		return "", err
	}
	return result.Output, nil
}

func (l *AgentLoop) invoke(ctx context.Context, req *LoopRequest, name string, args map[string]interface{}) *tool.Result {
	var impl tool.Tool
	if req.Registry != nil {
		impl, _ = req.Registry.Get(name)
	}
	if impl == nil {
		return tool.Errorf("Unknown tool: %s", name)
	}

	result, err := impl.Execute(ctx, args, tool.Context{ProjectRoot: req.ProjectRoot})
	if err != nil {
		return tool.Errorf("Tool execution error: %v", err)
	}
	return result
}

// parseArguments tolerates malformed buffers: the tool's own argument
// validation produces a message the model can act on, which an aborted
// turn would not.
func parseArguments(buffer string) map[string]interface{} {
	if strings.TrimSpace(buffer) == "" {
		return map[string]interface{}{}
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(buffer), &args); err != nil || args == nil {
		return map[string]interface{}{}
	}
	return args
}

// orderedCalls flattens the accumulator by ascending provider index.
func orderedCalls(calls map[int]*pendingCall) ([]entity.ToolCallRecord, []int) {
	indices := make([]int, 0, len(calls))
	for index := range calls {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	records := make([]entity.ToolCallRecord, 0, len(indices))
	for _, index := range indices {
		call := calls[index]
		records = append(records, entity.ToolCallRecord{
			ID:        call.id,
			Name:      call.name,
			Arguments: call.args.String(),
		})
	}
	return records, indices
}
