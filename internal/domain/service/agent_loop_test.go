package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/nilcaream/bobai/internal/domain/entity"
	"github.com/nilcaream/bobai/internal/domain/tool"
)

// scriptedClient replays one prepared event sequence per StreamChat
// call and records every request it receives.
type scriptedClient struct {
	scripts  [][]StreamEvent
	err      error
	requests []*ChatRequest
}

func (c *scriptedClient) StreamChat(ctx context.Context, req *ChatRequest, events chan<- StreamEvent) error {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return c.err
	}
	if len(c.scripts) == 0 {
		return fmt.Errorf("unexpected provider call %d", len(c.requests))
	}
	script := c.scripts[0]
	c.scripts = c.scripts[1:]
	for _, event := range script {
		events <- event
	}
	return nil
}

// echoTool answers with "echoed: <text>".
type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "Echo the text argument" }
func (echoTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"text": map[string]interface{}{"type": "string"}},
		"required":   []string{"text"},
	}
}
func (echoTool) Execute(ctx context.Context, args map[string]interface{}, tc tool.Context) (*tool.Result, error) {
	text, ok := args["text"].(string)
	if !ok {
		return tool.Errorf("text is required"), nil
	}
	return &tool.Result{Output: "echoed: " + text}, nil
}

// panickyTool always fails with a returned error.
type panickyTool struct{}

func (panickyTool) Name() string                     { return "broken" }
func (panickyTool) Description() string              { return "Always fails" }
func (panickyTool) Schema() map[string]interface{}   { return map[string]interface{}{"type": "object"} }
func (panickyTool) Execute(ctx context.Context, args map[string]interface{}, tc tool.Context) (*tool.Result, error) {
	return nil, fmt.Errorf("disk on fire")
}

type recordedMessage struct {
	role    string
	content string
	meta    *entity.MessageMeta
}

// runLoop drives one turn and captures events and messages.
func runLoop(t *testing.T, client LLMClient, registry *tool.Registry, ceiling int) ([]entity.AgentEvent, []recordedMessage, error) {
	t.Helper()
	var events []entity.AgentEvent
	var messages []recordedMessage

	loop := NewAgentLoop(client, zap.NewNop())
	err := loop.Run(context.Background(), &LoopRequest{
		Model: "gpt-4o",
		History: []ChatMessage{
			{Role: entity.RoleSystem, Content: "sys"},
			{Role: entity.RoleUser, Content: "hi"},
		},
		Registry:      registry,
		ProjectRoot:   t.TempDir(),
		MaxIterations: ceiling,
		OnEvent: func(event entity.AgentEvent) error {
			events = append(events, event)
			return nil
		},
		OnMessage: func(role, content string, meta *entity.MessageMeta) error {
			messages = append(messages, recordedMessage{role: role, content: content, meta: meta})
			return nil
		},
	})
	return events, messages, err
}

func TestRun_PlainTextTurn(t *testing.T) {
	client := &scriptedClient{scripts: [][]StreamEvent{{
		{Type: StreamText, Text: "Hello"},
		{Type: StreamText, Text: " world"},
		{Type: StreamFinish, FinishReason: FinishStop},
	}}}

	events, messages, err := runLoop(t, client, tool.NewRegistry(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(events) != 2 || events[0].Text != "Hello" || events[1].Text != " world" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].role != entity.RoleAssistant || messages[0].content != "Hello world" {
		t.Fatalf("unexpected assistant message: %+v", messages[0])
	}
	if len(client.requests) != 1 {
		t.Fatalf("expected a single provider call, got %d", len(client.requests))
	}
}

func TestRun_SingleToolRoundTrip(t *testing.T) {
	registry := tool.NewRegistry()
	if err := registry.Register(echoTool{}); err != nil {
		t.Fatal(err)
	}

	client := &scriptedClient{scripts: [][]StreamEvent{
		{
			{Type: StreamToolCallStart, Index: 0, ID: "c1", Name: "echo"},
			{Type: StreamToolCallDelta, Index: 0, Fragment: `{"text":`},
			{Type: StreamToolCallDelta, Index: 0, Fragment: `"hi"}`},
			{Type: StreamFinish, FinishReason: FinishToolCalls},
		},
		{
			{Type: StreamText, Text: "done"},
			{Type: StreamFinish, FinishReason: FinishStop},
		},
	}}

	events, messages, err := runLoop(t, client, registry, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Event order: tool_call, tool_result, then the second call's text.
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != entity.EventToolCall || events[0].ToolName != "echo" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if got := events[0].Arguments["text"]; got != "hi" {
		t.Fatalf("arguments not assembled across deltas: %+v", events[0].Arguments)
	}
	if events[1].Type != entity.EventToolResult || events[1].Output != "echoed: hi" || events[1].IsError {
		t.Fatalf("unexpected tool result: %+v", events[1])
	}
	if events[2].Type != entity.EventText || events[2].Text != "done" {
		t.Fatalf("unexpected final event: %+v", events[2])
	}

	// Messages: assistant(tool_calls), tool, assistant("done").
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	first := messages[0]
	if first.role != entity.RoleAssistant || first.meta == nil || len(first.meta.ToolCalls) != 1 {
		t.Fatalf("unexpected assistant tool-call message: %+v", first)
	}
	if tc := first.meta.ToolCalls[0]; tc.ID != "c1" || tc.Name != "echo" || tc.Arguments != `{"text":"hi"}` {
		t.Fatalf("tool call record mangled: %+v", tc)
	}
	second := messages[1]
	if second.role != entity.RoleTool || second.content != "echoed: hi" || second.meta.ToolCallID != "c1" {
		t.Fatalf("unexpected tool message: %+v", second)
	}
	if messages[2].role != entity.RoleAssistant || messages[2].content != "done" {
		t.Fatalf("unexpected final message: %+v", messages[2])
	}

	// The second provider call sees the assistant turn and the result.
	if len(client.requests) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(client.requests))
	}
	resubmitted := client.requests[1].Messages
	last := resubmitted[len(resubmitted)-1]
	if last.Role != entity.RoleTool || last.ToolCallID != "c1" || last.Content != "echoed: hi" {
		t.Fatalf("resubmitted history broken: %+v", last)
	}
	if prev := resubmitted[len(resubmitted)-2]; len(prev.ToolCalls) != 1 {
		t.Fatalf("assistant tool calls missing from history: %+v", prev)
	}
}

func TestRun_RunawayLoopCeiling(t *testing.T) {
	registry := tool.NewRegistry()
	if err := registry.Register(echoTool{}); err != nil {
		t.Fatal(err)
	}

	// Three identical tool-requesting iterations, ceiling 3.
	var scripts [][]StreamEvent
	for i := 0; i < 3; i++ {
		scripts = append(scripts, []StreamEvent{
			{Type: StreamToolCallStart, Index: 0, ID: fmt.Sprintf("c%d", i), Name: "echo"},
			{Type: StreamToolCallDelta, Index: 0, Fragment: `{"text":"again"}`},
			{Type: StreamFinish, FinishReason: FinishToolCalls},
		})
	}
	client := &scriptedClient{scripts: scripts}

	events, messages, err := runLoop(t, client, registry, 3)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	calls := 0
	for _, event := range events {
		if event.Type == entity.EventToolCall {
			calls++
		}
	}
	if calls != 3 {
		t.Fatalf("expected 3 tool calls before the ceiling, got %d", calls)
	}

	final := messages[len(messages)-1]
	want := "Stopped after 3 iterations — possible runaway loop."
	if final.role != entity.RoleAssistant || final.content != want {
		t.Fatalf("unexpected ceiling message: %+v", final)
	}
	// The ceiling message also streams to the client.
	if last := events[len(events)-1]; last.Type != entity.EventText || last.Text != want {
		t.Fatalf("ceiling message not emitted as event: %+v", last)
	}
}

func TestRun_CeilingOfOneUsesSingular(t *testing.T) {
	registry := tool.NewRegistry()
	if err := registry.Register(echoTool{}); err != nil {
		t.Fatal(err)
	}
	client := &scriptedClient{scripts: [][]StreamEvent{{
		{Type: StreamToolCallStart, Index: 0, ID: "c1", Name: "echo"},
		{Type: StreamToolCallDelta, Index: 0, Fragment: `{"text":"x"}`},
		{Type: StreamFinish, FinishReason: FinishToolCalls},
	}}}

	_, messages, err := runLoop(t, client, registry, 1)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	final := messages[len(messages)-1]
	if !strings.Contains(final.content, "after 1 iteration ") {
		t.Fatalf("singular form expected: %q", final.content)
	}
}

func TestRun_UnknownTool(t *testing.T) {
	client := &scriptedClient{scripts: [][]StreamEvent{
		{
			{Type: StreamToolCallStart, Index: 0, ID: "c1", Name: "launch_missiles"},
			{Type: StreamToolCallDelta, Index: 0, Fragment: `{}`},
			{Type: StreamFinish, FinishReason: FinishToolCalls},
		},
		{
			{Type: StreamText, Text: "sorry"},
			{Type: StreamFinish, FinishReason: FinishStop},
		},
	}}

	events, messages, err := runLoop(t, client, tool.NewRegistry(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var result *entity.AgentEvent
	for i := range events {
		if events[i].Type == entity.EventToolResult {
			result = &events[i]
		}
	}
	if result == nil || !result.IsError || result.Output != "Unknown tool: launch_missiles" {
		t.Fatalf("unexpected unknown-tool result: %+v", result)
	}
	if messages[1].content != "Unknown tool: launch_missiles" {
		t.Fatalf("unknown-tool result not fed back: %+v", messages[1])
	}
}

func TestRun_ToolErrorIsCaptured(t *testing.T) {
	registry := tool.NewRegistry()
	if err := registry.Register(panickyTool{}); err != nil {
		t.Fatal(err)
	}
	client := &scriptedClient{scripts: [][]StreamEvent{
		{
			{Type: StreamToolCallStart, Index: 0, ID: "c1", Name: "broken"},
			{Type: StreamFinish, FinishReason: FinishToolCalls},
		},
		{
			{Type: StreamText, Text: "noted"},
			{Type: StreamFinish, FinishReason: FinishStop},
		},
	}}

	_, messages, err := runLoop(t, client, registry, 0)
	if err != nil {
		t.Fatalf("a failing tool must not abort the turn: %v", err)
	}
	if got := messages[1].content; got != "Tool execution error: disk on fire" {
		t.Fatalf("unexpected captured error: %q", got)
	}
}

func TestRun_MalformedArgumentsBecomeEmptyObject(t *testing.T) {
	registry := tool.NewRegistry()
	if err := registry.Register(echoTool{}); err != nil {
		t.Fatal(err)
	}
	client := &scriptedClient{scripts: [][]StreamEvent{
		{
			{Type: StreamToolCallStart, Index: 0, ID: "c1", Name: "echo"},
			{Type: StreamToolCallDelta, Index: 0, Fragment: `{"text": oops`},
			{Type: StreamFinish, FinishReason: FinishToolCalls},
		},
		{
			{Type: StreamText, Text: "ok"},
			{Type: StreamFinish, FinishReason: FinishStop},
		},
	}}

	events, messages, err := runLoop(t, client, registry, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(events[0].Arguments) != 0 {
		t.Fatalf("malformed buffer must parse as empty object: %+v", events[0].Arguments)
	}
	// The tool's own validation answers, so the model can retry.
	if got := messages[1].content; got != "text is required" {
		t.Fatalf("expected the tool's validation message, got %q", got)
	}
	// The stored record keeps the raw buffer untouched.
	if raw := messages[0].meta.ToolCalls[0].Arguments; raw != `{"text": oops` {
		t.Fatalf("raw argument buffer rewritten: %q", raw)
	}
}

func TestRun_InterleavedCallsExecuteInIndexOrder(t *testing.T) {
	registry := tool.NewRegistry()
	if err := registry.Register(echoTool{}); err != nil {
		t.Fatal(err)
	}
	client := &scriptedClient{scripts: [][]StreamEvent{
		{
			// Index 1 starts first and fragments interleave.
			{Type: StreamToolCallStart, Index: 1, ID: "c-b", Name: "echo"},
			{Type: StreamToolCallStart, Index: 0, ID: "c-a", Name: "echo"},
			{Type: StreamToolCallDelta, Index: 1, Fragment: `{"text":"second"}`},
			{Type: StreamToolCallDelta, Index: 0, Fragment: `{"text":"first"}`},
			{Type: StreamFinish, FinishReason: FinishToolCalls},
		},
		{
			{Type: StreamText, Text: "ok"},
			{Type: StreamFinish, FinishReason: FinishStop},
		},
	}}

	events, messages, err := runLoop(t, client, registry, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var order []string
	for _, event := range events {
		if event.Type == entity.EventToolCall {
			order = append(order, event.ToolCallID)
		}
	}
	if len(order) != 2 || order[0] != "c-a" || order[1] != "c-b" {
		t.Fatalf("calls must run in ascending index order, got %v", order)
	}
	if records := messages[0].meta.ToolCalls; records[0].ID != "c-a" || records[1].ID != "c-b" {
		t.Fatalf("persisted order must match index order: %+v", records)
	}
}

func TestRun_MissingFinishTreatedAsStop(t *testing.T) {
	client := &scriptedClient{scripts: [][]StreamEvent{{
		{Type: StreamText, Text: "trailing"},
	}}}

	_, messages, err := runLoop(t, client, tool.NewRegistry(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(messages) != 1 || messages[0].content != "trailing" {
		t.Fatalf("stream without finish must terminate the turn: %+v", messages)
	}
}

func TestRun_ProviderErrorAbortsTurn(t *testing.T) {
	client := &scriptedClient{err: &ProviderError{StatusCode: 500, Body: "boom"}}

	events, messages, err := runLoop(t, client, tool.NewRegistry(), 0)
	if err == nil {
		t.Fatal("provider failure must surface")
	}
	if len(events) != 0 || len(messages) != 0 {
		t.Fatalf("nothing may be emitted on a failed call: %d events, %d messages", len(events), len(messages))
	}
}
