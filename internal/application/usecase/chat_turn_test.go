package usecase

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/nilcaream/bobai/internal/domain/entity"
	"github.com/nilcaream/bobai/internal/domain/repository"
	"github.com/nilcaream/bobai/internal/domain/service"
	"github.com/nilcaream/bobai/internal/domain/tool"
	"github.com/nilcaream/bobai/internal/infrastructure/persistence"
)

// frame is one recorded outbound frame.
type frame struct {
	kind      string
	text      string
	id        string
	name      string
	args      map[string]interface{}
	output    string
	isError   bool
	sessionID string
	model     string
}

// recordingSink captures the outbound frame sequence.
type recordingSink struct {
	frames []frame
}

func (s *recordingSink) Token(text string) error {
	s.frames = append(s.frames, frame{kind: "token", text: text})
	return nil
}

func (s *recordingSink) ToolCall(id, name string, args map[string]interface{}) error {
	s.frames = append(s.frames, frame{kind: "tool_call", id: id, name: name, args: args})
	return nil
}

func (s *recordingSink) ToolResult(id, name, output string, isError bool) error {
	s.frames = append(s.frames, frame{kind: "tool_result", id: id, name: name, output: output, isError: isError})
	return nil
}

func (s *recordingSink) Done(sessionID, model string) error {
	s.frames = append(s.frames, frame{kind: "done", sessionID: sessionID, model: model})
	return nil
}

func (s *recordingSink) Error(message string) error {
	s.frames = append(s.frames, frame{kind: "error", text: message})
	return nil
}

func (s *recordingSink) kinds() []string {
	kinds := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		kinds = append(kinds, f.kind)
	}
	return kinds
}

// scriptedClient replays one event sequence per call; an entry with
// fail set returns that error instead.
type scriptedCall struct {
	events []service.StreamEvent
	fail   error
}

type scriptedClient struct {
	calls    []scriptedCall
	requests []*service.ChatRequest
}

func (c *scriptedClient) StreamChat(ctx context.Context, req *service.ChatRequest, events chan<- service.StreamEvent) error {
	c.requests = append(c.requests, req)
	if len(c.calls) == 0 {
		return fmt.Errorf("unexpected provider call %d", len(c.requests))
	}
	call := c.calls[0]
	c.calls = c.calls[1:]
	if call.fail != nil {
		return call.fail
	}
	for _, event := range call.events {
		events <- event
	}
	return nil
}

func newUseCase(t *testing.T, client service.LLMClient, registry *tool.Registry) (*ChatTurnUseCase, repository.SessionStore) {
	t.Helper()
	store := persistence.NewMemorySessionStore()
	uc := NewChatTurnUseCase(store, client, registry, t.TempDir(),
		"gpt-4o", "You are a coding assistant.", 20, zap.NewNop())
	return uc, store
}

func textTurn(chunks ...string) scriptedCall {
	var events []service.StreamEvent
	for _, chunk := range chunks {
		events = append(events, service.StreamEvent{Type: service.StreamText, Text: chunk})
	}
	events = append(events, service.StreamEvent{Type: service.StreamFinish, FinishReason: service.FinishStop})
	return scriptedCall{events: events}
}

func TestHandle_PlainTextTurn(t *testing.T) {
	client := &scriptedClient{calls: []scriptedCall{textTurn("Hello", " world")}}
	uc, store := newUseCase(t, client, tool.NewRegistry())
	sink := &recordingSink{}

	uc.Handle(context.Background(), sink, Prompt{Text: "hi"})

	want := []string{"token", "token", "done"}
	if got := sink.kinds(); len(got) != len(want) || got[0] != "token" || got[2] != "done" {
		t.Fatalf("unexpected frame sequence: %v", got)
	}
	if sink.frames[0].text != "Hello" || sink.frames[1].text != " world" {
		t.Fatalf("token contents wrong: %+v", sink.frames[:2])
	}
	done := sink.frames[2]
	if done.sessionID == "" || done.model != "gpt-4o" {
		t.Fatalf("done frame incomplete: %+v", done)
	}

	messages, err := store.GetMessages(context.Background(), done.sessionID)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	roles := make([]string, 0, len(messages))
	for _, m := range messages {
		roles = append(roles, m.Role)
	}
	if len(roles) != 3 || roles[0] != entity.RoleSystem || roles[1] != entity.RoleUser || roles[2] != entity.RoleAssistant {
		t.Fatalf("unexpected rows: %v", roles)
	}
	if messages[2].Content != "Hello world" {
		t.Fatalf("assistant content %q", messages[2].Content)
	}
}

func TestHandle_ToolRoundTripFrames(t *testing.T) {
	registry := tool.NewRegistry()
	if err := registry.Register(echoTool{}); err != nil {
		t.Fatal(err)
	}
	client := &scriptedClient{calls: []scriptedCall{
		{events: []service.StreamEvent{
			{Type: service.StreamToolCallStart, Index: 0, ID: "c1", Name: "echo"},
			{Type: service.StreamToolCallDelta, Index: 0, Fragment: `{"text":"hi"}`},
			{Type: service.StreamFinish, FinishReason: service.FinishToolCalls},
		}},
		textTurn("done"),
	}}
	uc, _ := newUseCase(t, client, registry)
	sink := &recordingSink{}

	uc.Handle(context.Background(), sink, Prompt{Text: "run echo"})

	got := sink.kinds()
	want := []string{"tool_call", "tool_result", "token", "done"}
	if len(got) != len(want) {
		t.Fatalf("frames %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frames %v, want %v", got, want)
		}
	}
	call := sink.frames[0]
	if call.name != "echo" || call.args["text"] != "hi" {
		t.Fatalf("tool_call frame wrong: %+v", call)
	}
	if res := sink.frames[1]; res.output != "echoed: hi" || res.isError {
		t.Fatalf("tool_result frame wrong: %+v", res)
	}
}

func TestHandle_SessionNotFound(t *testing.T) {
	client := &scriptedClient{}
	uc, store := newUseCase(t, client, tool.NewRegistry())
	sink := &recordingSink{}

	uc.Handle(context.Background(), sink, Prompt{Text: "hi", SessionID: "ghost"})

	if got := sink.kinds(); len(got) != 1 || got[0] != "error" {
		t.Fatalf("expected a single error frame, got %v", got)
	}
	if !strings.Contains(sink.frames[0].text, "Session not found: ghost") {
		t.Fatalf("unexpected error text: %q", sink.frames[0].text)
	}
	if len(client.requests) != 0 {
		t.Fatal("provider must not be called")
	}
	sessions, _ := store.ListSessions(context.Background())
	if len(sessions) != 0 {
		t.Fatalf("nothing may be persisted, found %d sessions", len(sessions))
	}
}

func TestHandle_ProviderErrorThenResume(t *testing.T) {
	client := &scriptedClient{calls: []scriptedCall{
		{fail: &service.ProviderError{StatusCode: 500, Body: "upstream exploded"}},
		textTurn("recovered"),
	}}
	uc, store := newUseCase(t, client, tool.NewRegistry())

	// Turn 1: the provider 500s.
	first := &recordingSink{}
	uc.Handle(context.Background(), first, Prompt{Text: "q"})

	got := first.kinds()
	if len(got) != 2 || got[0] != "error" || got[1] != "done" {
		t.Fatalf("expected error then done, got %v", got)
	}
	if want := "Provider error (500): upstream exploded"; first.frames[0].text != want {
		t.Fatalf("error frame %q, want %q", first.frames[0].text, want)
	}
	sessionID := first.frames[1].sessionID
	if sessionID == "" {
		t.Fatal("done frame must carry the session id for resume")
	}

	messages, err := store.GetMessages(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	last := messages[len(messages)-1]
	if last.Role != entity.RoleAssistant || last.Content != "[Error: Provider error (500): upstream exploded]" {
		t.Fatalf("failure not persisted as history: %+v", last)
	}

	// Turn 2: resume the same session; the error message rides along.
	second := &recordingSink{}
	uc.Handle(context.Background(), second, Prompt{Text: "try again", SessionID: sessionID})

	if got := second.kinds(); got[len(got)-1] != "done" {
		t.Fatalf("resume did not complete: %v", got)
	}
	resumed := client.requests[1].Messages
	found := false
	for _, msg := range resumed {
		if strings.HasPrefix(msg.Content, "[Error: Provider error (500)") {
			found = true
		}
	}
	if !found {
		t.Fatal("resumed history must include the persisted error message")
	}
	if last := resumed[len(resumed)-1]; last.Role != entity.RoleUser || last.Content != "try again" {
		t.Fatalf("resumed history must end with the new prompt: %+v", last)
	}
}

func TestHandle_CancelledTurnEmitsNoDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &scriptedClient{calls: []scriptedCall{textTurn("late")}}
	uc, _ := newUseCase(t, client, tool.NewRegistry())
	sink := &recordingSink{}

	uc.Handle(ctx, sink, Prompt{Text: "hi"})

	for _, f := range sink.frames {
		if f.kind == "done" {
			t.Fatalf("cancelled turn must not emit done: %v", sink.kinds())
		}
	}
}

// echoTool mirrors the registry's builtin contract for tests.
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
