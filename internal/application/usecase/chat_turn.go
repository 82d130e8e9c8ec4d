package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nilcaream/bobai/internal/domain/entity"
	"github.com/nilcaream/bobai/internal/domain/repository"
	"github.com/nilcaream/bobai/internal/domain/service"
	"github.com/nilcaream/bobai/internal/domain/tool"
	domainErrors "github.com/nilcaream/bobai/pkg/errors"
)

// ClientSink receives the outbound frames of one turn, in order. The
// transport adapter implements it; implementations must be safe to call
// from the turn's goroutine only.
type ClientSink interface {
	Token(text string) error
	ToolCall(id, name string, args map[string]interface{}) error
	ToolResult(id, name, output string, isError bool) error
	Done(sessionID, model string) error
	Error(message string) error
}

// Prompt is one inbound prompt from the client.
type Prompt struct {
	Text      string
	SessionID string // empty starts a new session
}

// ChatTurnUseCase runs one prompt through the agent loop, persisting
// every produced message and translating agent events into client
// frames.
type ChatTurnUseCase struct {
	store         repository.SessionStore
	client        service.LLMClient
	registry      *tool.Registry
	projectRoot   string
	systemPrompt  string
	maxIterations int
	logger        *zap.Logger

	mu    sync.RWMutex
	model string
}

// NewChatTurnUseCase wires the turn handler.
func NewChatTurnUseCase(
	store repository.SessionStore,
	client service.LLMClient,
	registry *tool.Registry,
	projectRoot string,
	model string,
	systemPrompt string,
	maxIterations int,
	logger *zap.Logger,
) *ChatTurnUseCase {
	return &ChatTurnUseCase{
		store:         store,
		client:        client,
		registry:      registry,
		projectRoot:   projectRoot,
		model:         model,
		systemPrompt:  systemPrompt,
		maxIterations: maxIterations,
		logger:        logger,
	}
}

// Handle runs one turn. Every outcome except session-not-found and
// cancellation ends with a done frame: after a provider failure the
// session is still live, and the client needs the id to resume it.
func (uc *ChatTurnUseCase) Handle(ctx context.Context, sink ClientSink, prompt Prompt) {
	model := uc.currentModel()

	sessionID, err := uc.resolveSession(ctx, prompt.SessionID)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			_ = sink.Error("Session not found: " + prompt.SessionID)
			return
		}
		uc.logger.Error("Failed to resolve session", zap.Error(err))
		_ = sink.Error("Internal error: " + err.Error())
		return
	}

	if _, err := uc.store.AppendMessage(ctx, sessionID, entity.RoleUser, prompt.Text, nil); err != nil {
		uc.logger.Error("Failed to persist user message", zap.Error(err))
		_ = sink.Error("Internal error: " + err.Error())
		return
	}

	history, err := uc.loadHistory(ctx, sessionID)
	if err != nil {
		uc.logger.Error("Failed to load history", zap.Error(err))
		_ = sink.Error("Internal error: " + err.Error())
		return
	}

	loop := service.NewAgentLoop(uc.client, uc.logger)
	runErr := loop.Run(ctx, &service.LoopRequest{
		Model:         model,
		History:       history,
		Registry:      uc.registry,
		ProjectRoot:   uc.projectRoot,
		MaxIterations: uc.maxIterations,
		OnEvent: func(event entity.AgentEvent) error {
			return uc.forward(sink, event)
		},
		OnMessage: func(role, content string, meta *entity.MessageMeta) error {
			// A cancelled turn stops persisting; whatever landed earlier
			// stays, which is exactly what resume needs.
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := uc.store.AppendMessage(ctx, sessionID, role, content, meta)
			return err
		},
	})

	switch {
	case runErr == nil:
		_ = sink.Done(sessionID, model)

	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		uc.logger.Info("Turn cancelled", zap.String("session_id", sessionID))

	default:
		uc.failTurn(ctx, sink, sessionID, model, runErr)
	}
}

// SetModel swaps the model used by turns that start after the call.
func (uc *ChatTurnUseCase) SetModel(model string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.model = model
}

func (uc *ChatTurnUseCase) currentModel() string {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.model
}

// failTurn records a turn failure into the conversation and still hands
// the client its session id.
func (uc *ChatTurnUseCase) failTurn(ctx context.Context, sink ClientSink, sessionID, model string, runErr error) {
	var message string
	var perr *service.ProviderError
	if errors.As(runErr, &perr) {
		message = perr.Error()
	} else {
		message = runErr.Error()
	}

	uc.logger.Warn("Turn failed",
		zap.String("session_id", sessionID),
		zap.Error(runErr),
	)

	if _, err := uc.store.AppendMessage(ctx, sessionID, entity.RoleAssistant,
		fmt.Sprintf("[Error: %s]", message), nil); err != nil {
		uc.logger.Error("Failed to persist turn failure", zap.Error(err))
	}
	_ = sink.Error(message)
	_ = sink.Done(sessionID, model)
}

// resolveSession returns an existing session's id or creates a session
// seeded with the system prompt.
func (uc *ChatTurnUseCase) resolveSession(ctx context.Context, sessionID string) (string, error) {
	if sessionID != "" {
		session, err := uc.store.GetSession(ctx, sessionID)
		if err != nil {
			return "", err
		}
		return session.ID, nil
	}

	session, err := uc.store.CreateSession(ctx, uc.systemPrompt)
	if err != nil {
		return "", err
	}
	uc.logger.Info("Created session", zap.String("session_id", session.ID))
	return session.ID, nil
}

// loadHistory projects stored rows into the provider's message shape.
func (uc *ChatTurnUseCase) loadHistory(ctx context.Context, sessionID string) ([]service.ChatMessage, error) {
	stored, err := uc.store.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	history := make([]service.ChatMessage, 0, len(stored))
	for _, msg := range stored {
		chat := service.ChatMessage{Role: msg.Role, Content: msg.Content}
		if msg.Meta != nil {
			chat.ToolCalls = msg.Meta.ToolCalls
			chat.ToolCallID = msg.Meta.ToolCallID
		}
		history = append(history, chat)
	}
	return history, nil
}

// forward maps one agent event onto the client protocol.
func (uc *ChatTurnUseCase) forward(sink ClientSink, event entity.AgentEvent) error {
	switch event.Type {
	case entity.EventText:
		return sink.Token(event.Text)
	case entity.EventToolCall:
		return sink.ToolCall(event.ToolCallID, event.ToolName, event.Arguments)
	case entity.EventToolResult:
		return sink.ToolResult(event.ToolCallID, event.ToolName, event.Output, event.IsError)
	default:
		return fmt.Errorf("unknown agent event type: %s", event.Type)
	}
}

// ListSessions exposes the store's session index to read-only surfaces.
func (uc *ChatTurnUseCase) ListSessions(ctx context.Context) ([]*entity.Session, error) {
	return uc.store.ListSessions(ctx)
}

// SessionMessages exposes a session's ordered history.
func (uc *ChatTurnUseCase) SessionMessages(ctx context.Context, sessionID string) ([]*entity.Message, error) {
	return uc.store.GetMessages(ctx, sessionID)
}
