package repository

import (
	"context"

	"github.com/nilcaream/bobai/internal/domain/entity"
)

// SessionStore is the durable, ordered conversation history.
//
// Append operations within one session are serialized by the store's
// transaction; cross-session operations are independent. Implementations
// must return a pkg/errors NOT_FOUND error for unknown session ids.
type SessionStore interface {
	// CreateSession atomically inserts a new session together with its
	// system message at sort order 0 and returns the new session.
	CreateSession(ctx context.Context, systemPrompt string) (*entity.Session, error)

	// AppendMessage inserts a message at max(sort_order)+1 for the
	// session and bumps the session's updated_at, all in one
	// transaction. Returns the assigned sort order.
	AppendMessage(ctx context.Context, sessionID, role, content string, meta *entity.MessageMeta) (int, error)

	// GetSession returns the session by id.
	GetSession(ctx context.Context, id string) (*entity.Session, error)

	// ListSessions returns all sessions, most recently updated first.
	ListSessions(ctx context.Context) ([]*entity.Session, error)

	// GetMessages returns the session's messages in ascending sort order.
	GetMessages(ctx context.Context, sessionID string) ([]*entity.Message, error)
}
