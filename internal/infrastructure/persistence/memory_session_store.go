package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nilcaream/bobai/internal/domain/entity"
	"github.com/nilcaream/bobai/internal/domain/repository"
	domainErrors "github.com/nilcaream/bobai/pkg/errors"
)

// MemorySessionStore is an in-memory session store for tests and
// ephemeral runs. One mutex covers both maps, which also serializes
// appends the way the database transaction does.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*entity.Session
	messages map[string][]*entity.Message
}

// NewMemorySessionStore creates the in-memory store.
func NewMemorySessionStore() repository.SessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*entity.Session),
		messages: make(map[string][]*entity.Message),
	}
}

func (s *MemorySessionStore) CreateSession(ctx context.Context, systemPrompt string) (*entity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	session := &entity.Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[session.ID] = session
	s.messages[session.ID] = []*entity.Message{{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Role:      entity.RoleSystem,
		Content:   systemPrompt,
		CreatedAt: now,
		SortOrder: 0,
	}}

	copied := *session
	return &copied, nil
}

func (s *MemorySessionStore) AppendMessage(ctx context.Context, sessionID, role, content string, meta *entity.MessageMeta) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return 0, domainErrors.NewNotFoundError("session not found: " + sessionID)
	}

	history := s.messages[sessionID]
	next := 0
	if n := len(history); n > 0 {
		next = history[n-1].SortOrder + 1
	}

	now := time.Now().UTC()
	s.messages[sessionID] = append(history, &entity.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
		SortOrder: next,
		Meta:      meta,
	})
	session.UpdatedAt = now

	return next, nil
}

func (s *MemorySessionStore) GetSession(ctx context.Context, id string) (*entity.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, domainErrors.NewNotFoundError("session not found: " + id)
	}
	copied := *session
	return &copied, nil
}

func (s *MemorySessionStore) ListSessions(ctx context.Context) ([]*entity.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*entity.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		copied := *session
		sessions = append(sessions, &copied)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

func (s *MemorySessionStore) GetMessages(ctx context.Context, sessionID string) ([]*entity.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, domainErrors.NewNotFoundError("session not found: " + sessionID)
	}

	history := s.messages[sessionID]
	messages := make([]*entity.Message, 0, len(history))
	for _, msg := range history {
		copied := *msg
		messages = append(messages, &copied)
	}
	return messages, nil
}
