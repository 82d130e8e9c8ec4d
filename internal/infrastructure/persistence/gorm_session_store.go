package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nilcaream/bobai/internal/domain/entity"
	"github.com/nilcaream/bobai/internal/domain/repository"
	"github.com/nilcaream/bobai/internal/infrastructure/persistence/models"
	domainErrors "github.com/nilcaream/bobai/pkg/errors"
)

// GormSessionStore is the gorm-backed session store.
type GormSessionStore struct {
	db *gorm.DB
}

// NewGormSessionStore creates the gorm session store.
func NewGormSessionStore(db *gorm.DB) repository.SessionStore {
	return &GormSessionStore{db: db}
}

// CreateSession inserts the session row and its system message at sort
// order 0 in one transaction.
func (s *GormSessionStore) CreateSession(ctx context.Context, systemPrompt string) (*entity.Session, error) {
	now := time.Now().UTC()
	model := &models.SessionModel{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		return tx.Create(&models.MessageModel{
			ID:        uuid.New().String(),
			SessionID: model.ID,
			SortOrder: 0,
			Role:      entity.RoleSystem,
			Content:   systemPrompt,
			CreatedAt: now,
		}).Error
	})
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to create session: " + err.Error())
	}

	return sessionToEntity(model), nil
}

// AppendMessage assigns max(sort_order)+1, inserts the message and bumps
// the session's updated_at, all inside one transaction. The unique index
// on (session_id, sort_order) makes racing appends fail instead of
// silently reordering.
func (s *GormSessionStore) AppendMessage(ctx context.Context, sessionID, role, content string, meta *entity.MessageMeta) (int, error) {
	metadata, err := marshalMeta(meta)
	if err != nil {
		return 0, err
	}

	var sortOrder int
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.SessionModel
		if err := tx.First(&session, "id = ?", sessionID).Error; err != nil {
			return err
		}

		var next int
		row := tx.Model(&models.MessageModel{}).
			Where("session_id = ?", sessionID).
			Select("COALESCE(MAX(sort_order), -1) + 1")
		if err := row.Scan(&next).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.Create(&models.MessageModel{
			ID:        uuid.New().String(),
			SessionID: sessionID,
			SortOrder: next,
			Role:      role,
			Content:   content,
			CreatedAt: now,
			Metadata:  metadata,
		}).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.SessionModel{}).
			Where("id = ?", sessionID).
			Update("updated_at", now).Error; err != nil {
			return err
		}

		sortOrder = next
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, gorm.ErrRecordNotFound) {
			return 0, domainErrors.NewNotFoundError("session not found: " + sessionID)
		}
		return 0, domainErrors.NewInternalError("failed to append message: " + txErr.Error())
	}

	return sortOrder, nil
}

// GetSession returns the session by id.
func (s *GormSessionStore) GetSession(ctx context.Context, id string) (*entity.Session, error) {
	var model models.SessionModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("session not found: " + id)
		}
		return nil, domainErrors.NewInternalError("failed to find session: " + err.Error())
	}
	return sessionToEntity(&model), nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *GormSessionStore) ListSessions(ctx context.Context) ([]*entity.Session, error) {
	var rows []models.SessionModel
	if err := s.db.WithContext(ctx).Order("updated_at desc").Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to list sessions: " + err.Error())
	}

	sessions := make([]*entity.Session, 0, len(rows))
	for i := range rows {
		sessions = append(sessions, sessionToEntity(&rows[i]))
	}
	return sessions, nil
}

// GetMessages returns the session's messages in ascending sort order.
func (s *GormSessionStore) GetMessages(ctx context.Context, sessionID string) ([]*entity.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	var rows []models.MessageModel
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("sort_order asc").
		Find(&rows).Error
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to find messages: " + err.Error())
	}

	messages := make([]*entity.Message, 0, len(rows))
	for i := range rows {
		msg, err := messageToEntity(&rows[i])
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func sessionToEntity(model *models.SessionModel) *entity.Session {
	return &entity.Session{
		ID:        model.ID,
		Title:     model.Title,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

func messageToEntity(model *models.MessageModel) (*entity.Message, error) {
	var meta *entity.MessageMeta
	if model.Metadata != "" {
		meta = &entity.MessageMeta{}
		if err := json.Unmarshal([]byte(model.Metadata), meta); err != nil {
			return nil, domainErrors.NewInternalError("failed to unmarshal message metadata: " + err.Error())
		}
	}

	return &entity.Message{
		ID:        model.ID,
		SessionID: model.SessionID,
		Role:      model.Role,
		Content:   model.Content,
		CreatedAt: model.CreatedAt,
		SortOrder: model.SortOrder,
		Meta:      meta,
	}, nil
}

func marshalMeta(meta *entity.MessageMeta) (string, error) {
	if meta == nil {
		return "", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", domainErrors.NewInternalError("failed to marshal message metadata: " + err.Error())
	}
	return string(data), nil
}
