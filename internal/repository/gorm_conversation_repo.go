package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/velvetcast/session-service/internal/domain"
	"github.com/velvetcast/session-service/internal/log"
)

// GormConversationRepository implements ConversationRepository using GORM.
type GormConversationRepository struct {
	db *gorm.DB
}

// NewGormConversationRepository creates a new GORM-based conversation repository.
func NewGormConversationRepository(db *gorm.DB) *GormConversationRepository {
	return &GormConversationRepository{db: db}
}

// FindByID retrieves a conversation by ID.
func (r *GormConversationRepository) FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	l := log.Ctx(ctx)

	var model ConversationModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", conversationID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldConversationID, conversationID).Msg("failed to get conversation by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// ListByIDs retrieves conversations matching the given ids. Unknown ids
// are simply absent from the result, not an error.
func (r *GormConversationRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.Conversation, error) {
	l := log.Ctx(ctx)

	if len(ids) == 0 {
		return nil, nil
	}

	var models []ConversationModel
	result := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models)
	if result.Error != nil {
		l.Error().Err(result.Error).Int("ids", len(ids)).Msg("failed to list conversations by ids")
		return nil, result.Error
	}

	conversations := make([]domain.Conversation, len(models))
	for i, model := range models {
		conversations[i] = *model.ToDomain()
	}
	return conversations, nil
}
