package repository

import (
	"context"
	"errors"

	"github.com/velvetcast/session-service/internal/domain"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository looks up conversation records. The engine only
// reads conversations; creation belongs to the platform's CRUD layer.
type ConversationRepository interface {
	FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error)
	ListByIDs(ctx context.Context, ids []string) ([]domain.Conversation, error)
}
