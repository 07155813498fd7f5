package repository

import (
	"context"
	"sync"

	"github.com/velvetcast/session-service/internal/domain"
)

// MockConversationRepository is an in-memory ConversationRepository for tests.
type MockConversationRepository struct {
	mu            sync.RWMutex
	Conversations map[string]domain.Conversation
	FindErr       error
}

func NewMockConversationRepository() *MockConversationRepository {
	return &MockConversationRepository{
		Conversations: make(map[string]domain.Conversation),
	}
}

// Put seeds a conversation.
func (m *MockConversationRepository) Put(conv domain.Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Conversations[conv.ID] = conv
}

func (m *MockConversationRepository) FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FindErr != nil {
		return nil, m.FindErr
	}
	conv, ok := m.Conversations[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return &conv, nil
}

func (m *MockConversationRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FindErr != nil {
		return nil, m.FindErr
	}
	var out []domain.Conversation
	for _, id := range ids {
		if conv, ok := m.Conversations[id]; ok {
			out = append(out, conv)
		}
	}
	return out, nil
}
