package repository

import (
	"time"

	"github.com/velvetcast/session-service/internal/domain"
)

// ConversationModel is the GORM persistence model for conversations.
type ConversationModel struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)"`
	Type        string    `gorm:"type:varchar(16);not null;index"`
	PerformerID string    `gorm:"type:varchar(64);not null;index"`
	StreamID    string    `gorm:"type:varchar(64);index"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName overrides the GORM table name.
func (ConversationModel) TableName() string {
	return "conversations"
}

// ToDomain converts the persistence model to the domain object.
func (m *ConversationModel) ToDomain() *domain.Conversation {
	return &domain.Conversation{
		ID:          m.ID,
		Type:        domain.ConversationType(m.Type),
		PerformerID: m.PerformerID,
		StreamID:    m.StreamID,
	}
}
