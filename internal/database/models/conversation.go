package models

import "github.com/google/uuid"

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Conversation owns an ordered sequence of chat messages. Deleting a
// conversation cascades to its messages. Background tasks never touch
// conversations.
type Conversation struct {
	Base
	UserID uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Title  string    `json:"title"`

	Messages []ChatMessage `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

type ChatMessage struct {
	Base
	ConversationID uuid.UUID   `gorm:"type:uuid;index;not null" json:"conversation_id"`
	Role           MessageRole `gorm:"not null" json:"role"`
	Content        string      `gorm:"not null" json:"content"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
