package models

import "github.com/google/uuid"

// JournalEntry body is encrypted at rest (age). Body holds the
// base64-encoded ciphertext; plaintext only exists in API responses.
type JournalEntry struct {
	Base
	UserID uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Title  string    `json:"title"`
	Body   string    `gorm:"type:text" json:"-"`
	Mood   string    `json:"mood"`
}

func (JournalEntry) TableName() string {
	return "journal_entries"
}
