package models

import "github.com/google/uuid"

type ResourceKind string

const (
	ResourceKindFile      ResourceKind = "file"
	ResourceKindVoiceNote ResourceKind = "voice_note"
)

// Resource is the metadata row for a blob-stored file or voice note.
// BlobKey is the object name inside the configured storage container.
type Resource struct {
	Base
	UserID      uuid.UUID    `gorm:"type:uuid;index;not null" json:"user_id"`
	Kind        ResourceKind `gorm:"not null" json:"kind"`
	Name        string       `gorm:"not null" json:"name"`
	ContentType string       `json:"content_type"`
	Size        int64        `json:"size"`
	BlobKey     string       `gorm:"uniqueIndex;not null" json:"-"`
}

func (Resource) TableName() string {
	return "resources"
}
