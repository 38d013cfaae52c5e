package models

import "time"

// WebhookEvent records every inbound vendor event for auditing and for
// diagnosing duplicate or failed deliveries. ProviderEventID is empty for
// providers that do not send one (Auth0 log streams may omit it).
type WebhookEvent struct {
	Base
	Provider        string     `gorm:"not null;index" json:"provider"` // auth0, stripe
	ProviderEventID string     `gorm:"index" json:"provider_event_id"`
	EventType       string     `gorm:"not null;index" json:"event_type"`
	Payload         string     `gorm:"type:text" json:"payload"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
