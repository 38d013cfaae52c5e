package webhooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/projectbrain/backend/internal/database/models"
	"gorm.io/gorm"
)

// recordEvent persists an audit row for an inbound vendor event. Auditing
// is best-effort: a failed insert is logged and processing continues.
func recordEvent(ctx context.Context, db *gorm.DB, logger *slog.Logger, provider, providerEventID, eventType, payload string) *models.WebhookEvent {
	event := &models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: providerEventID,
		EventType:       eventType,
		Payload:         payload,
	}
	if err := db.WithContext(ctx).Create(event).Error; err != nil {
		logger.Warn("failed to record webhook event", "provider", provider, "type", eventType, "error", err)
		return nil
	}
	return event
}

func markProcessed(ctx context.Context, db *gorm.DB, logger *slog.Logger, event *models.WebhookEvent, processingErr error) {
	if event == nil {
		return
	}
	updates := map[string]interface{}{"processed_at": time.Now()}
	if processingErr != nil {
		updates["processing_error"] = processingErr.Error()
	}
	if err := db.WithContext(ctx).Model(event).Updates(updates).Error; err != nil {
		logger.Warn("failed to update webhook event", "id", event.ID, "error", err)
	}
}
