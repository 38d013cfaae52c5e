// Package webhooks receives vendor event callbacks (Auth0 user lifecycle,
// Stripe billing) and reconciles local state through idempotent handlers.
// Vendors deliver at-least-once and may reorder, so every handler
// tolerates duplicates and missing predecessors.
package webhooks

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/projectbrain/backend/internal/database/models"
	"github.com/projectbrain/backend/internal/resources"
	"github.com/projectbrain/backend/internal/tasks"
	"gorm.io/gorm"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// Auth0 event types delivered by the tenant's post-change action hooks.
const (
	eventUserCreated = "user.created"
	eventUserUpdated = "user.updated"
	eventUserDeleted = "user.deleted"
)

// auth0Envelope is the wire shape of an Auth0 event. Some hook versions
// capitalize the discriminator, so both spellings are accepted.
type auth0Envelope struct {
	Type      string `json:"type"`
	TypeUpper string `json:"Type"`
	Data      struct {
		Object auth0User `json:"object"`
	} `json:"data"`
}

func (e *auth0Envelope) eventType() string {
	if e.Type != "" {
		return e.Type
	}
	return e.TypeUpper
}

type auth0User struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Nickname      string `json:"nickname"`
	EmailVerified bool   `json:"email_verified"`
	Identities    []struct {
		Connection string `json:"connection"`
	} `json:"identities"`
}

func (u *auth0User) connection() string {
	if len(u.Identities) > 0 {
		return u.Identities[0].Connection
	}
	return ""
}

func (u *auth0User) displayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Nickname
}

// Auth0Handler authenticates, parses and dispatches Auth0 lifecycle
// events to the idempotent upsert handlers.
type Auth0Handler struct {
	db        *gorm.DB
	secret    string
	resources *resources.Service
	asynq     *asynq.Client
	logger    *slog.Logger
}

func NewAuth0Handler(db *gorm.DB, secret string, res *resources.Service, asynqClient *asynq.Client, logger *slog.Logger) *Auth0Handler {
	return &Auth0Handler{
		db:        db,
		secret:    secret,
		resources: res,
		asynq:     asynqClient,
		logger:    logger,
	}
}

// Handle implements POST /webhooks/auth0. Authentication or parse
// failures return 400 (the vendor must not retry those); handler
// failures return 500 so the vendor redelivers.
func (h *Auth0Handler) Handle(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(r) {
		h.logger.Warn("auth0 webhook with missing or invalid credential")
		writeStatus(w, http.StatusBadRequest, "unauthenticated")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var envelope auth0Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		h.logger.Warn("auth0 webhook with malformed body", "error", err)
		writeStatus(w, http.StatusBadRequest, "malformed payload")
		return
	}

	eventType := envelope.eventType()
	ctx := r.Context()
	audit := recordEvent(ctx, h.db, h.logger, "auth0", "", eventType, string(body))

	var handleErr error
	switch eventType {
	case eventUserCreated:
		handleErr = h.handleCreated(ctx, &envelope.Data.Object)
	case eventUserUpdated:
		handleErr = h.handleUpdated(ctx, &envelope.Data.Object)
	case eventUserDeleted:
		handleErr = h.handleDeleted(ctx, &envelope.Data.Object)
	default:
		// Acknowledged so the vendor does not retry events this
		// receiver intentionally ignores.
		h.logger.Info("ignoring auth0 event", "type", eventType)
		markProcessed(ctx, h.db, h.logger, audit, nil)
		writeStatus(w, http.StatusOK, "ignored")
		return
	}

	markProcessed(ctx, h.db, h.logger, audit, handleErr)
	if handleErr != nil {
		h.logger.Error("auth0 event handling failed", "type", eventType, "error", handleErr)
		writeStatus(w, http.StatusInternalServerError, "processing failed")
		return
	}
	writeStatus(w, http.StatusOK, "handled")
}

func (h *Auth0Handler) authenticated(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) == 1
}

// handleCreated inserts the user once. Redelivered create events find the
// existing row and succeed without side effects.
func (h *Auth0Handler) handleCreated(ctx context.Context, payload *auth0User) error {
	if payload.UserID == "" {
		return errors.New("event missing user_id")
	}

	var existing models.User
	err := h.db.WithContext(ctx).Where("auth0_id = ?", payload.UserID).First(&existing).Error
	if err == nil {
		h.logger.Info("user already exists, treating create as delivered", "auth0_id", payload.UserID)
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("looking up user: %w", err)
	}

	user := models.User{
		Auth0ID:       payload.UserID,
		Email:         payload.Email,
		Name:          payload.displayName(),
		Connection:    payload.connection(),
		EmailVerified: payload.EmailVerified,
		Onboarded:     false,
		Roles:         nil,
	}
	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	h.logger.Info("user created from auth0 event", "auth0_id", payload.UserID)
	h.enqueueWelcomeEmail(user.Email, user.Name)
	return nil
}

// handleUpdated overwrites only the Auth0-sourced fields. A missing user
// degrades to the create path, healing a lost create event.
func (h *Auth0Handler) handleUpdated(ctx context.Context, payload *auth0User) error {
	if payload.UserID == "" {
		return errors.New("event missing user_id")
	}

	var user models.User
	err := h.db.WithContext(ctx).Where("auth0_id = ?", payload.UserID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return h.handleCreated(ctx, payload)
	}
	if err != nil {
		return fmt.Errorf("looking up user: %w", err)
	}

	updates := map[string]interface{}{
		"email":          payload.Email,
		"name":           payload.displayName(),
		"connection":     payload.connection(),
		"email_verified": payload.EmailVerified,
	}
	if err := h.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	return nil
}

// handleDeleted removes the user and everything they own. Storage cleanup
// is best-effort; the user row is removed even when blob deletion
// partially fails.
func (h *Auth0Handler) handleDeleted(ctx context.Context, payload *auth0User) error {
	if payload.UserID == "" {
		return errors.New("event missing user_id")
	}

	var user models.User
	err := h.db.WithContext(ctx).Where("auth0_id = ?", payload.UserID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.logger.Info("user already deleted", "auth0_id", payload.UserID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up user: %w", err)
	}

	if err := h.resources.DeleteAllForUser(ctx, user.ID); err != nil {
		h.logger.Warn("partial resource cleanup during user deletion",
			"auth0_id", payload.UserID, "error", err)
	}

	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id IN (?)",
			tx.Model(&models.Conversation{}).Select("id").Where("user_id = ?", user.ID),
		).Delete(&models.ChatMessage{}).Error; err != nil {
			return fmt.Errorf("deleting chat messages: %w", err)
		}
		for _, model := range []interface{}{
			&models.Conversation{},
			&models.JournalEntry{},
			&models.QuizResponse{},
			&models.Subscription{},
		} {
			if err := tx.Where("user_id = ?", user.ID).Delete(model).Error; err != nil {
				return fmt.Errorf("deleting owned rows: %w", err)
			}
		}
		if err := tx.Unscoped().Delete(&user).Error; err != nil {
			return fmt.Errorf("deleting user: %w", err)
		}
		return nil
	})
}

// enqueueWelcomeEmail is a best-effort side effect: the user row already
// exists, so an enqueue failure must not fail the webhook.
func (h *Auth0Handler) enqueueWelcomeEmail(email, name string) {
	if h.asynq == nil || email == "" {
		return
	}
	task, err := tasks.NewWelcomeEmailTask(tasks.WelcomeEmailPayload{Email: email, Name: name})
	if err != nil {
		h.logger.Warn("failed to build welcome email task", "error", err)
		return
	}
	if _, err := h.asynq.Enqueue(task); err != nil {
		h.logger.Warn("failed to enqueue welcome email", "email", email, "error", err)
	}
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
