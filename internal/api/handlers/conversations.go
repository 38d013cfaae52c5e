package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/projectbrain/backend/internal/api/dto"
	"github.com/projectbrain/backend/internal/api/middleware"
	"github.com/projectbrain/backend/internal/database/models"
	"gorm.io/gorm"
)

type ConversationHandler struct {
	db *gorm.DB
}

func NewConversationHandler(db *gorm.DB) *ConversationHandler {
	return &ConversationHandler{db: db}
}

type CreateConversationRequest struct {
	Title string `json:"title"`
}

func (r CreateConversationRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Title == "" {
		errors["title"] = "Title is required"
	}
	if len(r.Title) > 200 {
		errors["title"] = "Title is too long"
	}
	return errors
}

type AddMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (r AddMessageRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Role != string(models.MessageRoleUser) && r.Role != string(models.MessageRoleAssistant) {
		errors["role"] = "Role must be user or assistant"
	}
	if r.Content == "" {
		errors["content"] = "Content is required"
	}
	return errors
}

type MessageResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type ConversationResponse struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Messages  []MessageResponse `json:"messages,omitempty"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
}

func conversationToResponse(c *models.Conversation, includeMessages bool) ConversationResponse {
	resp := ConversationResponse{
		ID:        c.ID.String(),
		Title:     c.Title,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
	}
	if includeMessages {
		resp.Messages = make([]MessageResponse, len(c.Messages))
		for i, m := range c.Messages {
			resp.Messages[i] = MessageResponse{
				ID:        m.ID.String(),
				Role:      string(m.Role),
				Content:   m.Content,
				CreatedAt: m.CreatedAt.Format(time.RFC3339),
			}
		}
	}
	return resp
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	query := h.db.Model(&models.Conversation{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to count conversations"})
		return
	}

	var conversations []models.Conversation
	if err := query.
		Order("updated_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&conversations).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list conversations"})
		return
	}

	response := make([]ConversationResponse, len(conversations))
	for i, c := range conversations {
		response[i] = conversationToResponse(&c, false)
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       response,
		Total:      total,
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		TotalPages: totalPages(total, pagination.PerPage),
	})
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	conversation := models.Conversation{
		UserID: userID,
		Title:  req.Title,
	}
	if err := h.db.WithContext(r.Context()).Create(&conversation).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create conversation"})
		return
	}

	writeJSON(w, http.StatusCreated, conversationToResponse(&conversation, false))
}

// Get handles GET /api/v1/conversations/:id
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conversation, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}

	if err := h.db.WithContext(r.Context()).
		Where("conversation_id = ?", conversation.ID).
		Order("created_at ASC").
		Find(&conversation.Messages).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load messages"})
		return
	}

	writeJSON(w, http.StatusOK, conversationToResponse(conversation, true))
}

// Rename handles PUT /api/v1/conversations/:id
func (h *ConversationHandler) Rename(w http.ResponseWriter, r *http.Request) {
	conversation, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	if err := h.db.WithContext(r.Context()).Model(conversation).Update("title", req.Title).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to rename conversation"})
		return
	}
	conversation.Title = req.Title

	writeJSON(w, http.StatusOK, conversationToResponse(conversation, false))
}

// ListMessages handles GET /api/v1/conversations/:id/messages
func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	conversation, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}

	var messages []models.ChatMessage
	if err := h.db.WithContext(r.Context()).
		Where("conversation_id = ?", conversation.ID).
		Order("created_at ASC").
		Find(&messages).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load messages"})
		return
	}

	response := make([]MessageResponse, len(messages))
	for i, m := range messages {
		response[i] = MessageResponse{
			ID:        m.ID.String(),
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, response)
}

// AddMessage handles POST /api/v1/conversations/:id/messages
func (h *ConversationHandler) AddMessage(w http.ResponseWriter, r *http.Request) {
	conversation, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}

	var req AddMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	message := models.ChatMessage{
		ConversationID: conversation.ID,
		Role:           models.MessageRole(req.Role),
		Content:        req.Content,
	}
	err := h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		// Touch the conversation so List ordering reflects activity.
		return tx.Model(conversation).Update("updated_at", time.Now()).Error
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to add message"})
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{
		ID:        message.ID.String(),
		Role:      string(message.Role),
		Content:   message.Content,
		CreatedAt: message.CreatedAt.Format(time.RFC3339),
	})
}

// Delete handles DELETE /api/v1/conversations/:id. Messages go with the
// conversation in one transaction.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	conversation, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}

	err := h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", conversation.ID).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Delete(conversation).Error
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete conversation"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Conversation deleted"})
}

func (h *ConversationHandler) ownedConversation(w http.ResponseWriter, r *http.Request) (*models.Conversation, bool) {
	userID := middleware.GetUserID(r.Context())

	conversationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid conversation ID"})
		return nil, false
	}

	var conversation models.Conversation
	err = h.db.WithContext(r.Context()).
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Conversation not found"})
		return nil, false
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get conversation"})
		return nil, false
	}
	return &conversation, true
}
