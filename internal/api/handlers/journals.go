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
	"github.com/projectbrain/backend/pkg/crypto"
	"gorm.io/gorm"
)

// JournalHandler stores entry bodies encrypted at rest. The ciphertext
// never leaves the database; responses carry the decrypted body.
type JournalHandler struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
}

func NewJournalHandler(db *gorm.DB, encryptor *crypto.Encryptor) *JournalHandler {
	return &JournalHandler{db: db, encryptor: encryptor}
}

type JournalEntryRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Mood  string `json:"mood,omitempty"`
}

func (r JournalEntryRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Title == "" {
		errors["title"] = "Title is required"
	}
	if len(r.Title) > 200 {
		errors["title"] = "Title is too long"
	}
	if r.Body == "" {
		errors["body"] = "Body is required"
	}
	return errors
}

type JournalEntryResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body,omitempty"`
	Mood      string `json:"mood,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (h *JournalHandler) entryToResponse(entry *models.JournalEntry, includeBody bool) (JournalEntryResponse, error) {
	resp := JournalEntryResponse{
		ID:        entry.ID.String(),
		Title:     entry.Title,
		Mood:      entry.Mood,
		CreatedAt: entry.CreatedAt.Format(time.RFC3339),
		UpdatedAt: entry.UpdatedAt.Format(time.RFC3339),
	}
	if includeBody {
		body, err := h.encryptor.DecryptString(entry.Body)
		if err != nil {
			return resp, err
		}
		resp.Body = body
	}
	return resp, nil
}

// List handles GET /api/v1/journal. Bodies are omitted from listings.
func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	query := h.db.Model(&models.JournalEntry{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to count entries"})
		return
	}

	var entries []models.JournalEntry
	if err := query.
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&entries).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list entries"})
		return
	}

	response := make([]JournalEntryResponse, len(entries))
	for i, entry := range entries {
		resp, _ := h.entryToResponse(&entry, false)
		response[i] = resp
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       response,
		Total:      total,
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		TotalPages: totalPages(total, pagination.PerPage),
	})
}

// Create handles POST /api/v1/journal
func (h *JournalHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req JournalEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	ciphertext, err := h.encryptor.EncryptString(req.Body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create entry"})
		return
	}

	entry := models.JournalEntry{
		UserID: userID,
		Title:  req.Title,
		Body:   ciphertext,
		Mood:   req.Mood,
	}
	if err := h.db.WithContext(r.Context()).Create(&entry).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create entry"})
		return
	}

	resp, _ := h.entryToResponse(&entry, false)
	resp.Body = req.Body
	writeJSON(w, http.StatusCreated, resp)
}

// Get handles GET /api/v1/journal/:id
func (h *JournalHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.ownedEntry(w, r)
	if !ok {
		return
	}

	resp, err := h.entryToResponse(entry, true)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to decrypt entry"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Update handles PUT /api/v1/journal/:id
func (h *JournalHandler) Update(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.ownedEntry(w, r)
	if !ok {
		return
	}

	var req JournalEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	ciphertext, err := h.encryptor.EncryptString(req.Body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update entry"})
		return
	}

	updates := map[string]interface{}{
		"title": req.Title,
		"body":  ciphertext,
		"mood":  req.Mood,
	}
	if err := h.db.WithContext(r.Context()).Model(entry).Updates(updates).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update entry"})
		return
	}

	resp, _ := h.entryToResponse(entry, false)
	resp.Body = req.Body
	writeJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /api/v1/journal/:id
func (h *JournalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.ownedEntry(w, r)
	if !ok {
		return
	}

	if err := h.db.WithContext(r.Context()).Delete(entry).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete entry"})
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Entry deleted"})
}

func (h *JournalHandler) ownedEntry(w http.ResponseWriter, r *http.Request) (*models.JournalEntry, bool) {
	userID := middleware.GetUserID(r.Context())

	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid entry ID"})
		return nil, false
	}

	var entry models.JournalEntry
	err = h.db.WithContext(r.Context()).
		Where("id = ? AND user_id = ?", entryID, userID).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Entry not found"})
		return nil, false
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get entry"})
		return nil, false
	}
	return &entry, true
}
