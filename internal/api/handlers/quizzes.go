package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/projectbrain/backend/internal/api/dto"
	"github.com/projectbrain/backend/internal/api/middleware"
	"github.com/projectbrain/backend/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuizHandler struct {
	db *gorm.DB
}

func NewQuizHandler(db *gorm.DB) *QuizHandler {
	return &QuizHandler{db: db}
}

type SubmitQuizRequest struct {
	Answers json.RawMessage `json:"answers"`
	Score   int             `json:"score"`
}

func (r SubmitQuizRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if len(r.Answers) == 0 {
		errors["answers"] = "Answers are required"
	} else if !json.Valid(r.Answers) {
		errors["answers"] = "Answers must be valid JSON"
	}
	return errors
}

type QuizResponse struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Questions json.RawMessage `json:"questions"`
	IsActive  bool            `json:"is_active"`
	CreatedAt string          `json:"created_at"`
}

func quizToResponse(quiz *models.Quiz) QuizResponse {
	return QuizResponse{
		ID:        quiz.ID.String(),
		Title:     quiz.Title,
		Questions: json.RawMessage(quiz.Questions),
		IsActive:  quiz.IsActive,
		CreatedAt: quiz.CreatedAt.Format(time.RFC3339),
	}
}

type QuizSubmissionResponse struct {
	ID        string          `json:"id"`
	QuizID    string          `json:"quiz_id"`
	Answers   json.RawMessage `json:"answers"`
	Score     int             `json:"score"`
	UpdatedAt string          `json:"updated_at"`
}

func submissionToResponse(response *models.QuizResponse) QuizSubmissionResponse {
	return QuizSubmissionResponse{
		ID:        response.ID.String(),
		QuizID:    response.QuizID.String(),
		Answers:   json.RawMessage(response.Answers),
		Score:     response.Score,
		UpdatedAt: response.UpdatedAt.Format(time.RFC3339),
	}
}

// List handles GET /api/v1/quizzes and returns active quizzes only.
func (h *QuizHandler) List(w http.ResponseWriter, r *http.Request) {
	var quizzes []models.Quiz
	if err := h.db.WithContext(r.Context()).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&quizzes).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list quizzes"})
		return
	}

	response := make([]QuizResponse, len(quizzes))
	for i, quiz := range quizzes {
		response[i] = quizToResponse(&quiz)
	}
	writeJSON(w, http.StatusOK, response)
}

// Get handles GET /api/v1/quizzes/:id
func (h *QuizHandler) Get(w http.ResponseWriter, r *http.Request) {
	quiz, ok := h.activeQuiz(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, quizToResponse(quiz))
}

// Submit handles POST /api/v1/quizzes/:id/responses. Resubmitting
// replaces the user's previous answers for the quiz.
func (h *QuizHandler) Submit(w http.ResponseWriter, r *http.Request) {
	quiz, ok := h.activeQuiz(w, r)
	if !ok {
		return
	}
	userID := middleware.GetUserID(r.Context())

	var req SubmitQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	response := models.QuizResponse{
		QuizID:  quiz.ID,
		UserID:  userID,
		Answers: string(req.Answers),
		Score:   req.Score,
	}
	err := h.db.WithContext(r.Context()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "quiz_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"answers", "score", "updated_at"}),
	}).Create(&response).Error
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to save response"})
		return
	}

	writeJSON(w, http.StatusCreated, submissionToResponse(&response))
}

// MyResponses handles GET /api/v1/quizzes/responses
func (h *QuizHandler) MyResponses(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var responses []models.QuizResponse
	if err := h.db.WithContext(r.Context()).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&responses).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list responses"})
		return
	}

	result := make([]QuizSubmissionResponse, len(responses))
	for i, response := range responses {
		result[i] = submissionToResponse(&response)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *QuizHandler) activeQuiz(w http.ResponseWriter, r *http.Request) (*models.Quiz, bool) {
	quizID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid quiz ID"})
		return nil, false
	}

	var quiz models.Quiz
	err = h.db.WithContext(r.Context()).
		Where("id = ? AND is_active = ?", quizID, true).
		First(&quiz).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Quiz not found"})
		return nil, false
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get quiz"})
		return nil, false
	}
	return &quiz, true
}
