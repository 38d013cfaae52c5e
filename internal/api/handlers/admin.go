package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/projectbrain/backend/internal/api/dto"
	"github.com/projectbrain/backend/internal/auth0"
	"github.com/projectbrain/backend/internal/billing"
	"github.com/projectbrain/backend/internal/database/models"
	"gorm.io/gorm"
)

// AdminHandler serves the admin console: user management, role
// assignment (mirrored to Auth0) and billing exclusions.
type AdminHandler struct {
	db      *gorm.DB
	roles   auth0.RoleManager
	billing *billing.Service
	logger  *slog.Logger
}

func NewAdminHandler(db *gorm.DB, roles auth0.RoleManager, billingService *billing.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{db: db, roles: roles, billing: billingService, logger: logger}
}

type SetRolesRequest struct {
	Roles []string `json:"roles"`
}

func (r SetRolesRequest) Validate() map[string]string {
	errors := make(map[string]string)
	valid := map[string]bool{
		models.RoleAdmin:  true,
		models.RoleCoach:  true,
		models.RoleClient: true,
	}
	for _, role := range r.Roles {
		if !valid[role] {
			errors["roles"] = "Unknown role: " + role
			break
		}
	}
	return errors
}

type AssignCoachRequest struct {
	CoachID *string `json:"coach_id"`
}

type SetExclusionRequest struct {
	Excluded bool `json:"excluded"`
}

// ListUsers handles GET /api/v1/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	query := h.db.Model(&models.User{})
	if role := r.URL.Query().Get("role"); role != "" {
		query = query.Where("roles LIKE ?", "%"+role+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to count users"})
		return
	}

	var users []models.User
	if err := query.
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&users).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list users"})
		return
	}

	response := make([]UserResponse, len(users))
	for i, user := range users {
		response[i] = userToResponse(&user)
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       response,
		Total:      total,
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		TotalPages: totalPages(total, pagination.PerPage),
	})
}

// SetRoles handles PUT /api/v1/admin/users/:id/roles. The local roles
// array is the source of truth for authorization; the Auth0 mirror is
// best-effort and logged on failure.
func (h *AdminHandler) SetRoles(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookupUser(w, r)
	if !ok {
		return
	}

	var req SetRolesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	if err := h.db.WithContext(r.Context()).Model(user).
		Update("roles", models.StringArray(req.Roles)).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update roles"})
		return
	}
	user.Roles = models.StringArray(req.Roles)

	h.mirrorRolesToAuth0(r, user, req.Roles)

	writeJSON(w, http.StatusOK, userToResponse(user))
}

// AssignCoach handles PUT /api/v1/admin/users/:id/coach. A null
// coach_id clears the assignment.
func (h *AdminHandler) AssignCoach(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookupUser(w, r)
	if !ok {
		return
	}

	var req AssignCoachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if req.CoachID == nil || *req.CoachID == "" {
		if err := h.db.WithContext(r.Context()).Model(user).Update("coach_id", nil).Error; err != nil {
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to clear coach"})
			return
		}
		user.CoachID = nil
		writeJSON(w, http.StatusOK, userToResponse(user))
		return
	}

	coachID, err := uuid.Parse(*req.CoachID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Details: map[string]string{"coach_id": "Invalid coach ID format"},
		})
		return
	}

	var coach models.User
	if err := h.db.WithContext(r.Context()).First(&coach, "id = ?", coachID).Error; err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Coach not found"})
		return
	}
	if !coach.IsCoach() {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Details: map[string]string{"coach_id": "User does not have the coach role"},
		})
		return
	}

	if err := h.db.WithContext(r.Context()).Model(user).Update("coach_id", coachID).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to assign coach"})
		return
	}
	user.CoachID = &coachID
	writeJSON(w, http.StatusOK, userToResponse(user))
}

// SetExclusion handles PUT /api/v1/admin/users/:id/exclusion. Excluded
// users keep paid access regardless of their Stripe state.
func (h *AdminHandler) SetExclusion(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookupUser(w, r)
	if !ok {
		return
	}

	var req SetExclusionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if err := h.billing.SetExclusion(r.Context(), user.ID, req.Excluded); err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update exclusion"})
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Exclusion updated"})
}

// mirrorRolesToAuth0 maps local role names to Auth0 role ids and
// replaces the user's assignment. Failures degrade to a log line; the
// local array already holds the authoritative state.
func (h *AdminHandler) mirrorRolesToAuth0(r *http.Request, user *models.User, roleNames []string) {
	if h.roles == nil {
		return
	}
	ctx := r.Context()

	available, err := h.roles.ListRoles(ctx)
	if err != nil {
		h.logger.Warn("listing auth0 roles failed", "error", err)
		return
	}

	byName := make(map[string]string, len(available))
	allIDs := make([]string, 0, len(available))
	for _, role := range available {
		byName[role.Name] = role.ID
		allIDs = append(allIDs, role.ID)
	}

	wanted := make([]string, 0, len(roleNames))
	for _, name := range roleNames {
		if id, ok := byName[name]; ok {
			wanted = append(wanted, id)
		}
	}

	if len(allIDs) > 0 {
		if err := h.roles.RemoveUserRoles(ctx, user.Auth0ID, allIDs); err != nil {
			h.logger.Warn("clearing auth0 roles failed", "auth0_id", user.Auth0ID, "error", err)
		}
	}
	if len(wanted) > 0 {
		if err := h.roles.SetUserRoles(ctx, user.Auth0ID, wanted); err != nil {
			h.logger.Warn("assigning auth0 roles failed", "auth0_id", user.Auth0ID, "error", err)
		}
	}
}

func (h *AdminHandler) lookupUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid user ID"})
		return nil, false
	}

	var user models.User
	err = h.db.WithContext(r.Context()).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "User not found"})
		return nil, false
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get user"})
		return nil, false
	}
	return &user, true
}
