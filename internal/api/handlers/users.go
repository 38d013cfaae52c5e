package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/projectbrain/backend/internal/api/dto"
	"github.com/projectbrain/backend/internal/api/middleware"
	"github.com/projectbrain/backend/internal/database/models"
	"gorm.io/gorm"
)

type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

// UpdateProfileRequest carries the locally-owned profile fields. Identity
// fields (email, name, verification) come from the identity provider's
// webhook and are not writable here.
type UpdateProfileRequest struct {
	Onboarded    *bool   `json:"onboarded,omitempty"`
	AddressLine1 *string `json:"address_line1,omitempty"`
	AddressLine2 *string `json:"address_line2,omitempty"`
	City         *string `json:"city,omitempty"`
	PostalCode   *string `json:"postal_code,omitempty"`
	Country      *string `json:"country,omitempty"`
}

func (r UpdateProfileRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.AddressLine1 != nil && len(*r.AddressLine1) > 255 {
		errors["address_line1"] = "Address line is too long"
	}
	if r.Country != nil && *r.Country != "" && len(*r.Country) != 2 {
		errors["country"] = "Country must be an ISO 3166-1 alpha-2 code"
	}
	return errors
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	Name          string   `json:"name"`
	EmailVerified bool     `json:"email_verified"`
	Onboarded     bool     `json:"onboarded"`
	Roles         []string `json:"roles"`
	AddressLine1  string   `json:"address_line1,omitempty"`
	AddressLine2  string   `json:"address_line2,omitempty"`
	City          string   `json:"city,omitempty"`
	PostalCode    string   `json:"postal_code,omitempty"`
	Country       string   `json:"country,omitempty"`
	CoachID       *string  `json:"coach_id,omitempty"`
	CreatedAt     string   `json:"created_at"`
}

func userToResponse(user *models.User) UserResponse {
	resp := UserResponse{
		ID:            user.ID.String(),
		Email:         user.Email,
		Name:          user.Name,
		EmailVerified: user.EmailVerified,
		Onboarded:     user.Onboarded,
		Roles:         user.Roles,
		AddressLine1:  user.AddressLine1,
		AddressLine2:  user.AddressLine2,
		City:          user.City,
		PostalCode:    user.PostalCode,
		Country:       user.Country,
		CreatedAt:     user.CreatedAt.Format(time.RFC3339),
	}
	if resp.Roles == nil {
		resp.Roles = []string{}
	}
	if user.CoachID != nil {
		s := user.CoachID.String()
		resp.CoachID = &s
	}
	return resp
}

// Me handles GET /api/v1/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, userToResponse(user))
}

// UpdateMe handles PUT /api/v1/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	updates := make(map[string]interface{})
	if req.Onboarded != nil {
		updates["onboarded"] = *req.Onboarded
	}
	if req.AddressLine1 != nil {
		updates["address_line1"] = *req.AddressLine1
	}
	if req.AddressLine2 != nil {
		updates["address_line2"] = *req.AddressLine2
	}
	if req.City != nil {
		updates["city"] = *req.City
	}
	if req.PostalCode != nil {
		updates["postal_code"] = *req.PostalCode
	}
	if req.Country != nil {
		updates["country"] = *req.Country
	}

	if len(updates) > 0 {
		if err := h.db.WithContext(r.Context()).Model(user).Updates(updates).Error; err != nil {
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update profile"})
			return
		}
	}

	writeJSON(w, http.StatusOK, userToResponse(user))
}

// OnboardingRequest marks onboarding complete. Name and address are
// captured in the same step so new users land with a usable profile.
type OnboardingRequest struct {
	Name         string `json:"name"`
	AddressLine1 string `json:"address_line1,omitempty"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	Country      string `json:"country,omitempty"`
}

func (r OnboardingRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name == "" {
		errors["name"] = "Name is required"
	}
	if len(r.Name) > 255 {
		errors["name"] = "Name is too long"
	}
	if r.Country != "" && len(r.Country) != 2 {
		errors["country"] = "Country must be an ISO 3166-1 alpha-2 code"
	}
	return errors
}

// CompleteOnboarding handles POST /api/v1/me/onboarding
func (h *UserHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req OnboardingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	updates := map[string]interface{}{
		"onboarded":     true,
		"name":          req.Name,
		"address_line1": req.AddressLine1,
		"address_line2": req.AddressLine2,
		"city":          req.City,
		"postal_code":   req.PostalCode,
		"country":       req.Country,
	}
	if err := h.db.WithContext(r.Context()).Model(user).Updates(updates).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to complete onboarding"})
		return
	}

	writeJSON(w, http.StatusOK, userToResponse(user))
}

// UpdateAddress handles PUT /api/v1/me/address
func (h *UserHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	req.Onboarded = nil
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	updates := make(map[string]interface{})
	if req.AddressLine1 != nil {
		updates["address_line1"] = *req.AddressLine1
	}
	if req.AddressLine2 != nil {
		updates["address_line2"] = *req.AddressLine2
	}
	if req.City != nil {
		updates["city"] = *req.City
	}
	if req.PostalCode != nil {
		updates["postal_code"] = *req.PostalCode
	}
	if req.Country != nil {
		updates["country"] = *req.Country
	}

	if len(updates) > 0 {
		if err := h.db.WithContext(r.Context()).Model(user).Updates(updates).Error; err != nil {
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update address"})
			return
		}
	}

	writeJSON(w, http.StatusOK, userToResponse(user))
}

// ListCoaches handles GET /api/v1/coaches
func (h *UserHandler) ListCoaches(w http.ResponseWriter, r *http.Request) {
	var coaches []models.User
	if err := h.db.WithContext(r.Context()).
		Where("roles LIKE ?", "%"+models.RoleCoach+"%").
		Order("name ASC").
		Find(&coaches).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list coaches"})
		return
	}

	response := make([]UserResponse, len(coaches))
	for i, c := range coaches {
		response[i] = userToResponse(&c)
	}
	writeJSON(w, http.StatusOK, response)
}

// MyCoach handles GET /api/v1/me/coach
func (h *UserHandler) MyCoach(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil || user.CoachID == nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "No coach assigned"})
		return
	}

	var coach models.User
	if err := h.db.WithContext(r.Context()).First(&coach, "id = ?", *user.CoachID).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "No coach assigned"})
		return
	}
	writeJSON(w, http.StatusOK, userToResponse(&coach))
}
