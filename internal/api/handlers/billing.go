package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/projectbrain/backend/internal/api/dto"
	"github.com/projectbrain/backend/internal/api/middleware"
	"github.com/projectbrain/backend/internal/billing"
	"github.com/projectbrain/backend/internal/database/models"
	"gorm.io/gorm"
)

type BillingHandler struct {
	db      *gorm.DB
	billing *billing.Service
}

func NewBillingHandler(db *gorm.DB, billingService *billing.Service) *BillingHandler {
	return &BillingHandler{db: db, billing: billingService}
}

type CheckoutRequest struct {
	Tier string `json:"tier"`
}

type CheckoutResponse struct {
	URL string `json:"url"`
}

type SubscriptionResponse struct {
	Tier             string  `json:"tier"`
	Status           string  `json:"status"`
	HasAccess        bool    `json:"has_access"`
	CurrentPeriodEnd *string `json:"current_period_end,omitempty"`
	TrialEnd         *string `json:"trial_end,omitempty"`
}

// GetSubscription handles GET /api/v1/billing/subscription. Users with
// no subscription row are reported as free tier.
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var sub models.Subscription
	err := h.db.WithContext(r.Context()).Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeJSON(w, http.StatusOK, SubscriptionResponse{
			Tier:   string(models.TierFree),
			Status: string(models.SubscriptionStatusCanceled),
		})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get subscription"})
		return
	}

	resp := SubscriptionResponse{
		Tier:      string(sub.Tier),
		Status:    string(sub.Status),
		HasAccess: sub.HasAccess(),
	}
	if sub.CurrentPeriodEnd != nil {
		s := sub.CurrentPeriodEnd.Format(time.RFC3339)
		resp.CurrentPeriodEnd = &s
	}
	if sub.TrialEnd != nil {
		s := sub.TrialEnd.Format(time.RFC3339)
		resp.TrialEnd = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

// Checkout handles POST /api/v1/billing/checkout
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	url, err := h.billing.CheckoutURL(r.Context(), user, models.SubscriptionTier(req.Tier))
	if errors.Is(err, billing.ErrUnknownTier) {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Details: map[string]string{"tier": "Unknown subscription tier"},
		})
		return
	}
	if errors.Is(err, billing.ErrCheckoutNotConfigured) {
		writeJSON(w, http.StatusServiceUnavailable, dto.ErrorResponse{Error: "Billing is not configured"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to start checkout"})
		return
	}

	writeJSON(w, http.StatusOK, CheckoutResponse{URL: url})
}

// Portal handles POST /api/v1/billing/portal
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	url, err := h.billing.PortalURL(r.Context(), userID)
	if errors.Is(err, billing.ErrNoCustomer) {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "No billing customer for user"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to open billing portal"})
		return
	}

	writeJSON(w, http.StatusOK, CheckoutResponse{URL: url})
}
