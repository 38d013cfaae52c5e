package models

import (
	"time"

	"github.com/google/uuid"
)

type SubscriptionTier string

const (
	TierFree     SubscriptionTier = "free"
	TierStandard SubscriptionTier = "standard"
	TierPremium  SubscriptionTier = "premium"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription is mutated exclusively by Stripe webhook reconciliation,
// keyed on the Stripe subscription id. Excluded is the one exception: an
// admin-granted free-access flag that reconciliation must preserve.
type Subscription struct {
	Base
	UserID               uuid.UUID          `gorm:"type:uuid;uniqueIndex" json:"user_id"`
	StripeCustomerID     string             `gorm:"index" json:"stripe_customer_id"`
	StripeSubscriptionID string             `gorm:"uniqueIndex" json:"stripe_subscription_id"`
	Tier                 SubscriptionTier   `gorm:"default:'free'" json:"tier"`
	Status               SubscriptionStatus `gorm:"default:'canceled'" json:"status"`
	CurrentPeriodStart   *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	TrialEnd             *time.Time         `json:"trial_end,omitempty"`
	Excluded             bool               `gorm:"default:false" json:"excluded"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// HasAccess reports whether the subscriber can use paid features.
func (s *Subscription) HasAccess() bool {
	if s.Excluded {
		return true
	}
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrialing
}
