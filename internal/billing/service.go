// Package billing keeps local subscription rows in sync with Stripe.
// Every webhook event collapses into one reconciliation primitive:
// re-fetch the subscription from Stripe and refresh the local row from
// that authoritative state, never from the event payload.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/projectbrain/backend/internal/database/models"
	"github.com/stripe/stripe-go/v79"
	"gorm.io/gorm"
)

var (
	ErrCheckoutNotConfigured = errors.New("billing is not configured")
	ErrUnknownTier           = errors.New("unknown subscription tier")
	ErrNoCustomer            = errors.New("user has no billing customer")
)

type Service struct {
	db          *gorm.DB
	stripe      StripeClient
	logger      *slog.Logger
	frontendURL string

	// priceTiers maps Stripe price ids to local tiers.
	priceTiers map[string]models.SubscriptionTier
	// tierPrices is the inverse, for checkout.
	tierPrices map[models.SubscriptionTier]string
}

func NewService(db *gorm.DB, sc StripeClient, priceStandard, pricePremium, frontendURL string, logger *slog.Logger) *Service {
	return &Service{
		db:          db,
		stripe:      sc,
		logger:      logger,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		priceTiers: map[string]models.SubscriptionTier{
			priceStandard: models.TierStandard,
			pricePremium:  models.TierPremium,
		},
		tierPrices: map[models.SubscriptionTier]string{
			models.TierStandard: priceStandard,
			models.TierPremium:  pricePremium,
		},
	}
}

// SyncSubscription refreshes the local subscription row identified by the
// Stripe subscription id from Stripe's current state. Safe to invoke any
// number of times for the same id; the admin exclusion flag is preserved.
func (s *Service) SyncSubscription(ctx context.Context, stripeSubscriptionID string) error {
	remote, err := s.stripe.FetchSubscription(ctx, stripeSubscriptionID)
	if err != nil {
		return err
	}

	customerID := ""
	if remote.Customer != nil {
		customerID = remote.Customer.ID
	}

	var local models.Subscription
	err = s.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		First(&local).Error
	if errors.Is(err, gorm.ErrRecordNotFound) && customerID != "" {
		// First event for this subscription: the row created at checkout
		// time only carries the customer id.
		err = s.db.WithContext(ctx).
			Where("stripe_customer_id = ?", customerID).
			First(&local).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Events for customers this system never created (e.g. another
		// environment sharing the Stripe account) are acknowledged, not
		// retried.
		s.logger.Warn("subscription event for unknown customer",
			"stripe_subscription_id", stripeSubscriptionID,
			"stripe_customer_id", customerID,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading subscription: %w", err)
	}

	updates := map[string]interface{}{
		"stripe_subscription_id": stripeSubscriptionID,
		"stripe_customer_id":     customerID,
		"tier":                   s.tierFor(remote),
		"status":                 statusFor(remote.Status),
		"current_period_start":   unixTime(remote.CurrentPeriodStart),
		"current_period_end":     unixTime(remote.CurrentPeriodEnd),
		"trial_end":              unixTime(remote.TrialEnd),
	}

	if err := s.db.WithContext(ctx).Model(&local).Updates(updates).Error; err != nil {
		return fmt.Errorf("updating subscription: %w", err)
	}

	s.logger.Info("subscription reconciled",
		"stripe_subscription_id", stripeSubscriptionID,
		"tier", updates["tier"],
		"status", updates["status"],
	)
	return nil
}

// CheckoutURL ensures the user has a Stripe customer and returns a
// Checkout session URL for the requested tier.
func (s *Service) CheckoutURL(ctx context.Context, user *models.User, tier models.SubscriptionTier) (string, error) {
	priceID, ok := s.tierPrices[tier]
	if !ok || priceID == "" {
		return "", ErrUnknownTier
	}
	if s.frontendURL == "" {
		return "", ErrCheckoutNotConfigured
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return "", err
	}
	return s.stripe.CreateCheckoutSession(ctx, customerID, priceID, s.frontendURL)
}

// PortalURL returns a Billing Portal session URL for an existing customer.
func (s *Service) PortalURL(ctx context.Context, userID uuid.UUID) (string, error) {
	if s.frontendURL == "" {
		return "", ErrCheckoutNotConfigured
	}

	var sub models.Subscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoCustomer
		}
		return "", fmt.Errorf("loading subscription: %w", err)
	}
	if sub.StripeCustomerID == "" {
		return "", ErrNoCustomer
	}
	return s.stripe.CreatePortalSession(ctx, sub.StripeCustomerID, s.frontendURL)
}

// SetExclusion toggles admin-granted free access. This is the only local
// mutation of subscription state; reconciliation leaves it untouched.
func (s *Service) SetExclusion(ctx context.Context, userID uuid.UUID, excluded bool) error {
	sub := models.Subscription{UserID: userID, Excluded: excluded}
	return s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Assign(map[string]interface{}{"excluded": excluded}).
		FirstOrCreate(&sub).Error
}

func (s *Service) ensureCustomer(ctx context.Context, user *models.User) (string, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).Where("user_id = ?", user.ID).First(&sub).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("loading subscription: %w", err)
	}
	if err == nil && sub.StripeCustomerID != "" {
		return sub.StripeCustomerID, nil
	}

	customerID, cerr := s.stripe.CreateCustomer(ctx, user.Email, user.Auth0ID)
	if cerr != nil {
		return "", cerr
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		sub = models.Subscription{
			UserID:           user.ID,
			StripeCustomerID: customerID,
			Tier:             models.TierFree,
			Status:           models.SubscriptionStatusCanceled,
		}
		if err := s.db.WithContext(ctx).Create(&sub).Error; err != nil {
			return "", fmt.Errorf("creating subscription row: %w", err)
		}
	} else {
		if err := s.db.WithContext(ctx).Model(&sub).
			Update("stripe_customer_id", customerID).Error; err != nil {
			return "", fmt.Errorf("saving customer id: %w", err)
		}
	}
	return customerID, nil
}

func (s *Service) tierFor(sub *stripe.Subscription) models.SubscriptionTier {
	if sub.Status == stripe.SubscriptionStatusCanceled {
		return models.TierFree
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price == nil {
				continue
			}
			if tier, ok := s.priceTiers[item.Price.ID]; ok {
				return tier
			}
		}
	}
	s.logger.Warn("subscription with unmapped price", "stripe_subscription_id", sub.ID)
	return models.TierFree
}

func statusFor(status stripe.SubscriptionStatus) models.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return models.SubscriptionStatusActive
	case stripe.SubscriptionStatusTrialing:
		return models.SubscriptionStatusTrialing
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return models.SubscriptionStatusPastDue
	default:
		return models.SubscriptionStatusCanceled
	}
}

func unixTime(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
