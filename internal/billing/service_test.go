package billing_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/projectbrain/backend/internal/billing"
	"github.com/projectbrain/backend/internal/database/models"
	"github.com/projectbrain/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"gorm.io/gorm"
)

const (
	testPriceStandard = "price_standard_123"
	testPricePremium  = "price_premium_456"
)

type fakeStripe struct {
	sub        *stripe.Subscription
	fetchCalls int
	customers  int
}

func (f *fakeStripe) FetchSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	f.fetchCalls++
	return f.sub, nil
}

func (f *fakeStripe) CreateCustomer(ctx context.Context, email, auth0ID string) (string, error) {
	f.customers++
	return "cus_test", nil
}

func (f *fakeStripe) CreateCheckoutSession(ctx context.Context, customerID, priceID, frontendURL string) (string, error) {
	return "https://checkout.stripe.test/session", nil
}

func (f *fakeStripe) CreatePortalSession(ctx context.Context, customerID, frontendURL string) (string, error) {
	return "https://portal.stripe.test/session", nil
}

func remoteSubscription(id, customerID, priceID string, status stripe.SubscriptionStatus) *stripe.Subscription {
	return &stripe.Subscription{
		ID:                 id,
		Status:             status,
		Customer:           &stripe.Customer{ID: customerID},
		CurrentPeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
		CurrentPeriodEnd:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).Unix(),
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{Price: &stripe.Price{ID: priceID}},
			},
		},
	}
}

func newBillingService(db *gorm.DB, sc billing.StripeClient) *billing.Service {
	return billing.NewService(db, sc, testPriceStandard, testPricePremium, "https://app.projectbrain.test", slog.Default())
}

func seedSubscription(t *testing.T, db *gorm.DB, user *models.User, customerID string, excluded bool) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{
		UserID:           user.ID,
		StripeCustomerID: customerID,
		Tier:             models.TierFree,
		Status:           models.SubscriptionStatusCanceled,
		Excluded:         excluded,
	}
	require.NoError(t, db.Create(sub).Error)
	return sub
}

func TestSyncSubscription_RefreshesFromStripe(t *testing.T) {
	db := testutil.SetupTestDB(t)
	user := testutil.CreateTestUser(t, db)
	seedSubscription(t, db, user, "cus_1", false)

	sc := &fakeStripe{sub: remoteSubscription("sub_1", "cus_1", testPriceStandard, stripe.SubscriptionStatusActive)}
	svc := newBillingService(db, sc)

	require.NoError(t, svc.SyncSubscription(context.Background(), "sub_1"))

	var got models.Subscription
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&got).Error)
	assert.Equal(t, "sub_1", got.StripeSubscriptionID)
	assert.Equal(t, models.TierStandard, got.Tier)
	assert.Equal(t, models.SubscriptionStatusActive, got.Status)
	require.NotNil(t, got.CurrentPeriodEnd)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), got.CurrentPeriodEnd.UTC())
}

func TestSyncSubscription_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	user := testutil.CreateTestUser(t, db)
	seedSubscription(t, db, user, "cus_1", false)

	sc := &fakeStripe{sub: remoteSubscription("sub_1", "cus_1", testPricePremium, stripe.SubscriptionStatusTrialing)}
	svc := newBillingService(db, sc)

	require.NoError(t, svc.SyncSubscription(context.Background(), "sub_1"))
	require.NoError(t, svc.SyncSubscription(context.Background(), "sub_1"))

	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var got models.Subscription
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&got).Error)
	assert.Equal(t, models.TierPremium, got.Tier)
	assert.Equal(t, models.SubscriptionStatusTrialing, got.Status)
	assert.Equal(t, 2, sc.fetchCalls)
}

func TestSyncSubscription_PreservesExclusionFlag(t *testing.T) {
	db := testutil.SetupTestDB(t)
	user := testutil.CreateTestUser(t, db)
	seedSubscription(t, db, user, "cus_1", true)

	sc := &fakeStripe{sub: remoteSubscription("sub_1", "cus_1", testPriceStandard, stripe.SubscriptionStatusCanceled)}
	svc := newBillingService(db, sc)

	require.NoError(t, svc.SyncSubscription(context.Background(), "sub_1"))

	var got models.Subscription
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&got).Error)
	assert.True(t, got.Excluded, "reconciliation must not clear admin exclusion")
	assert.Equal(t, models.SubscriptionStatusCanceled, got.Status)
	assert.True(t, got.HasAccess(), "excluded users keep access regardless of status")
}

func TestSyncSubscription_UnknownCustomerIsAcknowledged(t *testing.T) {
	db := testutil.SetupTestDB(t)

	sc := &fakeStripe{sub: remoteSubscription("sub_x", "cus_stranger", testPriceStandard, stripe.SubscriptionStatusActive)}
	svc := newBillingService(db, sc)

	require.NoError(t, svc.SyncSubscription(context.Background(), "sub_x"))

	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCheckoutURL_CreatesCustomerOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	user := testutil.CreateTestUser(t, db)

	sc := &fakeStripe{}
	svc := newBillingService(db, sc)

	url, err := svc.CheckoutURL(context.Background(), user, models.TierStandard)
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	_, err = svc.CheckoutURL(context.Background(), user, models.TierPremium)
	require.NoError(t, err)
	assert.Equal(t, 1, sc.customers, "customer must be reused across checkouts")
}

func TestCheckoutURL_RejectsUnknownTier(t *testing.T) {
	db := testutil.SetupTestDB(t)
	user := testutil.CreateTestUser(t, db)

	svc := newBillingService(db, &fakeStripe{})
	_, err := svc.CheckoutURL(context.Background(), user, models.TierFree)
	assert.ErrorIs(t, err, billing.ErrUnknownTier)
}

func TestSetExclusion_CreatesRowWhenMissing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	user := testutil.CreateTestUser(t, db)

	svc := newBillingService(db, &fakeStripe{})
	require.NoError(t, svc.SetExclusion(context.Background(), user.ID, true))

	var got models.Subscription
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&got).Error)
	assert.True(t, got.Excluded)

	require.NoError(t, svc.SetExclusion(context.Background(), user.ID, false))
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&got).Error)
	assert.False(t, got.Excluded)
}
