package webhooks_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/projectbrain/backend/internal/billing"
	"github.com/projectbrain/backend/internal/database/models"
	"github.com/projectbrain/backend/internal/testutil"
	"github.com/projectbrain/backend/internal/webhooks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"gorm.io/gorm"
)

const stripeTestSecret = "whsec_test_secret"

type stubStripe struct {
	sub        *stripe.Subscription
	err        error
	fetchCalls int
}

func (s *stubStripe) FetchSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	s.fetchCalls++
	return s.sub, s.err
}

func (s *stubStripe) CreateCustomer(ctx context.Context, email, auth0ID string) (string, error) {
	return "cus_stub", nil
}

func (s *stubStripe) CreateCheckoutSession(ctx context.Context, customerID, priceID, frontendURL string) (string, error) {
	return frontendURL + "/checkout", nil
}

func (s *stubStripe) CreatePortalSession(ctx context.Context, customerID, frontendURL string) (string, error) {
	return frontendURL + "/portal", nil
}

func setupStripeHandler(t *testing.T, sc *stubStripe) (*webhooks.StripeHandler, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	logger := testLogger()
	billingService := billing.NewService(db, sc, "price_standard", "price_premium", "https://app.projectbrain.test", logger)
	return webhooks.NewStripeHandler(db, stripeTestSecret, billingService, logger), db
}

func signedStripeRequest(t *testing.T, payload string) *http.Request {
	t.Helper()

	now := time.Now()
	signature := webhook.ComputeSignature(now, []byte(payload), stripeTestSecret)

	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%x", now.Unix(), signature))
	return req
}

func stripeEvent(eventType, dataObject string) string {
	return fmt.Sprintf(`{
		"id": "evt_test_1",
		"type": %q,
		"data": {"object": %s}
	}`, eventType, dataObject)
}

func remoteSub(id, customerID string) *stripe.Subscription {
	return &stripe.Subscription{
		ID:       id,
		Status:   stripe.SubscriptionStatusActive,
		Customer: &stripe.Customer{ID: customerID},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{Price: &stripe.Price{ID: "price_standard"}},
			},
		},
	}
}

func seedStripeSubscription(t *testing.T, db *gorm.DB, customerID string) *models.User {
	t.Helper()
	user := testutil.CreateTestUser(t, db)
	require.NoError(t, db.Create(&models.Subscription{
		UserID:           user.ID,
		StripeCustomerID: customerID,
		Tier:             models.TierFree,
		Status:           models.SubscriptionStatusCanceled,
	}).Error)
	return user
}

func TestStripeWebhook_RejectsInvalidSignature(t *testing.T) {
	handler, _ := setupStripeHandler(t, &stubStripe{})

	payload := stripeEvent("customer.subscription.updated", `{"id": "sub_1"}`)
	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=12345,v1=deadbeef")

	rr := httptest.NewRecorder()
	handler.Handle(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStripeWebhook_IgnoresUnrelatedEventTypes(t *testing.T) {
	sc := &stubStripe{}
	handler, _ := setupStripeHandler(t, sc)

	rr := httptest.NewRecorder()
	handler.Handle(rr, signedStripeRequest(t, stripeEvent("payment_intent.succeeded", `{"id": "pi_1"}`)))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ignored")
	assert.Zero(t, sc.fetchCalls, "ignored events must not hit the Stripe API")
}

func TestStripeWebhook_SubscriptionEventReconciles(t *testing.T) {
	sc := &stubStripe{sub: remoteSub("sub_1", "cus_1")}
	handler, db := setupStripeHandler(t, sc)
	user := seedStripeSubscription(t, db, "cus_1")

	rr := httptest.NewRecorder()
	handler.Handle(rr, signedStripeRequest(t, stripeEvent("customer.subscription.updated", `{"id": "sub_1", "status": "active"}`)))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, sc.fetchCalls)

	var sub models.Subscription
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&sub).Error)
	assert.Equal(t, "sub_1", sub.StripeSubscriptionID)
	assert.Equal(t, models.TierStandard, sub.Tier)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
}

func TestStripeWebhook_InvoiceEventCarriesSubscriptionString(t *testing.T) {
	sc := &stubStripe{sub: remoteSub("sub_1", "cus_1")}
	handler, db := setupStripeHandler(t, sc)
	seedStripeSubscription(t, db, "cus_1")

	rr := httptest.NewRecorder()
	handler.Handle(rr, signedStripeRequest(t, stripeEvent("invoice.payment_succeeded", `{"id": "in_1", "subscription": "sub_1"}`)))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, sc.fetchCalls)
}

func TestStripeWebhook_InvoiceEventWithExpandedSubscription(t *testing.T) {
	sc := &stubStripe{sub: remoteSub("sub_1", "cus_1")}
	handler, db := setupStripeHandler(t, sc)
	seedStripeSubscription(t, db, "cus_1")

	rr := httptest.NewRecorder()
	handler.Handle(rr, signedStripeRequest(t, stripeEvent("invoice.payment_failed", `{"id": "in_1", "subscription": {"id": "sub_1"}}`)))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, sc.fetchCalls)
}

func TestStripeWebhook_InvoiceEventWithSubscriptionDetails(t *testing.T) {
	sc := &stubStripe{sub: remoteSub("sub_1", "cus_1")}
	handler, db := setupStripeHandler(t, sc)
	seedStripeSubscription(t, db, "cus_1")

	rr := httptest.NewRecorder()
	handler.Handle(rr, signedStripeRequest(t, stripeEvent("invoice.payment_succeeded",
		`{"id": "in_1", "subscription_details": {"subscription": "sub_1"}}`)))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, sc.fetchCalls)
}

func TestStripeWebhook_OneOffInvoiceIsIgnored(t *testing.T) {
	sc := &stubStripe{}
	handler, _ := setupStripeHandler(t, sc)

	rr := httptest.NewRecorder()
	handler.Handle(rr, signedStripeRequest(t, stripeEvent("invoice.payment_succeeded", `{"id": "in_oneoff"}`)))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ignored")
	assert.Zero(t, sc.fetchCalls)
}

func TestStripeWebhook_SyncFailureReturns500(t *testing.T) {
	sc := &stubStripe{err: errors.New("stripe unavailable")}
	handler, _ := setupStripeHandler(t, sc)

	rr := httptest.NewRecorder()
	handler.Handle(rr, signedStripeRequest(t, stripeEvent("customer.subscription.updated", `{"id": "sub_1"}`)))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestStripeWebhook_RecordsAuditRow(t *testing.T) {
	sc := &stubStripe{sub: remoteSub("sub_1", "cus_1")}
	handler, db := setupStripeHandler(t, sc)
	seedStripeSubscription(t, db, "cus_1")

	rr := httptest.NewRecorder()
	handler.Handle(rr, signedStripeRequest(t, stripeEvent("customer.subscription.updated", `{"id": "sub_1"}`)))
	require.Equal(t, http.StatusOK, rr.Code)

	var event models.WebhookEvent
	require.NoError(t, db.Where("provider = ?", "stripe").First(&event).Error)
	assert.Equal(t, "evt_test_1", event.ProviderEventID)
	assert.Equal(t, "customer.subscription.updated", event.EventType)
	assert.NotNil(t, event.ProcessedAt)
}
