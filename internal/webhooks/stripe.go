package webhooks

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/projectbrain/backend/internal/billing"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"gorm.io/gorm"
)

// StripeHandler verifies the payload signature, normalizes the event to a
// subscription id and hands it to the billing reconciliation primitive.
// Five event types collapse into one resync; applying per-event deltas
// would only reimplement Stripe's own state machine badly.
type StripeHandler struct {
	db      *gorm.DB
	secret  string
	billing *billing.Service
	logger  *slog.Logger
}

func NewStripeHandler(db *gorm.DB, secret string, billingService *billing.Service, logger *slog.Logger) *StripeHandler {
	return &StripeHandler{db: db, secret: secret, billing: billingService, logger: logger}
}

// Handle implements POST /webhooks/stripe.
func (h *StripeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "unreadable body")
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		r.Header.Get("Stripe-Signature"),
		h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		h.logger.Warn("stripe webhook signature verification failed", "error", err)
		writeStatus(w, http.StatusBadRequest, "signature verification failed")
		return
	}

	ctx := r.Context()
	audit := recordEvent(ctx, h.db, h.logger, "stripe", event.ID, string(event.Type), string(body))

	if !reconcilable(event.Type) {
		h.logger.Info("ignoring stripe event", "type", event.Type)
		markProcessed(ctx, h.db, h.logger, audit, nil)
		writeStatus(w, http.StatusOK, "ignored")
		return
	}

	subscriptionID, err := subscriptionIDFromEvent(&event)
	if err != nil {
		h.logger.Warn("stripe event with unparsable payload", "type", event.Type, "error", err)
		markProcessed(ctx, h.db, h.logger, audit, err)
		writeStatus(w, http.StatusBadRequest, "malformed payload")
		return
	}
	if subscriptionID == "" {
		// One-off invoices carry no subscription; nothing to reconcile.
		h.logger.Info("stripe event without subscription id", "type", event.Type)
		markProcessed(ctx, h.db, h.logger, audit, nil)
		writeStatus(w, http.StatusOK, "ignored")
		return
	}

	syncErr := h.billing.SyncSubscription(ctx, subscriptionID)
	markProcessed(ctx, h.db, h.logger, audit, syncErr)
	if syncErr != nil {
		h.logger.Error("subscription reconciliation failed",
			"type", event.Type, "stripe_subscription_id", subscriptionID, "error", syncErr)
		writeStatus(w, http.StatusInternalServerError, "processing failed")
		return
	}
	writeStatus(w, http.StatusOK, "handled")
}

func reconcilable(eventType stripe.EventType) bool {
	switch eventType {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted",
		"invoice.payment_succeeded",
		"invoice.payment_failed":
		return true
	}
	return false
}

// stringOrObjectID accepts the id either as a bare string or as an
// expanded object carrying an "id" field.
type stringOrObjectID string

func (s *stringOrObjectID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = stringOrObjectID(str)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*s = stringOrObjectID(obj.ID)
	return nil
}

// subscriptionIDFromEvent normalizes vendor payload variance into one
// canonical id at the boundary. Subscription events carry it as the
// object id; invoice events have shipped it under "subscription",
// "subscription_id" and "subscription_details" depending on API version.
func subscriptionIDFromEvent(event *stripe.Event) (string, error) {
	if strings.HasPrefix(string(event.Type), "customer.subscription.") {
		var sub struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return "", err
		}
		return sub.ID, nil
	}

	var inv struct {
		Subscription        stringOrObjectID `json:"subscription"`
		SubscriptionID      stringOrObjectID `json:"subscription_id"`
		SubscriptionDetails struct {
			Subscription stringOrObjectID `json:"subscription"`
		} `json:"subscription_details"`
	}
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return "", err
	}

	for _, candidate := range []stringOrObjectID{
		inv.Subscription,
		inv.SubscriptionID,
		inv.SubscriptionDetails.Subscription,
	} {
		if candidate != "" {
			return string(candidate), nil
		}
	}
	return "", nil
}
