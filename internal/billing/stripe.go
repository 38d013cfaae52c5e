package billing

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// StripeClient is the vendor surface the billing service needs. The
// concrete implementation wraps the official SDK; tests substitute a fake.
type StripeClient interface {
	FetchSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	CreateCustomer(ctx context.Context, email, auth0ID string) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID, priceID, frontendURL string) (string, error)
	CreatePortalSession(ctx context.Context, customerID, frontendURL string) (string, error)
}

type stripeAPI struct {
	sc *client.API
}

// NewStripeClient builds a client bound to the given secret key.
func NewStripeClient(secretKey string) StripeClient {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &stripeAPI{sc: sc}
}

func (a *stripeAPI) FetchSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := a.sc.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("fetching subscription %s: %w", id, err)
	}
	return sub, nil
}

func (a *stripeAPI) CreateCustomer(ctx context.Context, email, auth0ID string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.AddMetadata("auth0_id", auth0ID)

	cust, err := a.sc.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("creating customer: %w", err)
	}
	return cust.ID, nil
}

func (a *stripeAPI) CreateCheckoutSession(ctx context.Context, customerID, priceID, frontendURL string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(frontendURL + "/billing/success"),
		CancelURL:  stripe.String(frontendURL + "/billing/cancel"),
	}
	params.Context = ctx

	sess, err := a.sc.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("creating checkout session: %w", err)
	}
	return sess.URL, nil
}

func (a *stripeAPI) CreatePortalSession(ctx context.Context, customerID, frontendURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(frontendURL + "/settings/billing"),
	}
	params.Context = ctx

	sess, err := a.sc.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("creating portal session: %w", err)
	}
	return sess.URL, nil
}
