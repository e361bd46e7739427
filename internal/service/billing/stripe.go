package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	portal "github.com/stripe/stripe-go/v82/billingportal/session"
	checkout "github.com/stripe/stripe-go/v82/checkout/session"
)

type CheckoutParams struct {
	UserID     string
	Email      string
	CustomerID string // reused when the profile already has one
	SuccessURL string
	CancelURL  string
}

// Gateway creates hosted Stripe sessions and returns their URLs.
type Gateway interface {
	CreateCheckout(ctx context.Context, p CheckoutParams) (string, error)
	CreatePortal(ctx context.Context, customerID, returnURL string) (string, error)
}

type StripeGateway struct {
	checkout checkout.Client
	portal   portal.Client
	priceID  string
}

// NewStripeGateway uses backend for API calls; nil selects the default API backend.
func NewStripeGateway(backend stripe.Backend, secretKey, priceID string) *StripeGateway {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &StripeGateway{
		checkout: checkout.Client{B: backend, Key: secretKey},
		portal:   portal.Client{B: backend, Key: secretKey},
		priceID:  priceID,
	}
}

var _ Gateway = (*StripeGateway)(nil)

func (g *StripeGateway) CreateCheckout(ctx context.Context, p CheckoutParams) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(g.priceID), Quantity: stripe.Int64(1)},
		},
		ClientReferenceID: stripe.String(p.UserID),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": p.UserID},
		},
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	} else if p.Email != "" {
		params.CustomerEmail = stripe.String(p.Email)
	}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())

	s, err := g.checkout.New(params)
	if err != nil {
		return "", err
	}
	return s.URL, nil
}

func (g *StripeGateway) CreatePortal(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	s, err := g.portal.New(params)
	if err != nil {
		return "", err
	}
	return s.URL, nil
}
