// Package billing runs Stripe subscriptions: hosted checkout, the billing
// portal and the webhook that keeps profiles in sync with Stripe.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/config"
	"github.com/jmehdipour/data-moodboard/internal/logger"
	"github.com/jmehdipour/data-moodboard/internal/metrics"
	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

var (
	ErrNotConfigured     = errors.New("billing is not configured")
	ErrNoCustomer        = errors.New("no billing account")
	ErrAlreadySubscribed = errors.New("already subscribed")
	ErrBadSignature      = errors.New("invalid stripe signature")
)

// Webhook outcomes, also used as metric labels.
const (
	OutcomeHandled   = "handled"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

type Service struct {
	db       *sqlx.DB
	profiles repository.ProfilesRepository
	events   repository.BillingEventsRepository
	gateway  Gateway
	cfg      config.StripeConfig
	appURL   string
}

func New(
	db *sqlx.DB,
	profiles repository.ProfilesRepository,
	events repository.BillingEventsRepository,
	gateway Gateway,
	cfg config.StripeConfig,
	appURL string,
) *Service {
	return &Service{
		db:       db,
		profiles: profiles,
		events:   events,
		gateway:  gateway,
		cfg:      cfg,
		appURL:   strings.TrimRight(appURL, "/"),
	}
}

// Checkout starts a subscription checkout and returns the hosted page URL.
func (s *Service) Checkout(ctx context.Context, userID, email string) (string, error) {
	if s.cfg.SecretKey == "" || s.cfg.PriceID == "" {
		return "", ErrNotConfigured
	}
	p, _, err := s.profiles.Ensure(ctx, userID, email)
	if err != nil {
		return "", fmt.Errorf("load profile: %w", err)
	}
	if p.Plan == model.PlanPro &&
		(p.SubscriptionStatus == model.SubActive || p.SubscriptionStatus == model.SubTrialing) {
		return "", ErrAlreadySubscribed
	}

	params := CheckoutParams{
		UserID:     userID,
		Email:      p.Email,
		SuccessURL: s.appURL + "/billing?status=success",
		CancelURL:  s.appURL + "/billing?status=canceled",
	}
	if p.StripeCustomerID != nil {
		params.CustomerID = *p.StripeCustomerID
	}
	return s.gateway.CreateCheckout(ctx, params)
}

// Portal opens the billing portal for users that went through checkout before.
func (s *Service) Portal(ctx context.Context, userID string) (string, error) {
	if s.cfg.SecretKey == "" {
		return "", ErrNotConfigured
	}
	p, err := s.profiles.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrNoCustomer
	}
	if err != nil {
		return "", fmt.Errorf("load profile: %w", err)
	}
	if p.StripeCustomerID == nil || *p.StripeCustomerID == "" {
		return "", ErrNoCustomer
	}
	return s.gateway.CreatePortal(ctx, *p.StripeCustomerID, s.appURL+"/billing")
}

// HandleWebhook verifies and applies one Stripe event. The event id is recorded in
// the same transaction as its effects, so redeliveries are acknowledged without
// being applied twice and a failed apply is retried by Stripe.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (string, error) {
	if s.cfg.WebhookSecret == "" {
		return "", ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	outcome, err := s.process(ctx, event)
	if err != nil {
		outcome = OutcomeFailed
		logger.Log.Error("stripe event failed",
			zap.String("event_id", event.ID), zap.String("type", string(event.Type)), zap.Error(err))
	}
	metrics.BillingEventsTotal.WithLabelValues(string(event.Type), outcome).Inc()
	return outcome, err
}

func (s *Service) process(ctx context.Context, event stripe.Event) (string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	fresh, err := s.events.MarkProcessed(ctx, tx, event.ID, string(event.Type))
	if err != nil {
		return "", fmt.Errorf("mark processed: %w", err)
	}
	if !fresh {
		return OutcomeDuplicate, nil
	}

	outcome, err := s.apply(ctx, tx, event)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *Service) apply(ctx context.Context, tx *sqlx.Tx, event stripe.Event) (string, error) {
	if event.Data == nil {
		return OutcomeIgnored, nil
	}
	raw := event.Data.Raw

	switch event.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(raw, &cs); err != nil {
			return "", fmt.Errorf("decode checkout session: %w", err)
		}
		if cs.ClientReferenceID == "" || cs.Customer == nil {
			return OutcomeIgnored, nil
		}
		var subID string
		if cs.Subscription != nil {
			subID = cs.Subscription.ID
		}
		err := s.profiles.LinkCheckout(ctx, tx, cs.ClientReferenceID, cs.Customer.ID, subID)
		if errors.Is(err, repository.ErrNotFound) {
			logger.Log.Warn("checkout for unknown profile", zap.String("user_id", cs.ClientReferenceID))
			return OutcomeIgnored, nil
		}
		if err != nil {
			return "", fmt.Errorf("link checkout: %w", err)
		}
		return OutcomeHandled, nil

	case "customer.subscription.created", "customer.subscription.updated":
		sub, err := decodeSubscription(raw)
		if err != nil {
			return "", err
		}
		status := model.ParseSubscriptionStatus(sub.Status)
		return s.update(ctx, tx, sub.Customer, repository.SubscriptionUpdate{
			SubscriptionID:   sub.ID,
			Status:           status,
			Plan:             model.PlanFor(status),
			CurrentPeriodEnd: sub.periodEnd(),
		})

	case "customer.subscription.deleted":
		sub, err := decodeSubscription(raw)
		if err != nil {
			return "", err
		}
		return s.update(ctx, tx, sub.Customer, repository.SubscriptionUpdate{
			SubscriptionID: sub.ID,
			Status:         model.SubCanceled,
			Plan:           model.PlanFree,
		})

	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return "", fmt.Errorf("decode invoice: %w", err)
		}
		if inv.Customer == nil {
			return OutcomeIgnored, nil
		}
		// status only: a failed invoice can arrive after the subscription was deleted
		return s.update(ctx, tx, inv.Customer.ID, repository.SubscriptionUpdate{
			Status: model.SubPastDue,
		})
	}
	return OutcomeIgnored, nil
}

func (s *Service) update(ctx context.Context, tx *sqlx.Tx, customerID string, u repository.SubscriptionUpdate) (string, error) {
	if customerID == "" {
		return OutcomeIgnored, nil
	}
	found, err := s.profiles.UpdateSubscription(ctx, tx, customerID, u)
	if err != nil {
		return "", fmt.Errorf("update subscription: %w", err)
	}
	if !found {
		logger.Log.Warn("subscription event for unknown customer", zap.String("customer_id", customerID))
		return OutcomeIgnored, nil
	}
	return OutcomeHandled, nil
}

// subscription keeps the fields the webhook needs. The period end moved from the
// subscription to its items in newer API versions; both places are read.
type subscription struct {
	ID               string          `json:"id"`
	Status           string          `json:"status"`
	Customer         string          `json:"-"`
	RawCustomer      json.RawMessage `json:"customer"`
	CurrentPeriodEnd int64           `json:"current_period_end"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func decodeSubscription(raw []byte) (*subscription, error) {
	var sub subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	// customer is an id or an expanded object
	var c stripe.Customer
	if len(sub.RawCustomer) > 0 {
		if err := json.Unmarshal(sub.RawCustomer, &c); err != nil {
			return nil, fmt.Errorf("decode subscription customer: %w", err)
		}
	}
	sub.Customer = c.ID
	return &sub, nil
}

func (s *subscription) periodEnd() *time.Time {
	end := s.CurrentPeriodEnd
	for _, it := range s.Items.Data {
		if it.CurrentPeriodEnd > end {
			end = it.CurrentPeriodEnd
		}
	}
	if end == 0 {
		return nil
	}
	t := time.Unix(end, 0).UTC()
	return &t
}
