package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmoiron/sqlx"
)

type ProfilesRepository interface {
	GetByID(ctx context.Context, id string) (*model.Profile, error)
	// Ensure creates a free profile on first sight and returns the current row;
	// created reports whether this call inserted it.
	Ensure(ctx context.Context, id, email string) (p *model.Profile, created bool, err error)
	// LinkCheckout stores the Stripe customer/subscription for a user after checkout.
	LinkCheckout(ctx context.Context, tx *sqlx.Tx, userID, customerID, subscriptionID string) error
	// UpdateSubscription applies a subscription state change by Stripe customer id.
	// It returns false when no profile carries that customer.
	UpdateSubscription(ctx context.Context, tx *sqlx.Tx, customerID string, u SubscriptionUpdate) (bool, error)
}

type SubscriptionUpdate struct {
	SubscriptionID   string
	Status           model.SubscriptionStatus
	Plan             model.Plan // empty keeps the stored plan
	CurrentPeriodEnd *time.Time
}

type ProfilesRepositoryImpl struct {
	db *sqlx.DB
}

func NewProfilesRepository(db *sqlx.DB) *ProfilesRepositoryImpl {
	return &ProfilesRepositoryImpl{db: db}
}

var _ ProfilesRepository = (*ProfilesRepositoryImpl)(nil)

const profileColumns = `id, email, display_name, plan, subscription_status, stripe_customer_id,
	stripe_subscription_id, current_period_end, is_admin, created_at, updated_at`

func (r *ProfilesRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	var p model.Profile
	err := r.db.GetContext(ctx, &p, `SELECT `+profileColumns+` FROM profiles WHERE id = ? LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProfilesRepositoryImpl) Ensure(ctx context.Context, id, email string) (*model.Profile, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT IGNORE INTO profiles (id, email, plan, subscription_status, created_at, updated_at)
		VALUES (?, ?, 'free', 'none', NOW(), NOW())
	`, id, email)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	created := n == 1

	// email is only filled when empty: the auth provider owns it, not us
	if !created && email != "" {
		if _, err := r.db.ExecContext(ctx, `
			UPDATE profiles SET email = ?, updated_at = NOW() WHERE id = ? AND email = ''
		`, email, id); err != nil {
			return nil, false, err
		}
	}

	p, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return p, created, nil
}

func (r *ProfilesRepositoryImpl) LinkCheckout(ctx context.Context, tx *sqlx.Tx, userID, customerID, subscriptionID string) error {
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE profiles
			SET stripe_customer_id = ?,
			    stripe_subscription_id = NULLIF(?, ''),
			    plan = 'pro',
			    subscription_status = 'active',
			    updated_at = NOW()
			WHERE id = ?
		`, customerID, subscriptionID, userID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *ProfilesRepositoryImpl) UpdateSubscription(ctx context.Context, tx *sqlx.Tx, customerID string, u SubscriptionUpdate) (bool, error) {
	var found bool
	err := withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE profiles
			SET subscription_status = ?,
			    plan = COALESCE(NULLIF(?, ''), plan),
			    stripe_subscription_id = COALESCE(NULLIF(?, ''), stripe_subscription_id),
			    current_period_end = COALESCE(?, current_period_end),
			    updated_at = NOW()
			WHERE stripe_customer_id = ?
		`, string(u.Status), u.Plan.String(), u.SubscriptionID, u.CurrentPeriodEnd, customerID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		found = n > 0
		return nil
	})
	return found, err
}
