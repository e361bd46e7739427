package model

import "time"

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

func (p Plan) String() string { return string(p) }

type SubscriptionStatus string

const (
	SubNone       SubscriptionStatus = "none"
	SubActive     SubscriptionStatus = "active"
	SubTrialing   SubscriptionStatus = "trialing"
	SubPastDue    SubscriptionStatus = "past_due"
	SubCanceled   SubscriptionStatus = "canceled"
	SubIncomplete SubscriptionStatus = "incomplete"
)

// PlanFor maps a Stripe subscription status to the plan the user gets.
func PlanFor(s SubscriptionStatus) Plan {
	switch s {
	case SubActive, SubTrialing, SubPastDue:
		return PlanPro
	default:
		return PlanFree
	}
}

// ParseSubscriptionStatus normalizes Stripe's status strings; unknown => incomplete.
func ParseSubscriptionStatus(s string) SubscriptionStatus {
	switch SubscriptionStatus(s) {
	case SubActive, SubTrialing, SubPastDue, SubCanceled, SubIncomplete:
		return SubscriptionStatus(s)
	case "incomplete_expired", "unpaid", "paused":
		return SubCanceled
	case "":
		return SubNone
	default:
		return SubIncomplete
	}
}

// Profile is the per-user account row (profiles table). ID is the auth subject.
type Profile struct {
	ID                   string             `db:"id"              json:"id"`
	Email                string             `db:"email"           json:"email"`
	DisplayName          string             `db:"display_name"    json:"display_name"`
	Plan                 Plan               `db:"plan"            json:"plan"`
	SubscriptionStatus   SubscriptionStatus `db:"subscription_status" json:"subscription_status"`
	StripeCustomerID     *string            `db:"stripe_customer_id"     json:"-"`
	StripeSubscriptionID *string            `db:"stripe_subscription_id" json:"-"`
	CurrentPeriodEnd     *time.Time         `db:"current_period_end"     json:"current_period_end,omitempty"`
	IsAdmin              bool               `db:"is_admin"        json:"is_admin"`
	CreatedAt            time.Time          `db:"created_at"      json:"created_at"`
	UpdatedAt            time.Time          `db:"updated_at"      json:"updated_at"`
}
