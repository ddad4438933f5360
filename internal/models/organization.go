package models

import "time"

// SubscriptionPlan enumerates billing tiers. Plan ceilings are enforced
// locally; the billing provider integration lives outside this service.
type SubscriptionPlan string

const (
	PlanFree       SubscriptionPlan = "FREE"
	PlanPro        SubscriptionPlan = "PRO"
	PlanEnterprise SubscriptionPlan = "ENTERPRISE"
)

// SubscriptionStatus tracks whether the plan is currently usable.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionCanceled SubscriptionStatus = "CANCELED"
)

// Organization is the tenancy root. All modules, members and stats are scoped
// to one organization.
type Organization struct {
	ID                 string             `db:"id" json:"id"`
	Name               string             `db:"name" json:"name"`
	Plan               SubscriptionPlan   `db:"plan" json:"plan"`
	SubscriptionStatus SubscriptionStatus `db:"subscription_status" json:"subscription_status"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

// PlanLimits declares per-plan ceilings.
type PlanLimits struct {
	MaxModules int
	MaxMembers int
	APIAccess  bool
}

// LimitsFor returns the ceilings for a plan. Zero means unlimited.
func LimitsFor(plan SubscriptionPlan) PlanLimits {
	switch plan {
	case PlanPro:
		return PlanLimits{MaxModules: 100, MaxMembers: 50, APIAccess: true}
	case PlanEnterprise:
		return PlanLimits{MaxModules: 0, MaxMembers: 0, APIAccess: true}
	default:
		return PlanLimits{MaxModules: 5, MaxMembers: 5, APIAccess: false}
	}
}
