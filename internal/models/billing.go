package models

import (
	"time"
)

// Tier is a named quota profile. Quotas attach to the billing account, not
// the organization, so spinning up extra orgs does not multiply limits.
type Tier string

const (
	TierFree      Tier = "free"
	TierPro       Tier = "pro"
	TierUnlimited Tier = "unlimited"
)

// TierLimits holds the monthly quotas for a tier. A nil limit means
// unbounded.
type TierLimits struct {
	MaxLinksPerMonth         *int64
	MaxTrackedClicksPerMonth *int64
	AnalyticsRetentionDays   *int64
	MaxMembers               *int64
}

var tierLimits = map[Tier]TierLimits{
	TierFree: {
		MaxLinksPerMonth:         ptr(25),
		MaxTrackedClicksPerMonth: ptr(1000),
		AnalyticsRetentionDays:   ptr(30),
		MaxMembers:               ptr(3),
	},
	TierPro: {
		MaxLinksPerMonth:         ptr(500),
		MaxTrackedClicksPerMonth: ptr(50000),
		AnalyticsRetentionDays:   ptr(365),
		MaxMembers:               ptr(25),
	},
	TierUnlimited: {},
}

func ptr(n int64) *int64 { return &n }

// LimitsForTier returns the limits for a tier, defaulting unknown tiers to
// free.
func LimitsForTier(tier Tier) TierLimits {
	if limits, ok := tierLimits[tier]; ok {
		return limits
	}
	return tierLimits[TierFree]
}

// BillingAccount owns one or more organizations and is the unit quotas are
// enforced against.
type BillingAccount struct {
	ID          string    `json:"id"`
	OwnerUserID string    `json:"owner_user_id"`
	Tier        Tier      `json:"tier"`
	CreatedAt   time.Time `json:"created_at"`
}

// Limits returns the quota profile for the account's tier.
func (a *BillingAccount) Limits() TierLimits {
	return LimitsForTier(a.Tier)
}

type Organization struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	BillingAccountID *string   `json:"billing_account_id"` // nullable pre-migration
	CreatedAt        time.Time `json:"created_at"`
	CreatedBy        string    `json:"created_by"`
}
