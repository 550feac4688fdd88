// Package domain contains core business types and interfaces.
//
// This file defines quota types limiting how many clients and active
// orders an account may hold on each subscription tier.
package domain

// QuotaType identifies the type of quota being checked.
type QuotaType string

const (
	QuotaTypeClients QuotaType = "clients"
	QuotaTypeOrders  QuotaType = "orders"
)

// TierQuota defines the limits for a subscription tier.
//
// An "active" order is any order whose status is not in the terminal
// {done, cancelled} set; only those count against MaxActiveOrders.
type TierQuota struct {
	MaxClients      int
	MaxActiveOrders int
	Unlimited       bool
}

// TierQuotas maps subscription tiers to their quota limits.
// The pro tier is unbounded on both axes.
var TierQuotas = map[SubscriptionTier]TierQuota{
	SubscriptionTierFree: {
		MaxClients:      5,
		MaxActiveOrders: 3,
	},
	SubscriptionTierStart: {
		MaxClients:      40,
		MaxActiveOrders: 25,
	},
	SubscriptionTierPro: {
		Unlimited: true,
	},
}

// QuotaUsage represents current usage against quota limits.
type QuotaUsage struct {
	ClientsUsed       int64
	ClientsLimit      int64
	ActiveOrdersUsed  int64
	ActiveOrdersLimit int64
	IsUnlimited       bool
}

// GetTierQuota returns the quota for a tier, defaulting to the free tier
// for unknown tiers.
func GetTierQuota(tier SubscriptionTier) TierQuota {
	if quota, ok := TierQuotas[tier]; ok {
		return quota
	}
	return TierQuotas[SubscriptionTierFree]
}
