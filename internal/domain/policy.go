// Package domain contains core business types and interfaces.
//
// This file defines the entitlement policy: the static table mapping account
// tiers to their daily/monthly generation allowances.
package domain

// ProDurationDays is how long a paid subscription lasts from activation.
const ProDurationDays = 30

// TierLimits defines the window allowances for a tier.
type TierLimits struct {
	Daily     int
	Monthly   int
	Unlimited bool // when set, neither window is enforced
}

// tierLimits maps tiers to their default limits. PRO defaults to hard caps;
// deployments that sell PRO as unlimited set Policy.ProUnlimited instead of
// editing this table.
var tierLimits = map[Tier]TierLimits{
	TierFree: {Daily: 3, Monthly: 15},
	TierPro:  {Daily: 9, Monthly: 99},
}

// Policy resolves tier limits for the ledger. Whether PRO is a hard cap or
// effectively unlimited varied across product revisions, so it is an explicit
// configuration knob rather than a constant.
type Policy struct {
	ProUnlimited bool
}

// LimitsFor returns the limits for a tier, defaulting to FREE for unknown tiers.
func (p Policy) LimitsFor(tier Tier) TierLimits {
	limits, ok := tierLimits[tier]
	if !ok {
		return tierLimits[TierFree]
	}
	if tier == TierPro && p.ProUnlimited {
		limits.Unlimited = true
	}
	return limits
}

// Enforced reports whether window balances are checked at all for this limit
// set. Unlimited tiers skip both the daily and monthly checks.
func (l TierLimits) Enforced() bool {
	return !l.Unlimited
}
