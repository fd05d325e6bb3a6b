package ratelimit

import "strings"

// MessageType distinguishes quota buckets for different channels.
type MessageType string

const (
	MessageTypeSMS MessageType = "sms"
	MessageTypeMMS MessageType = "mms"
)

// Tier is a tenant's service level. Each tier maps to per-window ceilings.
type Tier string

const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Quota holds the per-window ceilings for one (tier, message type) pair.
type Quota struct {
	PerMinute int64
	PerHour   int64
	PerDay    int64
}

// Limit returns the ceiling for the given window.
func (q Quota) Limit(w Window) int64 {
	switch w {
	case WindowMinute:
		return q.PerMinute
	case WindowHour:
		return q.PerHour
	case WindowDay:
		return q.PerDay
	default:
		return q.PerMinute
	}
}

// MostRestrictiveWindow returns the window whose ceiling per unit of time is
// smallest. The per-minute window typically dominates.
func (q Quota) MostRestrictiveWindow() Window {
	best := WindowMinute
	bestRate := float64(q.PerMinute) / WindowMinute.Length().Seconds()
	for _, w := range Windows[1:] {
		rate := float64(q.Limit(w)) / w.Length().Seconds()
		if rate < bestRate {
			best = w
			bestRate = rate
		}
	}
	return best
}

// TierResolver maps a tenant to its tier. Injected so deployments and tests
// can swap the lookup.
type TierResolver interface {
	Resolve(tenantID string) Tier
}

// QuotaResolver maps (tier, message type) to ceilings.
type QuotaResolver interface {
	Quota(tier Tier, messageType MessageType) Quota
}

// StaticTierResolver resolves tiers from a fixed table, defaulting to free
// for unknown tenants.
type StaticTierResolver struct {
	Tenants map[string]Tier
}

func (r *StaticTierResolver) Resolve(tenantID string) Tier {
	if r == nil || r.Tenants == nil {
		return TierFree
	}
	if tier, ok := r.Tenants[tenantID]; ok {
		return tier
	}
	return TierFree
}

// ParseTier normalizes a configured tier name. Unknown names report false.
func ParseTier(s string) (Tier, bool) {
	switch Tier(strings.ToLower(s)) {
	case TierFree:
		return TierFree, true
	case TierBasic:
		return TierBasic, true
	case TierPro:
		return TierPro, true
	case TierEnterprise:
		return TierEnterprise, true
	}
	return TierFree, false
}

// NewStaticTierResolver builds a resolver from a configured tenant-to-tier
// name table. Entries with an unknown tier name fall back to free.
func NewStaticTierResolver(tenants map[string]string) *StaticTierResolver {
	table := make(map[string]Tier, len(tenants))
	for tenant, name := range tenants {
		tier, _ := ParseTier(name)
		table[tenant] = tier
	}
	return &StaticTierResolver{Tenants: table}
}

// QuotaTable is a config-backed QuotaResolver.
type QuotaTable map[Tier]map[MessageType]Quota

// Quota returns the ceilings for the tier and message type, falling back to
// the free tier for unknown entries.
func (t QuotaTable) Quota(tier Tier, messageType MessageType) Quota {
	if byType, ok := t[tier]; ok {
		if q, ok := byType[messageType]; ok {
			return q
		}
	}
	if byType, ok := t[TierFree]; ok {
		if q, ok := byType[messageType]; ok {
			return q
		}
	}
	return Quota{PerMinute: 5, PerHour: 50, PerDay: 200}
}

// DefaultQuotas returns the built-in quota table.
func DefaultQuotas() QuotaTable {
	return QuotaTable{
		TierFree: {
			MessageTypeSMS: {PerMinute: 5, PerHour: 50, PerDay: 200},
			MessageTypeMMS: {PerMinute: 2, PerHour: 20, PerDay: 100},
		},
		TierBasic: {
			MessageTypeSMS: {PerMinute: 30, PerHour: 500, PerDay: 5000},
			MessageTypeMMS: {PerMinute: 10, PerHour: 150, PerDay: 1500},
		},
		TierPro: {
			MessageTypeSMS: {PerMinute: 120, PerHour: 3000, PerDay: 30000},
			MessageTypeMMS: {PerMinute: 40, PerHour: 1000, PerDay: 10000},
		},
		TierEnterprise: {
			MessageTypeSMS: {PerMinute: 600, PerHour: 20000, PerDay: 200000},
			MessageTypeMMS: {PerMinute: 200, PerHour: 6000, PerDay: 60000},
		},
	}
}
