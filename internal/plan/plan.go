// Package plan maps an account's tier to the capabilities it unlocks.
package plan

import (
	"strings"

	"github.com/voxdesk/voxdesk/internal/models"
)

// Tier is a subscription level.
type Tier string

// Supported tiers.
const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Unlimited marks a numeric capability without a ceiling. Zero is a real ceiling: no calls.
const Unlimited = -1

// ParseTier normalizes s into a known tier.
func ParseTier(s string) (Tier, bool) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFree:
		return TierFree, true
	case TierPro:
		return TierPro, true
	case TierEnterprise:
		return TierEnterprise, true
	default:
		return "", false
	}
}

// Capabilities describes what an account may do.
// MaxCallsPerDay and MaxCallDurationSeconds use Unlimited (-1) for no ceiling; 0 allows nothing.
type Capabilities struct {
	Tier                   Tier `json:"tier"`
	MaxCallsPerDay         int  `json:"max_calls_per_day"`
	MaxCallDurationSeconds int  `json:"max_call_duration_seconds"`
	AllowBYOK              bool `json:"allow_byok"`
	AllowCRM               bool `json:"allow_crm"`
	AllowAdvancedAnalytics bool `json:"allow_advanced_analytics"`
}

// Catalog holds the static tier table.
type Catalog struct {
	tiers map[Tier]Capabilities
}

// NewCatalog builds the tier table with the configured free-tier allowance.
// Negative allowances mean Unlimited.
func NewCatalog(freeCallsPerDay, freeMaxCallSeconds int) *Catalog {
	freeCallsPerDay = max(freeCallsPerDay, Unlimited)
	freeMaxCallSeconds = max(freeMaxCallSeconds, Unlimited)
	return &Catalog{tiers: map[Tier]Capabilities{
		TierFree: {
			Tier:                   TierFree,
			MaxCallsPerDay:         freeCallsPerDay,
			MaxCallDurationSeconds: freeMaxCallSeconds,
		},
		TierPro: {
			Tier:                   TierPro,
			MaxCallsPerDay:         Unlimited,
			MaxCallDurationSeconds: Unlimited,
			AllowBYOK:              true,
			AllowCRM:               true,
		},
		TierEnterprise: {
			Tier:                   TierEnterprise,
			MaxCallsPerDay:         Unlimited,
			MaxCallDurationSeconds: Unlimited,
			AllowBYOK:              true,
			AllowCRM:               true,
			AllowAdvancedAnalytics: true,
		},
	}}
}

// ForTier returns the capabilities of tier; unknown tiers get the free tier.
func (c *Catalog) ForTier(tier Tier) Capabilities {
	if caps, ok := c.tiers[tier]; ok {
		return caps
	}
	return c.tiers[TierFree]
}

// Anonymous returns the capabilities applied to callers without an account.
func (c *Catalog) Anonymous() Capabilities {
	return c.ForTier(TierFree)
}

// Effective returns the capabilities of account, applying its quota overrides.
// A nil account is treated as anonymous.
func (c *Catalog) Effective(account *models.Account) Capabilities {
	if account == nil {
		return c.Anonymous()
	}
	tier, _ := ParseTier(account.Plan)
	caps := c.ForTier(tier)
	if ValidLimit(account.DailyCallOverride) {
		caps.MaxCallsPerDay = *account.DailyCallOverride
	}
	if ValidLimit(account.MaxCallSecondsOverride) {
		caps.MaxCallDurationSeconds = *account.MaxCallSecondsOverride
	}
	return caps
}

// ValidLimit reports whether v is set to Unlimited or a non-negative ceiling.
func ValidLimit(v *int) bool {
	return v != nil && *v >= Unlimited
}

// All returns every tier's capabilities, cheapest first.
func (c *Catalog) All() []Capabilities {
	return []Capabilities{c.tiers[TierFree], c.tiers[TierPro], c.tiers[TierEnterprise]}
}
