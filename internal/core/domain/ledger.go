package domain

import (
	"fmt"
	"time"
)

// PlanTier enumerates the subscription tiers an account can hold.
type PlanTier string

const (
	TierFree     PlanTier = "free"
	TierBasic    PlanTier = "basic"
	TierStandard PlanTier = "standard"
	TierBusiness PlanTier = "business"
)

// tierRank orders tiers by privilege. Higher rank means a more privileged plan.
var tierRank = map[PlanTier]int{
	TierFree:     0,
	TierBasic:    1,
	TierStandard: 2,
	TierBusiness: 3,
}

// ParsePlanTier validates a tier name received from an external source.
func ParsePlanTier(raw string) (PlanTier, error) {
	tier := PlanTier(raw)
	if _, ok := tierRank[tier]; !ok {
		return "", fmt.Errorf("unknown plan tier %q", raw)
	}
	return tier, nil
}

// Outranks reports whether t is more privileged than other.
func (t PlanTier) Outranks(other PlanTier) bool {
	return tierRank[t] > tierRank[other]
}

// IsPaid reports whether the tier is one of the purchasable tiers.
func (t PlanTier) IsPaid() bool {
	return t == TierBasic || t == TierStandard || t == TierBusiness
}

// Valid reports whether the tier is a known tier name.
func (t PlanTier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// ConsumptionHierarchy returns the ordered list of tiers a plan may draw
// points from. The account's own tier is always first; a plan never reaches
// below standard→basic, and never into a tier above its own privilege.
func ConsumptionHierarchy(plan PlanTier) []PlanTier {
	switch plan {
	case TierBusiness:
		return []PlanTier{TierBusiness, TierStandard}
	case TierStandard:
		return []PlanTier{TierStandard, TierBasic}
	case TierBasic:
		return []PlanTier{TierBasic}
	default:
		return []PlanTier{TierFree}
	}
}

// AccountLedger mirrors the persisted per-account balance row.
type AccountLedger struct {
	UserID           string
	PlanTier         PlanTier
	FreePoints       int
	BasicPoints      int
	StandardPoints   int
	BusinessPoints   int
	AggregateBalance int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Balance returns the balance held in the named tier.
func (l AccountLedger) Balance(tier PlanTier) int {
	switch tier {
	case TierFree:
		return l.FreePoints
	case TierBasic:
		return l.BasicPoints
	case TierStandard:
		return l.StandardPoints
	case TierBusiness:
		return l.BusinessPoints
	default:
		return 0
	}
}

// TierSum returns the sum of the four tier balances. The persisted
// aggregate_balance column must always equal this value.
func (l AccountLedger) TierSum() int {
	return l.FreePoints + l.BasicPoints + l.StandardPoints + l.BusinessPoints
}
