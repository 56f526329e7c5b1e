package entitlement

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PlanID identifies a plan tier
type PlanID string

const (
	PlanFree         PlanID = "free"
	PlanPlus         PlanID = "lunary_plus"
	PlanPlusAI       PlanID = "lunary_plus_ai"
	PlanPlusAIAnnual PlanID = "lunary_plus_ai_annual"
)

// IsValid checks if the plan id belongs to the closed set
func (p PlanID) IsValid() bool {
	switch p {
	case PlanFree, PlanPlus, PlanPlusAI, PlanPlusAIAnnual:
		return true
	default:
		return false
	}
}

// String returns the string representation of the plan id
func (p PlanID) String() string {
	return string(p)
}

// Interval is a billing interval
type Interval string

const (
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// IsValid checks if the interval is supported
func (i Interval) IsValid() bool {
	return i == IntervalMonth || i == IntervalYear
}

// ParsePlanTag interprets a plan tag found in provider metadata or a legacy
// persisted value. Generic interval words resolve to their default tier.
// ok is false when the tag names no known plan.
func ParsePlanTag(raw string) (PlanID, bool) {
	tag := strings.ToLower(strings.TrimSpace(raw))
	if p := PlanID(tag); p.IsValid() {
		return p, true
	}
	switch tag {
	case "yearly", "annual", "year":
		return PlanPlusAIAnnual, true
	case "monthly", "month":
		return PlanPlus, true
	}
	return "", false
}

// NormalizePlan resolves a stored or raw plan value to a PlanID. Empty and
// unknown values become free.
func NormalizePlan(raw string) PlanID {
	if p, ok := ParsePlanTag(raw); ok {
		return p
	}
	return PlanFree
}

// PlanDefinition describes one plan in the catalog
type PlanDefinition struct {
	ID        PlanID
	Name      string
	Price     decimal.Decimal
	Interval  Interval
	TrialDays int
	ChatLimit int
	// FeatureSet names the tier whose feature set this plan grants.
	FeatureSet PlanID
}
