package entitlement

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orris-inc/subsync/internal/shared/biztime"
)

// FreeDateWindowDays is how many days back from today a free user may open.
const FreeDateWindowDays = 7

// AccessPolicy is the immutable plan catalog plus feature matrix. Build one
// with NewAccessPolicy or DefaultAccessPolicy and pass it explicitly.
type AccessPolicy struct {
	plans    map[PlanID]PlanDefinition
	features map[PlanID]map[string]struct{}
}

// NewAccessPolicy validates and copies the catalog. A free plan and a free
// feature set are required; every plan's feature set must exist.
func NewAccessPolicy(plans []PlanDefinition, features map[PlanID][]string) (*AccessPolicy, error) {
	p := &AccessPolicy{
		plans:    make(map[PlanID]PlanDefinition, len(plans)),
		features: make(map[PlanID]map[string]struct{}, len(features)),
	}

	for tier, keys := range features {
		if !tier.IsValid() {
			return nil, fmt.Errorf("%w: feature tier %q", ErrInvalidPlan, tier)
		}
		set := make(map[string]struct{}, len(keys))
		for _, k := range keys {
			set[k] = struct{}{}
		}
		p.features[tier] = set
	}
	if _, ok := p.features[PlanFree]; !ok {
		return nil, fmt.Errorf("%w: free feature set is required", ErrInvalidCatalog)
	}

	for _, def := range plans {
		if !def.ID.IsValid() {
			return nil, fmt.Errorf("%w: plan %q", ErrInvalidPlan, def.ID)
		}
		if !def.Interval.IsValid() {
			return nil, fmt.Errorf("%w: plan %s has interval %q", ErrInvalidCatalog, def.ID, def.Interval)
		}
		if def.FeatureSet == "" {
			def.FeatureSet = def.ID
		}
		if _, ok := p.features[def.FeatureSet]; !ok {
			return nil, fmt.Errorf("%w: plan %s references missing feature set %s", ErrInvalidCatalog, def.ID, def.FeatureSet)
		}
		p.plans[def.ID] = def
	}
	if _, ok := p.plans[PlanFree]; !ok {
		return nil, fmt.Errorf("%w: free plan is required", ErrInvalidCatalog)
	}

	return p, nil
}

// Plan returns the definition for id
func (p *AccessPolicy) Plan(id PlanID) (PlanDefinition, bool) {
	if p == nil {
		return PlanDefinition{}, false
	}
	def, ok := p.plans[id]
	return def, ok
}

// Plans returns all plan definitions ordered by price
func (p *AccessPolicy) Plans() []PlanDefinition {
	if p == nil {
		return nil
	}
	out := make([]PlanDefinition, 0, len(p.plans))
	for _, def := range p.plans {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Price.Equal(out[j].Price) {
			return out[i].Price.LessThan(out[j].Price)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// gateStatus folds the raw provider spelling of trial into the internal one.
func gateStatus(status Status) Status {
	if status == "trialing" {
		return StatusTrial
	}
	return status
}

// paidTier picks the feature tier for a paid status. Anything that is not a
// known paid tier gets the base paid tier.
func (p *AccessPolicy) paidTier(plan string) PlanID {
	id := NormalizePlan(plan)
	if def, ok := p.plans[id]; ok && id != PlanFree {
		return def.FeatureSet
	}
	return PlanPlus
}

func (p *AccessPolicy) inSet(tier PlanID, feature string) bool {
	_, ok := p.features[tier][feature]
	return ok
}

// HasFeatureAccess is the feature gate. Free, unknown, past-due and cancelled
// statuses only get the free set; trial and active get free plus their tier.
func (p *AccessPolicy) HasFeatureAccess(status Status, plan, feature string) bool {
	if p == nil || feature == "" {
		return false
	}
	if p.inSet(PlanFree, feature) {
		return true
	}
	if !gateStatus(status).IsPaid() {
		return false
	}
	return p.inSet(p.paidTier(plan), feature)
}

// Features lists every feature granted for status and plan, sorted.
func (p *AccessPolicy) Features(status Status, plan string) []string {
	if p == nil {
		return nil
	}
	granted := make(map[string]struct{}, len(p.features[PlanFree]))
	for k := range p.features[PlanFree] {
		granted[k] = struct{}{}
	}
	if gateStatus(status).IsPaid() {
		for k := range p.features[p.paidTier(plan)] {
			granted[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(granted))
	for k := range granted {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ChatLimit returns the daily AI chat allowance for a plan. Unknown plans get
// the free allowance.
func (p *AccessPolicy) ChatLimit(plan string) int {
	if p == nil {
		return 0
	}
	if def, ok := p.plans[NormalizePlan(plan)]; ok {
		return def.ChatLimit
	}
	return p.plans[PlanFree].ChatLimit
}

// TrialDays returns the trial length for a plan, zero when it has none.
func (p *AccessPolicy) TrialDays(plan PlanID) int {
	def, ok := p.Plan(plan)
	if !ok {
		return 0
	}
	return def.TrialDays
}

// HasDateAccess reports whether a calendar date can be opened. Paid statuses
// see every date; everyone else sees today and the FreeDateWindowDays before
// it. Days are counted in the business timezone.
func (p *AccessPolicy) HasDateAccess(status Status, date, now time.Time) bool {
	if gateStatus(status).IsPaid() {
		return true
	}
	diff := biztime.DaysBetween(date, now)
	return diff >= 0 && diff <= FreeDateWindowDays
}

var freeFeatures = []string{
	"moon_phases",
	"general_horoscope",
	"general_tarot",
	"general_crystal_recommendations",
	"grimoire",
	"lunar_calendar",
	"weekly_ai_ritual",
	"birthday_collection",
	"birth_chart",
	"personal_day_number",
	"personal_year_number",
	"cosmic_patterns",
	"keyword_mood_detection",
	"friend_connections_basic",
}

var plusFeatures = []string{
	"birth_chart",
	"birthday_collection",
	"personalized_horoscope",
	"personal_tarot",
	"personalized_crystal_recommendations",
	"transit_calendar",
	"tarot_patterns",
	"tarot_patterns_basic",
	"pattern_drill_down",
	"solar_return",
	"cosmic_profile",
	"personalized_transit_readings",
	"moon_circles",
	"ritual_generator",
	"collections",
	"monthly_insights",
	"personal_day_number",
	"personal_day_meaning",
	"personal_year_number",
	"personal_year_meaning",
	"cosmic_patterns",
	"keyword_mood_detection",
	"friend_connections",
}

var plusAIExtras = []string{
	"tarot_patterns_advanced",
	"pattern_heatmap",
	"card_combinations",
	"ai_pattern_insights",
	"unlimited_ai_chat",
	"deeper_readings",
	"weekly_reports",
	"saved_chat_threads",
	"downloadable_reports",
	"ai_ritual_generation",
	"advanced_patterns",
	"advanced_cosmic_patterns",
	"ai_mood_detection",
	"enhanced_pattern_analysis",
	"relationship_timing",
	"shared_cosmic_events",
}

var annualExtras = []string{
	"pattern_export",
	"pattern_comparison",
	"predictive_insights",
	"year_over_year",
	"pattern_network_graph",
	"unlimited_tarot_spreads",
	"yearly_forecast",
	"data_export",
}

// DefaultFeatureMatrix returns a fresh copy of the built-in feature matrix.
func DefaultFeatureMatrix() map[PlanID][]string {
	plusAI := append(append([]string{}, plusFeatures...), plusAIExtras...)
	annual := append(append([]string{}, plusAI...), annualExtras...)
	return map[PlanID][]string{
		PlanFree:         append([]string{}, freeFeatures...),
		PlanPlus:         append([]string{}, plusFeatures...),
		PlanPlusAI:       plusAI,
		PlanPlusAIAnnual: annual,
	}
}

// DefaultPlans returns the built-in plan catalog.
func DefaultPlans() []PlanDefinition {
	return []PlanDefinition{
		{ID: PlanFree, Name: "Free", Price: decimal.Zero, Interval: IntervalMonth, ChatLimit: 3},
		{ID: PlanPlus, Name: "Lunary+", Price: decimal.RequireFromString("4.99"), Interval: IntervalMonth, TrialDays: 7, ChatLimit: 50},
		{ID: PlanPlusAI, Name: "Lunary+ AI", Price: decimal.RequireFromString("8.99"), Interval: IntervalMonth, TrialDays: 7, ChatLimit: 300},
		{ID: PlanPlusAIAnnual, Name: "Lunary+ AI Annual", Price: decimal.RequireFromString("89.99"), Interval: IntervalYear, TrialDays: 14, ChatLimit: 300},
	}
}

// DefaultAccessPolicy returns the built-in catalog as an AccessPolicy.
func DefaultAccessPolicy() *AccessPolicy {
	p, err := NewAccessPolicy(DefaultPlans(), DefaultFeatureMatrix())
	if err != nil {
		panic(fmt.Sprintf("entitlement: built-in catalog is invalid: %v", err))
	}
	return p
}
