// Package reconciliation turns billing provider subscriptions into
// entitlement records: plan resolution, discount arithmetic, effective status
// and the choice of one canonical subscription per user.
package reconciliation

import (
	"strings"

	"github.com/orris-inc/subsync/internal/domain/billing"
	"github.com/orris-inc/subsync/internal/domain/entitlement"
)

// PlanSource records which rule produced a plan id.
type PlanSource string

const (
	PlanSourceSubscriptionMetadata PlanSource = "subscription_metadata"
	PlanSourcePriceMetadata        PlanSource = "price_metadata"
	PlanSourcePriceTable           PlanSource = "price_table"
	PlanSourceInterval             PlanSource = "interval"
)

// PriceTable maps provider price ids to plans. Several ids (currency
// variants, legacy prices) may map to one plan. The zero value is empty.
type PriceTable struct {
	prices map[string]entitlement.PlanID
}

// NewPriceTable copies entries, dropping ones with an unknown plan.
func NewPriceTable(entries map[string]entitlement.PlanID) PriceTable {
	t := PriceTable{prices: make(map[string]entitlement.PlanID, len(entries))}
	for id, plan := range entries {
		id = strings.TrimSpace(id)
		if id == "" || !plan.IsValid() {
			continue
		}
		t.prices[id] = plan
	}
	return t
}

// Lookup returns the plan for a price id.
func (t PriceTable) Lookup(priceID string) (entitlement.PlanID, bool) {
	plan, ok := t.prices[priceID]
	return plan, ok
}

// Len returns the number of mapped price ids.
func (t PriceTable) Len() int {
	return len(t.prices)
}

// PlanResolver determines the plan for a billing subscription.
type PlanResolver struct {
	prices PriceTable
}

// NewPlanResolver creates a resolver backed by prices
func NewPlanResolver(prices PriceTable) *PlanResolver {
	return &PlanResolver{prices: prices}
}

// Resolve returns the plan for sub, first hit wins: subscription metadata,
// price metadata, price table, then billing interval. It always returns a
// paid plan id.
func (r *PlanResolver) Resolve(sub *billing.Subscription) (entitlement.PlanID, PlanSource) {
	if plan, ok := paidPlanTag(billing.MetadataValue(sub.Metadata, billing.MetadataPlanID, billing.MetadataPlanIDAlt)); ok {
		return plan, PlanSourceSubscriptionMetadata
	}

	if sub.Price != nil {
		if plan, ok := paidPlanTag(billing.MetadataValue(sub.Price.Metadata, billing.MetadataPlanID, billing.MetadataPlanIDAlt)); ok {
			return plan, PlanSourcePriceMetadata
		}
		if plan, ok := r.prices.Lookup(sub.Price.ID); ok {
			return plan, PlanSourcePriceTable
		}
		if strings.EqualFold(sub.Price.Interval, string(entitlement.IntervalYear)) {
			return entitlement.PlanPlusAIAnnual, PlanSourceInterval
		}
	}

	return entitlement.PlanPlus, PlanSourceInterval
}

// paidPlanTag accepts a metadata tag only when it names a paid plan; a
// subscription tagged free falls through to the price rules.
func paidPlanTag(tag string) (entitlement.PlanID, bool) {
	plan, ok := entitlement.ParsePlanTag(tag)
	if !ok || plan == entitlement.PlanFree {
		return "", false
	}
	return plan, true
}
