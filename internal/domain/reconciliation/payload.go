package reconciliation

import (
	"strings"
	"time"

	"github.com/orris-inc/subsync/internal/domain/billing"
	"github.com/orris-inc/subsync/internal/domain/entitlement"
)

// Payload is a subscription's computed entitlement fields before identity is
// attached.
type Payload struct {
	Record           entitlement.Record
	RawStatus        string
	PlanSource       PlanSource
	IgnoredDiscounts int
	Created          time.Time
}

// WithUser returns the record for userID.
func (p Payload) WithUser(userID string) entitlement.Record {
	rec := p.Record
	rec.UserID = userID
	return rec
}

// SubscriptionID returns the billing subscription id, empty when unset.
func (p Payload) SubscriptionID() string {
	if p.Record.SubscriptionID == nil {
		return ""
	}
	return *p.Record.SubscriptionID
}

// EffectiveStatus maps the raw provider status and promotes a trial that is
// fully paid for by its discount to active.
func EffectiveStatus(raw string, d DiscountResult) entitlement.Status {
	status := entitlement.StatusFromBilling(raw)
	if status != entitlement.StatusTrial || !d.HasDiscount {
		return status
	}
	fullyDiscounted := d.DiscountPercent != nil && d.DiscountPercent.GreaterThanOrEqual(hundred)
	if fullyDiscounted || !d.MonthlyAmountDue.IsPositive() {
		return entitlement.StatusActive
	}
	return status
}

// PayloadBuilder computes payloads from billing subscriptions.
type PayloadBuilder struct {
	plans *PlanResolver
}

// NewPayloadBuilder creates a builder using plans for plan resolution
func NewPayloadBuilder(plans *PlanResolver) *PayloadBuilder {
	return &PayloadBuilder{plans: plans}
}

// Build computes status, plan and discount fields for sub. email, when
// known, becomes the record's user email.
func (b *PayloadBuilder) Build(sub *billing.Subscription, email string) Payload {
	plan, source := b.plans.Resolve(sub)
	disc := CalculateDiscount(sub)

	rec := entitlement.Record{
		Status:           EffectiveStatus(sub.Status, disc),
		PlanType:         plan,
		TrialEndsAt:      sub.TrialEnd,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		HasDiscount:      disc.HasDiscount,
		DiscountPercent:  disc.DiscountPercent,
		MonthlyAmountDue: disc.MonthlyAmountDue,
		CouponID:         disc.CouponID,
		PromoCode:        disc.PromoCode,
		DiscountEndsAt:   disc.DiscountEndsAt,
	}
	if sub.ID != "" {
		id := sub.ID
		rec.SubscriptionID = &id
	}
	if sub.CustomerID != "" {
		id := sub.CustomerID
		rec.CustomerID = &id
	}
	if e := strings.TrimSpace(email); e != "" {
		rec.UserEmail = &e
	}
	if sub.TrialEnd != nil {
		rec.TrialUsed = true
		rec.TrialedPlanLevels = []string{string(plan)}
	}

	return Payload{
		Record:           rec,
		RawStatus:        sub.Status,
		PlanSource:       source,
		IgnoredDiscounts: disc.IgnoredDiscounts,
		Created:          sub.Created,
	}
}
