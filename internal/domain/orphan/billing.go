package orphan

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/orris-inc/subsync/internal/domain/entitlement"
)

// Billing is the amount and discount state computed when the orphan was
// recorded. Recovery writes it when the provider cannot be reached.
type Billing struct {
	MonthlyAmountDue decimal.Decimal
	HasDiscount      bool
	DiscountPercent  *decimal.Decimal
	CouponID         *string
	PromoCode        *string
	DiscountEndsAt   *time.Time
	TrialEndsAt      *time.Time
	CurrentPeriodEnd *time.Time
}

// BillingFromRecord captures the billing fields of rec
func BillingFromRecord(rec entitlement.Record) Billing {
	return Billing{
		MonthlyAmountDue: rec.MonthlyAmountDue,
		HasDiscount:      rec.HasDiscount,
		DiscountPercent:  rec.DiscountPercent,
		CouponID:         rec.CouponID,
		PromoCode:        rec.PromoCode,
		DiscountEndsAt:   rec.DiscountEndsAt,
		TrialEndsAt:      rec.TrialEndsAt,
		CurrentPeriodEnd: rec.CurrentPeriodEnd,
	}
}

// ApplyTo copies the snapshot onto rec. A recorded trial end marks the plan
// as trialed.
func (b Billing) ApplyTo(rec *entitlement.Record) {
	rec.MonthlyAmountDue = b.MonthlyAmountDue
	rec.HasDiscount = b.HasDiscount
	rec.DiscountPercent = b.DiscountPercent
	rec.CouponID = b.CouponID
	rec.PromoCode = b.PromoCode
	rec.DiscountEndsAt = b.DiscountEndsAt
	rec.TrialEndsAt = b.TrialEndsAt
	rec.CurrentPeriodEnd = b.CurrentPeriodEnd
	if b.TrialEndsAt != nil {
		rec.TrialUsed = true
		rec.TrialedPlanLevels = []string{string(rec.PlanType)}
	}
}

// HasRecordedBilling reports whether the orphan carries a usable amount.
// Rows recorded before amounts were captured hold zero without a discount
// and cannot stand in for the provider's state.
func (o *Orphan) HasRecordedBilling() bool {
	if o.status == entitlement.StatusCancelled || o.status == entitlement.StatusFree {
		return true
	}
	return o.billing.HasDiscount || !o.billing.MonthlyAmountDue.IsZero()
}
