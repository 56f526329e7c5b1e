package entitlement

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Field names a tracked entitlement column.
type Field string

const (
	FieldUserEmail         Field = "user_email"
	FieldStatus            Field = "status"
	FieldPlanType          Field = "plan_type"
	FieldCustomerID        Field = "stripe_customer_id"
	FieldSubscriptionID    Field = "stripe_subscription_id"
	FieldTrialEndsAt       Field = "trial_ends_at"
	FieldCurrentPeriodEnd  Field = "current_period_end"
	FieldHasDiscount       Field = "has_discount"
	FieldDiscountPercent   Field = "discount_percent"
	FieldMonthlyAmountDue  Field = "monthly_amount_due"
	FieldCouponID          Field = "coupon_id"
	FieldPromoCode         Field = "promo_code"
	FieldDiscountEndsAt    Field = "discount_ends_at"
	FieldTrialUsed         Field = "trial_used"
	FieldTrialedPlanLevels Field = "trialed_plan_levels"
)

// MergePolicy decides how an incoming value combines with the stored one.
type MergePolicy int

const (
	// Overwrite always takes the incoming value, including nil.
	Overwrite MergePolicy = iota
	// PreserveIfMissing keeps the stored value when the incoming one is empty.
	PreserveIfMissing
	// Union keeps everything either side has: OR for flags, set union for lists.
	Union
)

func (p MergePolicy) String() string {
	switch p {
	case PreserveIfMissing:
		return "preserve_if_missing"
	case Union:
		return "union"
	default:
		return "overwrite"
	}
}

// MergePolicyTable maps fields to their merge policy. Fields not listed are
// overwritten.
type MergePolicyTable map[Field]MergePolicy

// DefaultMergePolicy is the policy used by reconciliation writes.
func DefaultMergePolicy() MergePolicyTable {
	return MergePolicyTable{
		FieldUserEmail:         PreserveIfMissing,
		FieldTrialUsed:         Union,
		FieldTrialedPlanLevels: Union,
	}
}

// For returns the policy for f.
func (t MergePolicyTable) For(f Field) MergePolicy {
	if p, ok := t[f]; ok {
		return p
	}
	return Overwrite
}

// Merge combines existing and incoming field by field according to table.
func Merge(existing, incoming Record, table MergePolicyTable) Record {
	out := Record{UserID: existing.UserID}
	if out.UserID == "" {
		out.UserID = incoming.UserID
	}

	out.UserEmail = mergePtr(table.For(FieldUserEmail), existing.UserEmail, incoming.UserEmail)
	out.Status = mergeValue(table.For(FieldStatus), existing.Status, incoming.Status)
	out.PlanType = mergeValue(table.For(FieldPlanType), existing.PlanType, incoming.PlanType)
	out.CustomerID = mergePtr(table.For(FieldCustomerID), existing.CustomerID, incoming.CustomerID)
	out.SubscriptionID = mergePtr(table.For(FieldSubscriptionID), existing.SubscriptionID, incoming.SubscriptionID)
	out.TrialEndsAt = mergePtr(table.For(FieldTrialEndsAt), existing.TrialEndsAt, incoming.TrialEndsAt)
	out.CurrentPeriodEnd = mergePtr(table.For(FieldCurrentPeriodEnd), existing.CurrentPeriodEnd, incoming.CurrentPeriodEnd)
	out.HasDiscount = mergeBool(table.For(FieldHasDiscount), existing.HasDiscount, incoming.HasDiscount)
	out.DiscountPercent = mergePtr(table.For(FieldDiscountPercent), existing.DiscountPercent, incoming.DiscountPercent)
	out.MonthlyAmountDue = mergeDecimal(table.For(FieldMonthlyAmountDue), existing.MonthlyAmountDue, incoming.MonthlyAmountDue)
	out.CouponID = mergePtr(table.For(FieldCouponID), existing.CouponID, incoming.CouponID)
	out.PromoCode = mergePtr(table.For(FieldPromoCode), existing.PromoCode, incoming.PromoCode)
	out.DiscountEndsAt = mergePtr(table.For(FieldDiscountEndsAt), existing.DiscountEndsAt, incoming.DiscountEndsAt)
	out.TrialUsed = mergeBool(table.For(FieldTrialUsed), existing.TrialUsed, incoming.TrialUsed)
	out.TrialedPlanLevels = mergeLevels(table.For(FieldTrialedPlanLevels), existing.TrialedPlanLevels, incoming.TrialedPlanLevels)

	return out
}

func mergePtr[T any](p MergePolicy, existing, incoming *T) *T {
	if p != Overwrite && incoming == nil {
		return existing
	}
	return incoming
}

func mergeValue[T comparable](p MergePolicy, existing, incoming T) T {
	var zero T
	if p != Overwrite && incoming == zero {
		return existing
	}
	return incoming
}

func mergeBool(p MergePolicy, existing, incoming bool) bool {
	if p == Union {
		return existing || incoming
	}
	return incoming
}

func mergeDecimal(p MergePolicy, existing, incoming decimal.Decimal) decimal.Decimal {
	if p != Overwrite && incoming.IsZero() {
		return existing
	}
	return incoming
}

func mergeLevels(p MergePolicy, existing, incoming []string) []string {
	switch {
	case p == Union:
		return unionLevels(existing, incoming)
	case p == PreserveIfMissing && len(incoming) == 0:
		return slices.Clone(existing)
	default:
		return slices.Clone(incoming)
	}
}
