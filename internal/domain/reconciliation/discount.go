package reconciliation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/orris-inc/subsync/internal/domain/billing"
	"github.com/orris-inc/subsync/internal/shared/biztime"
)

var (
	hundred      = decimal.NewFromInt(100)
	monthsInYear = decimal.NewFromInt(12)
)

// DiscountResult is the monetary view of a subscription.
type DiscountResult struct {
	HasDiscount      bool
	DiscountPercent  *decimal.Decimal
	MonthlyAmountDue decimal.Decimal
	CouponID         *string
	PromoCode        *string
	DiscountEndsAt   *time.Time
	// IgnoredDiscounts counts discounts after the first, which are not applied.
	IgnoredDiscounts int
}

// BaseMonthlyAmount returns the undiscounted monthly figure in major units.
// Yearly prices are spread over twelve months.
func BaseMonthlyAmount(price *billing.Price) decimal.Decimal {
	if price == nil {
		return decimal.Zero
	}
	amount := decimal.New(price.UnitAmount, -2)
	if price.Interval == "year" {
		amount = amount.Div(monthsInYear)
	}
	return amount
}

// CalculateDiscount computes the discount-adjusted monthly amount for sub.
// Only the first attached discount is considered. Amounts are rounded half-up
// to cents after the discount is applied.
func CalculateDiscount(sub *billing.Subscription) DiscountResult {
	base := BaseMonthlyAmount(sub.Price)
	res := DiscountResult{MonthlyAmountDue: base.Round(2)}

	if len(sub.Discounts) == 0 {
		return res
	}
	res.IgnoredDiscounts = len(sub.Discounts) - 1

	d := sub.Discounts[0]
	if d.Coupon == nil {
		return res
	}
	c := d.Coupon

	monthly := base
	switch {
	case c.PercentOff > 0:
		pct := decimal.NewFromFloat(c.PercentOff).Round(2)
		res.DiscountPercent = &pct
		monthly = base.Mul(decimal.NewFromInt(1).Sub(pct.Div(hundred)))
	case c.AmountOff > 0:
		monthly = base.Sub(decimal.New(c.AmountOff, -2))
	default:
		return res
	}
	if monthly.IsNegative() {
		monthly = decimal.Zero
	}

	res.HasDiscount = true
	res.MonthlyAmountDue = monthly.Round(2)
	if c.ID != "" {
		id := c.ID
		res.CouponID = &id
	}
	if d.PromotionCode != "" {
		code := d.PromotionCode
		res.PromoCode = &code
	}
	res.DiscountEndsAt = discountEnd(d, sub)

	return res
}

// discountEnd uses the explicit end when the provider sent one, otherwise
// derives it for repeating coupons from the discount or subscription start.
func discountEnd(d billing.Discount, sub *billing.Subscription) *time.Time {
	if d.End != nil {
		end := d.End.UTC()
		return &end
	}
	if d.Coupon.Duration != billing.DurationRepeating || d.Coupon.DurationInMonths <= 0 {
		return nil
	}

	start := sub.StartDate
	if d.Start != nil {
		start = *d.Start
	}
	if start.IsZero() {
		return nil
	}
	end := biztime.AddMonthsUTC(start, int(d.Coupon.DurationInMonths))
	return &end
}
