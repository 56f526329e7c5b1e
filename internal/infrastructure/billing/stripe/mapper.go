package stripe

import (
	"time"

	stripelib "github.com/stripe/stripe-go/v82"

	"github.com/orris-inc/subsync/internal/domain/billing"
	"github.com/orris-inc/subsync/internal/shared/biztime"
)

// toSubscription maps a stripe subscription to the billing view. The first
// item's price and period end are used; the service sells single-item
// subscriptions only.
func toSubscription(s *stripelib.Subscription) billing.Subscription {
	out := billing.Subscription{
		ID:        s.ID,
		Status:    string(s.Status),
		Metadata:  copyMetadata(s.Metadata),
		TrialEnd:  biztime.FromUnix(s.TrialEnd),
		StartDate: unixTime(s.StartDate),
		Created:   unixTime(s.Created),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}

	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		out.CurrentPeriodEnd = biztime.FromUnix(item.CurrentPeriodEnd)
		if item.Price != nil {
			out.Price = toPrice(item.Price)
		}
	}

	for _, d := range s.Discounts {
		if d == nil {
			continue
		}
		out.Discounts = append(out.Discounts, toDiscount(d))
	}
	return out
}

func toPrice(p *stripelib.Price) *billing.Price {
	price := &billing.Price{
		ID:         p.ID,
		UnitAmount: p.UnitAmount,
		Currency:   string(p.Currency),
		Metadata:   copyMetadata(p.Metadata),
	}
	if p.Recurring != nil {
		price.Interval = string(p.Recurring.Interval)
	}
	return price
}

func toDiscount(d *stripelib.Discount) billing.Discount {
	out := billing.Discount{
		Start: biztime.FromUnix(d.Start),
		End:   biztime.FromUnix(d.End),
	}
	if d.Coupon != nil {
		out.Coupon = &billing.Coupon{
			ID:               d.Coupon.ID,
			PercentOff:       d.Coupon.PercentOff,
			AmountOff:        d.Coupon.AmountOff,
			Duration:         string(d.Coupon.Duration),
			DurationInMonths: d.Coupon.DurationInMonths,
		}
	}
	if d.PromotionCode != nil {
		out.PromotionCode = d.PromotionCode.Code
	}
	return out
}

func toCustomer(c *stripelib.Customer) billing.Customer {
	return billing.Customer{
		ID:       c.ID,
		Email:    c.Email,
		Metadata: copyMetadata(c.Metadata),
		Deleted:  c.Deleted,
	}
}

func copyMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

func unixTime(sec int64) time.Time {
	if t := biztime.FromUnix(sec); t != nil {
		return *t
	}
	return time.Time{}
}
