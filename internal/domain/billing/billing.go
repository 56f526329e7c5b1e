// Package billing holds provider-agnostic views of billing provider objects
// and the port used to read them and tag them with user identity.
package billing

import (
	"context"
	"strings"
	"time"
)

// Metadata keys written to and read from provider objects.
const (
	MetadataUserID    = "userId"
	MetadataPlanID    = "plan_id"
	MetadataPlanIDAlt = "planId"
)

// Raw subscription statuses that count as live.
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

// Coupon durations.
const (
	DurationOnce      = "once"
	DurationRepeating = "repeating"
	DurationForever   = "forever"
)

// Price is a recurring price. UnitAmount is in minor units.
type Price struct {
	ID         string
	UnitAmount int64
	Currency   string
	Interval   string
	Metadata   map[string]string
}

// Coupon describes the reduction a discount applies. AmountOff is in minor units.
type Coupon struct {
	ID               string
	PercentOff       float64
	AmountOff        int64
	Duration         string
	DurationInMonths int64
}

// Discount is a coupon attached to a subscription.
type Discount struct {
	Coupon        *Coupon
	PromotionCode string
	Start         *time.Time
	End           *time.Time
}

// Subscription is the provider subscription as reconciliation sees it.
type Subscription struct {
	ID               string
	CustomerID       string
	Status           string
	Price            *Price
	Metadata         map[string]string
	Discounts        []Discount
	TrialEnd         *time.Time
	CurrentPeriodEnd *time.Time
	StartDate        time.Time
	Created          time.Time
}

// IsLive reports whether the raw status is active, trialing or past due.
func (s *Subscription) IsLive() bool {
	switch s.Status {
	case StatusActive, StatusTrialing, StatusPastDue:
		return true
	default:
		return false
	}
}

// MetadataValue returns the first non-blank metadata value among keys.
func MetadataValue(md map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(md[k]); v != "" {
			return v
		}
	}
	return ""
}

// Customer is a provider customer.
type Customer struct {
	ID       string
	Email    string
	Metadata map[string]string
	Deleted  bool
}

// ListParams pages through subscriptions. An empty Status lists every status.
type ListParams struct {
	StartingAfter string
	Limit         int
	Status        string
}

// SubscriptionPage is one page of a subscription listing.
type SubscriptionPage struct {
	Subscriptions []Subscription
	HasMore       bool
}

// Provider is the billing provider port. Writes are limited to tagging
// objects with the owning user id.
type Provider interface {
	ListSubscriptions(ctx context.Context, params ListParams) (*SubscriptionPage, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	ListCustomerSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	FindCustomersByEmail(ctx context.Context, email string) ([]Customer, error)
	TagSubscriptionUser(ctx context.Context, subscriptionID, userID string) error
	TagCustomerUser(ctx context.Context, customerID, userID string) error
}
