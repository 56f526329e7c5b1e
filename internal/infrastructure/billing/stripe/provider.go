// Package stripe adapts the Stripe API to the billing provider port.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/orris-inc/subsync/internal/domain/billing"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

const (
	listAllStatuses = "all"
	maxPageSize     = 100
)

// subscriptionExpand pulls in the discount objects the calculator needs.
var subscriptionExpand = []string{"discounts", "discounts.promotion_code"}

// Provider implements billing.Provider on stripe-go. It only reads, apart
// from writing the userId metadata key.
type Provider struct {
	api    *client.API
	logger logger.Interface
}

// NewProvider creates a provider using the default stripe backends
func NewProvider(secretKey string, log logger.Interface) *Provider {
	return NewProviderWithBackends(secretKey, nil, log)
}

// NewProviderWithBackends creates a provider with custom backends, used to
// point the client at a test server.
func NewProviderWithBackends(secretKey string, backends *stripelib.Backends, log logger.Interface) *Provider {
	return &Provider{
		api:    client.New(secretKey, backends),
		logger: log.With("component", "billing.stripe"),
	}
}

// ListSubscriptions loads one page of subscriptions
func (p *Provider) ListSubscriptions(ctx context.Context, params billing.ListParams) (*billing.SubscriptionPage, error) {
	limit := params.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	status := params.Status
	if status == "" {
		status = listAllStatuses
	}

	lp := &stripelib.SubscriptionListParams{Status: stripelib.String(status)}
	lp.Context = ctx
	lp.Limit = stripelib.Int64(int64(limit))
	lp.Single = true
	if params.StartingAfter != "" {
		lp.StartingAfter = stripelib.String(params.StartingAfter)
	}
	for _, e := range subscriptionExpand {
		lp.AddExpand("data." + e)
	}

	it := p.api.Subscriptions.List(lp)
	page := &billing.SubscriptionPage{}
	for it.Next() {
		page.Subscriptions = append(page.Subscriptions, toSubscription(it.Subscription()))
	}
	if err := it.Err(); err != nil {
		p.logger.Errorw("failed to list subscriptions", "starting_after", params.StartingAfter, "error", err)
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	if meta := it.Meta(); meta != nil {
		page.HasMore = meta.HasMore
	}
	return page, nil
}

// GetSubscription loads one subscription with its discounts expanded
func (p *Provider) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	params := &stripelib.SubscriptionParams{}
	params.Context = ctx
	for _, e := range subscriptionExpand {
		params.AddExpand(e)
	}

	s, err := p.api.Subscriptions.Get(id, params)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", billing.ErrSubscriptionNotFound, id)
		}
		p.logger.Errorw("failed to get subscription", "subscription_id", id, "error", err)
		return nil, fmt.Errorf("failed to get subscription %s: %w", id, err)
	}
	sub := toSubscription(s)
	return &sub, nil
}

// ListCustomerSubscriptions returns every subscription of a customer, any status
func (p *Provider) ListCustomerSubscriptions(ctx context.Context, customerID string) ([]billing.Subscription, error) {
	lp := &stripelib.SubscriptionListParams{
		Customer: stripelib.String(customerID),
		Status:   stripelib.String(listAllStatuses),
	}
	lp.Context = ctx
	lp.Limit = stripelib.Int64(maxPageSize)
	for _, e := range subscriptionExpand {
		lp.AddExpand("data." + e)
	}

	var out []billing.Subscription
	it := p.api.Subscriptions.List(lp)
	for it.Next() {
		out = append(out, toSubscription(it.Subscription()))
	}
	if err := it.Err(); err != nil {
		p.logger.Errorw("failed to list customer subscriptions", "customer_id", customerID, "error", err)
		return nil, fmt.Errorf("failed to list subscriptions for customer %s: %w", customerID, err)
	}
	return out, nil
}

// GetCustomer loads a customer. Deleted customers are returned with Deleted set.
func (p *Provider) GetCustomer(ctx context.Context, id string) (*billing.Customer, error) {
	params := &stripelib.CustomerParams{}
	params.Context = ctx

	c, err := p.api.Customers.Get(id, params)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", billing.ErrCustomerNotFound, id)
		}
		p.logger.Errorw("failed to get customer", "customer_id", id, "error", err)
		return nil, fmt.Errorf("failed to get customer %s: %w", id, err)
	}
	cus := toCustomer(c)
	return &cus, nil
}

// FindCustomersByEmail lists customers registered with an email. Stripe
// matches the email exactly, so the lowercased form is tried as well.
func (p *Provider) FindCustomersByEmail(ctx context.Context, email string) ([]billing.Customer, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}

	candidates := []string{email}
	if lower := strings.ToLower(email); lower != email {
		candidates = append(candidates, lower)
	}

	seen := make(map[string]struct{})
	var out []billing.Customer
	for _, e := range candidates {
		lp := &stripelib.CustomerListParams{Email: stripelib.String(e)}
		lp.Context = ctx
		lp.Limit = stripelib.Int64(maxPageSize)

		it := p.api.Customers.List(lp)
		for it.Next() {
			c := it.Customer()
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			out = append(out, toCustomer(c))
		}
		if err := it.Err(); err != nil {
			p.logger.Errorw("failed to search customers by email", "error", err)
			return nil, fmt.Errorf("failed to search customers by email: %w", err)
		}
	}
	return out, nil
}

// TagSubscriptionUser writes metadata.userId on a subscription
func (p *Provider) TagSubscriptionUser(ctx context.Context, subscriptionID, userID string) error {
	params := &stripelib.SubscriptionParams{}
	params.Context = ctx
	params.AddMetadata(billing.MetadataUserID, userID)

	if _, err := p.api.Subscriptions.Update(subscriptionID, params); err != nil {
		p.logger.Warnw("failed to tag subscription", "subscription_id", subscriptionID, "user_id", userID, "error", err)
		return fmt.Errorf("failed to tag subscription %s: %w", subscriptionID, err)
	}
	p.logger.Infow("subscription tagged with user", "subscription_id", subscriptionID, "user_id", userID)
	return nil
}

// TagCustomerUser writes metadata.userId on a customer
func (p *Provider) TagCustomerUser(ctx context.Context, customerID, userID string) error {
	params := &stripelib.CustomerParams{}
	params.Context = ctx
	params.AddMetadata(billing.MetadataUserID, userID)

	if _, err := p.api.Customers.Update(customerID, params); err != nil {
		p.logger.Warnw("failed to tag customer", "customer_id", customerID, "user_id", userID, "error", err)
		return fmt.Errorf("failed to tag customer %s: %w", customerID, err)
	}
	p.logger.Infow("customer tagged with user", "customer_id", customerID, "user_id", userID)
	return nil
}

func isNotFound(err error) bool {
	var se *stripelib.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.HTTPStatusCode == http.StatusNotFound || se.Code == stripelib.ErrorCodeResourceMissing
}

var _ billing.Provider = (*Provider)(nil)
