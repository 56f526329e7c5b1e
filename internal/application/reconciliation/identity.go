package reconciliation

import (
	"context"
	"strings"

	"github.com/orris-inc/subsync/internal/domain/account"
	"github.com/orris-inc/subsync/internal/domain/billing"
	"github.com/orris-inc/subsync/internal/domain/entitlement"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

// IdentityInput is what is known about a billing subscription's owner.
type IdentityInput struct {
	Subscription *billing.Subscription
	Customer     *billing.Customer
	// ExplicitUserID is a user id supplied by the caller, such as a checkout
	// session's client reference.
	ExplicitUserID string
	Email          string
}

// CustomerID returns the billing customer id from the subscription or customer.
func (in IdentityInput) CustomerID() string {
	if in.Subscription != nil && in.Subscription.CustomerID != "" {
		return in.Subscription.CustomerID
	}
	if in.Customer != nil {
		return in.Customer.ID
	}
	return ""
}

// ResolvedEmail returns the caller-supplied email or the customer's.
func (in IdentityInput) ResolvedEmail() string {
	if e := strings.TrimSpace(in.Email); e != "" {
		return e
	}
	if in.Customer != nil {
		return strings.TrimSpace(in.Customer.Email)
	}
	return ""
}

// IdentityStrategy is one step of the identity cascade.
type IdentityStrategy interface {
	Name() string
	Resolve(ctx context.Context, in IdentityInput) (userID string, ok bool, err error)
}

// Resolution is the outcome of the identity cascade.
type Resolution struct {
	UserID   string
	Strategy string
	Resolved bool
}

// FromMetadata reports whether the user id came from provider metadata, in
// which case the provider objects are already tagged.
func (r Resolution) FromMetadata() bool {
	return r.Strategy == StrategyMetadata
}

// Strategy names.
const (
	StrategyMetadata          = "metadata"
	StrategyExplicit          = "explicit_user_id"
	StrategyBySubscriptionID  = "entitlement_subscription_id"
	StrategyByCustomerID      = "entitlement_customer_id"
	StrategyByEntitlementMail = "entitlement_email"
	StrategyByAccountEmail    = "account_email"
)

// IdentityResolver runs strategies in order and stops at the first hit.
type IdentityResolver struct {
	strategies []IdentityStrategy
	logger     logger.Interface
}

// NewIdentityResolver creates a resolver with an explicit strategy list
func NewIdentityResolver(strategies []IdentityStrategy, logger logger.Interface) *IdentityResolver {
	return &IdentityResolver{strategies: strategies, logger: logger}
}

// DefaultIdentityStrategies returns the standard cascade: provider metadata,
// the caller's explicit user id, the entitlement store by subscription,
// customer and email, then accounts by email.
func DefaultIdentityStrategies(entitlements entitlement.Repository, accounts account.Repository) []IdentityStrategy {
	return []IdentityStrategy{
		metadataStrategy{},
		explicitStrategy{},
		bySubscriptionIDStrategy{repo: entitlements},
		byCustomerIDStrategy{repo: entitlements},
		byEntitlementEmailStrategy{repo: entitlements},
		byAccountEmailStrategy{repo: accounts},
	}
}

// Resolve runs the cascade. Strategy errors are logged and skipped.
func (r *IdentityResolver) Resolve(ctx context.Context, in IdentityInput) Resolution {
	for _, s := range r.strategies {
		userID, ok, err := s.Resolve(ctx, in)
		if err != nil {
			r.logger.Warnw("identity strategy failed",
				"strategy", s.Name(),
				"customer_id", in.CustomerID(),
				"error", err,
			)
			continue
		}
		if ok && userID != "" {
			return Resolution{UserID: userID, Strategy: s.Name(), Resolved: true}
		}
	}

	r.logger.Warnw("could not resolve billing identity",
		"customer_id", in.CustomerID(),
		"email", in.ResolvedEmail(),
	)
	return Resolution{}
}

type metadataStrategy struct{}

func (metadataStrategy) Name() string { return StrategyMetadata }

func (metadataStrategy) Resolve(_ context.Context, in IdentityInput) (string, bool, error) {
	if in.Subscription != nil {
		if id := billing.MetadataValue(in.Subscription.Metadata, billing.MetadataUserID); id != "" {
			return id, true, nil
		}
	}
	if in.Customer != nil {
		if id := billing.MetadataValue(in.Customer.Metadata, billing.MetadataUserID); id != "" {
			return id, true, nil
		}
	}
	return "", false, nil
}

type explicitStrategy struct{}

func (explicitStrategy) Name() string { return StrategyExplicit }

func (explicitStrategy) Resolve(_ context.Context, in IdentityInput) (string, bool, error) {
	id := strings.TrimSpace(in.ExplicitUserID)
	return id, id != "", nil
}

type bySubscriptionIDStrategy struct{ repo entitlement.Repository }

func (bySubscriptionIDStrategy) Name() string { return StrategyBySubscriptionID }

func (s bySubscriptionIDStrategy) Resolve(ctx context.Context, in IdentityInput) (string, bool, error) {
	if in.Subscription == nil || in.Subscription.ID == "" {
		return "", false, nil
	}
	return userOf(s.repo.GetBySubscriptionID(ctx, in.Subscription.ID))
}

type byCustomerIDStrategy struct{ repo entitlement.Repository }

func (byCustomerIDStrategy) Name() string { return StrategyByCustomerID }

func (s byCustomerIDStrategy) Resolve(ctx context.Context, in IdentityInput) (string, bool, error) {
	id := in.CustomerID()
	if id == "" {
		return "", false, nil
	}
	return userOf(s.repo.GetByCustomerID(ctx, id))
}

type byEntitlementEmailStrategy struct{ repo entitlement.Repository }

func (byEntitlementEmailStrategy) Name() string { return StrategyByEntitlementMail }

func (s byEntitlementEmailStrategy) Resolve(ctx context.Context, in IdentityInput) (string, bool, error) {
	email := in.ResolvedEmail()
	if email == "" {
		return "", false, nil
	}
	return userOf(s.repo.GetByEmail(ctx, email))
}

type byAccountEmailStrategy struct{ repo account.Repository }

func (byAccountEmailStrategy) Name() string { return StrategyByAccountEmail }

func (s byAccountEmailStrategy) Resolve(ctx context.Context, in IdentityInput) (string, bool, error) {
	email := in.ResolvedEmail()
	if email == "" {
		return "", false, nil
	}
	acct, err := s.repo.FindByEmail(ctx, email)
	if err != nil || acct == nil {
		return "", false, err
	}
	return acct.ID, acct.ID != "", nil
}

func userOf(e *entitlement.Entitlement, err error) (string, bool, error) {
	if err != nil || e == nil {
		return "", false, err
	}
	return e.UserID(), true, nil
}
