package reconciliation

import (
	"context"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/orris-inc/subsync/internal/domain/billing"
	"github.com/orris-inc/subsync/internal/domain/orphan"
	domainrecon "github.com/orris-inc/subsync/internal/domain/reconciliation"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

// Hint carries identity facts an entry point learned outside the
// subscription, such as a checkout session's user id and email.
type Hint struct {
	UserID string
	Email  string
}

// Prepared is a subscription with its payload computed and identity resolved,
// not yet written.
type Prepared struct {
	Candidate  domainrecon.Candidate
	Resolution Resolution
	Email      string
}

// SyncOutcome summarizes what happened to one subscription.
type SyncOutcome string

const (
	SyncWritten   SyncOutcome = "written"
	SyncUnchanged SyncOutcome = "unchanged"
	SyncOrphaned  SyncOutcome = "orphaned"
	SyncDryRun    SyncOutcome = "dry_run"
	// SyncSkipped is an unresolved subscription that is no longer live.
	SyncSkipped SyncOutcome = "skipped"
)

// SyncResult is the result of committing one subscription.
type SyncResult struct {
	SubscriptionID string
	CustomerID     string
	UserID         string
	Strategy       string
	Outcome        SyncOutcome
	Write          WriteResult
}

// Syncer runs one billing subscription through payload building, identity
// resolution and the entitlement writer or orphan store.
type Syncer struct {
	provider billing.Provider
	payloads *domainrecon.PayloadBuilder
	identity *IdentityResolver
	writer   *Writer
	orphans  orphan.Repository
	metrics  Metrics
	logger   logger.Interface
}

// NewSyncer creates a syncer
func NewSyncer(
	provider billing.Provider,
	payloads *domainrecon.PayloadBuilder,
	identity *IdentityResolver,
	writer *Writer,
	orphans orphan.Repository,
	metrics Metrics,
	logger logger.Interface,
) *Syncer {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Syncer{
		provider: provider,
		payloads: payloads,
		identity: identity,
		writer:   writer,
		orphans:  orphans,
		metrics:  metrics,
		logger:   logger,
	}
}

// Prepare fetches the customer, builds the payload and resolves identity. A
// failed customer lookup is logged and the subscription is prepared without it.
func (s *Syncer) Prepare(ctx context.Context, sub billing.Subscription, customer *billing.Customer, hint Hint) Prepared {
	if customer == nil {
		customer = s.FetchCustomer(ctx, sub.CustomerID)
	}
	return s.prepare(ctx, sub, customer, hint)
}

// FetchCustomer returns the provider customer, or nil when the id is empty or
// the lookup fails.
func (s *Syncer) FetchCustomer(ctx context.Context, customerID string) *billing.Customer {
	if customerID == "" {
		return nil
	}
	c, err := s.provider.GetCustomer(ctx, customerID)
	if err != nil {
		s.logger.Warnw("customer lookup failed, continuing without it",
			"customer_id", customerID,
			"error", err,
		)
		return nil
	}
	return c
}

func (s *Syncer) prepare(ctx context.Context, sub billing.Subscription, customer *billing.Customer, hint Hint) Prepared {
	in := IdentityInput{
		Subscription:   &sub,
		Customer:       customer,
		ExplicitUserID: hint.UserID,
		Email:          hint.Email,
	}
	email := in.ResolvedEmail()

	payload := s.payloads.Build(&sub, email)
	if payload.IgnoredDiscounts > 0 {
		s.logger.Warnw("subscription has several discounts, only the first is applied",
			"subscription_id", sub.ID,
			"ignored", payload.IgnoredDiscounts,
		)
	}

	return Prepared{
		Candidate: domainrecon.Candidate{
			Subscription: sub,
			Customer:     customer,
			Payload:      payload,
		},
		Resolution: s.identity.Resolve(ctx, in),
		Email:      email,
	}
}

// Commit writes a prepared subscription, or records it as an orphan when no
// user was found.
func (s *Syncer) Commit(ctx context.Context, p Prepared, opts WriteOptions) (SyncResult, error) {
	sub := p.Candidate.Subscription
	res := SyncResult{SubscriptionID: sub.ID, CustomerID: sub.CustomerID}

	if !p.Resolution.Resolved {
		if !sub.IsLive() {
			res.Outcome = SyncSkipped
			s.logger.Infow("skipping unresolved subscription that is not live",
				"subscription_id", sub.ID,
				"status", sub.Status,
			)
			return res, nil
		}
		res.Outcome = SyncOrphaned
		if opts.DryRun {
			return res, nil
		}
		return res, s.recordOrphan(ctx, p)
	}

	res.UserID = p.Resolution.UserID
	res.Strategy = p.Resolution.Strategy

	wr, err := s.writer.Upsert(ctx, p.Candidate.Payload.WithUser(res.UserID), opts)
	if err != nil {
		return res, err
	}
	res.Write = wr
	switch wr.Outcome {
	case WriteUnchanged:
		res.Outcome = SyncUnchanged
	case WriteSkippedDryRun:
		res.Outcome = SyncDryRun
	default:
		res.Outcome = SyncWritten
	}

	if !opts.DryRun && !p.Resolution.FromMetadata() {
		s.tagProvider(ctx, p, res.UserID)
	}
	return res, nil
}

// Sync prepares and commits one subscription.
func (s *Syncer) Sync(ctx context.Context, sub billing.Subscription, hint Hint, opts WriteOptions) (SyncResult, error) {
	return s.Commit(ctx, s.Prepare(ctx, sub, nil, hint), opts)
}

// SyncCanonical syncs a customer's subscriptions so that each user ends up with
// only the canonical one written. primary, when set, replaces the listed copy
// of the same subscription and is synced alone if the listing fails.
// Unresolved live subscriptions are recorded as orphans.
//
// Arbitration only sees this customer's subscriptions. A user whose live
// subscriptions sit under different customers is settled by the batch
// reconcile, which groups the full listing by resolved user.
func (s *Syncer) SyncCanonical(ctx context.Context, customerID string, primary *billing.Subscription, hint Hint, opts WriteOptions) ([]SyncResult, error) {
	var subs []billing.Subscription
	if customerID != "" {
		listed, err := s.provider.ListCustomerSubscriptions(ctx, customerID)
		if err != nil {
			if primary == nil {
				return nil, fmt.Errorf("failed to list customer subscriptions: %w", err)
			}
			s.logger.Warnw("failed to list customer subscriptions, syncing event subscription alone",
				"customer_id", customerID,
				"error", err,
			)
		} else {
			subs = listed
		}
	}
	if primary != nil {
		subs = lo.Reject(subs, func(sub billing.Subscription, _ int) bool { return sub.ID == primary.ID })
		subs = append(subs, *primary)
	}
	if len(subs) == 0 {
		return nil, nil
	}

	customer := s.FetchCustomer(ctx, customerID)
	prepared := make([]Prepared, 0, len(subs))
	for _, sub := range subs {
		prepared = append(prepared, s.prepare(ctx, sub, customer, hint))
	}

	groups := GroupCanonical(prepared)
	var results []SyncResult
	for _, p := range groups.Unresolved {
		res, err := s.Commit(ctx, p, opts)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	for _, g := range groups.Users {
		s.ReportDuplicates(g)
		res, err := s.Commit(ctx, g.Winner, opts)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// UserGroup is the canonical subscription of one user and the ones it beat.
type UserGroup struct {
	UserID string
	Winner Prepared
	Losers []Prepared
}

// CanonicalGroups splits prepared subscriptions into per-user groups, ordered
// by user id, and the unresolved remainder.
type CanonicalGroups struct {
	Users      []UserGroup
	Unresolved []Prepared
}

// GroupCanonical groups resolved subscriptions by user and selects the
// canonical one in each group.
func GroupCanonical(prepared []Prepared) CanonicalGroups {
	resolved, unresolved := lo.FilterReject(prepared, func(p Prepared, _ int) bool { return p.Resolution.Resolved })
	byUser := lo.GroupBy(resolved, func(p Prepared) string { return p.Resolution.UserID })

	userIDs := lo.Keys(byUser)
	slices.Sort(userIDs)

	out := CanonicalGroups{Unresolved: unresolved}
	for _, userID := range userIDs {
		group := byUser[userID]
		bySub := lo.KeyBy(group, func(p Prepared) string { return p.Candidate.Subscription.ID })
		winner, losers, ok := domainrecon.SelectCanonical(lo.Map(group, func(p Prepared, _ int) domainrecon.Candidate { return p.Candidate }))
		if !ok {
			continue
		}
		out.Users = append(out.Users, UserGroup{
			UserID: userID,
			Winner: bySub[winner.Subscription.ID],
			Losers: lo.Map(losers, func(c domainrecon.Candidate, _ int) Prepared { return bySub[c.Subscription.ID] }),
		})
	}
	return out
}

// ReportDuplicates logs every live loser of g and returns how many there were.
// Losing subscriptions are never cancelled.
func (s *Syncer) ReportDuplicates(g UserGroup) int {
	n := 0
	for _, l := range g.Losers {
		if !l.Candidate.Subscription.IsLive() {
			continue
		}
		n++
		s.metrics.DuplicateSubscription()
		s.logger.Warnw("user has more than one live subscription, keeping the canonical one",
			"user_id", g.UserID,
			"canonical_subscription_id", g.Winner.Candidate.Subscription.ID,
			"duplicate_subscription_id", l.Candidate.Subscription.ID,
			"duplicate_status", l.Candidate.Subscription.Status,
		)
	}
	return n
}

func (s *Syncer) recordOrphan(ctx context.Context, p Prepared) error {
	sub := p.Candidate.Subscription
	rec := p.Candidate.Payload.Record

	o, err := orphan.NewOrphan(sub.ID, sub.CustomerID, p.Email, rec.Status, rec.PlanType)
	if err != nil {
		return fmt.Errorf("failed to build orphan: %w", err)
	}
	o.SetBilling(orphan.BillingFromRecord(rec))
	if err := s.orphans.Record(ctx, o); err != nil {
		s.logger.Errorw("failed to record orphaned subscription",
			"subscription_id", sub.ID,
			"customer_id", sub.CustomerID,
			"error", err,
		)
		return fmt.Errorf("failed to record orphan: %w", err)
	}

	s.metrics.OrphanRecorded()
	s.logger.Warnw("subscription recorded as orphan",
		"subscription_id", sub.ID,
		"customer_id", sub.CustomerID,
		"email", p.Email,
	)
	return nil
}

// tagProvider writes the user id onto the provider objects so later events
// resolve from metadata. Failures are logged only.
func (s *Syncer) tagProvider(ctx context.Context, p Prepared, userID string) {
	sub := p.Candidate.Subscription
	if billing.MetadataValue(sub.Metadata, billing.MetadataUserID) != userID {
		if err := s.provider.TagSubscriptionUser(ctx, sub.ID, userID); err != nil {
			s.logger.Warnw("failed to tag subscription with user id",
				"subscription_id", sub.ID, "user_id", userID, "error", err)
		}
	}

	c := p.Candidate.Customer
	if sub.CustomerID != "" && (c == nil || billing.MetadataValue(c.Metadata, billing.MetadataUserID) == "") {
		if err := s.provider.TagCustomerUser(ctx, sub.CustomerID, userID); err != nil {
			s.logger.Warnw("failed to tag customer with user id",
				"customer_id", sub.CustomerID, "user_id", userID, "error", err)
		}
	}
}
