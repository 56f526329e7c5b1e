package usecases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
	"github.com/orris-inc/subsync/internal/domain/billing"
	"github.com/orris-inc/subsync/internal/domain/entitlement"
	"github.com/orris-inc/subsync/internal/domain/orphan"
	domainrecon "github.com/orris-inc/subsync/internal/domain/reconciliation"
	"github.com/orris-inc/subsync/internal/shared/db"
	"github.com/orris-inc/subsync/internal/shared/errors"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

type RecoverOrphansCommand struct {
	UserID string
	Email  string
	// Method defaults to auto_recovery.
	Method orphan.ResolutionMethod
}

type RecoverOrphansResult struct {
	Recovered       int      `json:"recovered"`
	SubscriptionIDs []string `json:"subscription_ids"`
}

// RecoverOrphansUseCase attaches orphaned subscriptions to a user once a
// session establishes who owns the billing email.
type RecoverOrphansUseCase struct {
	repo     entitlement.Repository
	orphans  orphan.Repository
	provider billing.Provider
	payloads *domainrecon.PayloadBuilder
	writer   *reconciliation.Writer
	txMgr    db.Transactor
	metrics  reconciliation.Metrics
	logger   logger.Interface
}

func NewRecoverOrphansUseCase(
	repo entitlement.Repository,
	orphans orphan.Repository,
	provider billing.Provider,
	payloads *domainrecon.PayloadBuilder,
	writer *reconciliation.Writer,
	txMgr db.Transactor,
	metrics reconciliation.Metrics,
	logger logger.Interface,
) *RecoverOrphansUseCase {
	if metrics == nil {
		metrics = reconciliation.NopMetrics{}
	}
	return &RecoverOrphansUseCase{
		repo:     repo,
		orphans:  orphans,
		provider: provider,
		payloads: payloads,
		writer:   writer,
		txMgr:    txMgr,
		metrics:  metrics,
		logger:   logger,
	}
}

func (uc *RecoverOrphansUseCase) Execute(ctx context.Context, cmd RecoverOrphansCommand) (*RecoverOrphansResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	email := strings.TrimSpace(cmd.Email)
	if userID == "" || email == "" {
		return nil, errors.NewValidationError("user id and email are required for orphan recovery")
	}
	method := cmd.Method
	if method == "" {
		method = orphan.ResolvedByAutoRecovery
	}

	orphans, err := uc.orphans.ListUnresolvedByEmail(ctx, email)
	if err != nil {
		uc.logger.Errorw("failed to list orphans", "email", email, "error", err)
		return nil, fmt.Errorf("failed to list orphans: %w", err)
	}
	result := &RecoverOrphansResult{}
	if len(orphans) == 0 {
		return result, nil
	}

	existing, err := uc.repo.GetByUserID(ctx, userID)
	if err != nil {
		uc.logger.Errorw("failed to load entitlement", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to load entitlement: %w", err)
	}

	cands := make([]domainrecon.Candidate, 0, len(orphans)+1)
	for _, o := range orphans {
		cand, err := uc.candidate(ctx, o, email)
		if err != nil {
			return nil, err
		}
		cands = append(cands, cand)
	}
	if current, ok := currentCandidate(existing); ok {
		cands = append(cands, current)
	}
	winner, _, _ := domainrecon.SelectCanonical(cands)
	// The user's current subscription may outrank every orphan.
	keepCurrent := existing != nil && winner.Payload.SubscriptionID() == subscriptionIDOf(existing)

	for _, o := range orphans {
		uc.tag(ctx, o, userID)
	}

	var written reconciliation.WriteResult
	err = uc.txMgr.RunInTransaction(ctx, func(txCtx context.Context) error {
		if !keepCurrent {
			res, err := uc.writer.Upsert(txCtx, winner.Payload.WithUser(userID), reconciliation.WriteOptions{Deferred: true})
			if err != nil {
				return fmt.Errorf("failed to write recovered entitlement: %w", err)
			}
			written = res
		}
		now := time.Now().UTC()
		for _, o := range orphans {
			if err := o.Resolve(userID, method, now); err != nil {
				return fmt.Errorf("failed to resolve orphan %s: %w", o.SubscriptionID(), err)
			}
			if err := uc.orphans.MarkResolved(txCtx, o); err != nil {
				return fmt.Errorf("failed to mark orphan %s resolved: %w", o.SubscriptionID(), err)
			}
		}
		return nil
	})
	if err != nil {
		uc.logger.Errorw("orphan recovery failed", "user_id", userID, "email", email, "error", err)
		return nil, err
	}
	uc.writer.Notify(ctx, written)

	for _, o := range orphans {
		uc.metrics.OrphanResolved(string(method))
		result.SubscriptionIDs = append(result.SubscriptionIDs, o.SubscriptionID())
	}
	result.Recovered = len(orphans)

	uc.logger.Infow("orphaned subscriptions recovered",
		"user_id", userID,
		"count", result.Recovered,
		"canonical_subscription_id", winner.Subscription.ID,
		"kept_current", keepCurrent,
		"method", method,
	)
	return result, nil
}

// candidate rebuilds the orphan's payload from the provider, falling back to
// the state captured when it was recorded. An orphan recorded without an
// amount cannot be recovered until the provider answers again.
func (uc *RecoverOrphansUseCase) candidate(ctx context.Context, o *orphan.Orphan, email string) (domainrecon.Candidate, error) {
	sub, err := uc.provider.GetSubscription(ctx, o.SubscriptionID())
	if err == nil && sub != nil {
		return domainrecon.Candidate{Subscription: *sub, Payload: uc.payloads.Build(sub, email)}, nil
	}
	if !o.HasRecordedBilling() {
		uc.logger.Warnw("failed to refresh orphaned subscription and no amount was recorded, leaving it unresolved",
			"subscription_id", o.SubscriptionID(),
			"error", err,
		)
		return domainrecon.Candidate{}, errors.NewUpstreamError("failed to refresh orphaned subscription", o.SubscriptionID())
	}
	uc.logger.Warnw("failed to refresh orphaned subscription, using recorded state",
		"subscription_id", o.SubscriptionID(),
		"error", err,
	)

	subID, cusID := o.SubscriptionID(), o.CustomerID()
	rec := entitlement.Record{
		Status:         o.Status(),
		PlanType:       o.PlanType(),
		SubscriptionID: &subID,
		UserEmail:      &email,
	}
	if cusID != "" {
		rec.CustomerID = &cusID
	}
	o.Billing().ApplyTo(&rec)
	raw := rawStatus(o.Status())
	return domainrecon.Candidate{
		Subscription: billing.Subscription{ID: subID, CustomerID: cusID, Status: raw},
		Payload:      domainrecon.Payload{Record: rec, RawStatus: raw, Created: o.CreatedAt()},
	}, nil
}

func (uc *RecoverOrphansUseCase) tag(ctx context.Context, o *orphan.Orphan, userID string) {
	if err := uc.provider.TagSubscriptionUser(ctx, o.SubscriptionID(), userID); err != nil {
		uc.logger.Warnw("failed to tag orphaned subscription", "subscription_id", o.SubscriptionID(), "error", err)
	}
	if o.CustomerID() == "" {
		return
	}
	if err := uc.provider.TagCustomerUser(ctx, o.CustomerID(), userID); err != nil {
		uc.logger.Warnw("failed to tag orphan customer", "customer_id", o.CustomerID(), "error", err)
	}
}

// currentCandidate turns the user's existing billing-backed row into a
// candidate so that recovery never replaces a better subscription.
func currentCandidate(e *entitlement.Entitlement) (domainrecon.Candidate, bool) {
	subID := subscriptionIDOf(e)
	if subID == "" {
		return domainrecon.Candidate{}, false
	}
	raw := rawStatus(e.Status())
	cusID := ""
	if e.CustomerID() != nil {
		cusID = *e.CustomerID()
	}
	return domainrecon.Candidate{
		Subscription: billing.Subscription{ID: subID, CustomerID: cusID, Status: raw},
		Payload:      domainrecon.Payload{Record: e.Record(), RawStatus: raw, Created: e.CreatedAt()},
	}, true
}

func subscriptionIDOf(e *entitlement.Entitlement) string {
	if e == nil || e.SubscriptionID() == nil {
		return ""
	}
	return *e.SubscriptionID()
}

func rawStatus(s entitlement.Status) string {
	switch s {
	case entitlement.StatusActive:
		return billing.StatusActive
	case entitlement.StatusTrial:
		return billing.StatusTrialing
	case entitlement.StatusPastDue:
		return billing.StatusPastDue
	default:
		return billing.StatusCanceled
	}
}
