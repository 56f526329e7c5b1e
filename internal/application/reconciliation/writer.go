package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/orris-inc/subsync/internal/domain/entitlement"
	"github.com/orris-inc/subsync/internal/shared/errors"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

// WriteOptions controls an entitlement write.
type WriteOptions struct {
	// Force writes even when the change-check fields match.
	Force bool
	// DryRun reports what would happen without persisting anything.
	DryRun bool
	// Deferred holds back cache invalidation and the change event until
	// Notify is called with the result. Writes inside a transaction use it so
	// nothing is announced before commit.
	Deferred bool
}

// WriteOutcome describes what a write did.
type WriteOutcome string

const (
	WriteCreated       WriteOutcome = "created"
	WriteUpdated       WriteOutcome = "updated"
	WriteUnchanged     WriteOutcome = "unchanged"
	WriteSkippedDryRun WriteOutcome = "skipped_dry_run"
)

// WriteResult is the result of Writer.Upsert.
type WriteResult struct {
	Outcome WriteOutcome
	// WouldBe is the outcome a dry run would have produced.
	WouldBe        WriteOutcome
	PreviousStatus entitlement.Status
	Status         entitlement.Status

	pending *EntitlementChanged
}

// Writer performs change-aware upserts of entitlement records.
type Writer struct {
	repo      entitlement.Repository
	policy    entitlement.MergePolicyTable
	cache     EntitlementCache
	publisher ChangePublisher
	metrics   Metrics
	logger    logger.Interface
}

// NewWriter creates a writer. cache and publisher may be nil.
func NewWriter(
	repo entitlement.Repository,
	policy entitlement.MergePolicyTable,
	cache EntitlementCache,
	publisher ChangePublisher,
	metrics Metrics,
	logger logger.Interface,
) *Writer {
	if policy == nil {
		policy = entitlement.DefaultMergePolicy()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Writer{
		repo:      repo,
		policy:    policy,
		cache:     cache,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// Upsert writes rec for rec.UserID. A row whose customer, subscription, plan
// and status already match is left alone unless opts.Force is set. A dry run
// returns before anything is persisted.
func (w *Writer) Upsert(ctx context.Context, rec entitlement.Record, opts WriteOptions) (WriteResult, error) {
	if rec.UserID == "" {
		return WriteResult{}, errors.NewValidationError("user id is required for an entitlement write")
	}

	existing, err := w.repo.GetByUserID(ctx, rec.UserID)
	if err != nil {
		w.logger.Errorw("failed to load entitlement", "user_id", rec.UserID, "error", err)
		return WriteResult{}, fmt.Errorf("failed to load entitlement: %w", err)
	}

	res := WriteResult{Status: rec.Status, WouldBe: WriteCreated}
	if existing != nil {
		res.PreviousStatus = existing.Status()
		res.WouldBe = WriteUpdated
		rec.Status = w.guardTransition(existing, rec)
		res.Status = rec.Status

		if !opts.Force && existing.SameBilling(rec) {
			res.Outcome = WriteUnchanged
			w.metrics.EntitlementWrite(string(WriteUnchanged))
			return res, nil
		}
	}

	if opts.DryRun {
		res.Outcome = WriteSkippedDryRun
		w.metrics.EntitlementWrite(string(WriteSkippedDryRun))
		w.logger.Infow("dry run: entitlement write skipped",
			"user_id", rec.UserID,
			"would_be", res.WouldBe,
			"status", rec.Status,
			"plan_type", rec.PlanType,
		)
		return res, nil
	}

	target := existing
	if target == nil {
		target, err = entitlement.NewEntitlement(rec)
	} else {
		_, err = target.Apply(rec, w.policy)
	}
	if err != nil {
		return WriteResult{}, errors.NewValidationError("invalid entitlement record", err.Error())
	}

	if err := w.repo.Upsert(ctx, target); err != nil {
		if errors.IsDuplicateError(err) {
			return WriteResult{}, errors.NewConflictError("entitlement write conflicted", err.Error())
		}
		w.logger.Errorw("failed to upsert entitlement", "user_id", rec.UserID, "error", err)
		return WriteResult{}, fmt.Errorf("failed to upsert entitlement: %w", err)
	}

	res.Outcome = res.WouldBe
	res.WouldBe = ""
	res.Status = target.Status()
	w.metrics.EntitlementWrite(string(res.Outcome))
	evt := changeEvent(target, res.PreviousStatus)
	if opts.Deferred {
		res.pending = &evt
	} else {
		w.notify(ctx, evt)
	}

	w.logger.Infow("entitlement written",
		"user_id", target.UserID(),
		"outcome", res.Outcome,
		"previous_status", res.PreviousStatus,
		"status", target.Status(),
		"plan_type", target.PlanType(),
		"force", opts.Force,
	)
	return res, nil
}

// Persist stores an entitlement changed outside the billing flow, such as a
// trial start, with the same cache invalidation and change event as Upsert.
func (w *Writer) Persist(ctx context.Context, e *entitlement.Entitlement, prev entitlement.Status, outcome WriteOutcome) error {
	if err := w.repo.Upsert(ctx, e); err != nil {
		if errors.IsDuplicateError(err) {
			return errors.NewConflictError("entitlement write conflicted", err.Error())
		}
		w.logger.Errorw("failed to persist entitlement", "user_id", e.UserID(), "error", err)
		return fmt.Errorf("failed to persist entitlement: %w", err)
	}
	w.metrics.EntitlementWrite(string(outcome))
	w.notify(ctx, changeEvent(e, prev))
	return nil
}

// Notify runs the cache invalidation and change event held back by a
// Deferred write. Results without a pending change are ignored.
func (w *Writer) Notify(ctx context.Context, res WriteResult) {
	if res.pending == nil {
		return
	}
	w.notify(ctx, *res.pending)
}

// guardTransition keeps an active row active when the provider still reports
// the same subscription as trialing, and warns about other transitions the
// state machine does not list. The provider stays authoritative otherwise.
func (w *Writer) guardTransition(existing *entitlement.Entitlement, rec entitlement.Record) entitlement.Status {
	prev := existing.Status()
	next := rec.Status
	if prev.CanTransitionTo(next) {
		return next
	}

	sameSub := existing.SubscriptionID() != nil && rec.SubscriptionID != nil &&
		*existing.SubscriptionID() == *rec.SubscriptionID
	if prev == entitlement.StatusActive && next == entitlement.StatusTrial && sameSub {
		return prev
	}

	w.logger.Warnw("unexpected entitlement status transition",
		"user_id", rec.UserID,
		"from", prev,
		"to", next,
	)
	return next
}

func changeEvent(e *entitlement.Entitlement, prev entitlement.Status) EntitlementChanged {
	evt := EntitlementChanged{
		UserID:         e.UserID(),
		PreviousStatus: string(prev),
		Status:         string(e.Status()),
		PlanType:       string(e.PlanType()),
		OccurredAt:     time.Now().UTC(),
	}
	if e.SubscriptionID() != nil {
		evt.SubscriptionID = *e.SubscriptionID()
	}
	return evt
}

func (w *Writer) notify(ctx context.Context, evt EntitlementChanged) {
	if w.cache != nil {
		if err := w.cache.Invalidate(ctx, evt.UserID); err != nil {
			w.logger.Warnw("failed to invalidate entitlement cache", "user_id", evt.UserID, "error", err)
		}
	}
	if w.publisher != nil {
		if err := w.publisher.PublishEntitlementChanged(ctx, evt); err != nil {
			w.logger.Warnw("failed to publish entitlement change", "user_id", evt.UserID, "error", err)
		}
	}
}
