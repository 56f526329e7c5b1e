package usecases

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
	"github.com/orris-inc/subsync/internal/domain/billing"
	"github.com/orris-inc/subsync/internal/shared/errors"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

const (
	defaultPageSize = 100
	// listAllStatuses makes the provider include cancelled subscriptions.
	listAllStatuses = "all"
)

type ReconcileAllCommand struct {
	DryRun bool
	Force  bool
	// Limit caps the number of subscriptions examined; zero means no cap.
	Limit int
}

type ReconcileAllResult struct {
	Processed  int           `json:"processed"`
	Created    int           `json:"created"`
	Updated    int           `json:"updated"`
	Unchanged  int           `json:"unchanged"`
	Orphaned   int           `json:"orphaned"`
	Skipped    int           `json:"skipped"`
	Duplicates int           `json:"duplicates"`
	Errors     int           `json:"errors"`
	DryRun     bool          `json:"dry_run"`
	Duration   time.Duration `json:"duration"`
}

// ReconcileAllUseCase backfills every provider subscription into the
// entitlement store, one canonical subscription per user.
type ReconcileAllUseCase struct {
	provider  billing.Provider
	syncer    *reconciliation.Syncer
	pageSize  int
	pageDelay time.Duration
	metrics   reconciliation.Metrics
	logger    logger.Interface
}

// NewReconcileAllUseCase creates the batch reconciler. Provider pages are
// requested at most once per pageDelay.
func NewReconcileAllUseCase(
	provider billing.Provider,
	syncer *reconciliation.Syncer,
	pageSize int,
	pageDelay time.Duration,
	metrics reconciliation.Metrics,
	logger logger.Interface,
) *ReconcileAllUseCase {
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	if metrics == nil {
		metrics = reconciliation.NopMetrics{}
	}
	return &ReconcileAllUseCase{
		provider:  provider,
		syncer:    syncer,
		pageSize:  pageSize,
		pageDelay: pageDelay,
		metrics:   metrics,
		logger:    logger,
	}
}

func (uc *ReconcileAllUseCase) Execute(ctx context.Context, cmd ReconcileAllCommand) (*ReconcileAllResult, error) {
	start := time.Now()
	result := &ReconcileAllResult{DryRun: cmd.DryRun}
	defer func() {
		result.Duration = time.Since(start)
		uc.metrics.ObserveReconcile(result.Duration)
	}()

	uc.logger.Infow("starting full reconciliation",
		"dry_run", cmd.DryRun,
		"force", cmd.Force,
		"limit", cmd.Limit,
	)

	prepared, err := uc.collect(ctx, cmd.Limit)
	result.Processed = len(prepared)
	if err != nil {
		return result, err
	}

	opts := reconciliation.WriteOptions{DryRun: cmd.DryRun, Force: cmd.Force}
	groups := reconciliation.GroupCanonical(prepared)

	for _, p := range groups.Unresolved {
		uc.commit(ctx, p, opts, result)
	}
	for _, g := range groups.Users {
		result.Duplicates += uc.syncer.ReportDuplicates(g)
		uc.commit(ctx, g.Winner, opts, result)
	}

	uc.logger.Infow("full reconciliation finished",
		"processed", result.Processed,
		"created", result.Created,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
		"orphaned", result.Orphaned,
		"duplicates", result.Duplicates,
		"errors", result.Errors,
		"dry_run", cmd.DryRun,
	)
	return result, nil
}

// collect pages through the provider and prepares each subscription.
func (uc *ReconcileAllUseCase) collect(ctx context.Context, limit int) ([]reconciliation.Prepared, error) {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if uc.pageDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(uc.pageDelay), 1)
	}

	customers := map[string]*billing.Customer{}
	var prepared []reconciliation.Prepared
	cursor := ""

	for {
		if err := limiter.Wait(ctx); err != nil {
			return prepared, err
		}
		page, err := uc.provider.ListSubscriptions(ctx, billing.ListParams{
			StartingAfter: cursor,
			Limit:         uc.pageSize,
			Status:        listAllStatuses,
		})
		if err != nil {
			uc.logger.Errorw("failed to list subscriptions", "starting_after", cursor, "error", err)
			return prepared, errors.NewUpstreamError("failed to list subscriptions", err.Error())
		}

		for _, sub := range page.Subscriptions {
			if limit > 0 && len(prepared) >= limit {
				return prepared, nil
			}
			customer, seen := customers[sub.CustomerID]
			if !seen {
				customer = uc.syncer.FetchCustomer(ctx, sub.CustomerID)
				customers[sub.CustomerID] = customer
			}
			prepared = append(prepared, uc.syncer.Prepare(ctx, sub, customer, reconciliation.Hint{}))
		}

		if !page.HasMore || len(page.Subscriptions) == 0 || (limit > 0 && len(prepared) >= limit) {
			return prepared, nil
		}
		cursor = page.Subscriptions[len(page.Subscriptions)-1].ID
	}
}

func (uc *ReconcileAllUseCase) commit(ctx context.Context, p reconciliation.Prepared, opts reconciliation.WriteOptions, result *ReconcileAllResult) {
	res, err := uc.syncer.Commit(ctx, p, opts)
	if err != nil {
		result.Errors++
		uc.metrics.CandidateOutcome("error")
		uc.logger.Errorw("failed to reconcile subscription",
			"subscription_id", p.Candidate.Subscription.ID,
			"user_id", p.Resolution.UserID,
			"error", err,
		)
		return
	}
	uc.metrics.CandidateOutcome(string(res.Outcome))

	switch res.Outcome {
	case reconciliation.SyncOrphaned:
		result.Orphaned++
	case reconciliation.SyncSkipped:
		result.Skipped++
	case reconciliation.SyncUnchanged:
		result.Unchanged++
	case reconciliation.SyncWritten, reconciliation.SyncDryRun:
		outcome := res.Write.Outcome
		if res.Outcome == reconciliation.SyncDryRun {
			outcome = res.Write.WouldBe
		}
		if outcome == reconciliation.WriteCreated {
			result.Created++
		} else {
			result.Updated++
		}
	}
}
