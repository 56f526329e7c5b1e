package usecases

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
	"github.com/orris-inc/subsync/internal/domain/account"
	"github.com/orris-inc/subsync/internal/domain/billing"
	"github.com/orris-inc/subsync/internal/domain/entitlement"
	"github.com/orris-inc/subsync/internal/domain/orphan"
	domainrecon "github.com/orris-inc/subsync/internal/domain/reconciliation"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

const (
	DefaultHealthMaxIterations = 100
	healthPageSize             = 100
	healthOrphanLimit          = 1000
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Health check names.
const (
	CheckCustomerUntagged      = "customer_untagged"
	CheckCustomerUserMismatch  = "customer_user_mismatch"
	CheckOrphanUnresolved      = "orphan_unresolved"
	CheckSubscriptionNotSynced = "subscription_not_synced"
	CheckDuplicateSubscription = "duplicate_subscription"
	CheckStatusMismatch        = "status_mismatch"
	CheckSubscriptionGone      = "subscription_gone"
)

type Issue struct {
	Check          string   `json:"check"`
	Severity       Severity `json:"severity"`
	UserID         string   `json:"user_id,omitempty"`
	CustomerID     string   `json:"customer_id,omitempty"`
	SubscriptionID string   `json:"subscription_id,omitempty"`
	Detail         string   `json:"detail"`
	Fixed          bool     `json:"fixed"`
}

type HealthCheckCommand struct {
	Fix bool
	// MaxIterations bounds the number of repair attempts; zero uses the default.
	MaxIterations int
}

type HealthCheckResult struct {
	Issues     []Issue `json:"issues"`
	Fixed      int     `json:"fixed"`
	Iterations int     `json:"iterations"`
	Exhausted  bool    `json:"exhausted"`
	Message    string  `json:"message"`
}

// Healthy reports whether no unfixed issue remains.
func (r *HealthCheckResult) Healthy() bool {
	return len(r.Issues) == r.Fixed
}

// CountBySeverity returns the number of issues of each severity.
func (r *HealthCheckResult) CountBySeverity() map[Severity]int {
	out := map[Severity]int{}
	for _, i := range r.Issues {
		out[i.Severity]++
	}
	return out
}

// HealthCheckUseCase audits the entitlement store against the provider and
// optionally repairs what it finds.
type HealthCheckUseCase struct {
	repo           entitlement.Repository
	orphans        orphan.Repository
	accounts       account.Repository
	provider       billing.Provider
	payloads       *domainrecon.PayloadBuilder
	syncer         *reconciliation.Syncer
	orphanRecovery *RecoverOrphansUseCase
	maxIterations  int
	logger         logger.Interface
}

func NewHealthCheckUseCase(
	repo entitlement.Repository,
	orphans orphan.Repository,
	accounts account.Repository,
	provider billing.Provider,
	payloads *domainrecon.PayloadBuilder,
	syncer *reconciliation.Syncer,
	orphanRecovery *RecoverOrphansUseCase,
	maxIterations int,
	logger logger.Interface,
) *HealthCheckUseCase {
	if maxIterations <= 0 {
		maxIterations = DefaultHealthMaxIterations
	}
	return &HealthCheckUseCase{
		repo:           repo,
		orphans:        orphans,
		accounts:       accounts,
		provider:       provider,
		payloads:       payloads,
		syncer:         syncer,
		orphanRecovery: orphanRecovery,
		maxIterations:  maxIterations,
		logger:         logger,
	}
}

type healthRun struct {
	uc            *HealthCheckUseCase
	fix           bool
	maxIterations int
	result        *HealthCheckResult
	// recoveredEmails holds emails whose orphans were recovered in this run.
	recoveredEmails map[string]bool
}

func (uc *HealthCheckUseCase) Execute(ctx context.Context, cmd HealthCheckCommand) (*HealthCheckResult, error) {
	limit := cmd.MaxIterations
	if limit <= 0 {
		limit = uc.maxIterations
	}
	run := &healthRun{
		uc:              uc,
		fix:             cmd.Fix,
		maxIterations:   limit,
		result:          &HealthCheckResult{Issues: []Issue{}},
		recoveredEmails: map[string]bool{},
	}

	if err := run.checkLinkedRows(ctx); err != nil {
		return run.result, err
	}
	if err := run.checkOrphans(ctx); err != nil {
		return run.result, err
	}
	if err := run.checkUnsynced(ctx); err != nil {
		return run.result, err
	}

	res := run.result
	switch {
	case res.Exhausted:
		res.Message = fmt.Sprintf("repair limit of %d reached with %d issue(s) unfixed; run the health check with fix again",
			limit, len(res.Issues)-res.Fixed)
	case len(res.Issues) == 0:
		res.Message = "no issues found"
	case res.Healthy():
		res.Message = fmt.Sprintf("%d issue(s) found and fixed", res.Fixed)
	default:
		res.Message = fmt.Sprintf("%d issue(s) found, %d fixed", len(res.Issues), res.Fixed)
	}

	counts := res.CountBySeverity()
	uc.logger.Infow("health check finished",
		"issues", len(res.Issues),
		"critical", counts[SeverityCritical],
		"warning", counts[SeverityWarning],
		"info", counts[SeverityInfo],
		"fixed", res.Fixed,
		"iterations", res.Iterations,
		"exhausted", res.Exhausted,
	)
	return res, nil
}

// report records an issue and, in fix mode, attempts repair while the
// iteration budget lasts. repair may be nil for issues that need an operator.
func (r *healthRun) report(issue Issue, repair func() error) {
	if r.fix && repair != nil {
		if r.result.Iterations >= r.maxIterations {
			r.result.Exhausted = true
		} else {
			r.result.Iterations++
			if err := repair(); err != nil {
				issue.Detail = fmt.Sprintf("%s; repair failed: %v", issue.Detail, err)
				r.uc.logger.Warnw("health check repair failed",
					"check", issue.Check,
					"subscription_id", issue.SubscriptionID,
					"customer_id", issue.CustomerID,
					"error", err,
				)
			} else {
				issue.Fixed = true
				r.result.Fixed++
			}
		}
	}
	r.result.Issues = append(r.result.Issues, issue)
}

// checkLinkedRows walks every row with a billing customer: the customer must
// carry the user id, and a paid row must match its subscription's status.
func (r *healthRun) checkLinkedRows(ctx context.Context) error {
	var afterID uint
	for {
		rows, err := r.uc.repo.ListWithCustomer(ctx, afterID, healthPageSize)
		if err != nil {
			return fmt.Errorf("failed to list entitlements: %w", err)
		}
		for _, row := range rows {
			r.checkCustomerTag(ctx, row)
			r.checkStatus(ctx, row)
			afterID = row.ID()
		}
		if len(rows) < healthPageSize {
			return nil
		}
	}
}

func (r *healthRun) checkCustomerTag(ctx context.Context, row *entitlement.Entitlement) {
	customerID := *row.CustomerID()
	c, err := r.uc.provider.GetCustomer(ctx, customerID)
	if err != nil {
		r.uc.logger.Warnw("health check could not fetch customer", "customer_id", customerID, "error", err)
		return
	}

	tagged := billing.MetadataValue(c.Metadata, billing.MetadataUserID)
	switch {
	case tagged == "":
		r.report(Issue{
			Check:      CheckCustomerUntagged,
			Severity:   SeverityWarning,
			UserID:     row.UserID(),
			CustomerID: customerID,
			Detail:     "billing customer has no userId metadata",
		}, func() error {
			return r.uc.provider.TagCustomerUser(ctx, customerID, row.UserID())
		})
	case tagged != row.UserID():
		r.report(Issue{
			Check:      CheckCustomerUserMismatch,
			Severity:   SeverityCritical,
			UserID:     row.UserID(),
			CustomerID: customerID,
			Detail:     fmt.Sprintf("billing customer is tagged with user %s", tagged),
		}, nil)
	}
}

func (r *healthRun) checkStatus(ctx context.Context, row *entitlement.Entitlement) {
	if !row.Status().IsPaid() || row.SubscriptionID() == nil {
		return
	}
	subID := *row.SubscriptionID()
	sub, err := r.uc.provider.GetSubscription(ctx, subID)
	if err != nil {
		if stderrors.Is(err, billing.ErrSubscriptionNotFound) {
			r.report(Issue{
				Check:          CheckSubscriptionGone,
				Severity:       SeverityCritical,
				UserID:         row.UserID(),
				SubscriptionID: subID,
				Detail:         "paid entitlement points at a subscription the provider does not know",
			}, nil)
			return
		}
		r.uc.logger.Warnw("health check could not fetch subscription", "subscription_id", subID, "error", err)
		return
	}

	want := r.uc.payloads.Build(sub, "").Record.Status
	if want == row.Status() {
		return
	}
	r.report(Issue{
		Check:          CheckStatusMismatch,
		Severity:       SeverityCritical,
		UserID:         row.UserID(),
		CustomerID:     sub.CustomerID,
		SubscriptionID: subID,
		Detail:         fmt.Sprintf("stored status %s, provider status %s", row.Status(), want),
	}, func() error {
		_, err := r.uc.syncer.SyncCanonical(ctx, sub.CustomerID, sub, reconciliation.Hint{}, reconciliation.WriteOptions{Force: true})
		return err
	})
}

func (r *healthRun) checkOrphans(ctx context.Context) error {
	orphans, err := r.uc.orphans.ListUnresolved(ctx, healthOrphanLimit)
	if err != nil {
		return fmt.Errorf("failed to list orphans: %w", err)
	}

	for _, o := range orphans {
		issue := Issue{
			Check:          CheckOrphanUnresolved,
			Severity:       SeverityWarning,
			CustomerID:     o.CustomerID(),
			SubscriptionID: o.SubscriptionID(),
			Detail:         fmt.Sprintf("unresolved orphan for %q", o.CustomerEmail()),
		}
		email := o.CustomerEmail()
		if r.recoveredEmails[email] {
			issue.Fixed = true
			r.result.Fixed++
			r.result.Issues = append(r.result.Issues, issue)
			continue
		}
		if email == "" || r.uc.orphanRecovery == nil {
			r.report(issue, nil)
			continue
		}
		r.report(issue, func() error {
			acct, err := r.uc.accounts.FindByEmail(ctx, email)
			if err != nil {
				return err
			}
			if acct == nil {
				return fmt.Errorf("no account with email %s", email)
			}
			if _, err := r.uc.orphanRecovery.Execute(ctx, RecoverOrphansCommand{
				UserID: acct.ID,
				Email:  email,
				Method: orphan.ResolvedByHealthCheck,
			}); err != nil {
				return err
			}
			r.recoveredEmails[email] = true
			return nil
		})
	}
	return nil
}

// checkUnsynced finds live provider subscriptions with no entitlement row.
// Unresolved orphans were already reported and are skipped.
func (r *healthRun) checkUnsynced(ctx context.Context) error {
	cursor := ""
	for {
		page, err := r.uc.provider.ListSubscriptions(ctx, billing.ListParams{
			StartingAfter: cursor,
			Limit:         healthPageSize,
			Status:        listAllStatuses,
		})
		if err != nil {
			return fmt.Errorf("failed to list subscriptions: %w", err)
		}
		for i := range page.Subscriptions {
			if err := r.checkSubscription(ctx, page.Subscriptions[i]); err != nil {
				return err
			}
		}
		if !page.HasMore || len(page.Subscriptions) == 0 {
			return nil
		}
		cursor = page.Subscriptions[len(page.Subscriptions)-1].ID
	}
}

func (r *healthRun) checkSubscription(ctx context.Context, sub billing.Subscription) error {
	if !sub.IsLive() {
		return nil
	}
	row, err := r.uc.repo.GetBySubscriptionID(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("failed to look up entitlement: %w", err)
	}
	if row != nil {
		return nil
	}
	o, err := r.uc.orphans.GetBySubscriptionID(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("failed to look up orphan: %w", err)
	}
	if o != nil && !o.IsResolved() {
		return nil
	}

	if sub.CustomerID != "" {
		owner, err := r.uc.repo.GetByCustomerID(ctx, sub.CustomerID)
		if err != nil {
			return fmt.Errorf("failed to look up entitlement: %w", err)
		}
		if owner != nil && owner.SubscriptionID() != nil {
			r.report(Issue{
				Check:          CheckDuplicateSubscription,
				Severity:       SeverityInfo,
				UserID:         owner.UserID(),
				CustomerID:     sub.CustomerID,
				SubscriptionID: sub.ID,
				Detail:         fmt.Sprintf("live subscription alongside canonical %s", *owner.SubscriptionID()),
			}, nil)
			return nil
		}
	}

	r.report(Issue{
		Check:          CheckSubscriptionNotSynced,
		Severity:       SeverityCritical,
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		Detail:         fmt.Sprintf("live %s subscription has no entitlement row", sub.Status),
	}, func() error {
		_, err := r.uc.syncer.SyncCanonical(ctx, sub.CustomerID, &sub, reconciliation.Hint{}, reconciliation.WriteOptions{})
		return err
	})
	return nil
}
