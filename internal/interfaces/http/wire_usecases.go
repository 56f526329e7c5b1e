package http

import (
	"context"
	"time"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
	"github.com/orris-inc/subsync/internal/application/reconciliation/usecases"
)

// processedEventRetention bounds how long webhook dedup records are kept.
// The provider stops redelivering after three days.
const processedEventRetention = 30 * 24 * time.Hour

// ReconcileAllRunner runs a batch reconciliation
type ReconcileAllRunner interface {
	Execute(ctx context.Context, cmd usecases.ReconcileAllCommand) (*usecases.ReconcileAllResult, error)
}

// SyncCustomerRunner reconciles a single customer
type SyncCustomerRunner interface {
	Execute(ctx context.Context, cmd usecases.SyncCustomerCommand) (*usecases.SyncCustomerResult, error)
}

// HealthCheckRunner runs the consistency audit
type HealthCheckRunner interface {
	Execute(ctx context.Context, cmd usecases.HealthCheckCommand) (*usecases.HealthCheckResult, error)
}

// allUseCases holds all use case instances used by the application.
type allUseCases struct {
	// Reconciliation
	handleWebhookUC  *usecases.HandleWebhookUseCase
	reconcileAllUC   *usecases.ReconcileAllUseCase
	syncCustomerUC   *usecases.SyncCustomerUseCase
	healthCheckUC    *usecases.HealthCheckUseCase
	recoverOrphansUC *usecases.RecoverOrphansUseCase

	// Entitlement reads and trials
	getEntitlementUC *usecases.GetEntitlementUseCase
	checkFeatureUC   *usecases.CheckFeatureUseCase
	startTrialUC     *usecases.StartTrialUseCase
}

func newUseCases(c *Container, entCache reconciliation.EntitlementCache) *allUseCases {
	log := c.log
	repos := c.repos
	recon := c.cfg.Reconciliation

	recoverOrphansUC := usecases.NewRecoverOrphansUseCase(
		repos.entitlementRepo, repos.orphanRepo, c.provider, c.payloads, c.writer, repos.txMgr, c.metrics, log,
	)

	return &allUseCases{
		handleWebhookUC: usecases.NewHandleWebhookUseCase(
			c.verifier, repos.processedEvents, c.provider, c.syncer, recoverOrphansUC, c.metrics, log,
		),
		reconcileAllUC: usecases.NewReconcileAllUseCase(
			c.provider, c.syncer, recon.PageSize, recon.PageDelay, c.metrics, log,
		),
		syncCustomerUC: usecases.NewSyncCustomerUseCase(c.provider, c.syncer, log),
		healthCheckUC: usecases.NewHealthCheckUseCase(
			repos.entitlementRepo, repos.orphanRepo, repos.accountRepo, c.provider, c.payloads,
			c.syncer, recoverOrphansUC, recon.HealthMaxIters, log,
		),
		recoverOrphansUC: recoverOrphansUC,

		getEntitlementUC: usecases.NewGetEntitlementUseCase(repos.entitlementRepo, c.policy, log),
		checkFeatureUC:   usecases.NewCheckFeatureUseCase(repos.entitlementRepo, entCache, c.policy, log),
		startTrialUC:     usecases.NewStartTrialUseCase(repos.entitlementRepo, c.policy, c.writer, log),
	}
}

// ========================================
// Scheduled jobs
// ========================================

func (c *Container) runNightlyReconcile(ctx context.Context) (int, error) {
	result, err := c.ucs.reconcileAllUC.Execute(ctx, usecases.ReconcileAllCommand{})
	if err != nil {
		return 0, err
	}
	return result.Created + result.Updated, nil
}

func (c *Container) runHealthAudit(ctx context.Context) (int, error) {
	result, err := c.ucs.healthCheckUC.Execute(ctx, usecases.HealthCheckCommand{
		Fix: c.cfg.Scheduler.HealthCheckFixes,
	})
	if err != nil {
		return 0, err
	}
	if !result.Healthy() {
		c.log.Warnw("health audit found unresolved issues",
			"issues", len(result.Issues),
			"fixed", result.Fixed,
			"by_severity", result.CountBySeverity(),
		)
	}
	return len(result.Issues), nil
}

func (c *Container) purgeProcessedEvents(ctx context.Context) (int, error) {
	purged, err := c.repos.processedEvents.PurgeBefore(ctx, time.Now().Add(-processedEventRetention))
	return int(purged), err
}
