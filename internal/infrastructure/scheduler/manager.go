// Package scheduler runs the periodic reconciliation jobs using gocron v2.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/orris-inc/subsync/internal/shared/biztime"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

// BatchJob is one scheduled unit of work. Execute returns the number of items
// it touched.
type BatchJob interface {
	Execute(ctx context.Context) (int, error)
}

// BatchJobFunc adapts a function to BatchJob
type BatchJobFunc func(ctx context.Context) (int, error)

func (f BatchJobFunc) Execute(ctx context.Context) (int, error) { return f(ctx) }

const (
	reconcileTimeout = 2 * time.Hour
	healthTimeout    = 30 * time.Minute
	purgeTimeout     = 5 * time.Minute

	// purgeCron runs after the nightly reconcile and health audit.
	purgeCron = "0 5 * * *"
)

// SchedulerManager owns the gocron scheduler and its jobs.
type SchedulerManager struct {
	scheduler gocron.Scheduler
	logger    logger.Interface

	started   bool
	startedMu sync.RWMutex
}

// NewSchedulerManager creates a scheduler whose cron expressions are read in
// the business timezone.
func NewSchedulerManager(log logger.Interface) (*SchedulerManager, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(biztime.Location()),
	)
	if err != nil {
		return nil, err
	}

	return &SchedulerManager{
		scheduler: scheduler,
		logger:    log,
	}, nil
}

// ========================================
// Reconciliation Jobs (cron-based)
// ========================================

// RegisterReconcileJobs registers the nightly full reconciliation and the
// health audit. An empty cron expression skips that job.
func (m *SchedulerManager) RegisterReconcileJobs(
	reconcileCron string,
	reconcileJob BatchJob,
	healthCron string,
	healthJob BatchJob,
) error {
	if reconcileCron != "" {
		if err := m.register("reconcile-all", reconcileCron, reconcileTimeout, reconcileJob, "reconcile"); err != nil {
			return err
		}
	}
	if healthCron != "" {
		if err := m.register("health-check", healthCron, healthTimeout, healthJob, "reconcile", "health"); err != nil {
			return err
		}
	}

	m.logger.Infow("registered reconciliation jobs",
		"reconcile_cron", reconcileCron,
		"health_check_cron", healthCron,
	)
	return nil
}

// RegisterMaintenanceJobs registers housekeeping, currently the purge of
// old webhook dedup records.
func (m *SchedulerManager) RegisterMaintenanceJobs(purgeJob BatchJob) error {
	if err := m.register("processed-events-purge", purgeCron, purgeTimeout, purgeJob, "maintenance"); err != nil {
		return err
	}

	m.logger.Infow("registered maintenance jobs", "purge_cron", purgeCron)
	return nil
}

func (m *SchedulerManager) register(name, cron string, timeout time.Duration, job BatchJob, tags ...string) error {
	_, err := m.scheduler.NewJob(
		gocron.CronJob(cron, false),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			m.run(ctx, name, job)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags(tags...),
		gocron.WithName(name),
	)
	return err
}

func (m *SchedulerManager) run(ctx context.Context, name string, job BatchJob) {
	m.logger.Debugw("scheduled job started", "job", name)

	startTime := biztime.NowUTC()
	count, err := job.Execute(ctx)
	if err != nil {
		// Don't log error if context was cancelled (graceful shutdown)
		if ctx.Err() != nil {
			return
		}
		m.logger.Errorw("scheduled job failed",
			"job", name,
			"error", err,
			"duration", time.Since(startTime),
		)
		return
	}

	m.logger.Infow("scheduled job completed",
		"job", name,
		"count", count,
		"duration", time.Since(startTime),
	)
}

// ========================================
// Scheduler Lifecycle Methods
// ========================================

// Start starts the scheduler and all registered jobs.
func (m *SchedulerManager) Start() {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if m.started {
		return
	}

	m.scheduler.Start()
	m.started = true
	m.logger.Infow("scheduler manager started", "job_count", len(m.scheduler.Jobs()))
}

// Stop waits for running jobs to complete before returning.
func (m *SchedulerManager) Stop() error {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if !m.started {
		return nil
	}

	m.logger.Infow("stopping scheduler manager")

	err := m.scheduler.Shutdown()
	m.started = false

	if err != nil {
		m.logger.Errorw("scheduler manager shutdown with error", "error", err)
		return err
	}

	m.logger.Infow("scheduler manager stopped")
	return nil
}

// IsStarted returns whether the scheduler is running.
func (m *SchedulerManager) IsStarted() bool {
	m.startedMu.RLock()
	defer m.startedMu.RUnlock()
	return m.started
}

// Jobs returns all registered jobs for inspection.
func (m *SchedulerManager) Jobs() []gocron.Job {
	return m.scheduler.Jobs()
}
