package http

import (
	"context"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
	"github.com/orris-inc/subsync/internal/domain/entitlement"
	domainrecon "github.com/orris-inc/subsync/internal/domain/reconciliation"
	"github.com/orris-inc/subsync/internal/infrastructure/auth"
	"github.com/orris-inc/subsync/internal/infrastructure/billing/stripe"
	"github.com/orris-inc/subsync/internal/infrastructure/cache"
	"github.com/orris-inc/subsync/internal/infrastructure/catalog"
	"github.com/orris-inc/subsync/internal/infrastructure/config"
	"github.com/orris-inc/subsync/internal/infrastructure/metrics"
	"github.com/orris-inc/subsync/internal/infrastructure/pubsub"
	"github.com/orris-inc/subsync/internal/infrastructure/ratelimit"
	"github.com/orris-inc/subsync/internal/infrastructure/scheduler"
	"github.com/orris-inc/subsync/internal/interfaces/http/middleware"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

// Container holds the infrastructure components, repositories, use cases,
// handlers and background services, and wires them together.
type Container struct {
	// Core infrastructure
	engine *gin.Engine
	db     *gorm.DB
	cfg    *config.Config
	log    logger.Interface
	redis  *redis.Client // nil runs without cache, events and rate limits

	// Repositories
	repos *repositories

	// Use cases
	ucs *allUseCases

	// Handlers
	hdlrs *allHandlers

	// Middlewares
	authMiddleware *middleware.AuthMiddleware
	rateLimiter    *middleware.RateLimiter

	// Billing provider
	provider *stripe.Provider
	verifier *stripe.Verifier

	// Reconciliation core
	policy   *entitlement.AccessPolicy
	payloads *domainrecon.PayloadBuilder
	writer   *reconciliation.Writer
	syncer   *reconciliation.Syncer
	metrics  *metrics.ReconcileMetrics

	// Redis-backed collaborators
	entitlementCache *cache.RedisEntitlementCache
	eventBus         *pubsub.RedisEntitlementEventBus

	// Background services
	schedulerManager *scheduler.SchedulerManager
	shutdownOnce     sync.Once
}

// NewContainer creates a Container with all dependencies wired together.
// redisClient may be nil. reg receives the reconciliation metrics; nil uses
// the default prometheus registerer.
func NewContainer(
	database *gorm.DB,
	redisClient *redis.Client,
	cfg *config.Config,
	reg prometheus.Registerer,
	log logger.Interface,
) (*Container, error) {
	c := &Container{
		engine: gin.New(),
		db:     database,
		cfg:    cfg,
		log:    log,
		redis:  redisClient,
	}

	// Section 1: Infrastructure - repositories, provider, redis collaborators
	if err := c.initInfrastructure(reg); err != nil {
		return nil, err
	}

	// Section 2: Reconciliation - writer, syncer, use cases
	c.initReconciliation()

	// Section 3: Handlers and middlewares
	c.initHandlers()

	// Section 4: Scheduler jobs
	if err := c.initScheduler(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Container) initInfrastructure(reg prometheus.Registerer) error {
	c.repos = newRepositories(c.db, c.log)

	c.provider = stripe.NewProvider(c.cfg.Stripe.SecretKey, c.log.Named("stripe"))
	c.verifier = stripe.NewVerifier(c.cfg.Stripe.WebhookSecret)
	if c.cfg.Stripe.WebhookSecret == "" {
		c.log.Warnw("stripe webhook secret is not configured, every webhook will be rejected")
	}

	policy, err := catalog.LoadAccessPolicy(c.cfg.Reconciliation.CatalogPath, c.log)
	if err != nil {
		return fmt.Errorf("failed to load plan catalog: %w", err)
	}
	c.policy = policy

	prices := catalog.PriceTable(c.cfg.Stripe, c.log)
	c.payloads = domainrecon.NewPayloadBuilder(domainrecon.NewPlanResolver(prices))

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c.metrics = metrics.New(reg)

	if c.redis != nil {
		c.entitlementCache = cache.NewRedisEntitlementCache(c.redis, c.log)
		c.eventBus = pubsub.NewRedisEntitlementEventBus(c.redis, c.log)
	} else {
		c.log.Warnw("redis is not configured, running without entitlement cache, change events and rate limits")
	}

	return nil
}

func (c *Container) initReconciliation() {
	// typed nils must not leak into the interface-valued collaborators
	var entCache reconciliation.EntitlementCache
	var publisher reconciliation.ChangePublisher
	if c.entitlementCache != nil {
		entCache = c.entitlementCache
	}
	if c.eventBus != nil {
		publisher = c.eventBus
	}

	c.writer = reconciliation.NewWriter(c.repos.entitlementRepo, nil, entCache, publisher, c.metrics, c.log.Named("writer"))

	identity := reconciliation.NewIdentityResolver(
		reconciliation.DefaultIdentityStrategies(c.repos.entitlementRepo, c.repos.accountRepo),
		c.log.Named("identity"),
	)
	c.syncer = reconciliation.NewSyncer(c.provider, c.payloads, identity, c.writer, c.repos.orphanRepo, c.metrics, c.log.Named("syncer"))

	c.ucs = newUseCases(c, entCache)
}

func (c *Container) initHandlers() {
	c.hdlrs = newHandlers(c.ucs, c.log)

	c.authMiddleware = middleware.NewAuthMiddleware(auth.NewJWTService(c.cfg.Auth.JWT.Secret), c.log)

	var limiter ratelimit.RateLimiter
	if c.redis != nil {
		limiter = ratelimit.NewRedisRateLimiter(c.redis)
	}
	c.rateLimiter = middleware.NewRateLimiter(limiter, c.log)
}

func (c *Container) initScheduler() error {
	if !c.cfg.Scheduler.Enabled {
		return nil
	}

	manager, err := scheduler.NewSchedulerManager(c.log.Named("scheduler"))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if err := manager.RegisterReconcileJobs(
		c.cfg.Scheduler.ReconcileCron, scheduler.BatchJobFunc(c.runNightlyReconcile),
		c.cfg.Scheduler.HealthCheckCron, scheduler.BatchJobFunc(c.runHealthAudit),
	); err != nil {
		return fmt.Errorf("failed to register reconciliation jobs: %w", err)
	}
	if err := manager.RegisterMaintenanceJobs(scheduler.BatchJobFunc(c.purgeProcessedEvents)); err != nil {
		return fmt.Errorf("failed to register maintenance jobs: %w", err)
	}

	c.schedulerManager = manager
	return nil
}

// StartScheduler starts the background jobs, if enabled
func (c *Container) StartScheduler() {
	if c.schedulerManager != nil {
		c.schedulerManager.Start()
	}
}

// StartEventLog subscribes to entitlement change events and logs them until
// ctx is cancelled. It is a no-op without redis.
func (c *Container) StartEventLog(ctx context.Context) {
	if c.eventBus == nil {
		return
	}
	log := c.log.Named("events")
	go func() {
		err := c.eventBus.Subscribe(ctx, func(_ context.Context, ev reconciliation.EntitlementChanged) {
			log.Debugw("entitlement changed",
				"user_id", ev.UserID,
				"previous_status", ev.PreviousStatus,
				"status", ev.Status,
				"plan_type", ev.PlanType,
			)
		})
		if err != nil && ctx.Err() == nil {
			log.Warnw("entitlement event subscription ended", "error", err)
		}
	}()
}

// Shutdown stops background services. It is safe to call more than once.
func (c *Container) Shutdown() {
	c.shutdownOnce.Do(func() {
		if c.schedulerManager != nil {
			if err := c.schedulerManager.Stop(); err != nil {
				c.log.Errorw("failed to stop scheduler", "error", err)
			}
		}
	})
}

// ReconcileAll returns the batch reconciliation use case
func (c *Container) ReconcileAll() ReconcileAllRunner { return c.ucs.reconcileAllUC }

// SyncCustomer returns the single customer reconciliation use case
func (c *Container) SyncCustomer() SyncCustomerRunner { return c.ucs.syncCustomerUC }

// HealthCheck returns the health audit use case
func (c *Container) HealthCheck() HealthCheckRunner { return c.ucs.healthCheckUC }

// EventBus returns the entitlement event bus, or nil without redis
func (c *Container) EventBus() *pubsub.RedisEntitlementEventBus { return c.eventBus }
