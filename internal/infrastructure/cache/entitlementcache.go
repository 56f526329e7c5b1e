package cache

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

const (
	entitlementKeyPrefix = "subsync:entitlement:"
	baseEntitlementTTL   = 60 * time.Minute
	entitlementTTLJitter = 20 * time.Minute // TTL range: 60-80 min (anti-stampede)
	nullMarkerTTL        = 2 * time.Minute  // Short TTL for not-found markers (anti-penetration)
	fieldStatus          = "status"
	fieldPlanType        = "plan_type"
	fieldNullMarker      = "_null"
)

// RedisEntitlementCache implements reconciliation.EntitlementCache using a Redis hash per user
type RedisEntitlementCache struct {
	client *redis.Client
	logger logger.Interface
}

// NewRedisEntitlementCache creates a new Redis-based entitlement cache
func NewRedisEntitlementCache(client *redis.Client, logger logger.Interface) *RedisEntitlementCache {
	return &RedisEntitlementCache{
		client: client,
		logger: logger,
	}
}

func (c *RedisEntitlementCache) key(userID string) string {
	return entitlementKeyPrefix + userID
}

// Get returns the cached entitlement, nil on a miss
func (c *RedisEntitlementCache) Get(ctx context.Context, userID string) (*reconciliation.CachedEntitlement, error) {
	result, err := c.client.HGetAll(ctx, c.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement from cache: %w", err)
	}

	if len(result) == 0 {
		return nil, nil
	}

	if result[fieldNullMarker] == "1" {
		return &reconciliation.CachedEntitlement{NotFound: true}, nil
	}

	return &reconciliation.CachedEntitlement{
		Status:   result[fieldStatus],
		PlanType: result[fieldPlanType],
	}, nil
}

// Set stores the entitlement with a jittered TTL
func (c *RedisEntitlementCache) Set(ctx context.Context, userID string, e *reconciliation.CachedEntitlement) error {
	key := c.key(userID)

	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]interface{}{
		fieldStatus:   e.Status,
		fieldPlanType: e.PlanType,
	})
	pipe.Expire(ctx, key, entitlementTTLWithJitter())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set entitlement in cache: %w", err)
	}

	c.logger.Debugw("entitlement cached",
		"user_id", userID,
		"status", e.Status,
		"plan_type", e.PlanType,
	)
	return nil
}

// SetNullMarker records that the user has no entitlement row, for a short time
func (c *RedisEntitlementCache) SetNullMarker(ctx context.Context, userID string) error {
	key := c.key(userID)

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, fieldNullMarker, "1")
	pipe.Expire(ctx, key, nullMarkerTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set null marker in cache: %w", err)
	}

	c.logger.Debugw("entitlement null marker set",
		"user_id", userID,
		"ttl", nullMarkerTTL,
	)
	return nil
}

// Invalidate drops the cached entry for a user
func (c *RedisEntitlementCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate entitlement cache: %w", err)
	}

	c.logger.Debugw("entitlement cache invalidated", "user_id", userID)
	return nil
}

// entitlementTTLWithJitter returns a TTL in [60, 80) minutes so entries
// written together do not expire together.
func entitlementTTLWithJitter() time.Duration {
	jitter := time.Duration(rand.Int64N(int64(entitlementTTLJitter)))
	return baseEntitlementTTL + jitter
}

var _ reconciliation.EntitlementCache = (*RedisEntitlementCache)(nil)
