package cache

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	client.FlushDB(ctx)
	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})

	return client
}

func TestRedisEntitlementCache_SetGet(t *testing.T) {
	c := NewRedisEntitlementCache(setupTestRedis(t), logger.NewNopLogger())
	ctx := context.Background()

	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got, "miss returns nil")

	require.NoError(t, c.Set(ctx, "u1", &reconciliation.CachedEntitlement{Status: "active", PlanType: "lunary_plus_ai"}))

	got, err = c.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "active", got.Status)
	assert.Equal(t, "lunary_plus_ai", got.PlanType)
	assert.False(t, got.NotFound)
}

func TestRedisEntitlementCache_NullMarker(t *testing.T) {
	c := NewRedisEntitlementCache(setupTestRedis(t), logger.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, c.SetNullMarker(ctx, "ghost"))

	got, err := c.Get(ctx, "ghost")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.NotFound)

	// a real write replaces the marker
	require.NoError(t, c.Set(ctx, "ghost", &reconciliation.CachedEntitlement{Status: "trial", PlanType: "lunary_plus"}))
	got, err = c.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, got.NotFound)
	assert.Equal(t, "trial", got.Status)
}

func TestRedisEntitlementCache_Invalidate(t *testing.T) {
	c := NewRedisEntitlementCache(setupTestRedis(t), logger.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "u1", &reconciliation.CachedEntitlement{Status: "active", PlanType: "lunary_plus"}))
	require.NoError(t, c.Invalidate(ctx, "u1"))

	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
