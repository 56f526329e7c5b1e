package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

// decisions runs n Allow calls against key and returns the outcomes
func decisions(t *testing.T, l *RedisRateLimiter, key string, cfg RateLimitConfig, n int) []bool {
	t.Helper()
	out := make([]bool, n)
	for i := range out {
		allowed, err := l.Allow(context.Background(), key, cfg)
		require.NoError(t, err)
		out[i] = allowed
	}
	return out
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name string
		cfg  RateLimitConfig
		want []bool
	}{
		{"minute ceiling", RateLimitConfig{RequestsPerMinute: 3}, []bool{true, true, true, false, false}},
		{"hour ceiling wins over minute", RateLimitConfig{RequestsPerMinute: 100, RequestsPerHour: 2}, []bool{true, true, false}},
		{"zero limits never deny", RateLimitConfig{}, []bool{true, true, true, true, true, true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := NewRedisRateLimiter(setupTestRedis(t))
			assert.Equal(t, tt.want, decisions(t, limiter, "webhook:10.0.0.1", tt.cfg, len(tt.want)))
		})
	}
}

func TestRedisRateLimiter_Allow_KeysAreIndependent(t *testing.T) {
	limiter := NewRedisRateLimiter(setupTestRedis(t))
	cfg := RateLimitConfig{RequestsPerMinute: 1}

	assert.Equal(t, []bool{true, false}, decisions(t, limiter, "session:u_a", cfg, 2))
	assert.Equal(t, []bool{true}, decisions(t, limiter, "session:u_b", cfg, 1))
}

func TestRedisRateLimiter_Allow_NewWindowStartsOver(t *testing.T) {
	limiter := NewRedisRateLimiter(setupTestRedis(t))
	cfg := RateLimitConfig{RequestsPerMinute: 1}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return base }
	assert.Equal(t, []bool{true, false}, decisions(t, limiter, "k", cfg, 2))

	limiter.now = func() time.Time { return base.Add(time.Minute) }
	assert.Equal(t, []bool{true}, decisions(t, limiter, "k", cfg, 1))
}

func TestRedisRateLimiter_Reset(t *testing.T) {
	limiter := NewRedisRateLimiter(setupTestRedis(t))
	cfg := RateLimitConfig{RequestsPerMinute: 1}

	decisions(t, limiter, "reset-me", cfg, 1)
	require.NoError(t, limiter.Reset(context.Background(), "reset-me"))
	assert.Equal(t, []bool{true}, decisions(t, limiter, "reset-me", cfg, 1))
}
