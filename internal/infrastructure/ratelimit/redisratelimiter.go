package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "subsync:ratelimit:"

// RedisRateLimiter is a fixed-window counter per key and window length
type RedisRateLimiter struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, now: time.Now}
}

// Allow counts the request in every enabled window and reports whether all
// of them are still within their limit. A denied request still counts.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, error) {
	now := l.now()

	for _, w := range config.windows() {
		if w.limit <= 0 {
			continue
		}

		count, err := l.hit(ctx, l.getKey(key, w.duration, now), w.duration)
		if err != nil {
			return false, err
		}
		if count > int64(w.limit) {
			return false, nil
		}
	}

	return true, nil
}

func (l *RedisRateLimiter) hit(ctx context.Context, redisKey string, window time.Duration) (int64, error) {
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to execute pipeline: %w", err)
	}
	return incr.Val(), nil
}

// Reset clears every window counter of a key
func (l *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	pattern := fmt.Sprintf("%s%s:*", keyPrefix, key)

	iter := l.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := l.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}

	return nil
}

func (l *RedisRateLimiter) getKey(identifier string, window time.Duration, now time.Time) string {
	bucket := now.Unix() / int64(window/time.Second)
	return fmt.Sprintf("%s%s:%s:%d", keyPrefix, identifier, window.String(), bucket)
}

var _ RateLimiter = (*RedisRateLimiter)(nil)
