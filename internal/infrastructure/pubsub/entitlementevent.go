package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
	"github.com/orris-inc/subsync/internal/shared/goroutine"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

// EntitlementChangeHandler is called once per received change
type EntitlementChangeHandler func(ctx context.Context, event reconciliation.EntitlementChanged)

const entitlementChangeChannel = "subsync:entitlement:changed"

// RedisEntitlementEventBus publishes entitlement changes over Redis Pub/Sub so
// every instance (and the events tail command) sees writes made anywhere.
type RedisEntitlementEventBus struct {
	client *redis.Client
	logger logger.Interface
}

func NewRedisEntitlementEventBus(client *redis.Client, logger logger.Interface) *RedisEntitlementEventBus {
	return &RedisEntitlementEventBus{
		client: client,
		logger: logger,
	}
}

// PublishEntitlementChanged implements reconciliation.ChangePublisher
func (b *RedisEntitlementEventBus) PublishEntitlementChanged(ctx context.Context, event reconciliation.EntitlementChanged) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, entitlementChangeChannel, data).Err(); err != nil {
		b.logger.Errorw("failed to publish entitlement change",
			"user_id", event.UserID,
			"status", event.Status,
			"error", err,
		)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debugw("entitlement change published",
		"user_id", event.UserID,
		"previous_status", event.PreviousStatus,
		"status", event.Status,
		"plan_type", event.PlanType,
	)
	return nil
}

// Subscribe blocks until ctx is done, calling handler for every change.
// Handlers run on their own goroutine so a slow one cannot stall the loop.
func (b *RedisEntitlementEventBus) Subscribe(ctx context.Context, handler EntitlementChangeHandler) error {
	sub := b.client.Subscribe(ctx, entitlementChangeChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	b.logger.Infow("subscribed to entitlement changes", "channel", entitlementChangeChannel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			b.logger.Infow("entitlement change subscriber stopped", "reason", ctx.Err())
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				b.logger.Warnw("entitlement change channel closed")
				return nil
			}

			event, err := decodeEntitlementChange(msg.Payload)
			if err != nil {
				b.logger.Warnw("failed to unmarshal entitlement change",
					"payload", msg.Payload,
					"error", err,
				)
				continue
			}

			goroutine.SafeGo(ctx, b.logger, "entitlement-change-handler", func(ctx context.Context) {
				handler(ctx, event)
			}, "user_id", event.UserID)
		}
	}
}

func decodeEntitlementChange(payload string) (reconciliation.EntitlementChanged, error) {
	var event reconciliation.EntitlementChanged
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return event, err
	}
	if event.UserID == "" {
		return event, fmt.Errorf("event has no user_id")
	}
	return event, nil
}

var _ reconciliation.ChangePublisher = (*RedisEntitlementEventBus)(nil)
