// Package reconciliation holds the application services shared by every
// reconciliation entry point: identity resolution, the entitlement writer and
// the per-subscription sync pipeline.
package reconciliation

import (
	"context"
	"time"
)

// CachedEntitlement is the slice of an entitlement the feature check needs.
type CachedEntitlement struct {
	Status   string
	PlanType string
	// NotFound marks a user confirmed to have no entitlement row.
	NotFound bool
}

// EntitlementCache is a read-through cache in front of the entitlement store.
// Get returns nil, nil on a miss.
type EntitlementCache interface {
	Get(ctx context.Context, userID string) (*CachedEntitlement, error)
	Set(ctx context.Context, userID string, e *CachedEntitlement) error
	SetNullMarker(ctx context.Context, userID string) error
	Invalidate(ctx context.Context, userID string) error
}

// EntitlementChanged is published after every persisted entitlement write.
type EntitlementChanged struct {
	UserID         string    `json:"user_id"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	Status         string    `json:"status"`
	PlanType       string    `json:"plan_type"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// ChangePublisher fans entitlement changes out to other instances.
type ChangePublisher interface {
	PublishEntitlementChanged(ctx context.Context, evt EntitlementChanged) error
}

// Metrics records reconciliation counters.
type Metrics interface {
	WebhookEvent(eventType, outcome string)
	SignatureFailure()
	CandidateOutcome(outcome string)
	EntitlementWrite(outcome string)
	OrphanRecorded()
	OrphanResolved(method string)
	DuplicateSubscription()
	ObserveReconcile(d time.Duration)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) WebhookEvent(string, string)    {}
func (NopMetrics) SignatureFailure()              {}
func (NopMetrics) CandidateOutcome(string)        {}
func (NopMetrics) EntitlementWrite(string)        {}
func (NopMetrics) OrphanRecorded()                {}
func (NopMetrics) OrphanResolved(string)          {}
func (NopMetrics) DuplicateSubscription()         {}
func (NopMetrics) ObserveReconcile(time.Duration) {}
