package orphan

import "context"

// Repository defines persistence for orphan records
type Repository interface {
	// Record upserts on the subscription id, leaving resolved rows untouched.
	Record(ctx context.Context, o *Orphan) error
	// ListUnresolvedByEmail matches customer_email case-insensitively.
	ListUnresolvedByEmail(ctx context.Context, email string) ([]*Orphan, error)
	ListUnresolved(ctx context.Context, limit int) ([]*Orphan, error)
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*Orphan, error)
	MarkResolved(ctx context.Context, o *Orphan) error
}
