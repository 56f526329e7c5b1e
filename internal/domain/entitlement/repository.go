package entitlement

import "context"

// Repository defines persistence for entitlement records. Lookups return
// nil, nil when nothing matches.
type Repository interface {
	GetByUserID(ctx context.Context, userID string) (*Entitlement, error)
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*Entitlement, error)
	GetByCustomerID(ctx context.Context, customerID string) (*Entitlement, error)
	// GetByEmail matches user_email case-insensitively.
	GetByEmail(ctx context.Context, email string) (*Entitlement, error)

	// Upsert inserts or updates the record keyed by user id.
	Upsert(ctx context.Context, e *Entitlement) error

	// ListWithCustomer returns rows linked to a billing customer, ordered by id,
	// starting after afterID.
	ListWithCustomer(ctx context.Context, afterID uint, limit int) ([]*Entitlement, error)
}
