// Package account is the read-only view of application users used for
// identity resolution.
package account

import "context"

// Account is an application user
type Account struct {
	ID    string
	Email string
}

// Repository looks up accounts. FindByEmail matches case-insensitively and
// returns nil, nil when no account exists.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
}
