package orphan

import "errors"

var (
	// ErrSubscriptionIDRequired is returned when an orphan has no subscription id
	ErrSubscriptionIDRequired = errors.New("billing subscription ID is required")

	// ErrAlreadyResolved is returned when resolving an orphan twice
	ErrAlreadyResolved = errors.New("orphan already resolved")
)
