package billing

import "errors"

var (
	// ErrInvalidSignature is returned when a webhook payload fails verification
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrSubscriptionNotFound is returned when the provider has no such subscription
	ErrSubscriptionNotFound = errors.New("billing subscription not found")

	// ErrCustomerNotFound is returned when the provider has no such customer
	ErrCustomerNotFound = errors.New("billing customer not found")
)
