package entitlement

import (
	"errors"
	"fmt"
)

var (
	// ErrEntitlementNotFound is returned when a user has no entitlement record
	ErrEntitlementNotFound = errors.New("entitlement not found")

	// ErrUserIDRequired is returned when a record has no user id
	ErrUserIDRequired = errors.New("user ID is required")

	// ErrInvalidStatus is returned when a status is outside the closed set
	ErrInvalidStatus = errors.New("invalid entitlement status")

	// ErrInvalidPlan is returned when a plan id is outside the closed set
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrInvalidCatalog is returned when a plan catalog is inconsistent
	ErrInvalidCatalog = errors.New("invalid plan catalog")

	// ErrTrialAlreadyUsed is returned when a plan level was trialed before
	ErrTrialAlreadyUsed = errors.New("trial already used for plan level")

	// ErrPlanHasNoTrial is returned when a trial is requested for a plan without one
	ErrPlanHasNoTrial = errors.New("plan has no trial")

	// ErrTransitionNotAllowed is wrapped by ErrInvalidStatusTransition
	ErrTransitionNotAllowed = errors.New("status transition not allowed")
)

// ErrInvalidStatusTransition returns an error for invalid status transitions
func ErrInvalidStatusTransition(from, to Status) error {
	return fmt.Errorf("%w: from %s to %s", ErrTransitionNotAllowed, from, to)
}
