// Package entitlement models a user's subscription entitlement: the closed
// status and plan vocabularies, the plan catalog with its feature matrix, and
// the single persisted record per user that every feature check reads.
package entitlement

import "strings"

// Status is the internal subscription status vocabulary
type Status string

const (
	StatusFree      Status = "free"
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
)

// IsValid checks if the status belongs to the closed set
func (s Status) IsValid() bool {
	switch s {
	case StatusFree, StatusTrial, StatusActive, StatusPastDue, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// IsPaid reports whether the status grants paid-tier features
func (s Status) IsPaid() bool {
	return s == StatusTrial || s == StatusActive
}

// StatusFromBilling maps a billing provider lifecycle state to a Status. The
// match is exact; unknown or differently spelled input degrades to free.
func StatusFromBilling(raw string) Status {
	switch raw {
	case "trialing":
		return StatusTrial
	case "active":
		return StatusActive
	case "canceled":
		return StatusCancelled
	case "past_due":
		return StatusPastDue
	default:
		return StatusFree
	}
}

// ParseStatus reads a persisted status value. Legacy provider spellings are
// accepted; anything else is free.
func ParseStatus(raw string) Status {
	folded := strings.ToLower(strings.TrimSpace(raw))
	if s := Status(folded); s.IsValid() {
		return s
	}
	return StatusFromBilling(folded)
}

var allowedTransitions = map[Status][]Status{
	StatusFree:      {StatusTrial, StatusActive},
	StatusTrial:     {StatusActive, StatusPastDue, StatusCancelled},
	StatusActive:    {StatusPastDue, StatusCancelled},
	StatusPastDue:   {StatusActive, StatusCancelled},
	StatusCancelled: {StatusTrial, StatusActive},
}

// CanTransitionTo reports whether moving from s to next is a legal
// provider-driven transition. Resetting to free is administrative only and
// never allowed here.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
