package reconciliation

import (
	"slices"
	"strings"

	"github.com/orris-inc/subsync/internal/domain/billing"
)

// Candidate is one billing subscription competing to represent a user.
type Candidate struct {
	Subscription billing.Subscription
	Customer     *billing.Customer
	Payload      Payload
}

// StatusRank orders raw provider statuses; lower wins.
func StatusRank(raw string) int {
	switch raw {
	case billing.StatusActive:
		return 1
	case billing.StatusTrialing:
		return 2
	case billing.StatusPastDue:
		return 3
	default:
		return 99
	}
}

// compareCandidates is a total order: status rank, then higher monthly amount,
// then newer subscription, then the smaller subscription id.
func compareCandidates(a, b Candidate) int {
	if ra, rb := StatusRank(a.Payload.RawStatus), StatusRank(b.Payload.RawStatus); ra != rb {
		return ra - rb
	}
	if c := b.Payload.Record.MonthlyAmountDue.Cmp(a.Payload.Record.MonthlyAmountDue); c != 0 {
		return c
	}
	if !a.Payload.Created.Equal(b.Payload.Created) {
		if a.Payload.Created.After(b.Payload.Created) {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Subscription.ID, b.Subscription.ID)
}

// SelectCanonical picks the subscription that represents the user. The result
// does not depend on input order. ok is false for an empty input.
func SelectCanonical(cands []Candidate) (winner Candidate, losers []Candidate, ok bool) {
	if len(cands) == 0 {
		return Candidate{}, nil, false
	}
	sorted := slices.Clone(cands)
	slices.SortFunc(sorted, compareCandidates)
	return sorted[0], sorted[1:], true
}
