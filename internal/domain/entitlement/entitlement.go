package entitlement

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is the set of fields reconciliation writes for one user.
type Record struct {
	UserID            string
	UserEmail         *string
	Status            Status
	PlanType          PlanID
	CustomerID        *string
	SubscriptionID    *string
	TrialEndsAt       *time.Time
	CurrentPeriodEnd  *time.Time
	HasDiscount       bool
	DiscountPercent   *decimal.Decimal
	MonthlyAmountDue  decimal.Decimal
	CouponID          *string
	PromoCode         *string
	DiscountEndsAt    *time.Time
	TrialUsed         bool
	TrialedPlanLevels []string
}

// normalize enforces the record invariants in place.
func (r *Record) normalize() {
	if !r.HasDiscount {
		r.DiscountPercent = nil
		r.CouponID = nil
	}
	if r.UserEmail != nil {
		email := strings.TrimSpace(*r.UserEmail)
		if email == "" {
			r.UserEmail = nil
		} else {
			r.UserEmail = &email
		}
	}
	r.TrialedPlanLevels = unionLevels(nil, r.TrialedPlanLevels)
	if len(r.TrialedPlanLevels) > 0 {
		r.TrialUsed = true
	}
}

func (r *Record) validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrUserIDRequired
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, r.Status)
	}
	if !r.PlanType.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidPlan, r.PlanType)
	}
	return nil
}

// Entitlement is the persisted entitlement aggregate, one per user.
type Entitlement struct {
	id        uint
	rec       Record
	createdAt time.Time
	updatedAt time.Time
}

// NewEntitlement creates a new entitlement from a reconciled record
func NewEntitlement(rec Record) (*Entitlement, error) {
	rec.normalize()
	if err := rec.validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Entitlement{rec: rec, createdAt: now, updatedAt: now}, nil
}

// ReconstructEntitlement reconstructs an entitlement from persistence
func ReconstructEntitlement(id uint, rec Record, createdAt, updatedAt time.Time) (*Entitlement, error) {
	if id == 0 {
		return nil, fmt.Errorf("entitlement ID cannot be zero")
	}
	rec.normalize()
	if err := rec.validate(); err != nil {
		return nil, err
	}
	return &Entitlement{id: id, rec: rec, createdAt: createdAt, updatedAt: updatedAt}, nil
}

// ID returns the entitlement ID
func (e *Entitlement) ID() uint { return e.id }

// SetID sets the entitlement ID (only for persistence layer use)
func (e *Entitlement) SetID(id uint) error {
	if e.id != 0 {
		return fmt.Errorf("entitlement ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("entitlement ID cannot be zero")
	}
	e.id = id
	return nil
}

// Record returns a copy of the tracked fields
func (e *Entitlement) Record() Record {
	rec := e.rec
	rec.TrialedPlanLevels = slices.Clone(e.rec.TrialedPlanLevels)
	return rec
}

func (e *Entitlement) UserID() string                    { return e.rec.UserID }
func (e *Entitlement) UserEmail() *string                { return e.rec.UserEmail }
func (e *Entitlement) Status() Status                    { return e.rec.Status }
func (e *Entitlement) PlanType() PlanID                  { return e.rec.PlanType }
func (e *Entitlement) CustomerID() *string               { return e.rec.CustomerID }
func (e *Entitlement) SubscriptionID() *string           { return e.rec.SubscriptionID }
func (e *Entitlement) TrialEndsAt() *time.Time           { return e.rec.TrialEndsAt }
func (e *Entitlement) CurrentPeriodEnd() *time.Time      { return e.rec.CurrentPeriodEnd }
func (e *Entitlement) HasDiscount() bool                 { return e.rec.HasDiscount }
func (e *Entitlement) DiscountPercent() *decimal.Decimal { return e.rec.DiscountPercent }
func (e *Entitlement) MonthlyAmountDue() decimal.Decimal { return e.rec.MonthlyAmountDue }
func (e *Entitlement) CouponID() *string                 { return e.rec.CouponID }
func (e *Entitlement) PromoCode() *string                { return e.rec.PromoCode }
func (e *Entitlement) DiscountEndsAt() *time.Time        { return e.rec.DiscountEndsAt }
func (e *Entitlement) TrialUsed() bool                   { return e.rec.TrialUsed }
func (e *Entitlement) CreatedAt() time.Time              { return e.createdAt }
func (e *Entitlement) UpdatedAt() time.Time              { return e.updatedAt }

// TrialedPlanLevels returns the plan levels this user has trialed
func (e *Entitlement) TrialedPlanLevels() []string {
	return slices.Clone(e.rec.TrialedPlanLevels)
}

// HasTrialed reports whether plan was trialed before
func (e *Entitlement) HasTrialed(plan PlanID) bool {
	return slices.Contains(e.rec.TrialedPlanLevels, string(plan))
}

// SameBilling reports whether rec matches this row on the change-check
// fields: billing customer, billing subscription, plan and status.
func (e *Entitlement) SameBilling(rec Record) bool {
	return equalPtr(e.rec.CustomerID, rec.CustomerID) &&
		equalPtr(e.rec.SubscriptionID, rec.SubscriptionID) &&
		e.rec.PlanType == rec.PlanType &&
		e.rec.Status == rec.Status
}

// Apply merges incoming into the row using table and returns the previous
// status. The user id never changes.
func (e *Entitlement) Apply(incoming Record, table MergePolicyTable) (Status, error) {
	prev := e.rec.Status
	merged := Merge(e.rec, incoming, table)
	merged.UserID = e.rec.UserID
	merged.normalize()
	if err := merged.validate(); err != nil {
		return prev, err
	}
	e.rec = merged
	e.updatedAt = time.Now().UTC()
	return prev, nil
}

// StartTrial moves the user into a trial of plan lasting days. A plan level
// can only be trialed once.
func (e *Entitlement) StartTrial(plan PlanID, days int, now time.Time) error {
	if !plan.IsValid() || plan == PlanFree {
		return fmt.Errorf("%w: %s", ErrInvalidPlan, plan)
	}
	if days <= 0 {
		return ErrPlanHasNoTrial
	}
	if e.HasTrialed(plan) {
		return fmt.Errorf("%w: %s", ErrTrialAlreadyUsed, plan)
	}
	if !e.rec.Status.CanTransitionTo(StatusTrial) {
		return ErrInvalidStatusTransition(e.rec.Status, StatusTrial)
	}
	ends := now.UTC().AddDate(0, 0, days)
	e.rec.Status = StatusTrial
	e.rec.PlanType = plan
	e.rec.TrialEndsAt = &ends
	e.rec.TrialUsed = true
	e.rec.TrialedPlanLevels = unionLevels(e.rec.TrialedPlanLevels, []string{string(plan)})
	e.updatedAt = now.UTC()
	return nil
}

// AdminReset returns the user to the free plan. Trial history is kept.
func (e *Entitlement) AdminReset(now time.Time) {
	e.rec.Status = StatusFree
	e.rec.PlanType = PlanFree
	e.rec.SubscriptionID = nil
	e.rec.TrialEndsAt = nil
	e.rec.CurrentPeriodEnd = nil
	e.rec.HasDiscount = false
	e.rec.MonthlyAmountDue = decimal.Zero
	e.rec.PromoCode = nil
	e.rec.DiscountEndsAt = nil
	e.rec.normalize()
	e.updatedAt = now.UTC()
}

// TrialDaysRemaining returns whole days left in the trial, rounded up.
func (e *Entitlement) TrialDaysRemaining(now time.Time) int {
	return TrialDaysRemaining(e.rec.TrialEndsAt, now)
}

// IsTrialExpired reports whether the trial end has passed.
func (e *Entitlement) IsTrialExpired(now time.Time) bool {
	return IsTrialExpired(e.rec.TrialEndsAt, now)
}

// TrialDaysRemaining returns whole days until trialEndsAt, rounded up, never
// negative. Nil means no trial.
func TrialDaysRemaining(trialEndsAt *time.Time, now time.Time) int {
	if trialEndsAt == nil {
		return 0
	}
	left := trialEndsAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

// IsTrialExpired reports whether trialEndsAt lies before now.
func IsTrialExpired(trialEndsAt *time.Time, now time.Time) bool {
	return trialEndsAt != nil && trialEndsAt.Before(now)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// unionLevels appends the unseen entries of add to base, skipping blanks.
func unionLevels(base, add []string) []string {
	out := make([]string, 0, len(base)+len(add))
	seen := make(map[string]struct{}, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, l := range list {
			l = strings.TrimSpace(l)
			if l == "" {
				continue
			}
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}
