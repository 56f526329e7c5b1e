// Package orphan models billing subscriptions whose owning user could not be
// identified when they were ingested.
package orphan

import (
	"fmt"
	"strings"
	"time"

	"github.com/orris-inc/subsync/internal/domain/entitlement"
)

// ResolutionMethod records how an orphan was healed
type ResolutionMethod string

const (
	ResolvedByAutoRecovery ResolutionMethod = "auto_recovery"
	ResolvedByHealthCheck  ResolutionMethod = "health_check"
	ResolvedByAdmin        ResolutionMethod = "admin"
)

// IsValid checks if the method is known
func (m ResolutionMethod) IsValid() bool {
	switch m {
	case ResolvedByAutoRecovery, ResolvedByHealthCheck, ResolvedByAdmin:
		return true
	default:
		return false
	}
}

// Orphan is an unresolved (customer, subscription) pair
type Orphan struct {
	id             uint
	subscriptionID string
	customerID     string
	customerEmail  string
	status         entitlement.Status
	planType       entitlement.PlanID
	billing        Billing
	resolved       bool
	resolvedUserID string
	resolvedAt     *time.Time
	resolvedBy     ResolutionMethod
	createdAt      time.Time
	updatedAt      time.Time
}

// NewOrphan creates an unresolved orphan. The email is stored lowercased.
func NewOrphan(subscriptionID, customerID, email string, status entitlement.Status, plan entitlement.PlanID) (*Orphan, error) {
	if strings.TrimSpace(subscriptionID) == "" {
		return nil, ErrSubscriptionIDRequired
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %s", entitlement.ErrInvalidStatus, status)
	}
	if !plan.IsValid() {
		return nil, fmt.Errorf("%w: %s", entitlement.ErrInvalidPlan, plan)
	}
	now := time.Now().UTC()
	return &Orphan{
		subscriptionID: subscriptionID,
		customerID:     customerID,
		customerEmail:  strings.ToLower(strings.TrimSpace(email)),
		status:         status,
		planType:       plan,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// ReconstructOrphan reconstructs an orphan from persistence
func ReconstructOrphan(
	id uint,
	subscriptionID, customerID, email string,
	status entitlement.Status,
	plan entitlement.PlanID,
	billing Billing,
	resolved bool,
	resolvedUserID string,
	resolvedAt *time.Time,
	resolvedBy ResolutionMethod,
	createdAt, updatedAt time.Time,
) (*Orphan, error) {
	if id == 0 {
		return nil, fmt.Errorf("orphan ID cannot be zero")
	}
	if subscriptionID == "" {
		return nil, ErrSubscriptionIDRequired
	}
	return &Orphan{
		id:             id,
		subscriptionID: subscriptionID,
		customerID:     customerID,
		customerEmail:  email,
		status:         entitlement.ParseStatus(string(status)),
		planType:       entitlement.NormalizePlan(string(plan)),
		billing:        billing,
		resolved:       resolved,
		resolvedUserID: resolvedUserID,
		resolvedAt:     resolvedAt,
		resolvedBy:     resolvedBy,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}, nil
}

func (o *Orphan) ID() uint                     { return o.id }
func (o *Orphan) SubscriptionID() string       { return o.subscriptionID }
func (o *Orphan) CustomerID() string           { return o.customerID }
func (o *Orphan) CustomerEmail() string        { return o.customerEmail }
func (o *Orphan) Status() entitlement.Status   { return o.status }
func (o *Orphan) PlanType() entitlement.PlanID { return o.planType }
func (o *Orphan) Billing() Billing             { return o.billing }
func (o *Orphan) IsResolved() bool             { return o.resolved }
func (o *Orphan) ResolvedUserID() string       { return o.resolvedUserID }
func (o *Orphan) ResolvedAt() *time.Time       { return o.resolvedAt }
func (o *Orphan) ResolvedBy() ResolutionMethod { return o.resolvedBy }
func (o *Orphan) CreatedAt() time.Time         { return o.createdAt }
func (o *Orphan) UpdatedAt() time.Time         { return o.updatedAt }

// SetID sets the orphan ID (only for persistence layer use)
func (o *Orphan) SetID(id uint) error {
	if o.id != 0 {
		return fmt.Errorf("orphan ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("orphan ID cannot be zero")
	}
	o.id = id
	return nil
}

// SetBilling records the amount and discount state of the subscription
func (o *Orphan) SetBilling(b Billing) {
	o.billing = b
}

// Resolve marks the orphan as owned by userID
func (o *Orphan) Resolve(userID string, method ResolutionMethod, now time.Time) error {
	if o.resolved {
		return ErrAlreadyResolved
	}
	if strings.TrimSpace(userID) == "" {
		return entitlement.ErrUserIDRequired
	}
	if !method.IsValid() {
		return fmt.Errorf("invalid resolution method: %s", method)
	}
	at := now.UTC()
	o.resolved = true
	o.resolvedUserID = userID
	o.resolvedAt = &at
	o.resolvedBy = method
	o.updatedAt = at
	return nil
}
