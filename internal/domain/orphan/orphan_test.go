package orphan

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/subsync/internal/domain/entitlement"
)

func TestNewOrphan(t *testing.T) {
	o, err := NewOrphan("sub_1", "cus_1", "  Guest@Example.com ", entitlement.StatusTrial, entitlement.PlanPlusAI)
	require.NoError(t, err)
	assert.Equal(t, "guest@example.com", o.CustomerEmail())
	assert.False(t, o.IsResolved())
	assert.Nil(t, o.ResolvedAt())

	_, err = NewOrphan("", "cus_1", "", entitlement.StatusTrial, entitlement.PlanPlus)
	assert.ErrorIs(t, err, ErrSubscriptionIDRequired)

	_, err = NewOrphan("sub_1", "cus_1", "", "trialing", entitlement.PlanPlus)
	assert.ErrorIs(t, err, entitlement.ErrInvalidStatus)
}

func TestOrphan_Resolve(t *testing.T) {
	o, err := NewOrphan("sub_1", "cus_1", "g@example.com", entitlement.StatusActive, entitlement.PlanPlus)
	require.NoError(t, err)

	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.ErrorIs(t, o.Resolve("", ResolvedByAutoRecovery, now), entitlement.ErrUserIDRequired)
	assert.Error(t, o.Resolve("user-1", "magic", now))

	require.NoError(t, o.Resolve("user-1", ResolvedByAutoRecovery, now))
	assert.True(t, o.IsResolved())
	assert.Equal(t, "user-1", o.ResolvedUserID())
	assert.Equal(t, ResolvedByAutoRecovery, o.ResolvedBy())
	assert.Equal(t, now, *o.ResolvedAt())

	assert.ErrorIs(t, o.Resolve("user-2", ResolvedByAdmin, now), ErrAlreadyResolved)
}

func TestOrphan_HasRecordedBilling(t *testing.T) {
	pct := decimal.NewFromInt(100)
	tests := []struct {
		name    string
		status  entitlement.Status
		billing Billing
		want    bool
	}{
		{"active with amount", entitlement.StatusActive, Billing{MonthlyAmountDue: decimal.RequireFromString("8.99")}, true},
		{"active without amount", entitlement.StatusActive, Billing{}, false},
		{"trial without amount", entitlement.StatusTrial, Billing{}, false},
		{"past due without amount", entitlement.StatusPastDue, Billing{}, false},
		{"fully discounted", entitlement.StatusActive, Billing{HasDiscount: true, DiscountPercent: &pct}, true},
		{"cancelled without amount", entitlement.StatusCancelled, Billing{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := NewOrphan("sub_1", "cus_1", "g@example.com", tt.status, entitlement.PlanPlusAI)
			require.NoError(t, err)
			o.SetBilling(tt.billing)
			assert.Equal(t, tt.want, o.HasRecordedBilling())
		})
	}
}

func TestBilling_RoundTripsRecord(t *testing.T) {
	trialEnd := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	pct := decimal.NewFromInt(15)
	coupon := "SPRING15"
	src := entitlement.Record{
		PlanType:         entitlement.PlanPlusAIAnnual,
		HasDiscount:      true,
		DiscountPercent:  &pct,
		MonthlyAmountDue: decimal.RequireFromString("7.08"),
		CouponID:         &coupon,
		TrialEndsAt:      &trialEnd,
	}

	dst := entitlement.Record{PlanType: entitlement.PlanPlusAIAnnual}
	BillingFromRecord(src).ApplyTo(&dst)

	assert.True(t, dst.MonthlyAmountDue.Equal(src.MonthlyAmountDue))
	assert.True(t, dst.HasDiscount)
	assert.True(t, dst.DiscountPercent.Equal(pct))
	assert.Equal(t, &coupon, dst.CouponID)
	assert.Equal(t, &trialEnd, dst.TrialEndsAt)
	assert.True(t, dst.TrialUsed)
	assert.Equal(t, []string{string(entitlement.PlanPlusAIAnnual)}, dst.TrialedPlanLevels)
}
