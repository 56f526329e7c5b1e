package entitlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/subsync/internal/shared/biztime"
)

func TestDefaultAccessPolicy_FreeFeaturesAlwaysGranted(t *testing.T) {
	policy := DefaultAccessPolicy()
	statuses := []Status{StatusFree, StatusTrial, StatusActive, StatusPastDue, StatusCancelled, "", "trialing", "bogus"}
	plans := []string{"", "free", "lunary_plus", "lunary_plus_ai", "lunary_plus_ai_annual", "yearly", "monthly", "unknown"}

	for _, feature := range DefaultFeatureMatrix()[PlanFree] {
		for _, s := range statuses {
			for _, p := range plans {
				assert.True(t, policy.HasFeatureAccess(s, p, feature), "%s/%s/%s", s, p, feature)
			}
		}
	}
}

func TestDefaultAccessPolicy_PaidFeatureDeniedForUnpaidStatuses(t *testing.T) {
	policy := DefaultAccessPolicy()
	for _, s := range []Status{StatusFree, StatusPastDue, StatusCancelled, "", "bogus"} {
		for _, p := range []string{"lunary_plus", "lunary_plus_ai_annual", ""} {
			assert.False(t, policy.HasFeatureAccess(s, p, "personalized_horoscope"), "%s/%s", s, p)
			assert.False(t, policy.HasFeatureAccess(s, p, "data_export"), "%s/%s", s, p)
		}
	}
}

func TestDefaultAccessPolicy_TierFeatures(t *testing.T) {
	policy := DefaultAccessPolicy()

	tests := []struct {
		name    string
		status  Status
		plan    string
		feature string
		want    bool
	}{
		{"plus gets personalized horoscope", StatusActive, "lunary_plus", "personalized_horoscope", true},
		{"plus lacks unlimited chat", StatusActive, "lunary_plus", "unlimited_ai_chat", false},
		{"ai gets unlimited chat", StatusActive, "lunary_plus_ai", "unlimited_ai_chat", true},
		{"ai lacks data export", StatusActive, "lunary_plus_ai", "data_export", false},
		{"annual gets data export", StatusTrial, "lunary_plus_ai_annual", "data_export", true},
		{"yearly alias gets annual", StatusActive, "yearly", "yearly_forecast", true},
		{"monthly alias gets plus", StatusActive, "monthly", "personal_tarot", true},
		{"monthly alias lacks ai", StatusActive, "monthly", "unlimited_ai_chat", false},
		{"raw trialing is paid", "trialing", "lunary_plus_ai", "deeper_readings", true},
		{"unknown plan falls back to plus", StatusActive, "cosmic_guide", "personal_tarot", true},
		{"free plan with active status gets plus", StatusActive, "free", "personal_tarot", true},
		{"unknown feature denied", StatusActive, "lunary_plus_ai_annual", "teleportation", false},
		{"empty feature denied", StatusActive, "lunary_plus_ai_annual", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, policy.HasFeatureAccess(tc.status, tc.plan, tc.feature))
		})
	}
}

func TestAccessPolicy_NilNeverPanics(t *testing.T) {
	var policy *AccessPolicy
	assert.NotPanics(t, func() {
		assert.False(t, policy.HasFeatureAccess(StatusActive, "lunary_plus", "moon_phases"))
		assert.Nil(t, policy.Features(StatusActive, "lunary_plus"))
		assert.Equal(t, 0, policy.ChatLimit("lunary_plus"))
	})
}

func TestNewAccessPolicy_SubstituteMatrix(t *testing.T) {
	policy, err := NewAccessPolicy(
		[]PlanDefinition{
			{ID: PlanFree, Interval: IntervalMonth, ChatLimit: 1},
			{ID: PlanPlus, Interval: IntervalMonth, ChatLimit: 10},
		},
		map[PlanID][]string{
			PlanFree: {"a"},
			PlanPlus: {"b"},
		},
	)
	require.NoError(t, err)

	assert.True(t, policy.HasFeatureAccess(StatusFree, "", "a"))
	assert.False(t, policy.HasFeatureAccess(StatusFree, "", "b"))
	assert.True(t, policy.HasFeatureAccess(StatusActive, "lunary_plus", "b"))
	assert.Equal(t, []string{"a", "b"}, policy.Features(StatusActive, "lunary_plus"))
	assert.False(t, policy.HasFeatureAccess(StatusFree, "", "moon_phases"))
}

func TestNewAccessPolicy_Invalid(t *testing.T) {
	_, err := NewAccessPolicy([]PlanDefinition{{ID: PlanFree, Interval: IntervalMonth}}, map[PlanID][]string{PlanPlus: {"x"}})
	assert.ErrorIs(t, err, ErrInvalidCatalog)

	_, err = NewAccessPolicy([]PlanDefinition{{ID: PlanPlus, Interval: IntervalMonth}}, map[PlanID][]string{PlanFree: {"x"}})
	assert.ErrorIs(t, err, ErrInvalidCatalog)

	_, err = NewAccessPolicy([]PlanDefinition{{ID: "gold", Interval: IntervalMonth}}, map[PlanID][]string{PlanFree: {"x"}})
	assert.ErrorIs(t, err, ErrInvalidPlan)

	_, err = NewAccessPolicy([]PlanDefinition{{ID: PlanFree, Interval: "week"}}, map[PlanID][]string{PlanFree: {"x"}})
	assert.ErrorIs(t, err, ErrInvalidCatalog)
}

func TestAccessPolicy_ChatLimitAndTrialDays(t *testing.T) {
	policy := DefaultAccessPolicy()

	assert.Equal(t, 3, policy.ChatLimit("free"))
	assert.Equal(t, 50, policy.ChatLimit("lunary_plus"))
	assert.Equal(t, 300, policy.ChatLimit("lunary_plus_ai"))
	assert.Equal(t, 300, policy.ChatLimit("yearly"))
	assert.Equal(t, 3, policy.ChatLimit("mystery"))

	assert.Equal(t, 7, policy.TrialDays(PlanPlus))
	assert.Equal(t, 14, policy.TrialDays(PlanPlusAIAnnual))
	assert.Equal(t, 0, policy.TrialDays(PlanFree))
}

func TestAccessPolicy_Plans(t *testing.T) {
	plans := DefaultAccessPolicy().Plans()
	require.Len(t, plans, 4)
	assert.Equal(t, PlanFree, plans[0].ID)
	assert.Equal(t, PlanPlusAIAnnual, plans[3].ID)
	assert.Equal(t, "89.99", plans[3].Price.StringFixed(2))
}

func TestAccessPolicy_HasDateAccess(t *testing.T) {
	require.NoError(t, biztime.Init("UTC"))
	policy := DefaultAccessPolicy()
	now := time.Date(2025, 3, 20, 15, 0, 0, 0, time.UTC)

	assert.True(t, policy.HasDateAccess(StatusFree, now, now))
	assert.True(t, policy.HasDateAccess(StatusFree, now.AddDate(0, 0, -7), now))
	assert.False(t, policy.HasDateAccess(StatusFree, now.AddDate(0, 0, -8), now))
	assert.False(t, policy.HasDateAccess(StatusFree, now.AddDate(0, 0, 1), now))
	assert.False(t, policy.HasDateAccess(StatusCancelled, now.AddDate(0, 0, -30), now))

	assert.True(t, policy.HasDateAccess(StatusActive, now.AddDate(-1, 0, 0), now))
	assert.True(t, policy.HasDateAccess("trialing", now.AddDate(0, 2, 0), now))
}
