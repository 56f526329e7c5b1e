package reconciliation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
	"github.com/orris-inc/subsync/internal/application/reconciliation/testutil"
	"github.com/orris-inc/subsync/internal/domain/entitlement"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

func strPtr(s string) *string { return &s }

func activeRecord(userID string) entitlement.Record {
	return entitlement.Record{
		UserID:           userID,
		UserEmail:        strPtr("a@example.com"),
		Status:           entitlement.StatusActive,
		PlanType:         entitlement.PlanPlusAI,
		CustomerID:       strPtr("cus_1"),
		SubscriptionID:   strPtr("sub_1"),
		MonthlyAmountDue: decimal.RequireFromString("8.99"),
	}
}

func newTestWriter(repo entitlement.Repository) (*reconciliation.Writer, *testutil.MemCache, *testutil.RecordingPublisher) {
	cache := testutil.NewMemCache()
	pub := &testutil.RecordingPublisher{}
	w := reconciliation.NewWriter(repo, nil, cache, pub, nil, logger.NewNopLogger())
	return w, cache, pub
}

func TestWriter_NoOpDetectionAndForce(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMemEntitlements()
	w, cache, pub := newTestWriter(repo)

	res, err := w.Upsert(ctx, activeRecord("u1"), reconciliation.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, reconciliation.WriteCreated, res.Outcome)

	res, err = w.Upsert(ctx, activeRecord("u1"), reconciliation.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, reconciliation.WriteUnchanged, res.Outcome)
	assert.Equal(t, 1, repo.Upserts)

	res, err = w.Upsert(ctx, activeRecord("u1"), reconciliation.WriteOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, reconciliation.WriteUpdated, res.Outcome)
	assert.Equal(t, 2, repo.Upserts)

	assert.Equal(t, []string{"u1", "u1"}, cache.Invalidated)
	require.Len(t, pub.Events, 2)
	assert.Equal(t, "active", pub.Events[1].PreviousStatus)
	assert.Equal(t, "sub_1", pub.Events[1].SubscriptionID)
}

func TestWriter_ForceFixesDriftedAmount(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMemEntitlements()
	w, _, _ := newTestWriter(repo)

	_, err := w.Upsert(ctx, activeRecord("u1"), reconciliation.WriteOptions{})
	require.NoError(t, err)

	drifted := activeRecord("u1")
	drifted.MonthlyAmountDue = decimal.RequireFromString("4.50")

	res, err := w.Upsert(ctx, drifted, reconciliation.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, reconciliation.WriteUnchanged, res.Outcome)
	row, _ := repo.Get("u1")
	assert.Equal(t, "8.99", row.MonthlyAmountDue.StringFixed(2))

	_, err = w.Upsert(ctx, drifted, reconciliation.WriteOptions{Force: true})
	require.NoError(t, err)
	row, _ = repo.Get("u1")
	assert.Equal(t, "4.50", row.MonthlyAmountDue.StringFixed(2))
}

func TestWriter_DryRunNeverWrites(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMemEntitlements()
	w, cache, pub := newTestWriter(repo)

	res, err := w.Upsert(ctx, activeRecord("u1"), reconciliation.WriteOptions{DryRun: true, Force: true})
	require.NoError(t, err)
	assert.Equal(t, reconciliation.WriteSkippedDryRun, res.Outcome)
	assert.Equal(t, reconciliation.WriteCreated, res.WouldBe)
	assert.Equal(t, 0, repo.Upserts)
	assert.Empty(t, cache.Invalidated)
	assert.Empty(t, pub.Events)
}

func TestWriter_DeferredHoldsEffectsUntilNotify(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMemEntitlements()
	w, cache, pub := newTestWriter(repo)

	res, err := w.Upsert(ctx, activeRecord("u1"), reconciliation.WriteOptions{Deferred: true})
	require.NoError(t, err)
	assert.Equal(t, reconciliation.WriteCreated, res.Outcome)
	assert.Equal(t, 1, repo.Upserts)
	assert.Empty(t, cache.Invalidated)
	assert.Empty(t, pub.Events)

	w.Notify(ctx, res)
	assert.Equal(t, []string{"u1"}, cache.Invalidated)
	require.Len(t, pub.Events, 1)
	assert.Equal(t, "active", pub.Events[0].Status)

	unchanged, err := w.Upsert(ctx, activeRecord("u1"), reconciliation.WriteOptions{Deferred: true})
	require.NoError(t, err)
	w.Notify(ctx, unchanged)
	assert.Len(t, pub.Events, 1)
}

func TestWriter_PreservesEmailWhenMissing(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMemEntitlements()
	w, _, _ := newTestWriter(repo)

	_, err := w.Upsert(ctx, activeRecord("u1"), reconciliation.WriteOptions{})
	require.NoError(t, err)

	next := activeRecord("u1")
	next.UserEmail = nil
	next.Status = entitlement.StatusPastDue
	_, err = w.Upsert(ctx, next, reconciliation.WriteOptions{})
	require.NoError(t, err)

	row, _ := repo.Get("u1")
	assert.Equal(t, entitlement.StatusPastDue, row.Status)
	require.NotNil(t, row.UserEmail)
	assert.Equal(t, "a@example.com", *row.UserEmail)
}

func TestWriter_KeepsActiveWhenSameSubscriptionReportsTrial(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMemEntitlements()
	w, _, _ := newTestWriter(repo)

	_, err := w.Upsert(ctx, activeRecord("u1"), reconciliation.WriteOptions{})
	require.NoError(t, err)

	trial := activeRecord("u1")
	trial.Status = entitlement.StatusTrial
	res, err := w.Upsert(ctx, trial, reconciliation.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, reconciliation.WriteUnchanged, res.Outcome)
	assert.Equal(t, entitlement.StatusActive, res.Status)

	newSub := trial
	newSub.SubscriptionID = strPtr("sub_2")
	res, err = w.Upsert(ctx, newSub, reconciliation.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, reconciliation.WriteUpdated, res.Outcome)
	assert.Equal(t, entitlement.StatusTrial, res.Status)
}

func TestWriter_TrialHistoryIsMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMemEntitlements()
	w, _, _ := newTestWriter(repo)

	first := activeRecord("u1")
	first.TrialedPlanLevels = []string{"lunary_plus"}
	_, err := w.Upsert(ctx, first, reconciliation.WriteOptions{})
	require.NoError(t, err)

	second := activeRecord("u1")
	second.Status = entitlement.StatusCancelled
	_, err = w.Upsert(ctx, second, reconciliation.WriteOptions{})
	require.NoError(t, err)

	row, _ := repo.Get("u1")
	assert.True(t, row.TrialUsed)
	assert.Equal(t, []string{"lunary_plus"}, row.TrialedPlanLevels)
}

func TestWriter_Errors(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMemEntitlements()
	w, _, _ := newTestWriter(repo)

	_, err := w.Upsert(ctx, entitlement.Record{}, reconciliation.WriteOptions{})
	assert.Error(t, err)

	bad := activeRecord("u1")
	bad.PlanType = "gold"
	_, err = w.Upsert(ctx, bad, reconciliation.WriteOptions{})
	assert.Error(t, err)

	repo.FailErr = errors.New("db down")
	_, err = w.Upsert(ctx, activeRecord("u1"), reconciliation.WriteOptions{})
	assert.ErrorContains(t, err, "db down")
}
