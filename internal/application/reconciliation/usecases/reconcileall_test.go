package usecases_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/subsync/internal/application/reconciliation/usecases"
	"github.com/orris-inc/subsync/internal/domain/billing"
	"github.com/orris-inc/subsync/internal/domain/entitlement"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

func (e *env) reconcileAll() *usecases.ReconcileAllUseCase {
	return usecases.NewReconcileAllUseCase(e.provider, e.syncer, 2, time.Millisecond, e.metrics, logger.NewNopLogger())
}

// seedBatch lays out two provider pages: a user with two live subscriptions,
// a second user, an unresolved live subscription and a cancelled stranger.
func (e *env) seedBatch() {
	e.customer("cus_b", "b@example.com", "user-b")
	e.customer("cus_a", "a@example.com", "user-a")
	e.customer("cus_x", "x@example.com", "")
	e.customer("cus_z", "z@example.com", "")

	dearer := sub("sub_b_active", "cus_b", billing.StatusActive, "price_ai", 1999)
	discounted := sub("sub_b_trial", "cus_b", billing.StatusTrialing, "price_plus", 999)
	discounted.Discounts = []billing.Discount{{Coupon: &billing.Coupon{ID: "half", PercentOff: 50}}}
	page1 := &billing.SubscriptionPage{
		Subscriptions: []billing.Subscription{discounted, sub("sub_a", "cus_a", billing.StatusActive, "price_plus", 499)},
		HasMore:       true,
	}
	page2 := &billing.SubscriptionPage{
		Subscriptions: []billing.Subscription{dearer, sub("sub_x", "cus_x", billing.StatusActive, "price_plus", 499), sub("sub_z", "cus_z", billing.StatusCanceled, "price_plus", 499)},
	}
	e.provider.On("ListSubscriptions", mock.Anything, billing.ListParams{Limit: 2, Status: "all"}).Return(page1, nil)
	e.provider.On("ListSubscriptions", mock.Anything, billing.ListParams{StartingAfter: "sub_a", Limit: 2, Status: "all"}).Return(page2, nil)
}

func TestReconcileAll_OneCanonicalRowPerUser(t *testing.T) {
	e := newEnv()
	e.seedBatch()

	res, err := e.reconcileAll().Execute(context.Background(), usecases.ReconcileAllCommand{})
	require.NoError(t, err)

	assert.Equal(t, 5, res.Processed)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Orphaned)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Duplicates)
	assert.Zero(t, res.Errors)
	assert.Equal(t, 1, e.metrics.Duplicates)

	b, ok := e.repo.Get("user-b")
	require.True(t, ok)
	assert.Equal(t, "sub_b_active", *b.SubscriptionID)
	assert.Equal(t, entitlement.StatusActive, b.Status)

	_, ok = e.repo.Get("user-a")
	assert.True(t, ok)
	assert.Contains(t, e.orphans.Rows, "sub_x")
	assert.NotContains(t, e.orphans.Rows, "sub_z")

	again, err := e.reconcileAll().Execute(context.Background(), usecases.ReconcileAllCommand{})
	require.NoError(t, err)
	assert.Equal(t, 2, again.Unchanged)
	assert.Zero(t, again.Created+again.Updated)
	assert.Equal(t, 2, e.repo.Upserts)
}

func TestReconcileAll_DryRunWritesNothing(t *testing.T) {
	e := newEnv()
	e.seedBatch()

	res, err := e.reconcileAll().Execute(context.Background(), usecases.ReconcileAllCommand{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Orphaned)
	assert.Zero(t, e.repo.Upserts)
	assert.Empty(t, e.orphans.Rows)
}

func TestReconcileAll_ForceRewritesUnchanged(t *testing.T) {
	e := newEnv()
	e.seedBatch()

	_, err := e.reconcileAll().Execute(context.Background(), usecases.ReconcileAllCommand{})
	require.NoError(t, err)
	res, err := e.reconcileAll().Execute(context.Background(), usecases.ReconcileAllCommand{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 4, e.repo.Upserts)
}

func TestReconcileAll_Limit(t *testing.T) {
	e := newEnv()
	e.seedBatch()

	res, err := e.reconcileAll().Execute(context.Background(), usecases.ReconcileAllCommand{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	e.provider.AssertNotCalled(t, "ListSubscriptions", mock.Anything, billing.ListParams{StartingAfter: "sub_a", Limit: 2, Status: "all"})
}
