package usecases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/subsync/internal/application/reconciliation/usecases"
	"github.com/orris-inc/subsync/internal/domain/entitlement"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

func TestCheckFeature_MissingRowIsFree(t *testing.T) {
	e := newEnv()
	uc := usecases.NewCheckFeatureUseCase(e.repo, e.cache, entitlement.DefaultAccessPolicy(), logger.NewNopLogger())

	paid, err := uc.Execute(context.Background(), usecases.CheckFeatureCommand{UserID: "ghost", Feature: "personalized_horoscope"})
	require.NoError(t, err)
	assert.False(t, paid.Allowed)
	assert.Equal(t, "free", paid.Status)
	assert.Equal(t, "free", paid.PlanType)

	free, err := uc.Execute(context.Background(), usecases.CheckFeatureCommand{UserID: "ghost", Feature: "moon_phases"})
	require.NoError(t, err)
	assert.True(t, free.Allowed)
	assert.Equal(t, 1, e.cache.Hits, "second lookup is served by the null marker")
}

func TestCheckFeature_ReadsThroughCache(t *testing.T) {
	e := newEnv()
	e.repo.Put(entitlement.Record{UserID: "user-1", Status: entitlement.StatusActive, PlanType: entitlement.PlanPlusAI})
	uc := usecases.NewCheckFeatureUseCase(e.repo, e.cache, entitlement.DefaultAccessPolicy(), logger.NewNopLogger())

	for i := 0; i < 2; i++ {
		res, err := uc.Execute(context.Background(), usecases.CheckFeatureCommand{UserID: "user-1", Feature: "moon_phases"})
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, "active", res.Status)
		assert.Equal(t, "lunary_plus_ai", res.PlanType)
	}
	assert.Equal(t, 1, e.cache.Hits)

	res, err := uc.Execute(context.Background(), usecases.CheckFeatureCommand{UserID: "user-1", Feature: "no_such_feature"})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestCheckFeature_CancelledLosesPaidFeatures(t *testing.T) {
	e := newEnv()
	e.repo.Put(entitlement.Record{UserID: "user-1", Status: entitlement.StatusCancelled, PlanType: entitlement.PlanPlusAI})
	uc := usecases.NewCheckFeatureUseCase(e.repo, nil, entitlement.DefaultAccessPolicy(), logger.NewNopLogger())

	res, err := uc.Execute(context.Background(), usecases.CheckFeatureCommand{UserID: "user-1", Feature: "personalized_horoscope"})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "cancelled", res.Status)
}

func TestCheckFeature_StoreErrorFailsClosed(t *testing.T) {
	e := newEnv()
	e.repo.FailErr = errors.New("db down")
	uc := usecases.NewCheckFeatureUseCase(e.repo, nil, entitlement.DefaultAccessPolicy(), logger.NewNopLogger())

	res, err := uc.Execute(context.Background(), usecases.CheckFeatureCommand{UserID: "user-1", Feature: "moon_phases"})
	assert.Error(t, err)
	assert.Nil(t, res)
}

func TestGetEntitlement(t *testing.T) {
	e := newEnv()
	uc := usecases.NewGetEntitlementUseCase(e.repo, entitlement.DefaultAccessPolicy(), logger.NewNopLogger())

	view, err := uc.Execute(context.Background(), usecases.GetEntitlementQuery{UserID: "ghost"})
	require.NoError(t, err)
	assert.Equal(t, "free", view.Status)
	assert.Equal(t, 3, view.ChatLimit)
	assert.Contains(t, view.Features, "moon_phases")
	assert.NotContains(t, view.Features, "personalized_horoscope")
}
