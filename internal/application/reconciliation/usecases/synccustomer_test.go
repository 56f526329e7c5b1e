package usecases_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
	"github.com/orris-inc/subsync/internal/application/reconciliation/usecases"
	"github.com/orris-inc/subsync/internal/domain/billing"
	"github.com/orris-inc/subsync/internal/domain/entitlement"
	apperrors "github.com/orris-inc/subsync/internal/shared/errors"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

func TestSyncCustomer_ByEmail(t *testing.T) {
	e := newEnv()
	e.allowTagging()
	e.accounts["user-5"] = "five@example.com"
	e.customer("cus_5", "five@example.com", "")
	e.provider.On("FindCustomersByEmail", mock.Anything, "five@example.com").Return([]billing.Customer{
		{ID: "cus_5", Email: "five@example.com"},
		{ID: "cus_deleted", Deleted: true},
	}, nil)
	annual := sub("sub_5", "cus_5", billing.StatusActive, "price_annual", 8999)
	e.provider.On("ListCustomerSubscriptions", mock.Anything, "cus_5").Return([]billing.Subscription{annual}, nil)

	uc := usecases.NewSyncCustomerUseCase(e.provider, e.syncer, logger.NewNopLogger())
	res, err := uc.Execute(context.Background(), usecases.SyncCustomerCommand{Target: "five@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"cus_5"}, res.CustomerIDs)
	require.Len(t, res.Results, 1)
	assert.Equal(t, reconciliation.SyncWritten, res.Results[0].Outcome)
	assert.Equal(t, reconciliation.StrategyByAccountEmail, res.Results[0].Strategy)

	row, ok := e.repo.Get("user-5")
	require.True(t, ok)
	assert.Equal(t, entitlement.PlanPlusAIAnnual, row.PlanType)
	assert.Equal(t, "7.50", row.MonthlyAmountDue.StringFixed(2))
}

func TestSyncCustomer_DryRunByID(t *testing.T) {
	e := newEnv()
	e.customer("cus_1", "", "user-1")
	e.provider.On("ListCustomerSubscriptions", mock.Anything, "cus_1").
		Return([]billing.Subscription{sub("sub_1", "cus_1", billing.StatusActive, "price_plus", 499)}, nil)

	uc := usecases.NewSyncCustomerUseCase(e.provider, e.syncer, logger.NewNopLogger())
	res, err := uc.Execute(context.Background(), usecases.SyncCustomerCommand{Target: "cus_1", DryRun: true})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, reconciliation.SyncDryRun, res.Results[0].Outcome)
	assert.Equal(t, reconciliation.WriteCreated, res.Results[0].Write.WouldBe)
	assert.Zero(t, e.repo.Upserts)
}

func TestSyncCustomer_NotFound(t *testing.T) {
	e := newEnv()
	e.provider.On("FindCustomersByEmail", mock.Anything, "nobody@example.com").Return([]billing.Customer{}, nil)
	e.provider.On("ListCustomerSubscriptions", mock.Anything, "cus_empty").Return([]billing.Subscription{}, nil)

	uc := usecases.NewSyncCustomerUseCase(e.provider, e.syncer, logger.NewNopLogger())

	_, err := uc.Execute(context.Background(), usecases.SyncCustomerCommand{Target: "nobody@example.com"})
	assert.True(t, apperrors.IsNotFoundError(err))

	_, err = uc.Execute(context.Background(), usecases.SyncCustomerCommand{Target: "cus_empty"})
	assert.True(t, apperrors.IsNotFoundError(err))

	_, err = uc.Execute(context.Background(), usecases.SyncCustomerCommand{Target: "  "})
	assert.True(t, apperrors.IsValidationError(err))
}
