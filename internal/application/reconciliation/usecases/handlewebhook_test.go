package usecases_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/subsync/internal/application/reconciliation/testutil"
	"github.com/orris-inc/subsync/internal/application/reconciliation/usecases"
	"github.com/orris-inc/subsync/internal/domain/billing"
	"github.com/orris-inc/subsync/internal/domain/entitlement"
	"github.com/orris-inc/subsync/internal/domain/orphan"
	apperrors "github.com/orris-inc/subsync/internal/shared/errors"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

const testSignature = "t=1,v1=ok"

func (e *env) webhook(evt *billing.Event, events *testutil.MemProcessedEvents) *usecases.HandleWebhookUseCase {
	return usecases.NewHandleWebhookUseCase(
		testutil.StubVerifier{Signature: testSignature, Event: evt},
		events, e.provider, e.syncer, e.recovery, e.metrics, logger.NewNopLogger(),
	)
}

func TestHandleWebhook_RejectsBadSignature(t *testing.T) {
	e := newEnv()
	uc := e.webhook(&billing.Event{ID: "evt_1", Type: billing.EventSubscriptionUpdated}, testutil.NewMemProcessedEvents())

	_, err := uc.Execute(context.Background(), usecases.HandleWebhookCommand{Payload: []byte("{}"), Signature: "forged"})
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, 400, appErr.Code)
	assert.Equal(t, 1, e.metrics.SignatureFails)
	assert.Zero(t, e.repo.Upserts)
	e.provider.AssertNotCalled(t, "GetCustomer", mock.Anything, mock.Anything)
}

func TestHandleWebhook_SubscriptionUpdatedIsDeduplicated(t *testing.T) {
	e := newEnv()
	e.customer("cus_1", "one@example.com", "user-1")
	s := sub("sub_1", "cus_1", billing.StatusActive, "price_ai", 899)
	e.provider.On("ListCustomerSubscriptions", mock.Anything, "cus_1").Return([]billing.Subscription{s}, nil)

	events := testutil.NewMemProcessedEvents()
	uc := e.webhook(&billing.Event{ID: "evt_1", Type: billing.EventSubscriptionUpdated, Subscription: &s}, events)

	first, err := uc.Execute(context.Background(), usecases.HandleWebhookCommand{Signature: testSignature})
	require.NoError(t, err)
	assert.Equal(t, usecases.WebhookProcessed, first.Outcome)

	second, err := uc.Execute(context.Background(), usecases.HandleWebhookCommand{Signature: testSignature})
	require.NoError(t, err)
	assert.Equal(t, usecases.WebhookDuplicate, second.Outcome)

	row, ok := e.repo.Get("user-1")
	require.True(t, ok)
	assert.Equal(t, entitlement.StatusActive, row.Status)
	assert.Equal(t, entitlement.PlanPlusAI, row.PlanType)
	assert.Equal(t, 1, e.repo.Upserts)
	assert.Equal(t, []string{"user-1"}, e.cache.Invalidated)
	require.Len(t, e.publisher.Events, 1)
	assert.Equal(t, "active", e.publisher.Events[0].Status)
}

func TestHandleWebhook_DeletedDuplicateDoesNotCancel(t *testing.T) {
	e := newEnv()
	e.customer("cus_1", "", "user-1")
	live := sub("sub_live", "cus_1", billing.StatusActive, "price_plus", 499)
	gone := sub("sub_gone", "cus_1", billing.StatusActive, "price_plus", 499)
	e.provider.On("ListCustomerSubscriptions", mock.Anything, "cus_1").Return([]billing.Subscription{live, gone}, nil)

	gone.Status = billing.StatusCanceled
	uc := e.webhook(&billing.Event{ID: "evt_del", Type: billing.EventSubscriptionDeleted, Subscription: &gone}, testutil.NewMemProcessedEvents())

	_, err := uc.Execute(context.Background(), usecases.HandleWebhookCommand{Signature: testSignature})
	require.NoError(t, err)

	row, _ := e.repo.Get("user-1")
	assert.Equal(t, entitlement.StatusActive, row.Status)
	assert.Equal(t, "sub_live", *row.SubscriptionID)
}

func TestHandleWebhook_InvoiceFailureRefreshesSubscription(t *testing.T) {
	e := newEnv()
	e.customer("cus_1", "", "user-1")
	pastDue := sub("sub_1", "cus_1", billing.StatusPastDue, "price_plus", 499)
	e.provider.On("GetSubscription", mock.Anything, "sub_1").Return(&pastDue, nil)
	e.provider.On("ListCustomerSubscriptions", mock.Anything, "cus_1").Return([]billing.Subscription{pastDue}, nil)
	e.repo.Put(entitlement.Record{
		UserID:         "user-1",
		Status:         entitlement.StatusActive,
		PlanType:       entitlement.PlanPlus,
		CustomerID:     strPtr("cus_1"),
		SubscriptionID: strPtr("sub_1"),
	})

	uc := e.webhook(&billing.Event{
		ID:             "evt_inv",
		Type:           billing.EventInvoicePaymentFailed,
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
	}, testutil.NewMemProcessedEvents())

	res, err := uc.Execute(context.Background(), usecases.HandleWebhookCommand{Signature: testSignature})
	require.NoError(t, err)
	assert.Equal(t, usecases.WebhookProcessed, res.Outcome)

	row, _ := e.repo.Get("user-1")
	assert.Equal(t, entitlement.StatusPastDue, row.Status)
}

func TestHandleWebhook_CheckoutCompletedRecoversOrphans(t *testing.T) {
	e := newEnv()
	e.allowTagging()
	e.customer("cus_new", "buyer@example.com", "")
	paid := sub("sub_new", "cus_new", billing.StatusActive, "price_ai", 899)
	e.provider.On("GetSubscription", mock.Anything, "sub_new").Return(&paid, nil)
	e.provider.On("ListCustomerSubscriptions", mock.Anything, "cus_new").Return([]billing.Subscription{paid}, nil)

	stale := sub("sub_old", "cus_old", billing.StatusTrialing, "price_plus", 499)
	e.provider.On("GetSubscription", mock.Anything, "sub_old").Return(&stale, nil)
	o, err := orphan.NewOrphan("sub_old", "cus_old", "buyer@example.com", entitlement.StatusTrial, entitlement.PlanPlus)
	require.NoError(t, err)
	require.NoError(t, e.orphans.Record(context.Background(), o))

	uc := e.webhook(&billing.Event{
		ID:                "evt_co",
		Type:              billing.EventCheckoutCompleted,
		SubscriptionID:    "sub_new",
		CustomerID:        "cus_new",
		CustomerEmail:     "buyer@example.com",
		ClientReferenceID: "user-42",
	}, testutil.NewMemProcessedEvents())

	_, err = uc.Execute(context.Background(), usecases.HandleWebhookCommand{Signature: testSignature})
	require.NoError(t, err)

	row, ok := e.repo.Get("user-42")
	require.True(t, ok)
	assert.Equal(t, "sub_new", *row.SubscriptionID)
	assert.Equal(t, entitlement.StatusActive, row.Status)
	assert.True(t, e.orphans.Rows["sub_old"].IsResolved())
	e.provider.AssertCalled(t, "TagSubscriptionUser", mock.Anything, "sub_new", "user-42")
}

func TestHandleWebhook_UnhandledTypeIsIgnored(t *testing.T) {
	e := newEnv()
	events := testutil.NewMemProcessedEvents()
	uc := e.webhook(&billing.Event{ID: "evt_x", Type: "customer.created"}, events)

	res, err := uc.Execute(context.Background(), usecases.HandleWebhookCommand{Signature: testSignature})
	require.NoError(t, err)
	assert.Equal(t, usecases.WebhookIgnored, res.Outcome)
	assert.Zero(t, events.Count())
	assert.Equal(t, 1, e.metrics.Webhooks["customer.created:ignored"])
}
