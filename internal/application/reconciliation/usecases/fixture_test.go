package usecases_test

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
	"github.com/orris-inc/subsync/internal/application/reconciliation/testutil"
	"github.com/orris-inc/subsync/internal/application/reconciliation/usecases"
	"github.com/orris-inc/subsync/internal/domain/billing"
	"github.com/orris-inc/subsync/internal/domain/entitlement"
	domainrecon "github.com/orris-inc/subsync/internal/domain/reconciliation"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

type env struct {
	provider  *testutil.MockProvider
	repo      *testutil.MemEntitlements
	orphans   *testutil.MemOrphans
	accounts  testutil.MemAccounts
	cache     *testutil.MemCache
	publisher *testutil.RecordingPublisher
	metrics   *testutil.CountingMetrics
	payloads  *domainrecon.PayloadBuilder
	writer    *reconciliation.Writer
	syncer    *reconciliation.Syncer
	recovery  *usecases.RecoverOrphansUseCase
}

func newEnv() *env {
	e := &env{
		provider:  new(testutil.MockProvider),
		repo:      testutil.NewMemEntitlements(),
		orphans:   testutil.NewMemOrphans(),
		accounts:  testutil.MemAccounts{},
		cache:     testutil.NewMemCache(),
		publisher: &testutil.RecordingPublisher{},
		metrics:   testutil.NewCountingMetrics(),
	}
	log := logger.NewNopLogger()
	e.payloads = domainrecon.NewPayloadBuilder(domainrecon.NewPlanResolver(domainrecon.NewPriceTable(map[string]entitlement.PlanID{
		"price_plus":   entitlement.PlanPlus,
		"price_ai":     entitlement.PlanPlusAI,
		"price_annual": entitlement.PlanPlusAIAnnual,
	})))
	e.writer = reconciliation.NewWriter(e.repo, nil, e.cache, e.publisher, e.metrics, log)
	identity := reconciliation.NewIdentityResolver(reconciliation.DefaultIdentityStrategies(e.repo, e.accounts), log)
	e.syncer = reconciliation.NewSyncer(e.provider, e.payloads, identity, e.writer, e.orphans, e.metrics, log)
	e.recovery = usecases.NewRecoverOrphansUseCase(e.repo, e.orphans, e.provider, e.payloads, e.writer,
		testutil.PassthroughTransactor{}, e.metrics, log)
	return e
}

// allowTagging accepts any metadata write.
func (e *env) allowTagging() {
	e.provider.On("TagSubscriptionUser", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	e.provider.On("TagCustomerUser", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
}

func (e *env) customer(id, email, userID string) *billing.Customer {
	c := &billing.Customer{ID: id, Email: email}
	if userID != "" {
		c.Metadata = map[string]string{billing.MetadataUserID: userID}
	}
	e.provider.On("GetCustomer", mock.Anything, id).Return(c, nil).Maybe()
	return c
}

func sub(id, customerID, status, priceID string, amount int64) billing.Subscription {
	interval := "month"
	if priceID == "price_annual" {
		interval = "year"
	}
	return billing.Subscription{
		ID:         id,
		CustomerID: customerID,
		Status:     status,
		Price:      &billing.Price{ID: priceID, UnitAmount: amount, Interval: interval},
		Created:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func strPtr(s string) *string { return &s }
