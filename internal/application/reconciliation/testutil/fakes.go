// Package testutil provides in-memory stores and mocks for reconciliation tests.
package testutil

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
	"github.com/orris-inc/subsync/internal/domain/account"
	"github.com/orris-inc/subsync/internal/domain/billing"
	"github.com/orris-inc/subsync/internal/domain/entitlement"
	"github.com/orris-inc/subsync/internal/domain/orphan"
)

// MemEntitlements stores copies so callers cannot mutate persisted state.
type MemEntitlements struct {
	mu      sync.Mutex
	rows    map[string]entitlement.Record
	ids     map[string]uint
	Upserts int
	FailErr error
}

func NewMemEntitlements() *MemEntitlements {
	return &MemEntitlements{rows: map[string]entitlement.Record{}, ids: map[string]uint{}}
}

// store must be called with mu held.
func (m *MemEntitlements) store(rec entitlement.Record) {
	if _, ok := m.ids[rec.UserID]; !ok {
		m.ids[rec.UserID] = uint(len(m.ids) + 1)
	}
	m.rows[rec.UserID] = rec
}

func (m *MemEntitlements) load(rec entitlement.Record) *entitlement.Entitlement {
	e, err := entitlement.ReconstructEntitlement(m.ids[rec.UserID], rec, time.Now(), time.Now())
	if err != nil {
		panic(err)
	}
	return e
}

func (m *MemEntitlements) find(match func(entitlement.Record) bool) *entitlement.Entitlement {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.rows {
		if match(rec) {
			return m.load(rec)
		}
	}
	return nil
}

func (m *MemEntitlements) GetByUserID(_ context.Context, userID string) (*entitlement.Entitlement, error) {
	if m.FailErr != nil {
		return nil, m.FailErr
	}
	return m.find(func(r entitlement.Record) bool { return r.UserID == userID }), nil
}

func (m *MemEntitlements) GetBySubscriptionID(_ context.Context, id string) (*entitlement.Entitlement, error) {
	return m.find(func(r entitlement.Record) bool { return r.SubscriptionID != nil && *r.SubscriptionID == id }), nil
}

func (m *MemEntitlements) GetByCustomerID(_ context.Context, id string) (*entitlement.Entitlement, error) {
	return m.find(func(r entitlement.Record) bool { return r.CustomerID != nil && *r.CustomerID == id }), nil
}

func (m *MemEntitlements) GetByEmail(_ context.Context, email string) (*entitlement.Entitlement, error) {
	return m.find(func(r entitlement.Record) bool {
		return r.UserEmail != nil && strings.EqualFold(*r.UserEmail, email)
	}), nil
}

func (m *MemEntitlements) Upsert(_ context.Context, e *entitlement.Entitlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(e.Record())
	m.Upserts++
	return nil
}

func (m *MemEntitlements) ListWithCustomer(_ context.Context, afterID uint, limit int) ([]*entitlement.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entitlement.Entitlement
	for userID, rec := range m.rows {
		if rec.CustomerID != nil && m.ids[userID] > afterID {
			out = append(out, m.load(rec))
		}
	}
	slices.SortFunc(out, func(a, b *entitlement.Entitlement) int { return int(a.ID()) - int(b.ID()) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemEntitlements) Put(rec entitlement.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(rec)
}

func (m *MemEntitlements) Get(userID string) (entitlement.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[userID]
	return rec, ok
}

type MemOrphans struct {
	Rows map[string]*orphan.Orphan
	// MarkResolvedErr, when set, fails every MarkResolved call.
	MarkResolvedErr error
}

func NewMemOrphans() *MemOrphans { return &MemOrphans{Rows: map[string]*orphan.Orphan{}} }

func (m *MemOrphans) Record(_ context.Context, o *orphan.Orphan) error {
	if existing, ok := m.Rows[o.SubscriptionID()]; ok && existing.IsResolved() {
		return nil
	}
	m.Rows[o.SubscriptionID()] = o
	return nil
}

func (m *MemOrphans) ListUnresolvedByEmail(_ context.Context, email string) ([]*orphan.Orphan, error) {
	var out []*orphan.Orphan
	for _, o := range m.Rows {
		if !o.IsResolved() && strings.EqualFold(o.CustomerEmail(), email) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MemOrphans) ListUnresolved(_ context.Context, _ int) ([]*orphan.Orphan, error) {
	var out []*orphan.Orphan
	for _, o := range m.Rows {
		if !o.IsResolved() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MemOrphans) GetBySubscriptionID(_ context.Context, id string) (*orphan.Orphan, error) {
	return m.Rows[id], nil
}

func (m *MemOrphans) MarkResolved(_ context.Context, o *orphan.Orphan) error {
	if m.MarkResolvedErr != nil {
		return m.MarkResolvedErr
	}
	m.Rows[o.SubscriptionID()] = o
	return nil
}

type MemAccounts map[string]string

func (m MemAccounts) FindByEmail(_ context.Context, email string) (*account.Account, error) {
	for id, e := range m {
		if strings.EqualFold(e, email) {
			return &account.Account{ID: id, Email: e}, nil
		}
	}
	return nil, nil
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) ListSubscriptions(ctx context.Context, params billing.ListParams) (*billing.SubscriptionPage, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.SubscriptionPage), args.Error(1)
}

func (m *MockProvider) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *MockProvider) ListCustomerSubscriptions(ctx context.Context, customerID string) ([]billing.Subscription, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Subscription), args.Error(1)
}

func (m *MockProvider) GetCustomer(ctx context.Context, id string) (*billing.Customer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Customer), args.Error(1)
}

func (m *MockProvider) FindCustomersByEmail(ctx context.Context, email string) ([]billing.Customer, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Customer), args.Error(1)
}

func (m *MockProvider) TagSubscriptionUser(ctx context.Context, subscriptionID, userID string) error {
	return m.Called(ctx, subscriptionID, userID).Error(0)
}

func (m *MockProvider) TagCustomerUser(ctx context.Context, customerID, userID string) error {
	return m.Called(ctx, customerID, userID).Error(0)
}

// MemCache is an in-memory EntitlementCache that records invalidations.
type MemCache struct {
	mu          sync.Mutex
	entries     map[string]reconciliation.CachedEntitlement
	Invalidated []string
	Hits        int
}

func NewMemCache() *MemCache {
	return &MemCache{entries: map[string]reconciliation.CachedEntitlement{}}
}

func (c *MemCache) Get(_ context.Context, userID string) (*reconciliation.CachedEntitlement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userID]
	if !ok {
		return nil, nil
	}
	c.Hits++
	return &e, nil
}

func (c *MemCache) Set(_ context.Context, userID string, e *reconciliation.CachedEntitlement) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = *e
	return nil
}

func (c *MemCache) SetNullMarker(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = reconciliation.CachedEntitlement{NotFound: true}
	return nil
}

func (c *MemCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	c.Invalidated = append(c.Invalidated, userID)
	return nil
}

type RecordingPublisher struct {
	Events []reconciliation.EntitlementChanged
}

func (p *RecordingPublisher) PublishEntitlementChanged(_ context.Context, evt reconciliation.EntitlementChanged) error {
	p.Events = append(p.Events, evt)
	return nil
}

// PassthroughTransactor runs fn without a transaction.
type PassthroughTransactor struct{}

func (PassthroughTransactor) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type MemProcessedEvents struct {
	mu   sync.Mutex
	seen map[string]string
}

func NewMemProcessedEvents() *MemProcessedEvents {
	return &MemProcessedEvents{seen: map[string]string{}}
}

func (s *MemProcessedEvents) IsProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[eventID]
	return ok, nil
}

func (s *MemProcessedEvents) MarkProcessed(_ context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[eventID] = eventType
	return nil
}

func (s *MemProcessedEvents) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// StubVerifier returns Event for any payload signed with Signature.
type StubVerifier struct {
	Signature string
	Event     *billing.Event
}

func (v StubVerifier) Verify(_ []byte, signature string) (*billing.Event, error) {
	if signature != v.Signature {
		return nil, billing.ErrInvalidSignature
	}
	return v.Event, nil
}

// CountingMetrics counts duplicate and orphan observations.
type CountingMetrics struct {
	reconciliation.NopMetrics
	Duplicates     int
	Orphans        int
	Resolved       map[string]int
	SignatureFails int
	Webhooks       map[string]int
}

func NewCountingMetrics() *CountingMetrics {
	return &CountingMetrics{Resolved: map[string]int{}, Webhooks: map[string]int{}}
}

func (m *CountingMetrics) DuplicateSubscription()       { m.Duplicates++ }
func (m *CountingMetrics) OrphanRecorded()              { m.Orphans++ }
func (m *CountingMetrics) OrphanResolved(method string) { m.Resolved[method]++ }
func (m *CountingMetrics) SignatureFailure()            { m.SignatureFails++ }
func (m *CountingMetrics) WebhookEvent(eventType, outcome string) {
	m.Webhooks[eventType+":"+outcome]++
}
