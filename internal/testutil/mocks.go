package testutil

import (
	"context"
	"sync"

	"github.com/crediario/credits-backend/internal/domain"
	"github.com/crediario/credits-backend/internal/websocket"
	"github.com/google/uuid"
)

// MockCreditAccountRepository is a mock implementation of domain.CreditAccountRepository
type MockCreditAccountRepository struct {
	Accounts map[uuid.UUID]*domain.CreditAccount

	LoadFn         func(ctx context.Context, companyID uuid.UUID) (*domain.CreditAccount, error)
	CreateFn       func(ctx context.Context, account *domain.CreditAccount) error
	SaveAddsFn     func(ctx context.Context, account *domain.CreditAccount) error
	SaveConsumesFn func(ctx context.Context, account *domain.CreditAccount) error
	SaveRefundsFn  func(ctx context.Context, account *domain.CreditAccount) error
	SaveExpiresFn  func(ctx context.Context, account *domain.CreditAccount) error
	ListFn         func(ctx context.Context) ([]uuid.UUID, error)

	SaveAddsCalls     int
	SaveConsumesCalls int
	SaveRefundsCalls  int
	SaveExpiresCalls  int
}

// NewMockCreditAccountRepository creates a new MockCreditAccountRepository
func NewMockCreditAccountRepository() *MockCreditAccountRepository {
	return &MockCreditAccountRepository{
		Accounts: make(map[uuid.UUID]*domain.CreditAccount),
	}
}

// LoadAccountByCompanyID retrieves an account by company ID, (nil, nil) when absent
func (m *MockCreditAccountRepository) LoadAccountByCompanyID(ctx context.Context, companyID uuid.UUID) (*domain.CreditAccount, error) {
	if m.LoadFn != nil {
		return m.LoadFn(ctx, companyID)
	}
	if account, ok := m.Accounts[companyID]; ok {
		return account, nil
	}
	return nil, nil
}

// CreateAccount stores a new account and assigns it an ID
func (m *MockCreditAccountRepository) CreateAccount(ctx context.Context, account *domain.CreditAccount) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, account)
	}
	if account.ID() == nil {
		account.SetID(uuid.New())
	}
	m.Accounts[account.CompanyID()] = account
	return nil
}

// persistPending assigns IDs to all pending credits and movements, simulating
// what the database adapter does after inserts
func (m *MockCreditAccountRepository) persistPending(account *domain.CreditAccount) {
	for _, credit := range account.Credits() {
		if credit.ID == nil {
			id := uuid.New()
			credit.ID = &id
		}
		for _, movement := range credit.PendingMovements() {
			id := uuid.New()
			movement.ID = &id
		}
	}
	m.Accounts[account.CompanyID()] = account
}

// SaveAdds persists pending ADD and RENEW movements
func (m *MockCreditAccountRepository) SaveAdds(ctx context.Context, account *domain.CreditAccount) error {
	m.SaveAddsCalls++
	if m.SaveAddsFn != nil {
		return m.SaveAddsFn(ctx, account)
	}
	m.persistPending(account)
	return nil
}

// SaveConsumes persists pending CONSUME movements
func (m *MockCreditAccountRepository) SaveConsumes(ctx context.Context, account *domain.CreditAccount) error {
	m.SaveConsumesCalls++
	if m.SaveConsumesFn != nil {
		return m.SaveConsumesFn(ctx, account)
	}
	m.persistPending(account)
	return nil
}

// SaveRefunds persists pending REFUND movements
func (m *MockCreditAccountRepository) SaveRefunds(ctx context.Context, account *domain.CreditAccount) error {
	m.SaveRefundsCalls++
	if m.SaveRefundsFn != nil {
		return m.SaveRefundsFn(ctx, account)
	}
	m.persistPending(account)
	return nil
}

// SaveExpires persists pending EXPIRE movements
func (m *MockCreditAccountRepository) SaveExpires(ctx context.Context, account *domain.CreditAccount) error {
	m.SaveExpiresCalls++
	if m.SaveExpiresFn != nil {
		return m.SaveExpiresFn(ctx, account)
	}
	m.persistPending(account)
	return nil
}

// ListCompanyIDs returns the company IDs of all stored accounts
func (m *MockCreditAccountRepository) ListCompanyIDs(ctx context.Context) ([]uuid.UUID, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx)
	}
	ids := make([]uuid.UUID, 0, len(m.Accounts))
	for id := range m.Accounts {
		ids = append(ids, id)
	}
	return ids, nil
}

// AddAccount adds an account to the mock repository (helper for tests)
func (m *MockCreditAccountRepository) AddAccount(account *domain.CreditAccount) {
	if account.ID() == nil {
		account.SetID(uuid.New())
	}
	m.Accounts[account.CompanyID()] = account
}

// MockCacheInvalidator is a mock implementation of domain.CacheInvalidator
type MockCacheInvalidator struct {
	mu           sync.Mutex
	Invalidated  []uuid.UUID
	Slugs        []string
	InvalidateFn func(ctx context.Context, companyID uuid.UUID, slug string) error
}

// NewMockCacheInvalidator creates a new MockCacheInvalidator
func NewMockCacheInvalidator() *MockCacheInvalidator {
	return &MockCacheInvalidator{}
}

// InvalidateCompany records the invalidation call
func (m *MockCacheInvalidator) InvalidateCompany(ctx context.Context, companyID uuid.UUID, slug string) error {
	if m.InvalidateFn != nil {
		return m.InvalidateFn(ctx, companyID, slug)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invalidated = append(m.Invalidated, companyID)
	m.Slugs = append(m.Slugs, slug)
	return nil
}

// Calls returns how many invalidations were recorded
func (m *MockCacheInvalidator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Invalidated)
}

// MockContractedServiceCatalog is a mock implementation of domain.ContractedServiceCatalog
type MockContractedServiceCatalog struct {
	Active     map[uuid.UUID]bool
	IsActiveFn func(ctx context.Context, contractedServiceID uuid.UUID) (bool, error)
}

// NewMockContractedServiceCatalog creates a new MockContractedServiceCatalog
func NewMockContractedServiceCatalog() *MockContractedServiceCatalog {
	return &MockContractedServiceCatalog{
		Active: make(map[uuid.UUID]bool),
	}
}

// IsContractActive reports whether the contract was marked active in the mock
func (m *MockContractedServiceCatalog) IsContractActive(ctx context.Context, contractedServiceID uuid.UUID) (bool, error) {
	if m.IsActiveFn != nil {
		return m.IsActiveFn(ctx, contractedServiceID)
	}
	return m.Active[contractedServiceID], nil
}

// SetActive marks a contract as active or inactive (helper for tests)
func (m *MockContractedServiceCatalog) SetActive(contractedServiceID uuid.UUID, active bool) {
	m.Active[contractedServiceID] = active
}

// MockEventPublisher is a mock implementation of websocket.EventPublisher
type MockEventPublisher struct {
	mu     sync.Mutex
	Events []PublishedEvent
}

// PublishedEvent captures a single Publish call
type PublishedEvent struct {
	CompanyID uuid.UUID
	Event     websocket.Event
}

// NewMockEventPublisher creates a new MockEventPublisher
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

// Publish records the event
func (m *MockEventPublisher) Publish(companyID uuid.UUID, event websocket.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, PublishedEvent{CompanyID: companyID, Event: event})
}

// Published returns a copy of the recorded events
func (m *MockEventPublisher) Published() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]PublishedEvent, len(m.Events))
	copy(copied, m.Events)
	return copied
}
