package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crediario/credits-backend/internal/domain"
	"github.com/crediario/credits-backend/internal/util"
)

const historyWindow = 90 * 24 * time.Hour

// CreditAccountRepository is an in-memory implementation of
// domain.CreditAccountRepository for tests and local development. It stores
// flat rows like the database adapter does and rebuilds the aggregate on
// every load, so the hydration path behaves the same.
type CreditAccountRepository struct {
	mu sync.Mutex

	// Now is injectable for tests; load-time expiration filtering and the
	// history window are evaluated against it.
	Now func() time.Time

	accounts   []*accountRow
	credits    []*creditRow
	operations []*operationRow
	movements  []*movementRow
}

type accountRow struct {
	id        uuid.UUID
	companyID uuid.UUID
	balance   int
	createdAt time.Time
}

type creditRow struct {
	id                            uuid.UUID
	accountID                     uuid.UUID
	kind                          string
	creationDate                  time.Time
	expirationDate                time.Time
	contractedServiceID           *uuid.UUID
	contractedServiceCreationDate time.Time
	currentValue                  int
	value                         int
}

type operationRow struct {
	id          uuid.UUID
	accountID   uuid.UUID
	ownerID     uuid.UUID
	kind        domain.MovementKind
	description string
	targetType  string
	targetID    string
	createdAt   time.Time
}

type movementRow struct {
	id          uuid.UUID
	creditID    uuid.UUID
	operationID uuid.UUID
	delta       int
}

// NewCreditAccountRepository creates an empty in-memory repository
func NewCreditAccountRepository() *CreditAccountRepository {
	return &CreditAccountRepository{Now: time.Now}
}

// LoadAccountByCompanyID rebuilds the company's account from stored rows.
// Returns (nil, nil) when the company has no account.
func (r *CreditAccountRepository) LoadAccountByCompanyID(ctx context.Context, companyID uuid.UUID) (*domain.CreditAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account := r.findAccountByCompany(companyID)
	if account == nil {
		return nil, nil
	}

	today := util.Date(r.Now())

	var credits []*domain.CreditTransaction
	for _, row := range r.credits {
		if row.accountID != account.id {
			continue
		}
		if row.expirationDate.Before(today) {
			continue
		}
		credits = append(credits, domain.RestoreCreditTransaction(
			row.id,
			row.accountID,
			row.kind,
			row.creationDate,
			row.contractedServiceCreationDate,
			row.contractedServiceID,
			r.movementsOf(row.id),
		))
	}

	history := domain.NewOperationHistory()
	since := r.Now().Add(-historyWindow)
	for _, op := range r.operations {
		if op.accountID != account.id || op.createdAt.Before(since) {
			continue
		}
		history.Register(domain.RestoreOperation(op.id, op.kind, op.ownerID, op.description, op.targetType, op.targetID, op.createdAt))
	}

	return domain.RestoreCreditAccount(account.id, companyID, today, credits, history), nil
}

// movementsOf rebuilds a credit's movements in insertion order.
func (r *CreditAccountRepository) movementsOf(creditID uuid.UUID) []*domain.Movement {
	var movements []*domain.Movement
	for _, row := range r.movements {
		if row.creditID != creditID {
			continue
		}
		op := r.findOperation(row.operationID)
		amount := row.delta
		if amount < 0 {
			amount = -amount
		}
		movement := &domain.Movement{
			ID:          ptr(row.id),
			OperationID: ptr(row.operationID),
			Amount:      amount,
			Delta:       row.delta,
		}
		if op != nil {
			movement.Kind = op.kind
			movement.Description = op.description
			movement.TargetType = op.targetType
			movement.TargetID = op.targetID
		}
		movements = append(movements, movement)
	}
	return movements
}

// CreateAccount stores the account row and assigns its id.
func (r *CreditAccountRepository) CreateAccount(ctx context.Context, account *domain.CreditAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := &accountRow{
		id:        uuid.New(),
		companyID: account.CompanyID(),
		createdAt: r.Now(),
	}
	r.accounts = append(r.accounts, row)
	account.SetID(row.id)
	return nil
}

// SaveAdds flushes pending ADD and RENEW operations
func (r *CreditAccountRepository) SaveAdds(ctx context.Context, account *domain.CreditAccount) error {
	return r.save(account, domain.MovementAdd, domain.MovementRenew)
}

// SaveConsumes flushes pending CONSUME operations
func (r *CreditAccountRepository) SaveConsumes(ctx context.Context, account *domain.CreditAccount) error {
	return r.save(account, domain.MovementConsume)
}

// SaveRefunds flushes pending REFUND operations
func (r *CreditAccountRepository) SaveRefunds(ctx context.Context, account *domain.CreditAccount) error {
	return r.save(account, domain.MovementRefund)
}

// SaveExpires flushes pending EXPIRE operations
func (r *CreditAccountRepository) SaveExpires(ctx context.Context, account *domain.CreditAccount) error {
	return r.save(account, domain.MovementExpire)
}

func (r *CreditAccountRepository) save(account *domain.CreditAccount, kinds ...domain.MovementKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if account.ID() == nil {
		return domain.ErrAccountNotFound
	}
	accountRow := r.findAccount(*account.ID())
	if accountRow == nil {
		return domain.ErrAccountNotFound
	}

	touched := make(map[uuid.UUID]*domain.CreditTransaction)

	for _, op := range account.PendingOperations(kinds...) {
		flushed := false
		for _, entry := range op.Entries() {
			if entry.Movement.Persisted() {
				continue
			}

			if !flushed {
				r.operations = append(r.operations, &operationRow{
					id:          op.ID,
					accountID:   accountRow.id,
					ownerID:     op.OwnerID,
					kind:        op.Kind,
					description: op.Description,
					targetType:  op.TargetType,
					targetID:    op.TargetID,
					createdAt:   op.CreatedAt,
				})
				flushed = true
			}

			credit := entry.Credit
			if !credit.Persisted() {
				row := &creditRow{
					id:                            uuid.New(),
					accountID:                     accountRow.id,
					kind:                          credit.Kind,
					creationDate:                  credit.CreationDate,
					expirationDate:                credit.ExpirationDate(),
					contractedServiceID:           credit.ContractedServiceID,
					contractedServiceCreationDate: credit.ContractedServiceCreationDate,
					value:                         entry.Movement.Amount,
				}
				r.credits = append(r.credits, row)
				credit.ID = ptr(row.id)
			}

			movement := &movementRow{
				id:          uuid.New(),
				creditID:    *credit.ID,
				operationID: op.ID,
				delta:       entry.Movement.Delta,
			}
			r.movements = append(r.movements, movement)
			entry.Movement.ID = ptr(movement.id)

			touched[*credit.ID] = credit
		}
	}

	for id, credit := range touched {
		if row := r.findCredit(id); row != nil {
			row.currentValue = credit.RemainingValue()
		}
	}
	accountRow.balance = account.Balance()
	return nil
}

// ListCompanyIDs returns every company with an account, in creation order.
func (r *CreditAccountRepository) ListCompanyIDs(ctx context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(r.accounts))
	for _, row := range r.accounts {
		ids = append(ids, row.companyID)
	}
	return ids, nil
}

// Balance returns the stored balance cache for a company (helper for tests).
func (r *CreditAccountRepository) Balance(companyID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if account := r.findAccountByCompany(companyID); account != nil {
		return account.balance
	}
	return 0
}

func (r *CreditAccountRepository) findAccount(id uuid.UUID) *accountRow {
	for _, row := range r.accounts {
		if row.id == id {
			return row
		}
	}
	return nil
}

func (r *CreditAccountRepository) findAccountByCompany(companyID uuid.UUID) *accountRow {
	for _, row := range r.accounts {
		if row.companyID == companyID {
			return row
		}
	}
	return nil
}

func (r *CreditAccountRepository) findCredit(id uuid.UUID) *creditRow {
	for _, row := range r.credits {
		if row.id == id {
			return row
		}
	}
	return nil
}

func (r *CreditAccountRepository) findOperation(id uuid.UUID) *operationRow {
	for _, row := range r.operations {
		if row.id == id {
			return row
		}
	}
	return nil
}

func ptr(id uuid.UUID) *uuid.UUID {
	return &id
}
