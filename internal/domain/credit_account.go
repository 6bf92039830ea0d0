package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/crediario/credits-backend/internal/util"
)

// CreditAccount is the per-tenant aggregate: the exclusive owner of the
// tenant's credit batches and the only entry point for balance changes.
// Accounts are created lazily when the first add arrives for a company
// that has none.
type CreditAccount struct {
	id            *uuid.UUID // persistent id, assigned by the repository
	companyID     uuid.UUID
	referenceDate time.Time
	credits       []*CreditTransaction
	operations    []*Operation // pending operations of this session
	history       *OperationHistory
}

// NewCreditAccount creates an empty account for the company.
func NewCreditAccount(companyID uuid.UUID, referenceDate time.Time) *CreditAccount {
	return &CreditAccount{
		companyID:     companyID,
		referenceDate: util.Date(referenceDate),
		history:       NewOperationHistory(),
	}
}

// RestoreCreditAccount rebuilds a persisted account. The credits must come
// in creation order; the consume walk depends on it.
func RestoreCreditAccount(id, companyID uuid.UUID, referenceDate time.Time, credits []*CreditTransaction, history *OperationHistory) *CreditAccount {
	accountID := id
	if history == nil {
		history = NewOperationHistory()
	}
	return &CreditAccount{
		id:            &accountID,
		companyID:     companyID,
		referenceDate: util.Date(referenceDate),
		credits:       credits,
		history:       history,
	}
}

// ID returns the persistent account id, or nil before first persistence.
func (a *CreditAccount) ID() *uuid.UUID {
	return a.id
}

// SetID assigns the persistent id; called by the repository on creation.
func (a *CreditAccount) SetID(id uuid.UUID) {
	a.id = &id
}

// CompanyID returns the tenant this account belongs to.
func (a *CreditAccount) CompanyID() uuid.UUID {
	return a.companyID
}

// ReferenceDate returns the date all balance and expiration checks of this
// session are evaluated against.
func (a *CreditAccount) ReferenceDate() time.Time {
	return a.referenceDate
}

// SetReferenceDate moves the session's reference date.
func (a *CreditAccount) SetReferenceDate(t time.Time) {
	a.referenceDate = util.Date(t)
}

// Add issues a new credit batch of the given value. Every add creates its
// own batch; existing batches are never topped up.
func (a *CreditAccount) Add(value int, description, kind string, ownerID uuid.UUID, contractedServiceID *uuid.UUID) error {
	if value <= 0 {
		return ErrInvalidInput
	}
	op := NewOperation(MovementAdd, ownerID, description)
	credit := NewCreditTransaction(a.referenceDate, a.companyID, kind, contractedServiceID)
	credit.Add(value, op.Description, op)
	a.credits = append(a.credits, credit)
	a.register(op)
	return nil
}

// ConsumeInput carries the parameters of one consume operation.
type ConsumeInput struct {
	Value       int
	OwnerID     uuid.UUID
	Description string
	TargetType  string
	TargetID    string
	// ConsumedAt optionally overrides the date the consumption is
	// evaluated at; defaults to the session reference date.
	ConsumedAt *time.Time
}

// Consume takes credits from the account, draining batches newest-first.
// Because batches are appended by add/renew and all live one month, older
// batches expire first and are skipped, so the walk yields FIFO on the
// remaining capacity (see the test suite for the observable ordering).
// Fails with ErrInsufficientBalance before touching any batch when the
// demand is non-positive or exceeds what the eligible batches hold at the
// consumption date.
func (a *CreditAccount) Consume(input ConsumeInput) error {
	consumedAt := a.referenceDate
	if input.ConsumedAt != nil {
		consumedAt = util.Date(*input.ConsumedAt)
	}

	available := 0
	for _, credit := range a.credits {
		if a.consumable(credit, consumedAt) {
			available += credit.RemainingValue()
		}
	}
	if input.Value <= 0 || input.Value > available {
		return ErrInsufficientBalance
	}

	op := NewOperation(MovementConsume, input.OwnerID, input.Description)
	op.SetTarget(input.TargetType, input.TargetID)

	demand := input.Value
	for i := len(a.credits) - 1; i >= 0; i-- {
		credit := a.credits[i]
		if !a.consumable(credit, consumedAt) {
			continue
		}
		remainder, err := credit.Consume(demand, op, ConsumeOptions{
			ReferenceDate: consumedAt,
			Description:   op.Description,
			TargetType:    input.TargetType,
			TargetID:      input.TargetID,
		})
		if err != nil {
			return err
		}
		demand = remainder
		if demand <= 0 {
			break
		}
	}

	a.register(op)
	return nil
}

// consumable reports whether the batch can settle a consume booked at
// consumedAt: it must hold value and be live both at the session reference
// date and at the consumption date.
func (a *CreditAccount) consumable(credit *CreditTransaction, consumedAt time.Time) bool {
	return credit.RemainingValue() >= 1 &&
		!credit.IsExpired(a.referenceDate) &&
		!credit.IsExpired(consumedAt)
}

// Refund mirrors every consume of the given target across all batches. A
// large consume may have spanned several batches; each refunds at most once
// per target, so replaying the call is a no-op.
func (a *CreditAccount) Refund(ownerID uuid.UUID, targetType, targetID string) error {
	if targetType == "" && targetID == "" {
		return ErrInvalidInput
	}
	op := NewOperation(MovementRefund, ownerID, "")
	op.SetTarget(targetType, targetID)
	for _, credit := range a.credits {
		credit.Refund(targetType, targetID, op)
	}
	if len(op.Entries()) > 0 {
		a.register(op)
	}
	return nil
}

// Expire writes an EXPIRE movement on every batch past its expiration date,
// zeroing them out. Idempotent: batches already expired are skipped.
func (a *CreditAccount) Expire(ownerID uuid.UUID) {
	op := NewOperation(MovementExpire, ownerID, "")
	for _, credit := range a.credits {
		credit.Expire(a.referenceDate, op)
	}
	if len(op.Entries()) > 0 {
		a.register(op)
	}
}

// Renew produces a successor batch for every expired batch. Batches tied to
// a contracted service renew only when the eligibility predicate accepts the
// contract; batches without one always renew. A successor equal to an
// already-registered batch is not added again, which keeps the sweep
// idempotent within a session and across reloads.
func (a *CreditAccount) Renew(ownerID uuid.UUID, eligible func(contractedServiceID uuid.UUID) bool) {
	op := NewOperation(MovementRenew, ownerID, "")
	for _, credit := range a.credits {
		if !credit.IsExpired(a.referenceDate) {
			continue
		}
		if credit.ContractedServiceID != nil && eligible != nil && !eligible(*credit.ContractedServiceID) {
			continue
		}
		if a.hasSuccessor(credit) {
			continue
		}
		successor := credit.Renew(op)
		a.credits = append(a.credits, successor)
	}
	if len(op.Entries()) > 0 {
		a.register(op)
	}
}

// hasSuccessor reports whether a batch matching the would-be successor of
// credit is already registered, whether created in this session or loaded
// from storage.
func (a *CreditAccount) hasSuccessor(credit *CreditTransaction) bool {
	key := &CreditTransaction{
		CreationDate:        credit.ExpirationDate(),
		ContractedServiceID: credit.ContractedServiceID,
	}
	for _, existing := range a.credits {
		if existing.Equal(key) {
			return true
		}
	}
	return false
}

// register records a finished operation on the session and in the history
// projection, so reads in the same session already see it.
func (a *CreditAccount) register(op *Operation) {
	a.operations = append(a.operations, op)
	a.history.Register(op)
}

// Balance returns the remaining value of all non-expired batches at the
// session reference date.
func (a *CreditAccount) Balance() int {
	return a.BalanceAt(a.referenceDate)
}

// BalanceAt returns the remaining value of all batches not expired at the
// given date.
func (a *CreditAccount) BalanceAt(at time.Time) int {
	total := 0
	for _, credit := range a.credits {
		if credit.IsExpired(at) {
			continue
		}
		total += credit.RemainingValue()
	}
	return total
}

// CountExpired returns the remaining value stranded in expired batches.
func (a *CreditAccount) CountExpired() int {
	total := 0
	for _, credit := range a.credits {
		if !credit.IsExpired(a.referenceDate) {
			continue
		}
		total += credit.RemainingValue()
	}
	return total
}

// Credits returns the account's batches in creation order.
func (a *CreditAccount) Credits() []*CreditTransaction {
	out := make([]*CreditTransaction, len(a.credits))
	copy(out, a.credits)
	return out
}

// PendingCredits returns the batches created during this session that have
// not been persisted yet.
func (a *CreditAccount) PendingCredits() []*CreditTransaction {
	var pending []*CreditTransaction
	for _, credit := range a.credits {
		if credit.Persisted() {
			continue
		}
		pending = append(pending, credit)
	}
	return pending
}

// PendingOperations returns this session's operations, in call order,
// optionally filtered by kind. Persistence adapters flush movements through
// this view instead of reaching into aggregate state.
func (a *CreditAccount) PendingOperations(kinds ...MovementKind) []*Operation {
	if len(kinds) == 0 {
		out := make([]*Operation, len(a.operations))
		copy(out, a.operations)
		return out
	}
	var out []*Operation
	for _, op := range a.operations {
		for _, kind := range kinds {
			if op.Kind == kind {
				out = append(out, op)
				break
			}
		}
	}
	return out
}

// History returns the operation history: the window loaded with the account
// plus the operations performed in this session.
func (a *CreditAccount) History() *OperationHistory {
	return a.history
}

// CreditAccountRepository is the persistence port the use cases depend on.
// Loading hydrates the aggregate's live batches with their movements in
// creation order; the Save methods flush only this session's pending
// movements of the respective kinds, atomically with respect to other
// writers on the same account. Renewals create new batches, so SaveAdds
// covers both ADD and RENEW operations.
type CreditAccountRepository interface {
	// LoadAccountByCompanyID returns (nil, nil) when the company has no
	// account yet.
	LoadAccountByCompanyID(ctx context.Context, companyID uuid.UUID) (*CreditAccount, error)
	CreateAccount(ctx context.Context, account *CreditAccount) error
	SaveAdds(ctx context.Context, account *CreditAccount) error
	SaveConsumes(ctx context.Context, account *CreditAccount) error
	SaveRefunds(ctx context.Context, account *CreditAccount) error
	SaveExpires(ctx context.Context, account *CreditAccount) error
	ListCompanyIDs(ctx context.Context) ([]uuid.UUID, error)
}

// CacheInvalidator is the side-effect port called after each successful
// session to drop cached credit data for the tenant.
type CacheInvalidator interface {
	InvalidateCompany(ctx context.Context, companyID uuid.UUID, slug string) error
}

// ContractedServiceCatalog resolves whether a contracted service is still
// active; used only to decide renewal eligibility.
type ContractedServiceCatalog interface {
	IsContractActive(ctx context.Context, contractedServiceID uuid.UUID) (bool, error)
}
