package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/crediario/credits-backend/internal/domain"
	"github.com/crediario/credits-backend/internal/util"
	"github.com/crediario/credits-backend/internal/websocket"
)

// CreditService implements the credit use cases: every call loads the
// tenant's account, mutates it through the aggregate, flushes the session's
// movements and fires the side effects (cache invalidation, websocket event).
type CreditService struct {
	repo      domain.CreditAccountRepository
	catalog   domain.ContractedServiceCatalog
	cache     domain.CacheInvalidator
	publisher websocket.EventPublisher
	logger    zerolog.Logger

	// now is injectable for tests
	now func() time.Time
}

// NewCreditService creates a new CreditService. cache and publisher may be
// nil, in which case the respective side effect is skipped.
func NewCreditService(
	repo domain.CreditAccountRepository,
	catalog domain.ContractedServiceCatalog,
	cache domain.CacheInvalidator,
	publisher websocket.EventPublisher,
	logger zerolog.Logger,
) *CreditService {
	return &CreditService{
		repo:      repo,
		catalog:   catalog,
		cache:     cache,
		publisher: publisher,
		logger:    logger.With().Str("component", "credit_service").Logger(),
		now:       time.Now,
	}
}

// OperationResult is the outcome of a mutating use case.
type OperationResult struct {
	AccountID uuid.UUID
	Balance   int
}

// AddCreditsInput holds the input for adding credits
type AddCreditsInput struct {
	CompanyID           uuid.UUID
	CompanySlug         string
	Amount              int
	OwnerID             uuid.UUID
	Kind                string
	Description         string
	ContractedServiceID *uuid.UUID
}

// AddCredits issues a new credit batch for the company, creating the account
// on first use.
func (s *CreditService) AddCredits(ctx context.Context, input AddCreditsInput) (*OperationResult, error) {
	account, err := s.loadAccount(ctx, input.CompanyID)
	if err != nil {
		if !errors.Is(err, domain.ErrAccountNotFound) {
			return nil, err
		}
		account = domain.NewCreditAccount(input.CompanyID, s.today())
		if err := s.repo.CreateAccount(ctx, account); err != nil {
			return nil, fmt.Errorf("create account: %w", err)
		}
	}

	if err := account.Add(input.Amount, input.Description, input.Kind, ownerOrSystem(input.OwnerID), input.ContractedServiceID); err != nil {
		return nil, err
	}

	if err := s.repo.SaveAdds(ctx, account); err != nil {
		return nil, fmt.Errorf("save adds: %w", err)
	}

	result := s.result(account)
	s.afterSession(ctx, input.CompanyID, input.CompanySlug, websocket.CreditsAdded(s.eventPayload(result, input.CompanyID)))
	return result, nil
}

// ConsumeCreditsInput holds the input for consuming credits
type ConsumeCreditsInput struct {
	CompanyID   uuid.UUID
	CompanySlug string
	Amount      int
	OwnerID     uuid.UUID
	Description string
	TargetType  string
	TargetID    string
	ConsumedAt  *time.Time
}

// ConsumeCredits takes credits from the company's account.
func (s *CreditService) ConsumeCredits(ctx context.Context, input ConsumeCreditsInput) (*OperationResult, error) {
	account, err := s.loadAccount(ctx, input.CompanyID)
	if err != nil {
		return nil, err
	}

	err = account.Consume(domain.ConsumeInput{
		Value:       input.Amount,
		OwnerID:     ownerOrSystem(input.OwnerID),
		Description: input.Description,
		TargetType:  input.TargetType,
		TargetID:    input.TargetID,
		ConsumedAt:  input.ConsumedAt,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.SaveConsumes(ctx, account); err != nil {
		return nil, fmt.Errorf("save consumes: %w", err)
	}

	result := s.result(account)
	s.afterSession(ctx, input.CompanyID, input.CompanySlug, websocket.CreditsConsumed(s.eventPayload(result, input.CompanyID)))
	return result, nil
}

// RefundCreditsInput holds the input for refunding credits
type RefundCreditsInput struct {
	CompanyID   uuid.UUID
	CompanySlug string
	OwnerID     uuid.UUID
	TargetType  string
	TargetID    string
}

// RefundCredits returns every consume booked against the target. Replaying
// the call for an already refunded target changes nothing.
func (s *CreditService) RefundCredits(ctx context.Context, input RefundCreditsInput) (*OperationResult, error) {
	account, err := s.loadAccount(ctx, input.CompanyID)
	if err != nil {
		return nil, err
	}

	if err := account.Refund(ownerOrSystem(input.OwnerID), input.TargetType, input.TargetID); err != nil {
		return nil, err
	}

	if err := s.repo.SaveRefunds(ctx, account); err != nil {
		return nil, fmt.Errorf("save refunds: %w", err)
	}

	result := s.result(account)
	s.afterSession(ctx, input.CompanyID, input.CompanySlug, websocket.CreditsRefunded(s.eventPayload(result, input.CompanyID)))
	return result, nil
}

// ExpireCredits writes EXPIRE movements on every batch past its expiration
// date. Idempotent.
func (s *CreditService) ExpireCredits(ctx context.Context, companyID uuid.UUID, companySlug string, ownerID uuid.UUID) (*OperationResult, error) {
	account, err := s.loadAccount(ctx, companyID)
	if err != nil {
		return nil, err
	}

	account.Expire(ownerOrSystem(ownerID))

	if err := s.repo.SaveExpires(ctx, account); err != nil {
		return nil, fmt.Errorf("save expires: %w", err)
	}

	result := s.result(account)
	s.afterSession(ctx, companyID, companySlug, websocket.CreditsExpired(s.eventPayload(result, companyID)))
	return result, nil
}

// RenewCredits creates successor batches for expired batches whose contracted
// service is still active.
func (s *CreditService) RenewCredits(ctx context.Context, companyID uuid.UUID, companySlug string, ownerID uuid.UUID) (*OperationResult, error) {
	account, err := s.loadAccount(ctx, companyID)
	if err != nil {
		return nil, err
	}

	account.Renew(ownerOrSystem(ownerID), s.contractEligible(ctx))

	if err := s.repo.SaveAdds(ctx, account); err != nil {
		return nil, fmt.Errorf("save renewals: %w", err)
	}

	result := s.result(account)
	s.afterSession(ctx, companyID, companySlug, websocket.CreditsRenewed(s.eventPayload(result, companyID)))
	return result, nil
}

// BalanceResult holds a company's current balance snapshot.
type BalanceResult struct {
	AccountID uuid.UUID
	CompanyID uuid.UUID
	Balance   int
	Expired   int
}

// GetBalance returns the company's balance at today's date.
func (s *CreditService) GetBalance(ctx context.Context, companyID uuid.UUID) (*BalanceResult, error) {
	account, err := s.loadAccount(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return &BalanceResult{
		AccountID: *account.ID(),
		CompanyID: companyID,
		Balance:   account.Balance(),
		Expired:   account.CountExpired(),
	}, nil
}

// GetHistory returns the company's recent operations, optionally filtered by
// movement kind ("add", "consume", ...). An unknown kind is rejected.
func (s *CreditService) GetHistory(ctx context.Context, companyID uuid.UUID, kind string) ([]*domain.Operation, error) {
	account, err := s.loadAccount(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		return account.History().All(), nil
	}
	movementKind := domain.MovementKind(strings.ToUpper(kind))
	if !movementKind.Valid() {
		return nil, domain.ErrInvalidInput
	}
	return account.History().Operations(movementKind), nil
}

// ListCompanyIDs returns every company that has a credit account. Used by
// the renewal worker to sweep all tenants.
func (s *CreditService) ListCompanyIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.repo.ListCompanyIDs(ctx)
}

// loadAccount fetches the account or fails with ErrAccountNotFound.
func (s *CreditService) loadAccount(ctx context.Context, companyID uuid.UUID) (*domain.CreditAccount, error) {
	account, err := s.repo.LoadAccountByCompanyID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}
	account.SetReferenceDate(s.today())
	return account, nil
}

// contractEligible adapts the catalog port to the aggregate's eligibility
// predicate. Lookup failures count as ineligible so a flaky catalog cannot
// renew a cancelled contract.
func (s *CreditService) contractEligible(ctx context.Context) func(uuid.UUID) bool {
	return func(contractedServiceID uuid.UUID) bool {
		if s.catalog == nil {
			return true
		}
		active, err := s.catalog.IsContractActive(ctx, contractedServiceID)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("contracted_service_id", contractedServiceID.String()).
				Msg("Contract lookup failed, skipping renewal")
			return false
		}
		return active
	}
}

func (s *CreditService) result(account *domain.CreditAccount) *OperationResult {
	return &OperationResult{
		AccountID: *account.ID(),
		Balance:   account.Balance(),
	}
}

func (s *CreditService) eventPayload(result *OperationResult, companyID uuid.UUID) map[string]interface{} {
	return map[string]interface{}{
		"accountId": result.AccountID.String(),
		"companyId": companyID.String(),
		"balance":   result.Balance,
	}
}

// afterSession runs the post-persistence side effects. Neither failure rolls
// back the session, the write is already committed.
func (s *CreditService) afterSession(ctx context.Context, companyID uuid.UUID, slug string, event websocket.Event) {
	if s.cache != nil {
		if err := s.cache.InvalidateCompany(ctx, companyID, slug); err != nil {
			s.logger.Warn().
				Err(err).
				Str("company_id", companyID.String()).
				Msg("Cache invalidation failed")
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(companyID, event)
	}
}

func (s *CreditService) today() time.Time {
	return util.Date(s.now())
}

// ownerOrSystem falls back to the platform owner when the caller passed none.
func ownerOrSystem(ownerID uuid.UUID) uuid.UUID {
	if ownerID == uuid.Nil {
		return domain.SystemOperationOwnerID
	}
	return ownerID
}
