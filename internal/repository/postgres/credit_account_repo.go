package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crediario/credits-backend/internal/domain"
	"github.com/crediario/credits-backend/internal/util"
)

// historyWindow bounds how far back operations are hydrated into the
// account's history view.
const historyWindow = 90 * 24 * time.Hour

// CreditAccountRepository implements domain.CreditAccountRepository on
// PostgreSQL. Credits and their movements are append-only; the account row
// carries a denormalized balance and serves as the per-tenant write lock.
type CreditAccountRepository struct {
	pool *pgxpool.Pool
}

// NewCreditAccountRepository creates a new CreditAccountRepository
func NewCreditAccountRepository(pool *pgxpool.Pool) *CreditAccountRepository {
	return &CreditAccountRepository{pool: pool}
}

// LoadAccountByCompanyID hydrates the company's account with its live
// credits (expiration date today or later) and the recent operation history.
// Returns (nil, nil) when the company has no account.
func (r *CreditAccountRepository) LoadAccountByCompanyID(ctx context.Context, companyID uuid.UUID) (*domain.CreditAccount, error) {
	var accountID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT id
		FROM credit_accounts
		WHERE company_id = $1
	`, companyID).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query account: %w", err)
	}

	today := util.Today()

	credits, err := r.loadCredits(ctx, accountID, today)
	if err != nil {
		return nil, err
	}

	history, err := r.loadHistory(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return domain.RestoreCreditAccount(accountID, companyID, today, credits, history), nil
}

// loadCredits fetches the account's non-expired credit batches in creation
// order, each with its movements.
func (r *CreditAccountRepository) loadCredits(ctx context.Context, accountID uuid.UUID, today time.Time) ([]*domain.CreditTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, type, creation_date, contracted_service_id, contracted_service_creation_date
		FROM credits
		WHERE account_id = $1
		  AND expiration_date >= $2
		ORDER BY created_at ASC
	`, accountID, today)
	if err != nil {
		return nil, fmt.Errorf("query credits: %w", err)
	}
	defer rows.Close()

	type creditRow struct {
		id                            uuid.UUID
		kind                          string
		creationDate                  time.Time
		contractedServiceID           *uuid.UUID
		contractedServiceCreationDate time.Time
	}

	var creditRows []creditRow
	for rows.Next() {
		var row creditRow
		if err := rows.Scan(
			&row.id,
			&row.kind,
			&row.creationDate,
			&row.contractedServiceID,
			&row.contractedServiceCreationDate,
		); err != nil {
			return nil, fmt.Errorf("scan credit: %w", err)
		}
		creditRows = append(creditRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credits: %w", err)
	}

	var credits []*domain.CreditTransaction
	for _, row := range creditRows {
		movements, err := r.loadMovements(ctx, row.id)
		if err != nil {
			return nil, err
		}
		credits = append(credits, domain.RestoreCreditTransaction(
			row.id,
			accountID,
			row.kind,
			row.creationDate,
			row.contractedServiceCreationDate,
			row.contractedServiceID,
			movements,
		))
	}
	return credits, nil
}

// loadMovements fetches a credit's movements in append order, joining each
// movement with its operation for the kind, description and target.
func (r *CreditAccountRepository) loadMovements(ctx context.Context, creditID uuid.UUID) ([]*domain.Movement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT cl.id, cl.operation_log_id, cl.value,
		       ol.operation, ol.description, ol.object_type, ol.object_id
		FROM credit_logs cl
		JOIN operation_logs ol ON ol.id = cl.operation_log_id
		WHERE cl.credit_id = $1
		ORDER BY cl.created_at ASC
	`, creditID)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	var movements []*domain.Movement
	for rows.Next() {
		var (
			id          uuid.UUID
			operationID uuid.UUID
			delta       int
			kind        string
			description string
			objectType  *string
			objectID    *string
		)
		if err := rows.Scan(&id, &operationID, &delta, &kind, &description, &objectType, &objectID); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}

		amount := delta
		if amount < 0 {
			amount = -amount
		}
		movement := &domain.Movement{
			ID:          &id,
			OperationID: &operationID,
			Kind:        domain.MovementKind(kind),
			Amount:      amount,
			Delta:       delta,
			Description: description,
		}
		if objectType != nil {
			movement.TargetType = *objectType
		}
		if objectID != nil {
			movement.TargetID = *objectID
		}
		movements = append(movements, movement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movements: %w", err)
	}
	return movements, nil
}

// loadHistory fetches the account's operations inside the history window.
func (r *CreditAccountRepository) loadHistory(ctx context.Context, accountID uuid.UUID) (*domain.OperationHistory, error) {
	since := time.Now().UTC().Add(-historyWindow)

	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, operation, description, object_type, object_id, created_at
		FROM operation_logs
		WHERE account_id = $1
		  AND created_at >= $2
		ORDER BY created_at ASC
	`, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	history := domain.NewOperationHistory()
	for rows.Next() {
		var (
			id          uuid.UUID
			ownerID     uuid.UUID
			kind        string
			description string
			objectType  *string
			objectID    *string
			createdAt   time.Time
		)
		if err := rows.Scan(&id, &ownerID, &kind, &description, &objectType, &objectID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		targetType, targetID := "", ""
		if objectType != nil {
			targetType = *objectType
		}
		if objectID != nil {
			targetID = *objectID
		}
		history.Register(domain.RestoreOperation(id, domain.MovementKind(kind), ownerID, description, targetType, targetID, createdAt))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return history, nil
}

// CreateAccount inserts the account row and assigns its id.
func (r *CreditAccountRepository) CreateAccount(ctx context.Context, account *domain.CreditAccount) error {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO credit_accounts (company_id, balance)
		VALUES ($1, 0)
		RETURNING id
	`, account.CompanyID()).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	account.SetID(id)
	return nil
}

// SaveAdds flushes pending ADD and RENEW operations. Renewals create new
// batches just like adds, so both kinds land here.
func (r *CreditAccountRepository) SaveAdds(ctx context.Context, account *domain.CreditAccount) error {
	return r.save(ctx, account, domain.MovementAdd, domain.MovementRenew)
}

// SaveConsumes flushes pending CONSUME operations.
func (r *CreditAccountRepository) SaveConsumes(ctx context.Context, account *domain.CreditAccount) error {
	return r.save(ctx, account, domain.MovementConsume)
}

// SaveRefunds flushes pending REFUND operations.
func (r *CreditAccountRepository) SaveRefunds(ctx context.Context, account *domain.CreditAccount) error {
	return r.save(ctx, account, domain.MovementRefund)
}

// SaveExpires flushes pending EXPIRE operations.
func (r *CreditAccountRepository) SaveExpires(ctx context.Context, account *domain.CreditAccount) error {
	return r.save(ctx, account, domain.MovementExpire)
}

// save writes the session's pending operations of the given kinds in one
// transaction: the operation log, new credit rows, one credit log per
// movement, the touched credits' current values and the account balance.
// The account row is locked for the duration of the write.
func (r *CreditAccountRepository) save(ctx context.Context, account *domain.CreditAccount, kinds ...domain.MovementKind) error {
	if account.ID() == nil {
		return domain.ErrAccountNotFound
	}
	accountID := *account.ID()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id
		FROM credit_accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrAccountNotFound
		}
		return fmt.Errorf("lock account: %w", err)
	}

	touched := make(map[uuid.UUID]*domain.CreditTransaction)

	for _, op := range account.PendingOperations(kinds...) {
		flushed := false
		for _, entry := range op.Entries() {
			if entry.Movement.Persisted() {
				continue
			}

			if !flushed {
				if err := insertOperation(ctx, tx, accountID, op); err != nil {
					return err
				}
				flushed = true
			}

			credit := entry.Credit
			if !credit.Persisted() {
				if err := insertCredit(ctx, tx, accountID, credit, entry.Movement.Amount); err != nil {
					return err
				}
			}

			var movementID uuid.UUID
			err = tx.QueryRow(ctx, `
				INSERT INTO credit_logs (credit_id, operation_log_id, value)
				VALUES ($1, $2, $3)
				RETURNING id
			`, *credit.ID, op.ID, entry.Movement.Delta).Scan(&movementID)
			if err != nil {
				return fmt.Errorf("insert credit log: %w", err)
			}
			entry.Movement.ID = &movementID

			touched[*credit.ID] = credit
		}
	}

	for id, credit := range touched {
		_, err = tx.Exec(ctx, `
			UPDATE credits
			SET current_value = $1
			WHERE id = $2
		`, credit.RemainingValue(), id)
		if err != nil {
			return fmt.Errorf("update credit value: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE credit_accounts
		SET balance = $1, updated_at = now()
		WHERE id = $2
	`, account.Balance(), accountID)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// insertOperation writes the operation log row. The id is generated by the
// domain, so a retried flush of the same operation is a no-op.
func insertOperation(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, op *domain.Operation) error {
	var objectType, objectID *string
	if op.TargetType != "" {
		objectType = &op.TargetType
	}
	if op.TargetID != "" {
		objectID = &op.TargetID
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO operation_logs (id, account_id, owner_id, operation, description, credit_movement, object_type, object_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, op.ID, accountID, op.OwnerID, string(op.Kind), op.Description, op.Total(), objectType, objectID, op.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert operation log: %w", err)
	}
	return nil
}

// insertCredit writes a new batch row with its denormalized expiration date
// and assigns the generated id back onto the credit.
func insertCredit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, credit *domain.CreditTransaction, seedValue int) error {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `
		INSERT INTO credits (account_id, type, creation_date, expiration_date, contracted_service_id, contracted_service_creation_date, current_value, value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id
	`,
		accountID,
		credit.Kind,
		credit.CreationDate,
		credit.ExpirationDate(),
		credit.ContractedServiceID,
		credit.ContractedServiceCreationDate,
		seedValue,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert credit: %w", err)
	}
	credit.ID = &id
	return nil
}

// ListCompanyIDs returns every company with a credit account.
func (r *CreditAccountRepository) ListCompanyIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT company_id
		FROM credit_accounts
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query companies: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan company id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companies: %w", err)
	}
	return ids, nil
}
