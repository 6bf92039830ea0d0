package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ContractedServiceCatalog implements domain.ContractedServiceCatalog on the
// contracted_services table. An unknown contract counts as inactive.
type ContractedServiceCatalog struct {
	pool *pgxpool.Pool
}

// NewContractedServiceCatalog creates a new ContractedServiceCatalog
func NewContractedServiceCatalog(pool *pgxpool.Pool) *ContractedServiceCatalog {
	return &ContractedServiceCatalog{pool: pool}
}

// IsContractActive reports whether the contracted service exists and its
// status is ACTIVE.
func (c *ContractedServiceCatalog) IsContractActive(ctx context.Context, contractedServiceID uuid.UUID) (bool, error) {
	var status string
	err := c.pool.QueryRow(ctx, `
		SELECT status
		FROM contracted_services
		WHERE id = $1
	`, contractedServiceID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query contracted service: %w", err)
	}
	return status == "ACTIVE", nil
}
