package rediscache

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/crediario/credits-backend/internal/domain"
)

// Invalidator implements domain.CacheInvalidator on Redis. Cached credit
// views are keyed by tenant id or tenant slug, so after a successful session
// every key containing either is dropped.
type Invalidator struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewInvalidator creates a new Invalidator
func NewInvalidator(client *redis.Client, logger zerolog.Logger) *Invalidator {
	return &Invalidator{
		client: client,
		logger: logger.With().Str("component", "rediscache").Logger(),
	}
}

// InvalidateCompany deletes every cached key referencing the company id or
// its slug.
func (i *Invalidator) InvalidateCompany(ctx context.Context, companyID uuid.UUID, slug string) error {
	patterns := []string{fmt.Sprintf("*%s*", companyID)}
	if slug != "" {
		patterns = append(patterns, fmt.Sprintf("*%s*", slug))
	}

	deleted := 0
	for _, pattern := range patterns {
		n, err := i.deleteMatching(ctx, pattern)
		if err != nil {
			return fmt.Errorf("invalidate %s: %w", pattern, err)
		}
		deleted += n
	}

	i.logger.Debug().
		Str("company_id", companyID.String()).
		Int("deleted", deleted).
		Msg("Invalidated cached credit views")
	return nil
}

// deleteMatching scans for keys matching the pattern and deletes them in
// batches. SCAN is used instead of KEYS to avoid blocking the server.
func (i *Invalidator) deleteMatching(ctx context.Context, pattern string) (int, error) {
	deleted := 0
	iter := i.client.Scan(ctx, 0, pattern, 100).Iterator()

	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := i.client.Del(ctx, batch...).Err(); err != nil {
				return deleted, err
			}
			deleted += len(batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	if len(batch) > 0 {
		if err := i.client.Del(ctx, batch...).Err(); err != nil {
			return deleted, err
		}
		deleted += len(batch)
	}
	return deleted, nil
}

// NoopInvalidator satisfies the port when no Redis is configured.
type NoopInvalidator struct{}

// InvalidateCompany does nothing
func (NoopInvalidator) InvalidateCompany(ctx context.Context, companyID uuid.UUID, slug string) error {
	return nil
}

// Ensure both implementations satisfy the port
var (
	_ domain.CacheInvalidator = (*Invalidator)(nil)
	_ domain.CacheInvalidator = NoopInvalidator{}
)
