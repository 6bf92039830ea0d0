package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/crediario/credits-backend/internal/domain"
)

// RenewalWorker is a background worker that periodically sweeps all tenants,
// expiring batches past their expiration date and renewing the ones tied to
// an active contracted service.
type RenewalWorker struct {
	creditService *CreditService
	logger        zerolog.Logger
	interval      time.Duration
	stopCh        chan struct{}
	doneCh        chan struct{}
	mu            sync.Mutex
	running       bool
}

// RenewalWorkerConfig holds configuration for the renewal worker
type RenewalWorkerConfig struct {
	Interval time.Duration // How often to run the sweep
}

// DefaultRenewalWorkerConfig returns sensible defaults
func DefaultRenewalWorkerConfig() RenewalWorkerConfig {
	return RenewalWorkerConfig{
		Interval: 24 * time.Hour, // Expiration dates move daily at most
	}
}

// NewRenewalWorker creates a new renewal worker
func NewRenewalWorker(creditService *CreditService, logger zerolog.Logger, config RenewalWorkerConfig) *RenewalWorker {
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}

	return &RenewalWorker{
		creditService: creditService,
		logger:        logger.With().Str("component", "renewal_worker").Logger(),
		interval:      config.Interval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start begins the background sweep
func (w *RenewalWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info().
		Dur("interval", w.interval).
		Msg("Starting renewal worker")

	go w.run(ctx)
}

// Stop gracefully stops the renewal worker
func (w *RenewalWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.logger.Info().Msg("Stopping renewal worker")
	close(w.stopCh)
	<-w.doneCh
	w.logger.Info().Msg("Renewal worker stopped")
}

// run is the main loop for the renewal worker
func (w *RenewalWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	// Run immediately on startup
	w.sweepAllCompanies(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-w.stopCh:
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-ticker.C:
			w.sweepAllCompanies(ctx)
		}
	}
}

// sweepAllCompanies expires and renews credits for every tenant
func (w *RenewalWorker) sweepAllCompanies(ctx context.Context) {
	w.logger.Debug().Msg("Starting credit sweep for all companies")
	startTime := time.Now()

	companyIDs, err := w.creditService.ListCompanyIDs(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to list companies for credit sweep")
		return
	}

	totalErrors := 0

	for _, companyID := range companyIDs {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Context cancelled, stopping sweep")
			return
		case <-w.stopCh:
			w.logger.Info().Msg("Stop signal received, stopping sweep")
			return
		default:
		}

		if err := w.SweepCompany(ctx, companyID); err != nil {
			w.logger.Error().
				Err(err).
				Str("company_id", companyID.String()).
				Msg("Failed to sweep company credits")
			totalErrors++
		}
	}

	elapsed := time.Since(startTime)
	w.logger.Info().
		Int("companies", len(companyIDs)).
		Int("total_errors", totalErrors).
		Dur("elapsed", elapsed).
		Msg("Completed credit sweep")
}

// SweepCompany expires and then renews a single tenant's credits. Both use
// cases are idempotent, so a failed sweep can simply be retried.
func (w *RenewalWorker) SweepCompany(ctx context.Context, companyID uuid.UUID) error {
	if _, err := w.creditService.ExpireCredits(ctx, companyID, "", domain.SystemOperationOwnerID); err != nil {
		return err
	}
	_, err := w.creditService.RenewCredits(ctx, companyID, "", domain.SystemOperationOwnerID)
	return err
}

// IsRunning returns whether the worker is currently running
func (w *RenewalWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
