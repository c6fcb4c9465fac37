// Package worker executes due payouts against the transfer provider. Claiming
// is a compare-and-swap on the payout row, so several worker instances can run
// against the same database without double-paying a vendor.
package worker

import (
	"context"
	"log"
	"time"

	"github.com/vendora/marketplace/internal/payout/domain"
	"github.com/vendora/marketplace/internal/payout/provider"
	"github.com/vendora/marketplace/internal/payout/repository"
)

type Config struct {
	Tick            time.Duration
	BatchSize       int
	TransferTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Tick:            time.Minute,
		BatchSize:       50,
		TransferTimeout: 30 * time.Second,
	}
}

type Worker struct {
	cfg      Config
	payouts  repository.PayoutRepository
	provider provider.Transferer
}

func NewWorker(cfg Config, payouts repository.PayoutRepository, transferer provider.Transferer) *Worker {
	return &Worker{cfg: cfg, payouts: payouts, provider: transferer}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.ProcessDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessDue runs one settlement pass: list due payouts, claim each, and call
// the provider. A payout another instance already claimed is skipped silently.
func (w *Worker) ProcessDue(ctx context.Context) {
	due, err := w.payouts.DuePayouts(ctx, time.Now(), w.cfg.BatchSize)
	if err != nil {
		log.Printf("failed to list due payouts: %v", err)
		return
	}

	for _, p := range due {
		if ctx.Err() != nil {
			return
		}
		claimed, err := w.payouts.Claim(ctx, p.ID)
		if err != nil {
			log.Printf("failed to claim payout %d: %v", p.ID, err)
			continue
		}
		if !claimed {
			continue
		}
		w.settle(ctx, p)
	}
}

func (w *Worker) settle(ctx context.Context, p *domain.VendorPayout) {
	callCtx, cancel := context.WithTimeout(ctx, w.cfg.TransferTimeout)
	defer cancel()

	result, err := w.provider.Transfer(callCtx, p)
	if err != nil {
		w.handleFailure(ctx, p, err)
		return
	}

	if result.Status != "completed" && result.Status != "success" {
		// transfer accepted but not settled; record the reference and let the
		// provider's settlement webhook finish the row
		if err := w.payouts.RecordTransferRef(ctx, p.ID, result.Reference); err != nil {
			log.Printf("failed to record transfer ref %s on payout %d: %v", result.Reference, p.ID, err)
		}
		return
	}

	if err := w.payouts.Complete(ctx, p.ID, result.Reference); err != nil {
		log.Printf("payout %d transferred (ref %s) but completion failed: %v", p.ID, result.Reference, err)
		return
	}
	log.Printf("payout %d settled, transfer ref %s", p.ID, result.Reference)
}

func (w *Worker) handleFailure(ctx context.Context, p *domain.VendorPayout, cause error) {
	if !p.Retryable() {
		log.Printf("payout %d failed permanently after %d retries: %v", p.ID, p.RetryCount, cause)
		if err := w.payouts.MarkFailed(ctx, p.ID, cause.Error()); err != nil {
			log.Printf("failed to park payout %d: %v", p.ID, err)
		}
		return
	}

	retryAt := time.Now().Add(domain.NextRetryDelay(p.RetryCount))
	log.Printf("payout %d attempt %d failed, retrying at %s: %v", p.ID, p.RetryCount+1, retryAt.Format(time.RFC3339), cause)
	if err := w.payouts.Requeue(ctx, p.ID, cause.Error(), retryAt); err != nil {
		log.Printf("failed to requeue payout %d: %v", p.ID, err)
	}
}
