// Package webhook consumes the transfer provider's asynchronous settlement
// events. A transfer the worker initiated may be confirmed or bounced later;
// events are matched back to payouts by transfer reference.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/vendora/marketplace/internal/payout/domain"
	"github.com/vendora/marketplace/internal/payout/repository"
	sharedwebhook "github.com/vendora/marketplace/internal/webhook"
	"github.com/vendora/marketplace/internal/webhooklog"
)

const (
	EventTransferSuccess = "transfer.success"
	EventTransferFailed  = "transfer.failed"
)

type providerEvent struct {
	EventID string `json:"id"`
	Type    string `json:"event"`
	Data    struct {
		Reference string `json:"reference"`
		Reason    string `json:"reason"`
	} `json:"data"`
}

type Engine struct {
	secret  []byte
	ledger  webhooklog.Log
	payouts repository.PayoutRepository
}

func NewEngine(secret []byte, ledger webhooklog.Log, payouts repository.PayoutRepository) *Engine {
	return &Engine{secret: secret, ledger: ledger, payouts: payouts}
}

// Handle processes one transfer settlement delivery with the same contract as
// the payment webhook: signature first, at-most-once via the ledger, and only
// a structurally unreadable payload is rejected.
func (e *Engine) Handle(ctx context.Context, payload []byte, signature string) error {
	if !sharedwebhook.VerifySignature(e.secret, payload, signature) {
		log.Printf("payout webhook signature mismatch, event discarded")
		return nil
	}

	var event providerEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: %v", sharedwebhook.ErrMalformedPayload, err)
	}

	externalID := event.EventID
	if externalID == "" {
		externalID = event.Data.Reference
	}
	if externalID == "" {
		return fmt.Errorf("%w: no event or transfer identifier", sharedwebhook.ErrMalformedPayload)
	}

	key := webhooklog.Key(externalID, event.Type)
	claimed, err := e.ledger.Claim(ctx, key, event.Type, payload)
	if err != nil {
		return fmt.Errorf("claim payout event: %w", err)
	}
	if !claimed {
		return nil
	}

	switch event.Type {
	case EventTransferSuccess:
		err = e.confirmTransfer(ctx, event.Data.Reference)
	case EventTransferFailed:
		err = e.bounceTransfer(ctx, event.Data.Reference, event.Data.Reason)
	default:
		log.Printf("ignoring unknown payout event type %q", event.Type)
	}
	if err != nil {
		return err
	}

	if err := e.ledger.MarkProcessed(ctx, key); err != nil {
		return fmt.Errorf("mark payout event processed: %w", err)
	}
	return nil
}

func (e *Engine) confirmTransfer(ctx context.Context, reference string) error {
	payout, err := e.payouts.GetByTransferRef(ctx, reference)
	if errors.Is(err, repository.ErrPayoutNotFound) {
		// transfer we never issued or a ref not yet recorded; keep the event
		// acknowledged, the money reconciliation report will surface it
		log.Printf("transfer confirmation for unknown reference %q", reference)
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup payout by reference %q: %w", reference, err)
	}

	if payout.Status != domain.PayoutStatusProcessing {
		log.Printf("transfer confirmation for payout %d in status %s, nothing to do", payout.ID, payout.Status)
		return nil
	}
	if err := e.payouts.Complete(ctx, payout.ID, reference); err != nil {
		return fmt.Errorf("complete payout %d: %w", payout.ID, err)
	}
	return nil
}

func (e *Engine) bounceTransfer(ctx context.Context, reference, reason string) error {
	payout, err := e.payouts.GetByTransferRef(ctx, reference)
	if errors.Is(err, repository.ErrPayoutNotFound) {
		log.Printf("transfer failure for unknown reference %q", reference)
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup payout by reference %q: %w", reference, err)
	}

	if payout.Status != domain.PayoutStatusProcessing {
		log.Printf("transfer failure for payout %d in status %s, nothing to do", payout.ID, payout.Status)
		return nil
	}
	if reason == "" {
		reason = "transfer bounced"
	}

	if !payout.Retryable() {
		if err := e.payouts.MarkFailed(ctx, payout.ID, reason); err != nil {
			return fmt.Errorf("park bounced payout %d: %w", payout.ID, err)
		}
		return nil
	}
	retryAt := time.Now().Add(domain.NextRetryDelay(payout.RetryCount))
	if err := e.payouts.Requeue(ctx, payout.ID, reason, retryAt); err != nil {
		return fmt.Errorf("requeue bounced payout %d: %w", payout.ID, err)
	}
	return nil
}
