// Package webhook consumes payment provider events and reconciles them onto
// orders. Events arrive asynchronously, out of order and possibly more than
// once; the idempotency ledger guarantees each is applied at most once.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendora/marketplace/internal/payment/domain"
	"github.com/vendora/marketplace/internal/payment/repository"
	sharedwebhook "github.com/vendora/marketplace/internal/webhook"
	"github.com/vendora/marketplace/internal/webhooklog"
)

const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// providerEvent is the provider's wire shape: a stable event id, an event
// type, and the transaction/order identifiers the reconciliation keys on.
type providerEvent struct {
	EventID string `json:"id"`
	Type    string `json:"event"`
	Data    struct {
		OrderID       string          `json:"order_id"`
		TransactionID string          `json:"transaction_id"`
		Reference     string          `json:"reference"`
		Amount        decimal.Decimal `json:"amount"`
		Currency      string          `json:"currency"`
		Status        string          `json:"status"`
	} `json:"data"`
}

type Engine struct {
	secret   []byte
	provider string
	ledger   webhooklog.Log
	payments repository.PaymentRepository
}

func NewEngine(secret []byte, provider string, ledger webhooklog.Log, payments repository.PaymentRepository) *Engine {
	return &Engine{
		secret:   secret,
		provider: provider,
		ledger:   ledger,
		payments: payments,
	}
}

// Handle processes one delivery. A nil return means the caller should
// acknowledge the provider; ErrMalformedPayload is the only reject. Transient
// internal failures return an error so the provider's own retry can finish
// the work later (the claim becomes reclaimable).
func (e *Engine) Handle(ctx context.Context, payload []byte, signature string) error {
	// signature verification precedes any state mutation
	if !sharedwebhook.VerifySignature(e.secret, payload, signature) {
		log.Printf("payment webhook signature mismatch, event discarded")
		return nil
	}

	var event providerEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: %v", sharedwebhook.ErrMalformedPayload, err)
	}

	externalID := event.EventID
	if externalID == "" {
		externalID = event.Data.TransactionID
	}
	if externalID == "" {
		return fmt.Errorf("%w: no event or transaction identifier", sharedwebhook.ErrMalformedPayload)
	}

	key := webhooklog.Key(externalID, event.Type)
	claimed, err := e.ledger.Claim(ctx, key, event.Type, payload)
	if err != nil {
		return fmt.Errorf("claim payment event: %w", err)
	}
	if !claimed {
		// duplicate delivery or another consumer is on it
		return nil
	}

	switch event.Type {
	case EventChargeSuccess:
		if err := e.applyOutcome(ctx, &event, payload, domain.TransactionStatusSucceeded); err != nil {
			return err
		}
	case EventChargeFailed:
		if err := e.applyOutcome(ctx, &event, payload, domain.TransactionStatusFailed); err != nil {
			return err
		}
	default:
		log.Printf("ignoring unknown payment event type %q", event.Type)
	}

	if err := e.ledger.MarkProcessed(ctx, key); err != nil {
		return fmt.Errorf("mark payment event processed: %w", err)
	}
	return nil
}

func (e *Engine) applyOutcome(ctx context.Context, event *providerEvent, payload []byte, status domain.TransactionStatus) error {
	orderID, err := uuid.Parse(event.Data.OrderID)
	if err != nil {
		return fmt.Errorf("%w: invalid order_id %q", sharedwebhook.ErrMalformedPayload, event.Data.OrderID)
	}

	txn := &domain.PaymentTransaction{
		OrderID:          orderID,
		Provider:         e.provider,
		TransactionID:    event.Data.TransactionID,
		PaymentReference: event.Data.Reference,
		Amount:           event.Data.Amount,
		Currency:         event.Data.Currency,
		Status:           status,
		RawResponse:      payload,
	}

	var won bool
	if status == domain.TransactionStatusSucceeded {
		won, err = e.payments.ConfirmPayment(ctx, txn)
	} else {
		won, err = e.payments.FailPayment(ctx, txn)
	}
	if err != nil {
		return fmt.Errorf("apply payment outcome: %w", err)
	}
	if !won {
		log.Printf("payment status for order %s already settled, event recorded only", orderID)
	}
	return nil
}
