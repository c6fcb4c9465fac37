package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus is the provider-reported state of one payment attempt.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusSucceeded TransactionStatus = "SUCCEEDED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// PaymentTransaction is one row of the append-only audit trail of provider
// interactions for an order. Rows are created when a transaction id is first
// seen and only their status and raw response change on later webhooks for the
// same id.
type PaymentTransaction struct {
	ID               int64             `json:"id"`
	OrderID          uuid.UUID         `json:"order_id"`
	Provider         string            `json:"provider"`
	TransactionID    string            `json:"transaction_id"`
	PaymentReference string            `json:"payment_reference"`
	Amount           decimal.Decimal   `json:"amount"`
	Currency         string            `json:"currency"`
	Status           TransactionStatus `json:"status"`
	RawResponse      []byte            `json:"raw_response,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}
