// Package domain models per-vendor payouts: one payout per (order, vendor)
// pair, carrying the commission split and a snapshot of the vendor's bank
// details taken at scheduling time.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendora/marketplace/internal/vendor"
)

type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "PENDING"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusCompleted  PayoutStatus = "COMPLETED"
	PayoutStatusFailed     PayoutStatus = "FAILED"
	PayoutStatusCancelled  PayoutStatus = "CANCELLED"
)

func (s PayoutStatus) String() string {
	return string(s)
}

const (
	// MaxRetries is how many transfer attempts a payout gets before it stays
	// failed and waits for manual intervention.
	MaxRetries = 5

	retryBaseDelay = 15 * time.Minute
	retryMaxDelay  = 4 * time.Hour
)

// NextRetryDelay doubles the base delay per prior attempt, capped so a payout
// never waits more than four hours between attempts.
func NextRetryDelay(retryCount int) time.Duration {
	delay := retryBaseDelay
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return delay
}

// VendorPayout is the settlement obligation toward one vendor for one order.
// Bank details are copied from the vendor directory when the payout is
// scheduled; later changes to the vendor's account do not move in-flight money.
type VendorPayout struct {
	ID            int64              `json:"id"`
	OrderID       uuid.UUID          `json:"order_id"`
	VendorID      int64              `json:"vendor_id"`
	GrossAmount   decimal.Decimal    `json:"gross_amount"`
	Commission    decimal.Decimal    `json:"commission"`
	NetAmount     decimal.Decimal    `json:"net_amount"`
	Currency      string             `json:"currency"`
	Status        PayoutStatus       `json:"status"`
	Bank          vendor.BankDetails `json:"bank"`
	TransferRef   string             `json:"transfer_ref,omitempty"`
	FailureReason string             `json:"failure_reason,omitempty"`
	RetryCount    int                `json:"retry_count"`
	ScheduledFor  time.Time          `json:"scheduled_for"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Retryable reports whether a failed attempt should be requeued.
func (p *VendorPayout) Retryable() bool {
	return p.RetryCount < MaxRetries
}
