package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vendora/marketplace/internal/payout/domain"
)

var ErrPayoutNotFound = errors.New("payout not found")

// PayoutRepository defines the interface for payout data operations.
// Consumers define this interface, not the Postgres implementation.
type PayoutRepository interface {
	// CreatePayouts inserts the per-vendor payouts for one order. The unique
	// (order_id, vendor_id) pair makes re-scheduling a no-op, so duplicate
	// confirmation events never duplicate money.
	CreatePayouts(ctx context.Context, payouts []*domain.VendorPayout) error

	// DuePayouts lists pending payouts whose scheduled time has passed,
	// excluding payouts of cancelled orders.
	DuePayouts(ctx context.Context, now time.Time, limit int) ([]*domain.VendorPayout, error)

	// Claim is a compare-and-swap pending -> processing. Exactly one of any
	// concurrent claimers wins.
	Claim(ctx context.Context, id int64) (bool, error)

	// Complete finishes a processing payout with the provider's transfer
	// reference.
	Complete(ctx context.Context, id int64, transferRef string) error

	// RecordTransferRef stores the provider's reference on a processing payout
	// whose transfer was accepted but not yet settled; the settlement webhook
	// finds the row through it.
	RecordTransferRef(ctx context.Context, id int64, transferRef string) error

	// Requeue returns a processing payout to pending after a failed attempt,
	// bumping the retry count and pushing the schedule to retryAt.
	Requeue(ctx context.Context, id int64, reason string, retryAt time.Time) error

	// MarkFailed parks a processing payout in terminal failed state once its
	// retries are spent.
	MarkFailed(ctx context.Context, id int64, reason string) error

	// CancelPendingByOrder cancels every still-pending payout of an order and
	// reports how many rows it touched. In-flight and settled payouts are left
	// alone.
	CancelPendingByOrder(ctx context.Context, orderID uuid.UUID, reason string) (int64, error)

	GetByTransferRef(ctx context.Context, transferRef string) (*domain.VendorPayout, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.VendorPayout, error)
}
