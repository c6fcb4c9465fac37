package repository

import (
	"context"

	"github.com/vendora/marketplace/internal/payment/domain"
)

// PaymentRepository applies the outcome of one provider payment event. Both
// operations upsert the transaction audit row by transaction id; the order's
// payment status moves through a compare-and-swap, so a duplicate or late
// event can never flip it twice.
type PaymentRepository interface {
	// ConfirmPayment records a successful charge: upsert the transaction, swap
	// the order's payment status pending -> paid and, when the swap is won,
	// enqueue payout scheduling in the same database transaction. Returns
	// whether this call performed the transition.
	ConfirmPayment(ctx context.Context, txn *domain.PaymentTransaction) (bool, error)

	// FailPayment records a failed charge and swaps pending -> failed. No
	// payout action. Returns whether this call performed the transition.
	FailPayment(ctx context.Context, txn *domain.PaymentTransaction) (bool, error)
}
