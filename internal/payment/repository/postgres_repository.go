package repository

import (
	"context"
	"database/sql"
	"fmt"

	orderdomain "github.com/vendora/marketplace/internal/order/domain"
	"github.com/vendora/marketplace/internal/outbox"
	"github.com/vendora/marketplace/internal/payment/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ConfirmPayment(ctx context.Context, txn *domain.PaymentTransaction) (bool, error) {
	return r.apply(ctx, txn, orderdomain.PaymentStatusPaid, true)
}

func (r *Repository) FailPayment(ctx context.Context, txn *domain.PaymentTransaction) (bool, error) {
	return r.apply(ctx, txn, orderdomain.PaymentStatusFailed, false)
}

// apply performs the whole outcome as one database transaction: audit upsert,
// payment status swap, and (for a won confirmation) the outbox event that
// triggers payout scheduling.
func (r *Repository) apply(ctx context.Context, txn *domain.PaymentTransaction, to orderdomain.PaymentStatus, enqueuePayout bool) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin payment tx: %w", err)
	}
	defer tx.Rollback()

	upsert := `INSERT INTO payment_transactions (order_id, provider, transaction_id, payment_reference,
	                                             amount, currency, status, raw_response, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	           ON CONFLICT (transaction_id)
	           DO UPDATE SET status = EXCLUDED.status,
	                         raw_response = EXCLUDED.raw_response,
	                         updated_at = NOW()`
	_, err = tx.ExecContext(ctx, upsert,
		txn.OrderID, txn.Provider, txn.TransactionID, txn.PaymentReference,
		txn.Amount, txn.Currency, txn.Status, txn.RawResponse)
	if err != nil {
		return false, fmt.Errorf("upsert payment transaction: %w", err)
	}

	swap := `UPDATE orders SET payment_status = $2, updated_at = NOW()
	         WHERE id = $1 AND payment_status = $3`
	result, err := tx.ExecContext(ctx, swap, txn.OrderID, to, orderdomain.PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("swap payment status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swap payment status rows affected: %w", err)
	}
	won := affected == 1

	if won && enqueuePayout {
		payload := fmt.Sprintf(`{"order_id":%q}`, txn.OrderID.String())
		if err := outbox.InsertTx(ctx, tx, txn.OrderID.String(), outbox.EventPaymentConfirmed, []byte(payload)); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit payment tx: %w", err)
	}
	return won, nil
}

var _ PaymentRepository = (*Repository)(nil)
