package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vendora/marketplace/internal/payout/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const payoutColumns = `id, order_id, vendor_id, gross_amount, commission, net_amount, currency,
	status, bank_account_number, bank_account_holder, bank_name, transfer_ref,
	failure_reason, retry_count, scheduled_for, completed_at, created_at, updated_at`

func (r *PostgresRepository) CreatePayouts(ctx context.Context, payouts []*domain.VendorPayout) error {
	if len(payouts) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin payout tx: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO vendor_payouts (order_id, vendor_id, gross_amount, commission, net_amount,
	                                      currency, status, bank_account_number, bank_account_holder,
	                                      bank_name, retry_count, scheduled_for, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, NOW(), NOW())
	          ON CONFLICT (order_id, vendor_id) DO NOTHING`

	for _, p := range payouts {
		_, err := tx.ExecContext(ctx, query,
			p.OrderID, p.VendorID, p.GrossAmount, p.Commission, p.NetAmount,
			p.Currency, domain.PayoutStatusPending,
			p.Bank.AccountNumber, p.Bank.AccountHolder, p.Bank.BankName,
			p.ScheduledFor)
		if err != nil {
			return fmt.Errorf("insert payout for vendor %d: %w", p.VendorID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit payout tx: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DuePayouts(ctx context.Context, now time.Time, limit int) ([]*domain.VendorPayout, error) {
	query := `SELECT ` + payoutColumns + ` FROM vendor_payouts p
	          WHERE p.status = $1 AND p.scheduled_for <= $2
	            AND NOT EXISTS (SELECT 1 FROM orders o
	                            WHERE o.id = p.order_id AND o.order_status = 'CANCELLED')
	          ORDER BY p.scheduled_for
	          LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, domain.PayoutStatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*domain.VendorPayout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("due payouts iteration: %w", err)
	}
	return payouts, nil
}

func (r *PostgresRepository) Claim(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE vendor_payouts SET status = $2, updated_at = NOW()
	          WHERE id = $1 AND status = $3`

	result, err := r.db.ExecContext(ctx, query, id, domain.PayoutStatusProcessing, domain.PayoutStatusPending)
	if err != nil {
		return false, fmt.Errorf("claim payout %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim payout rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *PostgresRepository) Complete(ctx context.Context, id int64, transferRef string) error {
	query := `UPDATE vendor_payouts
	          SET status = $2, transfer_ref = $3, failure_reason = '', completed_at = NOW(), updated_at = NOW()
	          WHERE id = $1 AND status = $4`

	return r.mustAffect(ctx, query, id, domain.PayoutStatusCompleted, transferRef, domain.PayoutStatusProcessing)
}

func (r *PostgresRepository) RecordTransferRef(ctx context.Context, id int64, transferRef string) error {
	query := `UPDATE vendor_payouts SET transfer_ref = $2, updated_at = NOW()
	          WHERE id = $1 AND status = $3`

	return r.mustAffect(ctx, query, id, transferRef, domain.PayoutStatusProcessing)
}

func (r *PostgresRepository) Requeue(ctx context.Context, id int64, reason string, retryAt time.Time) error {
	query := `UPDATE vendor_payouts
	          SET status = $2, failure_reason = $3, retry_count = retry_count + 1,
	              scheduled_for = $4, updated_at = NOW()
	          WHERE id = $1 AND status = $5`

	return r.mustAffect(ctx, query, id, domain.PayoutStatusPending, reason, retryAt, domain.PayoutStatusProcessing)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	query := `UPDATE vendor_payouts
	          SET status = $2, failure_reason = $3, retry_count = retry_count + 1, updated_at = NOW()
	          WHERE id = $1 AND status = $4`

	return r.mustAffect(ctx, query, id, domain.PayoutStatusFailed, reason, domain.PayoutStatusProcessing)
}

func (r *PostgresRepository) CancelPendingByOrder(ctx context.Context, orderID uuid.UUID, reason string) (int64, error) {
	query := `UPDATE vendor_payouts
	          SET status = $2, failure_reason = $3, updated_at = NOW()
	          WHERE order_id = $1 AND status = $4`

	result, err := r.db.ExecContext(ctx, query, orderID, domain.PayoutStatusCancelled, reason, domain.PayoutStatusPending)
	if err != nil {
		return 0, fmt.Errorf("cancel payouts for order %s: %w", orderID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cancel payouts rows affected: %w", err)
	}
	return affected, nil
}

func (r *PostgresRepository) GetByTransferRef(ctx context.Context, transferRef string) (*domain.VendorPayout, error) {
	query := `SELECT ` + payoutColumns + ` FROM vendor_payouts p WHERE p.transfer_ref = $1`

	p, err := scanPayout(r.db.QueryRowContext(ctx, query, transferRef))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPayoutNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.VendorPayout, error) {
	query := `SELECT ` + payoutColumns + ` FROM vendor_payouts p WHERE p.order_id = $1 ORDER BY p.vendor_id`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query payouts for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var payouts []*domain.VendorPayout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order payouts iteration: %w", err)
	}
	return payouts, nil
}

func (r *PostgresRepository) mustAffect(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payout rows affected: %w", err)
	}
	if affected == 0 {
		return ErrPayoutNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayout(row rowScanner) (*domain.VendorPayout, error) {
	var (
		p           domain.VendorPayout
		transferRef sql.NullString
		failReason  sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &p.VendorID, &p.GrossAmount, &p.Commission, &p.NetAmount, &p.Currency,
		&p.Status, &p.Bank.AccountNumber, &p.Bank.AccountHolder, &p.Bank.BankName, &transferRef,
		&failReason, &p.RetryCount, &p.ScheduledFor, &completedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("scan payout: %w", err)
	}
	p.TransferRef = transferRef.String
	p.FailureReason = failReason.String
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}
	return &p, nil
}

var _ PayoutRepository = (*PostgresRepository)(nil)
