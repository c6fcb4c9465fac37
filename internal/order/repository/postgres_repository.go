package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vendora/marketplace/internal/order/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateFromCart(ctx context.Context, order *domain.Order, cartID uuid.UUID) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkout tx: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO orders (id, user_id, guest_id, items, subtotal, discount, discount_code,
	                              shipping_charge, total, points_used, points_earned, currency,
	                              order_status, payment_status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())`

	_, err = tx.ExecContext(ctx, query,
		order.ID, order.UserID, order.GuestID, itemsJSON,
		order.Subtotal, order.Discount, order.DiscountCode,
		order.ShippingCharge, order.Total, order.PointsUsed, order.PointsEarned, order.Currency,
		order.OrderStatus, order.PaymentStatus)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	// checkout destroys the cart; cart_items cascade
	if _, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("delete checked-out cart: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkout tx: %w", err)
	}
	return nil
}

const orderColumns = `id, user_id, guest_id, items, subtotal, discount, discount_code,
	       shipping_charge, total, points_used, points_earned, currency,
	       order_status, payment_status, receipt_reference, receipt_uploaded_at,
	       cancellation_reason, cancelled_at, created_at, updated_at`

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	return order, nil
}

func (r *Repository) ListByIdentifier(ctx context.Context, identifier string, isUser bool) ([]*domain.Order, error) {
	column := "guest_id"
	if isUser {
		column = "user_id"
	}
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE %s = $1 ORDER BY created_at DESC`, orderColumns, column)

	rows, err := r.db.QueryContext(ctx, query, identifier)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var itemsJSON []byte
	var receiptRef sql.NullString
	var receiptAt sql.NullTime

	err := row.Scan(
		&order.ID, &order.UserID, &order.GuestID, &itemsJSON,
		&order.Subtotal, &order.Discount, &order.DiscountCode,
		&order.ShippingCharge, &order.Total, &order.PointsUsed, &order.PointsEarned, &order.Currency,
		&order.OrderStatus, &order.PaymentStatus, &receiptRef, &receiptAt,
		&order.CancellationReason, &order.CancelledAt,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if receiptRef.Valid {
		order.Receipt = &domain.PaymentReceipt{Reference: receiptRef.String, UploadedAt: receiptAt.Time}
	}
	return &order, nil
}

func (r *Repository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) error {
	if !from.CanTransitionTo(to) {
		return ErrStatusConflict
	}

	query := `UPDATE orders SET order_status = $3, updated_at = NOW()
	          WHERE id = $1 AND order_status = $2`

	result, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return r.casOutcome(ctx, result, id)
}

func (r *Repository) Cancel(ctx context.Context, id uuid.UUID, reason string) error {
	query := `UPDATE orders
	          SET order_status = $3, cancellation_reason = $2, cancelled_at = NOW(), updated_at = NOW()
	          WHERE id = $1 AND order_status NOT IN ($4, $5)`

	result, err := r.db.ExecContext(ctx, query, id, reason,
		domain.OrderStatusCancelled, domain.OrderStatusDelivered, domain.OrderStatusCancelled)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	return r.casOutcome(ctx, result, id)
}

func (r *Repository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus) error {
	if !from.CanTransitionTo(to) {
		return ErrStatusConflict
	}

	query := `UPDATE orders SET payment_status = $3, updated_at = NOW()
	          WHERE id = $1 AND payment_status = $2`

	result, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return r.casOutcome(ctx, result, id)
}

func (r *Repository) AttachReceipt(ctx context.Context, id uuid.UUID, receipt domain.PaymentReceipt) error {
	query := `UPDATE orders SET receipt_reference = $2, receipt_uploaded_at = $3, updated_at = NOW()
	          WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, receipt.Reference, receipt.UploadedAt)
	if err != nil {
		return fmt.Errorf("attach receipt: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach receipt rows affected: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// casOutcome distinguishes a lost compare-and-swap from a missing row.
func (r *Repository) casOutcome(ctx context.Context, result sql.Result, id uuid.UUID) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order existence: %w", err)
	}
	if !exists {
		return ErrOrderNotFound
	}
	return ErrStatusConflict
}

var _ OrderRepository = (*Repository)(nil)
