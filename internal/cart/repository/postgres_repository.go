package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/vendora/marketplace/internal/cart/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetOrCreate(ctx context.Context, identifier string, isUser bool, delivery domain.DeliveryWindow) (*domain.Cart, error) {
	cart, err := r.Get(ctx, identifier, isUser)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, ErrCartNotFound) {
		return nil, err
	}

	fresh, err := domain.NewCart(identifier, isUser, delivery)
	if err != nil {
		return nil, err
	}

	// ON CONFLICT DO NOTHING keeps a concurrent first-add from failing; the
	// loser of the race re-reads the winner's row.
	query := `INSERT INTO carts (id, user_id, guest_id, subtotal, tax, shipping, discount, total,
	                             voucher_codes, shipping_address, delivery_from, delivery_to, created_at, updated_at)
	          VALUES ($1, $2, $3, 0, 0, 0, 0, 0, $4, '', $5, $6, NOW(), NOW())
	          ON CONFLICT DO NOTHING`
	_, err = r.db.ExecContext(ctx, query,
		fresh.ID, fresh.UserID, fresh.GuestID,
		pq.Array(fresh.VoucherCodes), fresh.Delivery.From, fresh.Delivery.To)
	if err != nil {
		return nil, fmt.Errorf("insert cart: %w", err)
	}

	return r.Get(ctx, identifier, isUser)
}

func (r *Repository) Get(ctx context.Context, identifier string, isUser bool) (*domain.Cart, error) {
	if identifier == "" {
		return nil, domain.ErrInvalidIdentifier
	}

	// The guest/user flag is part of the lookup so identifiers cannot collide
	// across the two spaces.
	var column string
	if isUser {
		column = "user_id"
	} else {
		column = "guest_id"
	}

	query := fmt.Sprintf(`SELECT id, user_id, guest_id, subtotal, tax, shipping, discount, total,
	                             voucher_codes, shipping_address, delivery_from, delivery_to, created_at, updated_at
	                      FROM carts WHERE %s = $1`, column)

	var cart domain.Cart
	var codes pq.StringArray
	err := r.db.QueryRowContext(ctx, query, identifier).Scan(
		&cart.ID, &cart.UserID, &cart.GuestID,
		&cart.Subtotal, &cart.Tax, &cart.Shipping, &cart.Discount, &cart.Total,
		&codes, &cart.ShippingAddress, &cart.Delivery.From, &cart.Delivery.To,
		&cart.CreatedAt, &cart.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	cart.VoucherCodes = codes

	items, err := r.loadItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items
	return &cart, nil
}

func (r *Repository) loadItems(ctx context.Context, cartID uuid.UUID) ([]domain.CartItem, error) {
	query := `SELECT product_id, vendor_id, product_name, color, size, quantity, list_price, discount_price, added_at
	          FROM cart_items WHERE cart_id = $1`

	rows, err := r.db.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var item domain.CartItem
		var discount decimal.NullDecimal
		if err := rows.Scan(
			&item.ProductID, &item.VendorID, &item.ProductName, &item.Color, &item.Size,
			&item.Quantity, &item.ListPrice, &discount, &item.AddedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		if discount.Valid {
			item.DiscountPrice = &discount.Decimal
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cart item iteration: %w", err)
	}
	return items, nil
}

func (r *Repository) UpsertItem(ctx context.Context, cartID uuid.UUID, item domain.CartItem) error {
	if item.Quantity < 1 {
		item.Quantity = 1
	}

	query := `INSERT INTO cart_items (cart_id, product_id, vendor_id, product_name, color, size, quantity, list_price, discount_price, added_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	          ON CONFLICT (cart_id, product_id, vendor_id, color, size)
	          DO UPDATE SET quantity = EXCLUDED.quantity,
	                        product_name = EXCLUDED.product_name,
	                        list_price = EXCLUDED.list_price,
	                        discount_price = EXCLUDED.discount_price`

	discount := decimal.NullDecimal{}
	if item.DiscountPrice != nil {
		discount = decimal.NullDecimal{Decimal: *item.DiscountPrice, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		cartID, item.ProductID, item.VendorID, item.ProductName, item.Color, item.Size,
		item.Quantity, item.ListPrice, discount)
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return nil
}

func (r *Repository) DeleteItemsNotIn(ctx context.Context, cartID uuid.UUID, keys []domain.ItemKey) error {
	if len(keys) == 0 {
		_, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
		if err != nil {
			return fmt.Errorf("clear cart items: %w", err)
		}
		return nil
	}

	args := []interface{}{cartID}
	tuples := make([]string, 0, len(keys))
	for i, key := range keys {
		base := i*4 + 2
		tuples = append(tuples, fmt.Sprintf("($%d::bigint, $%d::bigint, $%d, $%d)", base, base+1, base+2, base+3))
		args = append(args, key.ProductID, key.VendorID, key.Color, key.Size)
	}

	query := fmt.Sprintf(`DELETE FROM cart_items
	          WHERE cart_id = $1
	            AND (product_id, vendor_id, color, size) NOT IN (%s)`, strings.Join(tuples, ", "))

	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("diff-delete cart items: %w", err)
	}
	return nil
}

func (r *Repository) RemoveItem(ctx context.Context, cartID uuid.UUID, key domain.ItemKey) error {
	query := `DELETE FROM cart_items
	          WHERE cart_id = $1 AND product_id = $2 AND vendor_id = $3 AND color = $4 AND size = $5`

	result, err := r.db.ExecContext(ctx, query, cartID, key.ProductID, key.VendorID, key.Color, key.Size)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove cart item rows affected: %w", err)
	}
	if affected == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *Repository) UpdateTotals(ctx context.Context, cart *domain.Cart) error {
	query := `UPDATE carts
	          SET subtotal = $2, tax = $3, shipping = $4, discount = $5, total = $6, updated_at = NOW()
	          WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		cart.ID, cart.Subtotal, cart.Tax, cart.Shipping, cart.Discount, cart.Total)
	if err != nil {
		return fmt.Errorf("update cart totals: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update cart totals rows affected: %w", err)
	}
	if affected == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, cartID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete cart rows affected: %w", err)
	}
	if affected == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (r *Repository) DeleteGuestCartsIdleSince(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM carts WHERE guest_id IS NOT NULL AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep guest carts: %w", err)
	}
	swept, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep guest carts rows affected: %w", err)
	}
	return swept, nil
}

var _ CartRepository = (*Repository)(nil)
