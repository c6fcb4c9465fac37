package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/vendora/marketplace/internal/order/domain"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrStatusConflict means a compare-and-swap update lost: the row was not
	// in the expected state.
	ErrStatusConflict = errors.New("order was not in the expected status")
)

// OrderRepository defines the interface for order data operations.
// Consumers define this interface, not the Postgres implementation.
type OrderRepository interface {
	// CreateFromCart persists the order and destroys the source cart in one
	// transaction. Checkout is the only caller and the only place an Order is
	// constructed.
	CreateFromCart(ctx context.Context, order *domain.Order, cartID uuid.UUID) error

	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListByIdentifier(ctx context.Context, identifier string, isUser bool) ([]*domain.Order, error)

	// UpdateOrderStatus is a conditional update that only succeeds when the
	// row still holds the expected status; losing the swap is ErrStatusConflict.
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) error

	// Cancel atomically moves any non-delivered, non-cancelled order to
	// cancelled, recording when and why.
	Cancel(ctx context.Context, id uuid.UUID, reason string) error

	// UpdatePaymentStatus is the compare-and-swap for the money axis.
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus) error

	AttachReceipt(ctx context.Context, id uuid.UUID, receipt domain.PaymentReceipt) error
}
