package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vendora/marketplace/internal/cart/domain"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("item not found in cart")
)

// CartRepository defines the interface for cart data operations.
// Consumers define this interface, not the Postgres implementation.
type CartRepository interface {
	// GetOrCreate returns the cart for the identifier, creating an empty one if
	// none exists. Lookups filter on both the identifier and the guest/user
	// flag: guest and user carts are disjoint identifier spaces.
	GetOrCreate(ctx context.Context, identifier string, isUser bool, delivery domain.DeliveryWindow) (*domain.Cart, error)

	// Get returns the cart with its items, or ErrCartNotFound.
	Get(ctx context.Context, identifier string, isUser bool) (*domain.Cart, error)

	// UpsertItem writes one item as a single conflict-resolving statement keyed
	// by (cart, product, vendor, color, size). Never delete-then-insert.
	UpsertItem(ctx context.Context, cartID uuid.UUID, item domain.CartItem) error

	// DeleteItemsNotIn removes every persisted item whose key is absent from
	// keys. An empty key set clears the cart.
	DeleteItemsNotIn(ctx context.Context, cartID uuid.UUID, keys []domain.ItemKey) error

	RemoveItem(ctx context.Context, cartID uuid.UUID, key domain.ItemKey) error

	// UpdateTotals persists the derived totals after a mutation.
	UpdateTotals(ctx context.Context, cart *domain.Cart) error

	// Delete destroys the cart and its items (successful checkout, sweep).
	Delete(ctx context.Context, cartID uuid.UUID) error

	// DeleteGuestCartsIdleSince removes guest carts untouched since the cutoff
	// and reports how many were swept.
	DeleteGuestCartsIdleSince(ctx context.Context, cutoff time.Time) (int64, error)
}
