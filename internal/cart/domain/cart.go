package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendora/marketplace/internal/money"
)

var ErrInvalidIdentifier = errors.New("cart identifier must be non-empty")

// ItemKey is the composite key a cart item is unique by within a cart.
type ItemKey struct {
	ProductID int64  `json:"product_id"`
	VendorID  int64  `json:"vendor_id"`
	Color     string `json:"color"`
	Size      string `json:"size"`
}

type CartItem struct {
	ProductID     int64            `json:"product_id"`
	VendorID      int64            `json:"vendor_id"`
	ProductName   string           `json:"product_name"`
	VendorName    *string          `json:"vendor_name,omitempty"` // nil when vendor enrichment was unavailable
	Color         string           `json:"color"`
	Size          string           `json:"size"`
	Quantity      int              `json:"quantity"`
	ListPrice     decimal.Decimal  `json:"list_price"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
	AddedAt       time.Time        `json:"added_at"`
}

func (i CartItem) Key() ItemKey {
	return ItemKey{ProductID: i.ProductID, VendorID: i.VendorID, Color: i.Color, Size: i.Size}
}

// EffectivePrice is the discounted price when one is set, else the list price.
func (i CartItem) EffectivePrice() decimal.Decimal {
	if i.DiscountPrice != nil {
		return *i.DiscountPrice
	}
	return i.ListPrice
}

// DeliveryWindow is the estimated delivery range shown on the cart. The default
// window is configuration injected into the service, not a package-level global.
type DeliveryWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Cart belongs to either a registered user or a guest session, never both.
// UserID and GuestID are mutually exclusive; exactly one is set.
type Cart struct {
	ID              uuid.UUID       `json:"id"`
	UserID          *string         `json:"user_id,omitempty"`
	GuestID         *string         `json:"guest_id,omitempty"`
	Items           []CartItem      `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	Shipping        decimal.Decimal `json:"shipping"`
	Discount        decimal.Decimal `json:"discount"`
	Total           decimal.Decimal `json:"total"`
	VoucherCodes    []string        `json:"voucher_codes,omitempty"`
	ShippingAddress string          `json:"shipping_address,omitempty"`
	Delivery        DeliveryWindow  `json:"delivery"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewCart builds an empty cart for the given identifier space.
func NewCart(identifier string, isUser bool, delivery DeliveryWindow) (*Cart, error) {
	if identifier == "" {
		return nil, ErrInvalidIdentifier
	}
	now := time.Now()
	c := &Cart{
		ID:        uuid.New(),
		Subtotal:  decimal.Zero,
		Tax:       decimal.Zero,
		Shipping:  decimal.Zero,
		Discount:  decimal.Zero,
		Total:     decimal.Zero,
		Delivery:  delivery,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if isUser {
		c.UserID = &identifier
	} else {
		c.GuestID = &identifier
	}
	return c, nil
}

func (c *Cart) IsGuest() bool {
	return c.GuestID != nil
}

func (c *Cart) Identifier() string {
	if c.UserID != nil {
		return *c.UserID
	}
	if c.GuestID != nil {
		return *c.GuestID
	}
	return ""
}

// RecomputeTotals derives subtotal and total from the current item set. It is
// pure over the cart's own fields and idempotent, and must run after every
// mutation so the persisted totals are never stale.
func (c *Cart) RecomputeTotals() {
	subtotal := decimal.Zero
	for _, item := range c.Items {
		subtotal = subtotal.Add(money.LineTotal(item.EffectivePrice(), item.Quantity))
	}
	c.Subtotal = subtotal
	c.Total = money.CartTotal(c.Subtotal, c.Tax, c.Shipping, c.Discount)
}
