package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// orderTransitions is the closed transition table for fulfillment state.
// Transitions are one-directional; no state is revisited. Cancelled is
// reachable from every state except delivered.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

func (s OrderStatus) String() string {
	return string(s)
}

// PaymentStatus is the money axis, independent of fulfillment. Paid and failed
// are terminal: cancellation after payment leaves the historical paid status in
// place and flags the refund obligation via the cancellation reason.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s != PaymentStatusPending {
		return false
	}
	return next == PaymentStatusPaid || next == PaymentStatusFailed
}

func (s PaymentStatus) String() string {
	return string(s)
}

// OrderItem copies name and unit price from the cart at checkout time, so
// historical orders are stable against later catalog changes.
type OrderItem struct {
	ProductID   int64           `json:"product_id"`
	VendorID    int64           `json:"vendor_id"`
	ProductName string          `json:"product_name"`
	Color       string          `json:"color"`
	Size        string          `json:"size"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// PaymentReceipt is an optional manual proof-of-payment attached to an order.
type PaymentReceipt struct {
	Reference  string    `json:"reference"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Order captures a point-in-time financial snapshot at checkout. The snapshot
// fields become immutable once PaymentStatus leaves pending.
type Order struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             *string         `json:"user_id,omitempty"`
	GuestID            *string         `json:"guest_id,omitempty"`
	Items              []OrderItem     `json:"items"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	Discount           decimal.Decimal `json:"discount"`
	DiscountCode       string          `json:"discount_code,omitempty"`
	ShippingCharge     decimal.Decimal `json:"shipping_charge"`
	Total              decimal.Decimal `json:"total"`
	PointsUsed         int64           `json:"points_used"`
	PointsEarned       int64           `json:"points_earned"`
	Currency           string          `json:"currency"`
	OrderStatus        OrderStatus     `json:"order_status"`
	PaymentStatus      PaymentStatus   `json:"payment_status"`
	Receipt            *PaymentReceipt `json:"receipt,omitempty"`
	CancellationReason *string         `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// CanCancel reports whether the fulfillment axis still allows cancellation.
func (o *Order) CanCancel() bool {
	return o.OrderStatus != OrderStatusDelivered && o.OrderStatus != OrderStatusCancelled
}

// VendorIDs returns the distinct vendors present in the order's items.
func (o *Order) VendorIDs() []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, item := range o.Items {
		if !seen[item.VendorID] {
			seen[item.VendorID] = true
			ids = append(ids, item.VendorID)
		}
	}
	return ids
}
