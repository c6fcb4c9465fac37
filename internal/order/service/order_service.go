package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/vendora/marketplace/internal/cart/cache"
	cartrepo "github.com/vendora/marketplace/internal/cart/repository"
	"github.com/vendora/marketplace/internal/order/domain"
	"github.com/vendora/marketplace/internal/order/repository"
)

var ErrEmptyCart = errors.New("cart is empty, nothing to checkout")

// PayoutCanceller is the one cross-component contract order cancellation has:
// still-pending vendor payouts for the order must be cancelled.
type PayoutCanceller interface {
	CancelPendingByOrder(ctx context.Context, orderID uuid.UUID, reason string) (int64, error)
}

type Config struct {
	Currency string
	// PointsEarnDivisor is how much order total earns one loyalty point.
	// Zero disables earning.
	PointsEarnDivisor int64
}

type OrderService struct {
	orders  repository.OrderRepository
	carts   cartrepo.CartRepository
	cache   cache.CartCache
	payouts PayoutCanceller
	cfg     Config
}

func NewOrderService(orders repository.OrderRepository, carts cartrepo.CartRepository, cartCache cache.CartCache, payouts PayoutCanceller, cfg Config) *OrderService {
	return &OrderService{
		orders:  orders,
		carts:   carts,
		cache:   cartCache,
		payouts: payouts,
		cfg:     cfg,
	}
}

// Checkout snapshots the cart's items and totals at this moment into a new
// Order and destroys the cart. This is the only place an Order is constructed;
// cart state is never re-read afterwards.
func (s *OrderService) Checkout(ctx context.Context, identifier string, isUser bool) (*domain.Order, error) {
	cart, err := s.carts.Get(ctx, identifier, isUser)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	items := make([]domain.OrderItem, len(cart.Items))
	for i, ci := range cart.Items {
		items[i] = domain.OrderItem{
			ProductID:   ci.ProductID,
			VendorID:    ci.VendorID,
			ProductName: ci.ProductName,
			Color:       ci.Color,
			Size:        ci.Size,
			Quantity:    ci.Quantity,
			// unit price is copied, never re-read live from the catalog
			UnitPrice: ci.EffectivePrice(),
		}
	}

	discountCode := ""
	if len(cart.VoucherCodes) > 0 {
		discountCode = cart.VoucherCodes[0]
	}

	order := &domain.Order{
		ID:             uuid.New(),
		UserID:         cart.UserID,
		GuestID:        cart.GuestID,
		Items:          items,
		Subtotal:       cart.Subtotal,
		Discount:       cart.Discount,
		DiscountCode:   discountCode,
		ShippingCharge: cart.Shipping,
		Total:          cart.Total,
		Currency:       s.cfg.Currency,
		OrderStatus:    domain.OrderStatusPending,
		PaymentStatus:  domain.PaymentStatusPending,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if s.cfg.PointsEarnDivisor > 0 {
		order.PointsEarned = cart.Total.IntPart() / s.cfg.PointsEarnDivisor
	}

	if err := s.orders.CreateFromCart(ctx, order, cart.ID); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.invalidateCartCache(identifier, isUser)
	return order, nil
}

// Cancel moves the order to cancelled and cancels any still-pending vendor
// payouts for it. The payout cleanup is a hard contract, not best effort:
// its failure fails the call so the operator sees it.
func (s *OrderService) Cancel(ctx context.Context, orderID uuid.UUID, reason string) error {
	if err := s.orders.Cancel(ctx, orderID, reason); err != nil {
		return err
	}

	cancelled, err := s.payouts.CancelPendingByOrder(ctx, orderID, reason)
	if err != nil {
		return fmt.Errorf("cancel pending payouts for order %s: %w", orderID, err)
	}
	if cancelled > 0 {
		log.Printf("order %s cancelled, %d pending payouts cancelled", orderID, cancelled)
	}
	return nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

func (s *OrderService) ListOrders(ctx context.Context, identifier string, isUser bool) ([]*domain.Order, error) {
	return s.orders.ListByIdentifier(ctx, identifier, isUser)
}

// AdvanceStatus drives the fulfillment axis one step forward.
func (s *OrderService) AdvanceStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus) error {
	return s.orders.UpdateOrderStatus(ctx, orderID, from, to)
}

// UploadReceipt attaches a manual proof-of-payment to the order.
func (s *OrderService) UploadReceipt(ctx context.Context, orderID uuid.UUID, reference string) error {
	if reference == "" {
		return errors.New("receipt reference must be non-empty")
	}
	return s.orders.AttachReceipt(ctx, orderID, domain.PaymentReceipt{
		Reference:  reference,
		UploadedAt: time.Now(),
	})
}

func (s *OrderService) invalidateCartCache(identifier string, isUser bool) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, identifier, isUser); err != nil {
		log.Printf("cart cache invalidate after checkout: %v", err)
	}
}
