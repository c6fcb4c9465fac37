package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vendora/marketplace/internal/order/domain"
	"github.com/vendora/marketplace/internal/order/repository"
	"github.com/vendora/marketplace/internal/order/service"
	payoutdomain "github.com/vendora/marketplace/internal/payout/domain"
)

// OrderService is what the handler needs from the order layer.
type OrderService interface {
	Checkout(ctx context.Context, identifier string, isUser bool) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, identifier string, isUser bool) ([]*domain.Order, error)
	AdvanceStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus) error
	Cancel(ctx context.Context, orderID uuid.UUID, reason string) error
	UploadReceipt(ctx context.Context, orderID uuid.UUID, reference string) error
}

// PayoutLister exposes an order's payouts for the order detail view.
type PayoutLister interface {
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*payoutdomain.VendorPayout, error)
}

type OrderHandler struct {
	orders  OrderService
	payouts PayoutLister
}

func NewOrderHandler(orders OrderService, payouts PayoutLister) *OrderHandler {
	return &OrderHandler{orders: orders, payouts: payouts}
}

type CancelRequestDTO struct {
	Reason string `json:"reason"`
}

type AdvanceStatusRequestDTO struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type ReceiptRequestDTO struct {
	Reference string `json:"reference"`
}

func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	if id.Identifier == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user or guest identity")
		return
	}

	order, err := h.orders.Checkout(r.Context(), id.Identifier, id.IsUser)
	if err != nil {
		handleOrderError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	if id.Identifier == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user or guest identity")
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), id.Identifier, id.IsUser)
	if err != nil {
		handleOrderError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromPath(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		handleOrderError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromPath(w, r)
	if !ok {
		return
	}

	payouts, err := h.payouts.ListByOrder(r.Context(), orderID)
	if err != nil {
		handleOrderError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, payouts)
}

func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromPath(w, r)
	if !ok {
		return
	}

	var req CancelRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Reason == "" {
		respondError(w, http.StatusBadRequest, "missing_reason", "cancellation reason is required")
		return
	}

	if err := h.orders.Cancel(r.Context(), orderID, req.Reason); err != nil {
		handleOrderError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *OrderHandler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromPath(w, r)
	if !ok {
		return
	}

	var req AdvanceStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	from := domain.OrderStatus(req.From)
	to := domain.OrderStatus(req.To)
	if !from.CanTransitionTo(to) {
		respondError(w, http.StatusUnprocessableEntity, "invalid_transition",
			"order status cannot move from "+req.From+" to "+req.To)
		return
	}

	if err := h.orders.AdvanceStatus(r.Context(), orderID, from, to); err != nil {
		handleOrderError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": req.To})
}

func (h *OrderHandler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromPath(w, r)
	if !ok {
		return
	}

	var req ReceiptRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Reference == "" {
		respondError(w, http.StatusBadRequest, "missing_reference", "receipt reference is required")
		return
	}

	if err := h.orders.UploadReceipt(r.Context(), orderID, req.Reference); err != nil {
		handleOrderError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "receipt attached"})
}

func orderIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return uuid.Nil, false
	}
	return orderID, true
}

func handleOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyCart):
		respondError(w, http.StatusUnprocessableEntity, "empty_cart", err.Error())
	case errors.Is(err, repository.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, repository.ErrStatusConflict):
		respondError(w, http.StatusConflict, "status_conflict", err.Error())
	default:
		handleCartError(w, err)
	}
}
