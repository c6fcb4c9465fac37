package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/vendora/marketplace/internal/cart/domain"
	"github.com/vendora/marketplace/internal/cart/repository"
)

type CartHandler struct {
	carts CartService
}

// CartService is what the handler needs from the cart layer.
type CartService interface {
	GetCart(ctx context.Context, identifier string, isUser bool) (*domain.Cart, error)
	Reconcile(ctx context.Context, identifier string, isUser bool, desired []domain.CartItem) (*domain.Cart, error)
	AddItem(ctx context.Context, identifier string, isUser bool, item domain.CartItem) (*domain.Cart, error)
	SetQuantity(ctx context.Context, identifier string, isUser bool, key domain.ItemKey, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, identifier string, isUser bool, key domain.ItemKey) (*domain.Cart, error)
}

func NewCartHandler(carts CartService) *CartHandler {
	return &CartHandler{carts: carts}
}

type CartItemDTO struct {
	ProductID     int64            `json:"product_id"`
	VendorID      int64            `json:"vendor_id"`
	ProductName   string           `json:"product_name"`
	Color         string           `json:"color"`
	Size          string           `json:"size"`
	Quantity      int              `json:"quantity"`
	ListPrice     decimal.Decimal  `json:"list_price"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
}

func (d CartItemDTO) toDomain() domain.CartItem {
	return domain.CartItem{
		ProductID:     d.ProductID,
		VendorID:      d.VendorID,
		ProductName:   d.ProductName,
		Color:         d.Color,
		Size:          d.Size,
		Quantity:      d.Quantity,
		ListPrice:     d.ListPrice,
		DiscountPrice: d.DiscountPrice,
	}
}

type ReconcileRequestDTO struct {
	Items []CartItemDTO `json:"items"`
}

type SetQuantityRequestDTO struct {
	ProductID int64  `json:"product_id"`
	VendorID  int64  `json:"vendor_id"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	if id.Identifier == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user or guest identity")
		return
	}

	cart, err := h.carts.GetCart(r.Context(), id.Identifier, id.IsUser)
	if err != nil {
		handleCartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// Reconcile replaces the persisted cart with the client's desired item set.
func (h *CartHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	if id.Identifier == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user or guest identity")
		return
	}

	var req ReconcileRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	desired := make([]domain.CartItem, len(req.Items))
	for i, item := range req.Items {
		if item.ProductID <= 0 || item.VendorID <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_item", "product_id and vendor_id must be positive")
			return
		}
		if item.ListPrice.IsNegative() {
			respondError(w, http.StatusBadRequest, "invalid_price", "list_price must not be negative")
			return
		}
		desired[i] = item.toDomain()
	}

	cart, err := h.carts.Reconcile(r.Context(), id.Identifier, id.IsUser, desired)
	if err != nil {
		handleCartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	if id.Identifier == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user or guest identity")
		return
	}

	var req CartItemDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 || req.VendorID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_item", "product_id and vendor_id must be positive")
		return
	}
	if req.ListPrice.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid_price", "list_price must not be negative")
		return
	}

	cart, err := h.carts.AddItem(r.Context(), id.Identifier, id.IsUser, req.toDomain())
	if err != nil {
		handleCartError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, cart)
}

func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	if id.Identifier == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user or guest identity")
		return
	}

	var req SetQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 || req.VendorID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_item", "product_id and vendor_id must be positive")
		return
	}

	key := domain.ItemKey{ProductID: req.ProductID, VendorID: req.VendorID, Color: req.Color, Size: req.Size}
	cart, err := h.carts.SetQuantity(r.Context(), id.Identifier, id.IsUser, key, req.Quantity)
	if err != nil {
		handleCartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	if id.Identifier == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user or guest identity")
		return
	}

	key, err := itemKeyFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_item", err.Error())
		return
	}

	cart, err := h.carts.RemoveItem(r.Context(), id.Identifier, id.IsUser, key)
	if err != nil {
		handleCartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func itemKeyFromQuery(r *http.Request) (domain.ItemKey, error) {
	q := r.URL.Query()
	productID, err := strconv.ParseInt(q.Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		return domain.ItemKey{}, errors.New("product_id must be a positive integer")
	}
	vendorID, err := strconv.ParseInt(q.Get("vendor_id"), 10, 64)
	if err != nil || vendorID <= 0 {
		return domain.ItemKey{}, errors.New("vendor_id must be a positive integer")
	}
	return domain.ItemKey{
		ProductID: productID,
		VendorID:  vendorID,
		Color:     q.Get("color"),
		Size:      q.Get("size"),
	}, nil
}

func handleCartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidIdentifier):
		respondError(w, http.StatusBadRequest, "invalid_identifier", err.Error())
	case errors.Is(err, repository.ErrCartNotFound):
		respondError(w, http.StatusNotFound, "cart_not_found", err.Error())
	case errors.Is(err, repository.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "item_not_found", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
