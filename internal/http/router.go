// Package http is the HTTP surface over carts, orders and webhooks.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter assembles all routes. Webhook routes bypass the identity
// middleware; providers authenticate with signatures, not headers.
func NewRouter(carts *CartHandler, orders *OrderHandler, webhooks *WebhookHandler, requestTimeout time.Duration) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/payment", webhooks.Payment)
		r.Post("/payout", webhooks.Payout)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(IdentityMiddleware)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", carts.GetCart)
			r.Put("/", carts.Reconcile)
			r.Post("/items", carts.AddItem)
			r.Put("/items/quantity", carts.SetQuantity)
			r.Delete("/items", carts.RemoveItem)
		})

		r.Post("/checkout", orders.Checkout)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", orders.ListOrders)
			r.Get("/{order_id}", orders.GetOrder)
			r.Get("/{order_id}/payouts", orders.ListPayouts)
			r.Post("/{order_id}/cancel", orders.Cancel)
			r.Post("/{order_id}/status", orders.AdvanceStatus)
			r.Post("/{order_id}/receipt", orders.UploadReceipt)
		})
	})

	return r
}
