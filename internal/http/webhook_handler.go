package http

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/vendora/marketplace/internal/webhook"
)

// SignatureHeader carries the provider's hex-encoded HMAC-SHA256 of the body.
const SignatureHeader = "X-Webhook-Signature"

const maxWebhookBody = 1 << 20 // 1MB

// WebhookEngine processes one raw provider delivery.
type WebhookEngine interface {
	Handle(ctx context.Context, payload []byte, signature string) error
}

type WebhookHandler struct {
	payments WebhookEngine
	payouts  WebhookEngine
}

func NewWebhookHandler(payments, payouts WebhookEngine) *WebhookHandler {
	return &WebhookHandler{payments: payments, payouts: payouts}
}

func (h *WebhookHandler) Payment(w http.ResponseWriter, r *http.Request) {
	h.deliver(w, r, h.payments)
}

func (h *WebhookHandler) Payout(w http.ResponseWriter, r *http.Request) {
	h.deliver(w, r, h.payouts)
}

// deliver acknowledges everything the engine absorbed. Only a structurally
// unreadable payload is a 400; engine failures are 500 so the provider
// redelivers.
func (h *WebhookHandler) deliver(w http.ResponseWriter, r *http.Request, engine WebhookEngine) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable_body", "could not read request body")
		return
	}

	err = engine.Handle(r.Context(), payload, r.Header.Get(SignatureHeader))
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]string{"status": "received"})
	case errors.Is(err, webhook.ErrMalformedPayload):
		respondError(w, http.StatusBadRequest, "malformed_payload", err.Error())
	default:
		log.Printf("webhook processing failed: %v", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "event processing failed")
	}
}
