package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vendora/marketplace/internal/webhook"
)

type engineMock struct {
	err      error
	payloads [][]byte
	sigs     []string
}

func (m *engineMock) Handle(_ context.Context, payload []byte, signature string) error {
	m.payloads = append(m.payloads, payload)
	m.sigs = append(m.sigs, signature)
	return m.err
}

func TestWebhook_PaymentDeliveryAcknowledged(t *testing.T) {
	payments := &engineMock{}
	handler := NewWebhookHandler(payments, &engineMock{})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/webhooks/payment", bytes.NewBufferString(`{"event":"charge.success"}`))
	request.Header.Set(SignatureHeader, "abc123")

	handler.Payment(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, []string{"abc123"}, payments.sigs)
	assert.Equal(t, `{"event":"charge.success"}`, string(payments.payloads[0]))
}

func TestWebhook_MalformedPayloadIsRejected(t *testing.T) {
	payments := &engineMock{err: webhook.ErrMalformedPayload}
	handler := NewWebhookHandler(payments, &engineMock{})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/webhooks/payment", bytes.NewBufferString("{"))

	handler.Payment(recorder, request)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestWebhook_TransientFailureAsksForRedelivery(t *testing.T) {
	payouts := &engineMock{err: errors.New("mongo unavailable")}
	handler := NewWebhookHandler(&engineMock{}, payouts)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/webhooks/payout", bytes.NewBufferString(`{"event":"transfer.success"}`))

	handler.Payout(recorder, request)

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
}

func TestWebhook_RoutesAreSeparate(t *testing.T) {
	payments := &engineMock{}
	payouts := &engineMock{}
	handler := NewWebhookHandler(payments, payouts)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/webhooks/payout", bytes.NewBufferString(`{"event":"transfer.success"}`))

	handler.Payout(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Empty(t, payments.payloads)
	assert.Len(t, payouts.payloads, 1)
}
