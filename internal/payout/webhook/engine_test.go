package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendora/marketplace/internal/payout/domain"
	"github.com/vendora/marketplace/internal/payout/repository"
)

var testSecret = []byte("whsec_payout_test")

func sign(payload []byte) string {
	mac := hmac.New(sha256.New, testSecret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type mockLedger struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func newMockLedger() *mockLedger {
	return &mockLedger{claimed: make(map[string]bool)}
}

func (m *mockLedger) Claim(_ context.Context, key, _ string, _ []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *mockLedger) MarkProcessed(context.Context, string) error { return nil }

type refRepo struct {
	mu     sync.Mutex
	byRef  map[string]*domain.VendorPayout
	events []string
}

func newRefRepo(payouts ...*domain.VendorPayout) *refRepo {
	r := &refRepo{byRef: make(map[string]*domain.VendorPayout)}
	for _, p := range payouts {
		r.byRef[p.TransferRef] = p
	}
	return r
}

func (r *refRepo) GetByTransferRef(_ context.Context, ref string) (*domain.VendorPayout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byRef[ref]
	if !ok {
		return nil, repository.ErrPayoutNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *refRepo) Complete(_ context.Context, id int64, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("complete:%d", id))
	r.byRef[ref].Status = domain.PayoutStatusCompleted
	return nil
}

func (r *refRepo) Requeue(_ context.Context, id int64, reason string, retryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("requeue:%d", id))
	for _, p := range r.byRef {
		if p.ID == id {
			p.Status = domain.PayoutStatusPending
			p.FailureReason = reason
			p.RetryCount++
			p.ScheduledFor = retryAt
		}
	}
	return nil
}

func (r *refRepo) MarkFailed(_ context.Context, id int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("failed:%d", id))
	for _, p := range r.byRef {
		if p.ID == id {
			p.Status = domain.PayoutStatusFailed
			p.FailureReason = reason
		}
	}
	return nil
}

func (r *refRepo) CreatePayouts(context.Context, []*domain.VendorPayout) error { return nil }
func (r *refRepo) DuePayouts(context.Context, time.Time, int) ([]*domain.VendorPayout, error) {
	return nil, nil
}
func (r *refRepo) Claim(context.Context, int64) (bool, error)              { return false, nil }
func (r *refRepo) RecordTransferRef(context.Context, int64, string) error  { return nil }
func (r *refRepo) CancelPendingByOrder(context.Context, uuid.UUID, string) (int64, error) {
	return 0, nil
}
func (r *refRepo) ListByOrder(context.Context, uuid.UUID) ([]*domain.VendorPayout, error) {
	return nil, nil
}

func processingPayout(id int64, ref string) *domain.VendorPayout {
	return &domain.VendorPayout{
		ID:          id,
		OrderID:     uuid.New(),
		VendorID:    id,
		Status:      domain.PayoutStatusProcessing,
		TransferRef: ref,
	}
}

func TestHandle_TransferSuccessCompletesProcessingPayout(t *testing.T) {
	repo := newRefRepo(processingPayout(1, "trf_abc"))
	engine := NewEngine(testSecret, newMockLedger(), repo)

	payload := []byte(`{"id": "evt_p1", "event": "transfer.success", "data": {"reference": "trf_abc"}}`)

	require.NoError(t, engine.Handle(context.Background(), payload, sign(payload)))

	assert.Equal(t, []string{"complete:1"}, repo.events)
	assert.Equal(t, domain.PayoutStatusCompleted, repo.byRef["trf_abc"].Status)
}

func TestHandle_DuplicateDeliveryCompletesOnce(t *testing.T) {
	repo := newRefRepo(processingPayout(1, "trf_abc"))
	engine := NewEngine(testSecret, newMockLedger(), repo)

	payload := []byte(`{"id": "evt_p1", "event": "transfer.success", "data": {"reference": "trf_abc"}}`)
	sig := sign(payload)

	require.NoError(t, engine.Handle(context.Background(), payload, sig))
	require.NoError(t, engine.Handle(context.Background(), payload, sig))

	assert.Equal(t, []string{"complete:1"}, repo.events)
}

func TestHandle_TransferFailureRequeuesWithBackoff(t *testing.T) {
	p := processingPayout(2, "trf_def")
	p.RetryCount = 1
	repo := newRefRepo(p)
	engine := NewEngine(testSecret, newMockLedger(), repo)

	payload := []byte(`{"id": "evt_p2", "event": "transfer.failed", "data": {"reference": "trf_def", "reason": "account frozen"}}`)

	require.NoError(t, engine.Handle(context.Background(), payload, sign(payload)))

	bounced := repo.byRef["trf_def"]
	assert.Equal(t, []string{"requeue:2"}, repo.events)
	assert.Equal(t, domain.PayoutStatusPending, bounced.Status)
	assert.Equal(t, "account frozen", bounced.FailureReason)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), bounced.ScheduledFor, time.Minute)
}

func TestHandle_TransferFailurePastRetriesParksPayout(t *testing.T) {
	p := processingPayout(3, "trf_ghi")
	p.RetryCount = domain.MaxRetries
	repo := newRefRepo(p)
	engine := NewEngine(testSecret, newMockLedger(), repo)

	payload := []byte(`{"id": "evt_p3", "event": "transfer.failed", "data": {"reference": "trf_ghi", "reason": "account closed"}}`)

	require.NoError(t, engine.Handle(context.Background(), payload, sign(payload)))

	assert.Equal(t, []string{"failed:3"}, repo.events)
	assert.Equal(t, domain.PayoutStatusFailed, repo.byRef["trf_ghi"].Status)
}

func TestHandle_UnknownReferenceIsAcknowledged(t *testing.T) {
	repo := newRefRepo()
	engine := NewEngine(testSecret, newMockLedger(), repo)

	payload := []byte(`{"id": "evt_p4", "event": "transfer.success", "data": {"reference": "trf_unknown"}}`)

	require.NoError(t, engine.Handle(context.Background(), payload, sign(payload)))
	assert.Empty(t, repo.events)
}

func TestHandle_BadSignatureIsDiscarded(t *testing.T) {
	repo := newRefRepo(processingPayout(1, "trf_abc"))
	engine := NewEngine(testSecret, newMockLedger(), repo)

	payload := []byte(`{"id": "evt_p1", "event": "transfer.success", "data": {"reference": "trf_abc"}}`)

	require.NoError(t, engine.Handle(context.Background(), payload, "00"))
	assert.Empty(t, repo.events)
}
