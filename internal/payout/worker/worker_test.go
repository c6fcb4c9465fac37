package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendora/marketplace/internal/payout/domain"
	"github.com/vendora/marketplace/internal/payout/provider"
)

// memRepo is an in-memory payout store with the same compare-and-swap claim
// semantics as the Postgres implementation.
type memRepo struct {
	mu      sync.Mutex
	payouts map[int64]*domain.VendorPayout
}

func newMemRepo(payouts ...*domain.VendorPayout) *memRepo {
	m := &memRepo{payouts: make(map[int64]*domain.VendorPayout)}
	for _, p := range payouts {
		m.payouts[p.ID] = p
	}
	return m
}

func (m *memRepo) CreatePayouts(_ context.Context, payouts []*domain.VendorPayout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range payouts {
		m.payouts[p.ID] = p
	}
	return nil
}

func (m *memRepo) DuePayouts(_ context.Context, now time.Time, _ int) ([]*domain.VendorPayout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*domain.VendorPayout
	for _, p := range m.payouts {
		if p.Status == domain.PayoutStatusPending && !p.ScheduledFor.After(now) {
			copied := *p
			due = append(due, &copied)
		}
	}
	return due, nil
}

func (m *memRepo) Claim(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payouts[id]
	if !ok || p.Status != domain.PayoutStatusPending {
		return false, nil
	}
	p.Status = domain.PayoutStatusProcessing
	return true, nil
}

func (m *memRepo) Complete(_ context.Context, id int64, transferRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.payouts[id]
	p.Status = domain.PayoutStatusCompleted
	p.TransferRef = transferRef
	return nil
}

func (m *memRepo) RecordTransferRef(_ context.Context, id int64, transferRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payouts[id].TransferRef = transferRef
	return nil
}

func (m *memRepo) Requeue(_ context.Context, id int64, reason string, retryAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.payouts[id]
	p.Status = domain.PayoutStatusPending
	p.FailureReason = reason
	p.RetryCount++
	p.ScheduledFor = retryAt
	return nil
}

func (m *memRepo) MarkFailed(_ context.Context, id int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.payouts[id]
	p.Status = domain.PayoutStatusFailed
	p.FailureReason = reason
	p.RetryCount++
	return nil
}

func (m *memRepo) CancelPendingByOrder(context.Context, uuid.UUID, string) (int64, error) {
	return 0, nil
}
func (m *memRepo) GetByTransferRef(context.Context, string) (*domain.VendorPayout, error) {
	return nil, nil
}
func (m *memRepo) ListByOrder(context.Context, uuid.UUID) ([]*domain.VendorPayout, error) {
	return nil, nil
}

func (m *memRepo) get(id int64) domain.VendorPayout {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.payouts[id]
}

type scriptedTransferer struct {
	mu      sync.Mutex
	calls   int
	outcome []error // per call; nil means success
}

func (s *scriptedTransferer) Transfer(_ context.Context, p *domain.VendorPayout) (*provider.TransferResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.calls < len(s.outcome) {
		err = s.outcome[s.calls]
	}
	s.calls++
	if err != nil {
		return nil, err
	}
	return &provider.TransferResult{Reference: provider.IdempotencyKey(p), Status: "completed"}, nil
}

func (s *scriptedTransferer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func duePayout(id int64) *domain.VendorPayout {
	return &domain.VendorPayout{
		ID:           id,
		OrderID:      uuid.New(),
		VendorID:     id,
		NetAmount:    decimal.RequireFromString("180.00"),
		Currency:     "USD",
		Status:       domain.PayoutStatusPending,
		ScheduledFor: time.Now().Add(-time.Minute),
	}
}

func TestProcessDue_ConcurrentPassesClaimEachPayoutOnce(t *testing.T) {
	repo := newMemRepo(duePayout(1))
	transferer := &scriptedTransferer{}
	w := NewWorker(DefaultConfig(), repo, transferer)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.ProcessDue(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, transferer.callCount())
	assert.Equal(t, domain.PayoutStatusCompleted, repo.get(1).Status)
}

func TestProcessDue_RetriesWithBackoffUntilSuccess(t *testing.T) {
	repo := newMemRepo(duePayout(1))
	transferer := &scriptedTransferer{outcome: []error{
		errors.New("provider timeout"),
		errors.New("provider timeout"),
		nil,
	}}
	w := NewWorker(DefaultConfig(), repo, transferer)

	w.ProcessDue(context.Background())
	after1 := repo.get(1)
	assert.Equal(t, domain.PayoutStatusPending, after1.Status)
	assert.Equal(t, 1, after1.RetryCount)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), after1.ScheduledFor, time.Minute)

	// the row is not due until its backoff passes
	w.ProcessDue(context.Background())
	assert.Equal(t, 1, transferer.callCount())

	// pull the schedule back to simulate the backoff elapsing
	require.NoError(t, repo.Requeue(context.Background(), 1, "provider timeout", time.Now().Add(-time.Second)))
	repo.mu.Lock()
	repo.payouts[1].RetryCount = 1
	repo.mu.Unlock()

	w.ProcessDue(context.Background())
	after2 := repo.get(1)
	assert.Equal(t, 2, after2.RetryCount)

	require.NoError(t, repo.Requeue(context.Background(), 1, "provider timeout", time.Now().Add(-time.Second)))
	repo.mu.Lock()
	repo.payouts[1].RetryCount = 2
	repo.mu.Unlock()

	w.ProcessDue(context.Background())
	final := repo.get(1)
	assert.Equal(t, domain.PayoutStatusCompleted, final.Status)
	assert.Equal(t, 2, final.RetryCount)
	assert.NotEmpty(t, final.TransferRef)
}

func TestProcessDue_ExhaustedRetriesParkThePayout(t *testing.T) {
	p := duePayout(1)
	p.RetryCount = domain.MaxRetries
	repo := newMemRepo(p)
	transferer := &scriptedTransferer{outcome: []error{errors.New("account closed")}}
	w := NewWorker(DefaultConfig(), repo, transferer)

	w.ProcessDue(context.Background())

	final := repo.get(1)
	assert.Equal(t, domain.PayoutStatusFailed, final.Status)
	assert.Equal(t, "account closed", final.FailureReason)
}
