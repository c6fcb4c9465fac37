// Package provider is the HTTP client toward the external transfer provider
// that moves payout money to vendor bank accounts. Calls carry an idempotency
// key derived from the payout, so a retried request never doubles a transfer.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"github.com/vendora/marketplace/internal/payout/domain"
)

var ErrTransferRejected = errors.New("transfer rejected by provider")

type TransferResult struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// Transferer initiates one bank transfer for a payout.
type Transferer interface {
	Transfer(ctx context.Context, payout *domain.VendorPayout) (*TransferResult, error)
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*TransferResult]
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	settings := gobreaker.Settings{
		Name:    "payout-provider",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[*TransferResult](settings),
	}
}

type transferRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	AccountNumber string          `json:"account_number"`
	AccountHolder string          `json:"account_holder"`
	BankName      string          `json:"bank_name"`
	Reference     string          `json:"reference"`
}

func (c *Client) Transfer(ctx context.Context, payout *domain.VendorPayout) (*TransferResult, error) {
	return c.breaker.Execute(func() (*TransferResult, error) {
		return c.doTransfer(ctx, payout)
	})
}

func (c *Client) doTransfer(ctx context.Context, payout *domain.VendorPayout) (*TransferResult, error) {
	body, err := json.Marshal(transferRequest{
		Amount:        payout.NetAmount,
		Currency:      payout.Currency,
		AccountNumber: payout.Bank.AccountNumber,
		AccountHolder: payout.Bank.AccountHolder,
		BankName:      payout.Bank.BankName,
		Reference:     IdempotencyKey(payout),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Idempotency-Key", IdempotencyKey(payout))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call transfer provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrTransferRejected, resp.StatusCode, raw)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("transfer provider returned status %d", resp.StatusCode)
	}

	var result TransferResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode transfer response: %w", err)
	}
	return &result, nil
}

// IdempotencyKey is stable across attempts of the same payout: retries of the
// same (order, vendor) obligation reuse it, so the provider deduplicates them.
func IdempotencyKey(payout *domain.VendorPayout) string {
	return fmt.Sprintf("payout-%s-%d", payout.OrderID, payout.VendorID)
}

var _ Transferer = (*Client)(nil)
