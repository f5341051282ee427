// Package ledger is the client side of the external balance ledger. The core
// only debits and credits; durable balance bookkeeping lives in the ledger
// service itself.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

type Ledger interface {
	// Debit withdraws amountCents from the user's balance. It returns
	// ErrInsufficientFunds when the balance cannot cover the amount; no
	// partial debit happens in that case.
	Debit(ctx context.Context, userID string, amountCents int64, reason, entryID string) error

	// Credit adds amountCents to the user's balance.
	Credit(ctx context.Context, userID string, amountCents int64, reason, entryID string) error
}

type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
}

type httpLedger struct {
	baseURL string
	cli     *http.Client
}

// NewHTTP returns a Ledger speaking the ledger service's REST API.
func NewHTTP(cfg HTTPConfig) Ledger {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &httpLedger{
		baseURL: cfg.BaseURL,
		cli:     &http.Client{Timeout: timeout},
	}
}

type transactionRequest struct {
	UserID      string `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
	EntryID     string `json:"entry_id,omitempty"`
}

func (l *httpLedger) Debit(ctx context.Context, userID string, amountCents int64, reason, entryID string) error {
	return l.post(ctx, "/v1/debits", transactionRequest{
		UserID:      userID,
		AmountCents: amountCents,
		Reason:      reason,
		EntryID:     entryID,
	})
}

func (l *httpLedger) Credit(ctx context.Context, userID string, amountCents int64, reason, entryID string) error {
	return l.post(ctx, "/v1/credits", transactionRequest{
		UserID:      userID,
		AmountCents: amountCents,
		Reason:      reason,
		EntryID:     entryID,
	})
}

func (l *httpLedger) post(ctx context.Context, path string, body transactionRequest) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.cli.Do(req)
	if err != nil {
		return fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusPaymentRequired:
		return ErrInsufficientFunds
	default:
		return fmt.Errorf("ledger returned status %d", resp.StatusCode)
	}
}
