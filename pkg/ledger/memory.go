package ledger

import (
	"context"
	"sync"
)

// Memory is an in-process ledger used by tests and standalone mode. Balances
// start at zero unless seeded; FailCredits forces Credit to fail so callers
// can exercise their rollback paths.
type Memory struct {
	mu          sync.Mutex
	balances    map[string]int64
	FailCredits error
	FailDebits  error
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[string]int64),
	}
}

func (m *Memory) Seed(userID string, amountCents int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = amountCents
}

func (m *Memory) Balance(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID]
}

func (m *Memory) Debit(ctx context.Context, userID string, amountCents int64, reason, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailDebits != nil {
		return m.FailDebits
	}
	if m.balances[userID] < amountCents {
		return ErrInsufficientFunds
	}
	m.balances[userID] -= amountCents
	return nil
}

func (m *Memory) Credit(ctx context.Context, userID string, amountCents int64, reason, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCredits != nil {
		return m.FailCredits
	}
	m.balances[userID] += amountCents
	return nil
}
