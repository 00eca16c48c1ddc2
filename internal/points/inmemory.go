package points

import (
	"context"
	"sync"
)

// InMemoryLedger is a simple in-process ledger for local/dev use. Every user
// starts from the same initial grant.
type InMemoryLedger struct {
	mu           sync.Mutex
	balances     map[string]int
	initialGrant int
}

func NewInMemoryLedger(initialGrant int) *InMemoryLedger {
	if initialGrant < 0 {
		initialGrant = 0
	}
	return &InMemoryLedger{
		balances:     make(map[string]int),
		initialGrant: initialGrant,
	}
}

func (l *InMemoryLedger) Balance(_ context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(userID), nil
}

func (l *InMemoryLedger) Charge(_ context.Context, userID string, amount int, _ string) error {
	if amount <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.balance(userID)
	if current < amount {
		return ErrInsufficient
	}
	l.balances[userID] = current - amount
	return nil
}

func (l *InMemoryLedger) Close() error { return nil }

// balance must be called with the lock held.
func (l *InMemoryLedger) balance(userID string) int {
	if b, ok := l.balances[userID]; ok {
		return b
	}
	return l.initialGrant
}
