package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type operation struct {
	ID        string
	UserID    int64
	Amount    int64
	Reason    string
	CreatedAt time.Time
}

// Ledger is the in-process balance store used by tests and local mode.
type Ledger struct {
	mu       sync.Mutex
	balances map[int64]int64
	journal  []operation
}

func New() *Ledger {
	return &Ledger{balances: make(map[int64]int64)}
}

func (l *Ledger) EnsureUser(_ context.Context, userID, initialBalance int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[userID]; !ok {
		l.balances[userID] = initialBalance
	}
	return nil
}

func (l *Ledger) GetBalance(_ context.Context, userID int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *Ledger) Debit(_ context.Context, userID, amount int64, reason string) (bool, error) {
	if amount <= 0 {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[userID] < amount {
		return false, nil
	}
	l.balances[userID] -= amount
	l.record(userID, -amount, reason)
	return true, nil
}

func (l *Ledger) Credit(_ context.Context, userID, amount int64, reason string) (bool, error) {
	if amount <= 0 {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += amount
	l.record(userID, amount, reason)
	return true, nil
}

func (l *Ledger) record(userID, amount int64, reason string) {
	l.journal = append(l.journal, operation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	})
}

// Operations returns the journal entries for a user, oldest first.
func (l *Ledger) Operations(userID int64) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var reasons []string
	for _, op := range l.journal {
		if op.UserID == userID {
			reasons = append(reasons, op.Reason)
		}
	}
	return reasons
}
