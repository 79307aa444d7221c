package repository

import "context"

// Ledger is the virtual-stars balance collaborator. Debit and Credit report
// false for business refusals (insufficient funds, non-positive amount) and
// reserve the error return for infrastructure failures.
type Ledger interface {
	// EnsureUser registers the user and opens a balance with initialBalance
	// if none exists yet. Existing balances are never overwritten.
	EnsureUser(ctx context.Context, userID, initialBalance int64) error
	GetBalance(ctx context.Context, userID int64) (int64, error)
	// Debit withdraws amount if the balance covers it, atomically.
	Debit(ctx context.Context, userID, amount int64, reason string) (bool, error)
	Credit(ctx context.Context, userID, amount int64, reason string) (bool, error)
}
