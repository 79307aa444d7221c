package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// Ledger keeps balances in postgres. Debits are single conditional updates
// guarded on the current balance, never read-then-write; every applied
// operation leaves a journal row.
type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger { return &Ledger{db: db} }

func (l *Ledger) EnsureUser(ctx context.Context, userID, initialBalance int64) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id) VALUES ($1)
		 ON CONFLICT (id) DO UPDATE SET last_seen_at = now()`, userID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO balances (user_id, balance) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`, userID, initialBalance)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (l *Ledger) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx,
		`SELECT balance FROM balances WHERE user_id = $1`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}

func (l *Ledger) Debit(ctx context.Context, userID, amount int64, reason string) (bool, error) {
	if amount <= 0 {
		return false, nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE balances SET balance = balance - $2, updated_at = now()
		 WHERE user_id = $1 AND balance >= $2`, userID, amount)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		_ = tx.Rollback()
		return false, nil
	}
	if err = l.journal(ctx, tx, userID, -amount, reason); err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Ledger) Credit(ctx context.Context, userID, amount int64, reason string) (bool, error) {
	if amount <= 0 {
		return false, nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`UPDATE balances SET balance = balance + $2, updated_at = now()
		 WHERE user_id = $1`, userID, amount)
	if err != nil {
		return false, err
	}
	if err = l.journal(ctx, tx, userID, amount, reason); err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Ledger) journal(ctx context.Context, tx *sql.Tx, userID, amount int64, reason string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO balance_operations (id, user_id, amount, reason) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), userID, amount, reason)
	return err
}
