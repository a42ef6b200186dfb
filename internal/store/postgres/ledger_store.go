package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// LedgerStore implements domain.Ledger on a balances table. Transfers run in
// a transaction: the debit is a conditional UPDATE that only fires when the
// source balance covers the amount, so overdrafts are impossible even under
// concurrent transfers.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Transfer moves amount from one account to another.
func (s *LedgerStore) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	const debit = `
		UPDATE balances SET balance = balance - $2
		WHERE account = $1 AND balance >= $2`

	tag, err := tx.Exec(ctx, debit, from, int64(amount))
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}

	const credit = `
		INSERT INTO balances (account, balance) VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET balance = balances.balance + EXCLUDED.balance`

	if _, err := tx.Exec(ctx, credit, to, int64(amount)); err != nil {
		return fmt.Errorf("postgres: credit %s: %w", to, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit transfer: %w", err)
	}
	return nil
}

// Balance returns the current balance of an account; unknown accounts have a
// zero balance.
func (s *LedgerStore) Balance(ctx context.Context, account string) (uint64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM balances WHERE account = $1`, account,
	).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: balance %s: %w", account, err)
	}
	return uint64(balance), nil
}

// Deposit credits an account.
func (s *LedgerStore) Deposit(ctx context.Context, account string, amount uint64) error {
	if amount == 0 {
		return nil
	}

	const query = `
		INSERT INTO balances (account, balance) VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET balance = balances.balance + EXCLUDED.balance`

	if _, err := s.pool.Exec(ctx, query, account, int64(amount)); err != nil {
		return fmt.Errorf("postgres: deposit %s: %w", account, err)
	}
	return nil
}

// Withdraw debits an account. The conditional UPDATE makes overdrafts
// impossible under concurrent withdrawals.
func (s *LedgerStore) Withdraw(ctx context.Context, account string, amount uint64) error {
	if amount == 0 {
		return nil
	}

	const query = `
		UPDATE balances SET balance = balance - $2
		WHERE account = $1 AND balance >= $2`

	tag, err := s.pool.Exec(ctx, query, account, int64(amount))
	if err != nil {
		return fmt.Errorf("postgres: withdraw %s: %w", account, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}
