package domain

import "context"

// Ledger moves value of a single fungible unit of account between accounts:
// participant balances, per-arena escrow accounts, and the treasury.
// Transfers are all-or-nothing; a failed transfer leaves both balances
// unchanged.
type Ledger interface {
	// Transfer moves amount from one account to another. It returns
	// ErrInsufficientFunds when the source balance is too small.
	Transfer(ctx context.Context, from, to string, amount uint64) error
	// Balance returns the current balance of an account; unknown accounts
	// have a zero balance.
	Balance(ctx context.Context, account string) (uint64, error)
	// Deposit credits an account out of thin air. It exists for faucet-style
	// funding and tests; production funding arrives through Transfer from an
	// on-ramp account.
	Deposit(ctx context.Context, account string, amount uint64) error
	// Withdraw debits an account, removing the value from circulation. It
	// returns ErrInsufficientFunds when the balance is too small.
	Withdraw(ctx context.Context, account string, amount uint64) error
}
