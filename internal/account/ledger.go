package account

import "context"

// Ledger persists accounts and their counters.
//
// The counter mutations (DecrementCredits, DecrementUsage, CreditUsage,
// AddCredits) are silent no-ops when the account does not exist. Each
// individual mutation is atomic with respect to concurrent callers.
type Ledger interface {
	// Create stores a new account. Returns ErrCodeTaken on a code collision.
	Create(ctx context.Context, a *Account) error

	// FindByCode returns the account or ErrAccountNotFound.
	FindByCode(ctx context.Context, code string) (*Account, error)

	// BindExternalID sets the external identity once. Binding the same
	// identity again succeeds; a different one returns ErrAlreadyBound.
	BindExternalID(ctx context.Context, code, externalID string) error

	// ReserveCredit checks and spends one submission credit in a single
	// atomic step. It returns ErrAccountNotFound, ErrInsufficientCredits or
	// ErrUsageExhausted without changing anything when admission is refused.
	ReserveCredit(ctx context.Context, code string) error

	// DecrementCredits removes n submission credits.
	DecrementCredits(ctx context.Context, code string, n int) error

	// DecrementUsage removes units of usage time. No floor is applied.
	DecrementUsage(ctx context.Context, code string, units int) error

	// CreditUsage adds units of usage time.
	CreditUsage(ctx context.Context, code string, units int) error

	// AddCredits adds n submission credits.
	AddCredits(ctx context.Context, code string, n int) error
}
