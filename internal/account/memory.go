package account

import (
	"context"
	"sync"
)

var _ Ledger = (*MemoryLedger)(nil)

// MemoryLedger is an in-memory Ledger guarded by a single mutex.
type MemoryLedger struct {
	mu       sync.Mutex
	accounts map[string]*Account
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{accounts: make(map[string]*Account)}
}

// Create stores a clone of a. Returns ErrCodeTaken if the code exists.
func (l *MemoryLedger) Create(_ context.Context, a *Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[a.Code]; ok {
		return ErrCodeTaken
	}
	l.accounts[a.Code] = a.Clone()
	return nil
}

// FindByCode retrieves a clone of the account with code.
func (l *MemoryLedger) FindByCode(_ context.Context, code string) (*Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[code]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return a.Clone(), nil
}

// BindExternalID sets the external identity once.
func (l *MemoryLedger) BindExternalID(_ context.Context, code, externalID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[code]
	if !ok {
		return ErrAccountNotFound
	}
	switch a.ExternalID {
	case externalID:
		return nil
	case "":
		a.ExternalID = externalID
		return nil
	default:
		return ErrAlreadyBound
	}
}

// ReserveCredit spends one submission credit if the account may submit.
func (l *MemoryLedger) ReserveCredit(_ context.Context, code string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[code]
	if !ok {
		return ErrAccountNotFound
	}
	if a.CreditsRemaining <= 0 {
		return ErrInsufficientCredits
	}
	if a.UsageRemaining <= 0 {
		return ErrUsageExhausted
	}
	a.CreditsRemaining--
	return nil
}

// DecrementCredits removes n submission credits.
func (l *MemoryLedger) DecrementCredits(_ context.Context, code string, n int) error {
	l.update(code, func(a *Account) { a.CreditsRemaining -= n })
	return nil
}

// DecrementUsage removes units of usage time without a floor.
func (l *MemoryLedger) DecrementUsage(_ context.Context, code string, units int) error {
	l.update(code, func(a *Account) { a.UsageRemaining -= units })
	return nil
}

// CreditUsage adds units of usage time.
func (l *MemoryLedger) CreditUsage(_ context.Context, code string, units int) error {
	l.update(code, func(a *Account) { a.UsageRemaining += units })
	return nil
}

// AddCredits adds n submission credits.
func (l *MemoryLedger) AddCredits(_ context.Context, code string, n int) error {
	l.update(code, func(a *Account) { a.CreditsRemaining += n })
	return nil
}

// update applies fn under the lock; missing accounts are ignored.
func (l *MemoryLedger) update(code string, fn func(*Account)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.accounts[code]; ok {
		fn(a)
	}
}
