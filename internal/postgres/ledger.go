package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maauso/smartdub-api/internal/account"
)

var _ account.Ledger = (*Ledger)(nil)

const uniqueViolation = "23505"

// Ledger is an account.Ledger backed by the accounts table. Every
// mutation is a single UPDATE.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a Ledger.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) Create(ctx context.Context, a *account.Account) error {
	const q = `
INSERT INTO accounts (code, external_id, plan, usage_remaining, credits_remaining, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := l.pool.Exec(ctx, q, a.Code, a.ExternalID, string(a.Plan), a.UsageRemaining, a.CreditsRemaining, a.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return account.ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (l *Ledger) FindByCode(ctx context.Context, code string) (*account.Account, error) {
	const q = `
SELECT code, external_id, plan, usage_remaining, credits_remaining, created_at
FROM accounts WHERE code = $1`

	var (
		a    account.Account
		plan string
	)
	err := l.pool.QueryRow(ctx, q, code).Scan(&a.Code, &a.ExternalID, &plan, &a.UsageRemaining, &a.CreditsRemaining, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}
	a.Plan = account.Plan(plan)
	return &a, nil
}

func (l *Ledger) BindExternalID(ctx context.Context, code, externalID string) error {
	const q = `
UPDATE accounts SET external_id = $2
WHERE code = $1 AND (external_id = '' OR external_id = $2)`

	tag, err := l.pool.Exec(ctx, q, code, externalID)
	if err != nil {
		return fmt.Errorf("bind account: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := l.FindByCode(ctx, code); err != nil {
		return err
	}
	return account.ErrAlreadyBound
}

// ReserveCredit spends one credit only if both counters are positive. When
// no row is updated the current balances tell which check refused it.
func (l *Ledger) ReserveCredit(ctx context.Context, code string) error {
	const q = `
UPDATE accounts SET credits_remaining = credits_remaining - 1
WHERE code = $1 AND credits_remaining > 0 AND usage_remaining > 0`

	tag, err := l.pool.Exec(ctx, q, code)
	if err != nil {
		return fmt.Errorf("reserve credit: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	a, err := l.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if a.CreditsRemaining <= 0 {
		return account.ErrInsufficientCredits
	}
	return account.ErrUsageExhausted
}

func (l *Ledger) DecrementCredits(ctx context.Context, code string, n int) error {
	return l.adjust(ctx, "credits_remaining", code, -n)
}

func (l *Ledger) DecrementUsage(ctx context.Context, code string, units int) error {
	return l.adjust(ctx, "usage_remaining", code, -units)
}

func (l *Ledger) CreditUsage(ctx context.Context, code string, units int) error {
	return l.adjust(ctx, "usage_remaining", code, units)
}

func (l *Ledger) AddCredits(ctx context.Context, code string, n int) error {
	return l.adjust(ctx, "credits_remaining", code, n)
}

// adjust adds delta to column. Missing accounts update zero rows, which is
// not an error.
func (l *Ledger) adjust(ctx context.Context, column, code string, delta int) error {
	q := fmt.Sprintf(`UPDATE accounts SET %[1]s = %[1]s + $2 WHERE code = $1`, column)
	if _, err := l.pool.Exec(ctx, q, code, delta); err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	return nil
}
