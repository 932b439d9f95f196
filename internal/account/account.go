// Package account holds the entitlement side of the service: accounts, their
// plan tier, and the two counters that gate and meter dubbing work.
package account

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Plan is the subscription tier of an account.
type Plan string

const (
	PlanTrial    Plan = "trial"
	PlanFree     Plan = "free"
	PlanStarter  Plan = "starter"
	PlanPro      Plan = "pro"
	PlanAdvanced Plan = "advanced"
)

// Allowance is the starting balance granted by a plan.
type Allowance struct {
	// Credits is the number of submissions the account may make.
	Credits int
	// Usage is the number of usage units (minutes) the account may consume.
	Usage int
}

var planAllowances = map[Plan]Allowance{
	PlanTrial:    {Credits: 1, Usage: 3},
	PlanFree:     {Credits: 1, Usage: 3},
	PlanStarter:  {Credits: 10, Usage: 100},
	PlanPro:      {Credits: 50, Usage: 3000},
	PlanAdvanced: {Credits: 200, Usage: 24000},
}

// IsValid reports whether p is a known plan.
func (p Plan) IsValid() bool {
	_, ok := planAllowances[p]
	return ok
}

// Allowance returns the starting balance for the plan.
// Unknown plans get a zero allowance.
func (p Plan) Allowance() Allowance {
	return planAllowances[p]
}

var (
	// ErrAccountNotFound is returned when no account matches a code.
	ErrAccountNotFound = errors.New("account: not found")
	// ErrInsufficientCredits is returned by the admission check when the
	// account has no submission credits left.
	ErrInsufficientCredits = errors.New("account: insufficient submission credits")
	// ErrUsageExhausted is returned by the admission check when the account
	// has no usage time left.
	ErrUsageExhausted = errors.New("account: usage time exhausted")
	// ErrAlreadyBound is returned when an account is already bound to a
	// different external identity.
	ErrAlreadyBound = errors.New("account: already bound to another identity")
	// ErrInvalidPlan is returned for an unknown plan name.
	ErrInvalidPlan = errors.New("account: invalid plan")
	// ErrCodeTaken is returned when a generated code collides with an
	// existing account.
	ErrCodeTaken = errors.New("account: code already in use")
	// ErrInvalidAmount is returned for non-positive top-ups.
	ErrInvalidAmount = errors.New("account: amount must be positive")
)

// Account is a customer entitlement record.
type Account struct {
	// Code is the short public key shared with the customer.
	Code string
	// ExternalID is the bound external identity, empty until bound.
	ExternalID string
	Plan       Plan
	// UsageRemaining is decremented once per successfully finished job.
	UsageRemaining int
	// CreditsRemaining is decremented once per admitted submission.
	CreditsRemaining int
	CreatedAt        time.Time
}

// New builds an account on the given plan with the plan's allowance.
func New(code string, plan Plan) *Account {
	allowance := plan.Allowance()
	return &Account{
		Code:             code,
		Plan:             plan,
		UsageRemaining:   allowance.Usage,
		CreditsRemaining: allowance.Credits,
		CreatedAt:        time.Now(),
	}
}

// Authorized reports whether the account is bound to an external identity.
func (a *Account) Authorized() bool {
	return a.ExternalID != ""
}

// Clone returns a copy safe to hand out of a store.
func (a *Account) Clone() *Account {
	c := *a
	return &c
}

// NewCode returns a six character upper-case public account code.
func NewCode() string {
	return strings.ToUpper(uuid.NewString()[:6])
}
