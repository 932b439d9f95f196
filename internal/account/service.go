package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// maxCodeAttempts bounds code regeneration on collisions.
const maxCodeAttempts = 5

// State is the externally visible entitlement summary of an account.
type State struct {
	Authorized       bool
	UsageRemaining   int
	CreditsRemaining int
	Plan             Plan
}

// Service implements account operations on top of a Ledger.
type Service struct {
	ledger      Ledger
	logger      *slog.Logger
	defaultPlan Plan
	newCode     func() string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithDefaultPlan sets the plan used when Register is called without one.
func WithDefaultPlan(p Plan) ServiceOption {
	return func(s *Service) {
		s.defaultPlan = p
	}
}

// WithCodeGenerator replaces the account code generator.
func WithCodeGenerator(fn func() string) ServiceOption {
	return func(s *Service) {
		s.newCode = fn
	}
}

// NewService creates an account Service.
func NewService(ledger Ledger, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		ledger:      ledger,
		logger:      logger,
		defaultPlan: PlanFree,
		newCode:     NewCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account on the given plan (or the default plan when
// plan is empty) and returns it with its freshly generated code.
func (s *Service) Register(ctx context.Context, plan Plan) (*Account, error) {
	if plan == "" {
		plan = s.defaultPlan
	}
	if !plan.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, plan)
	}

	for range maxCodeAttempts {
		a := New(s.newCode(), plan)
		err := s.ledger.Create(ctx, a)
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create account: %w", err)
		}
		s.logger.Info("account registered",
			slog.String("code", a.Code),
			slog.String("plan", string(plan)),
		)
		return a, nil
	}
	return nil, ErrCodeTaken
}

// Bind attaches an external identity to the account.
func (s *Service) Bind(ctx context.Context, code, externalID string) (*Account, error) {
	if err := s.ledger.BindExternalID(ctx, code, externalID); err != nil {
		return nil, err
	}
	return s.ledger.FindByCode(ctx, code)
}

// State returns the entitlement summary for an account.
func (s *Service) State(ctx context.Context, code string) (State, error) {
	a, err := s.ledger.FindByCode(ctx, code)
	if err != nil {
		return State{}, err
	}
	return State{
		Authorized:       a.Authorized(),
		UsageRemaining:   a.UsageRemaining,
		CreditsRemaining: a.CreditsRemaining,
		Plan:             a.Plan,
	}, nil
}

// TopUp adds submission credits to an existing account.
func (s *Service) TopUp(ctx context.Context, code string, credits int) (State, error) {
	if credits <= 0 {
		return State{}, ErrInvalidAmount
	}
	if _, err := s.ledger.FindByCode(ctx, code); err != nil {
		return State{}, err
	}
	if err := s.ledger.AddCredits(ctx, code, credits); err != nil {
		return State{}, fmt.Errorf("add credits: %w", err)
	}
	s.logger.Info("account topped up",
		slog.String("code", code),
		slog.Int("credits", credits),
	)
	return s.State(ctx, code)
}

// GrantUsage adds usage time to an existing account.
func (s *Service) GrantUsage(ctx context.Context, code string, units int) (State, error) {
	if units <= 0 {
		return State{}, ErrInvalidAmount
	}
	if _, err := s.ledger.FindByCode(ctx, code); err != nil {
		return State{}, err
	}
	if err := s.ledger.CreditUsage(ctx, code, units); err != nil {
		return State{}, fmt.Errorf("credit usage: %w", err)
	}
	s.logger.Info("usage granted",
		slog.String("code", code),
		slog.Int("units", units),
	)
	return s.State(ctx, code)
}
