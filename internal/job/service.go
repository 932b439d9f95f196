package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/smartdub-api/internal/account"
	"github.com/maauso/smartdub-api/internal/metrics"
)

// ErrInvalidSubmission is returned when submit input fails validation.
var ErrInvalidSubmission = errors.New("job: invalid submission")

// SubmitInput contains the parameters of a submission.
type SubmitInput struct {
	AccountCode string `validate:"required,max=64"`
	// InputPath is the stored upload. The caller removes it when Submit fails.
	InputPath string `validate:"required"`
	// TargetLanguage is a language or locale identifier, e.g. "es" or "pt-BR".
	TargetLanguage string `validate:"required,printascii,max=35"`
}

// StatusView is what get_status exposes: no stage names, no error text.
type StatusView struct {
	ID        int64
	Status    Status
	OutputRef string
}

// Kicker starts a drain of the queue without blocking.
type Kicker interface {
	Kick()
}

// Service is the submission gate and status reader.
type Service struct {
	repo     Repository
	ledger   account.Ledger
	kicker   Kicker
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService creates the submission gate. kicker may be nil, in which case
// admitted jobs wait for the orchestrator's poll loop.
func NewService(repo Repository, ledger account.Ledger, kicker Kicker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		ledger:   ledger,
		kicker:   kicker,
		validate: validator.New(),
		logger:   logger,
	}
}

// Submit admits a job: it spends one submission credit and stores the job as
// queued. On any error neither side effect remains.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Job, error) {
	in.TargetLanguage = strings.TrimSpace(in.TargetLanguage)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}

	if err := s.ledger.ReserveCredit(ctx, in.AccountCode); err != nil {
		metrics.IncAdmissionRejected(rejectionReason(err))
		s.logger.Info("submission rejected",
			slog.String("account", in.AccountCode),
			slog.String("reason", err.Error()),
		)
		return nil, err
	}

	job := New(in.AccountCode, in.InputPath, in.TargetLanguage)
	if err := s.repo.Create(ctx, job); err != nil {
		if rerr := s.ledger.AddCredits(context.WithoutCancel(ctx), in.AccountCode, 1); rerr != nil {
			s.logger.Error("failed to restore credit",
				slog.String("account", in.AccountCode),
				slog.String("error", rerr.Error()),
			)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	metrics.IncJobAdmitted()
	s.logger.Info("job admitted",
		slog.Int64("job_id", job.ID),
		slog.String("account", in.AccountCode),
		slog.String("target_language", in.TargetLanguage),
	)

	if s.kicker != nil {
		s.kicker.Kick()
	}
	return job, nil
}

// GetStatus returns the externally visible state of a job.
func (s *Service) GetStatus(ctx context.Context, id int64) (StatusView, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	view := StatusView{ID: job.ID, Status: job.Status}
	if job.Status == StatusDone {
		view.OutputRef = job.OutputRef
	}
	return view, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, account.ErrAccountNotFound):
		return "unknown_account"
	case errors.Is(err, account.ErrInsufficientCredits):
		return "credits"
	case errors.Is(err, account.ErrUsageExhausted):
		return "usage"
	default:
		return "error"
	}
}
