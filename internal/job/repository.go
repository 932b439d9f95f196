package job

import (
	"context"
	"errors"
)

var (
	// ErrJobNotFound is returned when a job cannot be found by ID.
	ErrJobNotFound = errors.New("job: not found")
	// ErrNoQueuedJobs is returned by ClaimNext when the queue is empty.
	ErrNoQueuedJobs = errors.New("job: no queued jobs")
)

// Repository defines the interface for job persistence.
// Every method is atomic with respect to concurrent callers.
type Repository interface {
	// Create stores a new queued job and assigns its ID.
	Create(ctx context.Context, job *Job) error

	// FindByID retrieves a job by its identifier.
	// Returns ErrJobNotFound if the job does not exist.
	FindByID(ctx context.Context, id int64) (*Job, error)

	// ClaimNext moves the oldest queued job (by CreatedAt, then ID) to
	// processing and returns it. Returns ErrNoQueuedJobs when none is queued.
	ClaimNext(ctx context.Context) (*Job, error)

	// Finish stores the terminal state of a job. The stored job must still
	// be processing, otherwise ErrInvalidTransition is returned.
	Finish(ctx context.Context, job *Job) error

	// ListByStatus returns jobs in the given status ordered by ID.
	ListByStatus(ctx context.Context, status Status) ([]*Job, error)

	// CountByStatus returns the number of jobs in the given status.
	CountByStatus(ctx context.Context, status Status) (int, error)
}
