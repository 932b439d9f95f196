package job

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/maauso/smartdub-api/internal/job/id"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// It uses a map with RWMutex for thread-safe access and hands out clones.
type MemoryRepository struct {
	mu   sync.RWMutex
	seq  *id.Sequence
	jobs map[int64]*Job
	now  func() time.Time
}

// NewMemoryRepository creates a new in-memory job repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		seq:  id.NewSequence(0),
		jobs: make(map[int64]*Job),
		now:  time.Now,
	}
}

// Create assigns the next ID and the submission time to job and stores a
// clone. Both are taken under the same lock, so ID order is time order.
func (r *MemoryRepository) Create(_ context.Context, job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job.ID = r.seq.Next()
	job.CreatedAt = r.now()
	job.UpdatedAt = job.CreatedAt
	r.jobs[job.ID] = job.Clone()
	return nil
}

// FindByID retrieves a job by its ID.
func (r *MemoryRepository) FindByID(_ context.Context, id int64) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// ClaimNext picks the oldest queued job and starts it.
func (r *MemoryRepository) ClaimNext(_ context.Context) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next *Job
	for _, j := range r.jobs {
		if j.Status != StatusQueued {
			continue
		}
		if next == nil || before(j, next) {
			next = j
		}
	}
	if next == nil {
		return nil, ErrNoQueuedJobs
	}
	if err := next.Start(); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// Finish replaces the stored processing job with its terminal state.
func (r *MemoryRepository) Finish(_ context.Context, job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[job.ID]
	if !ok {
		return ErrJobNotFound
	}
	if stored.Status != StatusProcessing || !job.IsTerminal() {
		return ErrInvalidTransition
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

// ListByStatus returns clones of the jobs in status, ordered by ID.
func (r *MemoryRepository) ListByStatus(_ context.Context, status Status) ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Job, 0)
	for _, j := range r.jobs {
		if j.Status == status {
			result = append(result, j.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *Job) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}

// CountByStatus counts the jobs in status.
func (r *MemoryRepository) CountByStatus(_ context.Context, status Status) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, j := range r.jobs {
		if j.Status == status {
			n++
		}
	}
	return n, nil
}

// before orders jobs by submission time, then ID.
func before(a, b *Job) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
