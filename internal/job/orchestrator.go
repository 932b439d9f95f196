package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maauso/smartdub-api/internal/account"
	"github.com/maauso/smartdub-api/internal/metrics"
	"github.com/maauso/smartdub-api/internal/pipeline"
)

// interruptedMessage is recorded on jobs found processing at startup.
const interruptedMessage = "interrupted before completion"

// Runner executes the dubbing stages for one job.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) pipeline.Result
	Transients(in pipeline.Input) []string
}

// Cleaner removes files. Missing files are not an error.
type Cleaner interface {
	CleanupTemp(ctx context.Context, paths []string) error
}

// Orchestrator drains the queue one job at a time. Only the caller holding
// the exclusivity token processes jobs; every other caller returns at once.
type Orchestrator struct {
	repo    Repository
	ledger  account.Ledger
	runner  Runner
	cleaner Cleaner
	logger  *slog.Logger
	token   Token

	pollInterval    time.Duration
	usageUnit       int
	cleanupAttempts int
	cleanupBackoff  time.Duration

	// unsettled is a finished job whose terminal state could not be
	// stored yet. Only the token holder touches it.
	unsettled *settlement

	closing atomic.Bool
	wg      sync.WaitGroup
}

// settlement is a job in its terminal state together with the files to
// remove once that state is stored.
type settlement struct {
	job   *Job
	paths []string
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithPollInterval sets how often Run looks for queued jobs.
func WithPollInterval(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithUsageUnit sets how much usage time a finished job consumes.
func WithUsageUnit(units int) OrchestratorOption {
	return func(o *Orchestrator) {
		if units > 0 {
			o.usageUnit = units
		}
	}
}

// WithCleanupRetry sets how many times terminal writes and cleanup are
// attempted and the base backoff between attempts.
func WithCleanupRetry(attempts int, backoff time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if attempts > 0 {
			o.cleanupAttempts = attempts
		}
		o.cleanupBackoff = backoff
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(repo Repository, ledger account.Ledger, runner Runner, cleaner Cleaner, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		repo:            repo,
		ledger:          ledger,
		runner:          runner,
		cleaner:         cleaner,
		logger:          logger,
		pollInterval:    2 * time.Second,
		usageUnit:       1,
		cleanupAttempts: 3,
		cleanupBackoff:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Busy reports whether a drain is in progress.
func (o *Orchestrator) Busy() bool {
	return o.token.Held()
}

// Kick starts a drain in the background. It returns immediately; if a drain
// is already running the new goroutine exits without side effects.
func (o *Orchestrator) Kick() {
	if o.closing.Load() {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.TryDrain(context.Background())
	}()
}

// Run polls for queued jobs until ctx is done. It covers jobs whose Kick was
// lost, e.g. admitted while the process was restarting.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	o.TryDrain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.TryDrain(ctx)
		}
	}
}

// Wait blocks until every drain started by Kick has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown stops new drains and waits for the job in flight to finish, or
// for ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.closing.Store(true)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for o.token.Held() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("orchestrator shutdown: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// TryDrain processes queued jobs until none remain, provided it can take the
// exclusivity token. It reports whether it processed the queue.
func (o *Orchestrator) TryDrain(ctx context.Context) bool {
	drained := false
	for {
		if o.closing.Load() || ctx.Err() != nil {
			return drained
		}
		if !o.token.TryAcquire() {
			return drained
		}
		drained = true

		metrics.SetWorkerBusy(true)
		emptied := o.drain(ctx)
		metrics.SetWorkerBusy(false)
		o.token.Release()

		if !emptied {
			return drained
		}
		// A submission whose Kick found the token held after our last empty
		// claim has nobody else to pick it up.
		n, err := o.repo.CountByStatus(ctx, StatusQueued)
		if err != nil || n == 0 {
			return drained
		}
	}
}

// drain claims and processes jobs until the queue is empty. It reports
// false when it stopped for any other reason.
func (o *Orchestrator) drain(ctx context.Context) bool {
	for {
		if o.closing.Load() || ctx.Err() != nil {
			return false
		}
		// a job still marked processing in the store blocks every claim
		if o.unsettled != nil && !o.settle(context.WithoutCancel(ctx)) {
			return false
		}

		j, err := o.repo.ClaimNext(ctx)
		if errors.Is(err, ErrNoQueuedJobs) {
			metrics.SetQueueDepth(0)
			return true
		}
		if err != nil {
			o.logger.Error("failed to claim job", slog.String("error", err.Error()))
			return false
		}
		if n, err := o.repo.CountByStatus(ctx, StatusQueued); err == nil {
			metrics.SetQueueDepth(n)
		}

		if !o.process(ctx, j) {
			return false
		}
	}
}

// process runs the pipeline for a claimed job and settles it. It reports
// false when the terminal state could not be stored.
func (o *Orchestrator) process(ctx context.Context, j *Job) bool {
	log := o.logger.With(slog.Int64("job_id", j.ID), slog.String("account", j.AccountCode))
	log.Info("job claimed", slog.String("target_language", j.TargetLanguage))

	in := pipeline.Input{JobID: j.ID, VideoPath: j.InputPath, TargetLanguage: j.TargetLanguage}
	res := o.run(ctx, in)

	// finalization must survive cancellation of the drain context
	fctx := context.WithoutCancel(ctx)

	if res.OK() {
		if err := j.Complete(res.Output); err != nil {
			res = pipeline.Failed(pipeline.StageAssemble, err, res.Transient)
		}
	}
	if !res.OK() {
		if err := j.Fail(string(res.Failure.Stage), res.Failure.Err.Error()); err != nil {
			log.Error("failed to mark job as error", slog.String("error", err.Error()))
		}
		log.Warn("job failed",
			slog.String("stage", string(res.Failure.Stage)),
			slog.String("error", res.Failure.Err.Error()),
		)
	}

	o.unsettled = &settlement{job: j, paths: append(res.Transient, j.InputPath)}
	return o.settle(fctx)
}

// settle stores the terminal state of the unsettled job, spends usage on
// success and removes the job's files. The job stays unsettled, and its
// files in place, while the store write keeps failing.
func (o *Orchestrator) settle(ctx context.Context) bool {
	j := o.unsettled.job
	log := o.logger.With(slog.Int64("job_id", j.ID), slog.String("account", j.AccountCode))

	paths := o.unsettled.paths
	err := o.retry(func() error { return o.repo.Finish(ctx, j) })
	switch {
	case errors.Is(err, ErrJobNotFound), errors.Is(err, ErrInvalidTransition):
		// someone else finalized or removed the row; nothing left to record
		log.Error("terminal state rejected by store", slog.String("error", err.Error()))
		o.unsettled = nil
		o.cleanup(ctx, j.ID, paths)
		return true
	case err != nil:
		log.Error("failed to record terminal state",
			slog.String("status", string(j.GetStatus())),
			slog.String("error", err.Error()),
		)
		return false
	}

	o.unsettled = nil
	metrics.IncJobFinished(string(j.GetStatus()))
	if j.GetStatus() == StatusDone {
		if err := o.ledger.DecrementUsage(ctx, j.AccountCode, o.usageUnit); err != nil {
			log.Error("failed to decrement usage", slog.String("error", err.Error()))
		}
		log.Info("job done", slog.String("output", j.OutputRef))
	}

	o.cleanup(ctx, j.ID, paths)
	return true
}

// run invokes the runner, turning a panic into a failed result.
func (o *Orchestrator) run(ctx context.Context, in pipeline.Input) (res pipeline.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = pipeline.Failed("", fmt.Errorf("%w: %v", pipeline.ErrStagePanic, r), o.runner.Transients(in))
		}
	}()
	return o.runner.Run(ctx, in)
}

func (o *Orchestrator) cleanup(ctx context.Context, jobID int64, paths []string) {
	paths = dedupe(paths)
	err := o.retry(func() error { return o.cleaner.CleanupTemp(ctx, paths) })
	if err == nil {
		return
	}
	metrics.IncCleanupFailure()
	o.logger.Error("failed to clean up transient files",
		slog.Int64("job_id", jobID),
		slog.Int("files", len(paths)),
		slog.String("error", err.Error()),
	)
}

// Recover finalizes jobs left in processing by a previous process as error
// and removes their files. It must run before the first drain.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	stale, err := o.repo.ListByStatus(ctx, StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("list processing jobs: %w", err)
	}

	recovered := 0
	for _, j := range stale {
		if err := j.Fail("", interruptedMessage); err != nil {
			return recovered, err
		}
		if err := o.repo.Finish(ctx, j); err != nil {
			return recovered, fmt.Errorf("finish job %d: %w", j.ID, err)
		}
		metrics.IncJobFinished(string(StatusError))

		in := pipeline.Input{JobID: j.ID, VideoPath: j.InputPath, TargetLanguage: j.TargetLanguage}
		o.cleanup(ctx, j.ID, append(o.runner.Transients(in), j.InputPath))
		recovered++

		o.logger.Warn("interrupted job marked as error", slog.Int64("job_id", j.ID))
	}
	return recovered, nil
}

// retry calls fn up to cleanupAttempts times with exponential backoff and
// returns the last error.
func (o *Orchestrator) retry(fn func() error) error {
	var err error
	for attempt := range o.cleanupAttempts {
		if attempt > 0 {
			time.Sleep(o.cleanupBackoff * time.Duration(1<<(attempt-1)))
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
