package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/smartdub-api/internal/account"
	"github.com/maauso/smartdub-api/internal/pipeline"
)

// fakeRunner records calls and fails the jobs listed in failAt.
type fakeRunner struct {
	dir    string
	failAt map[int64]pipeline.Stage
	// hook runs inside Run before the result is produced.
	hook func(in pipeline.Input)

	mu        sync.Mutex
	order     []int64
	active    atomic.Int32
	maxActive atomic.Int32
}

func (r *fakeRunner) Transients(in pipeline.Input) []string {
	return []string{
		filepath.Join(r.dir, "source-"+itoa(in.JobID)),
		filepath.Join(r.dir, "dubbed-"+itoa(in.JobID)),
	}
}

func (r *fakeRunner) Run(_ context.Context, in pipeline.Input) pipeline.Result {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		m := r.maxActive.Load()
		if n <= m || r.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	r.mu.Lock()
	r.order = append(r.order, in.JobID)
	r.mu.Unlock()

	transient := r.Transients(in)
	for _, p := range transient {
		_ = os.WriteFile(p, []byte("x"), 0o644)
	}
	if r.hook != nil {
		r.hook(in)
	}

	if stage, ok := r.failAt[in.JobID]; ok {
		return pipeline.Failed(stage, errors.New("stage exploded"), transient)
	}
	return pipeline.Result{Output: "/out/dubbed_" + itoa(in.JobID) + ".mp4", Transient: transient}
}

func (r *fakeRunner) Order() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.order...)
}

type panicRunner struct{ fakeRunner }

func (r *panicRunner) Run(context.Context, pipeline.Input) pipeline.Result {
	panic("nil map write")
}

// fileCleaner removes files and can be told to fail a number of times.
type fileCleaner struct {
	mu       sync.Mutex
	failures int
	calls    int
	removed  []string
}

func (c *fileCleaner) CleanupTemp(_ context.Context, paths []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failures > 0 {
		c.failures--
		return errors.New("device busy")
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
		c.removed = append(c.removed, p)
	}
	return nil
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// flakyRepo fails the next failures calls to Finish with err.
type flakyRepo struct {
	*MemoryRepository
	err      error
	failures atomic.Int32
}

func (r *flakyRepo) Finish(ctx context.Context, j *Job) error {
	if r.failures.Add(-1) >= 0 {
		return r.err
	}
	return r.MemoryRepository.Finish(ctx, j)
}

type harness struct {
	dir     string
	repo    *MemoryRepository
	ledger  *account.MemoryLedger
	runner  *fakeRunner
	cleaner *fileCleaner
	orch    *Orchestrator
	svc     *Service
}

func newHarness(t *testing.T, credits, usage int) *harness {
	t.Helper()
	h := &harness{
		dir:     t.TempDir(),
		repo:    NewMemoryRepository(),
		ledger:  newLedger(t, "ABC123", credits, usage),
		cleaner: &fileCleaner{},
	}
	h.runner = &fakeRunner{dir: h.dir, failAt: map[int64]pipeline.Stage{}}
	h.orch = NewOrchestrator(h.repo, h.ledger, h.runner, h.cleaner, nil, WithCleanupRetry(3, time.Millisecond))
	h.svc = NewService(h.repo, h.ledger, nil, nil)
	return h
}

// submit stores an input file and admits a job for it.
func (h *harness) submit(t *testing.T, name string) *Job {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))
	j, err := h.svc.Submit(context.Background(), SubmitInput{AccountCode: "ABC123", InputPath: path, TargetLanguage: "es"})
	require.NoError(t, err)
	return j
}

func (h *harness) account(t *testing.T) *account.Account {
	t.Helper()
	a, err := h.ledger.FindByCode(context.Background(), "ABC123")
	require.NoError(t, err)
	return a
}

func TestOrchestrator_SuccessfulJob(t *testing.T) {
	h := newHarness(t, 1, 3)
	j := h.submit(t, "in.mp4")

	require.True(t, h.orch.TryDrain(context.Background()))

	stored, err := h.repo.FindByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, stored.Status)
	assert.Equal(t, "/out/dubbed_1.mp4", stored.OutputRef)

	a := h.account(t)
	assert.Equal(t, 2, a.UsageRemaining)
	assert.Equal(t, 0, a.CreditsRemaining)

	assert.NoFileExists(t, j.InputPath)
	for _, p := range h.runner.Transients(pipeline.Input{JobID: j.ID}) {
		assert.NoFileExists(t, p)
	}
	assert.False(t, h.orch.Busy())
}

func TestOrchestrator_FailedJob(t *testing.T) {
	h := newHarness(t, 1, 3)
	j := h.submit(t, "in.mp4")
	h.runner.failAt[j.ID] = pipeline.StageTranscribe

	h.orch.TryDrain(context.Background())

	stored, _ := h.repo.FindByID(context.Background(), j.ID)
	assert.Equal(t, StatusError, stored.Status)
	assert.Empty(t, stored.OutputRef)
	assert.Equal(t, string(pipeline.StageTranscribe), stored.FailedStage)

	a := h.account(t)
	assert.Equal(t, 3, a.UsageRemaining, "usage is only spent on success")
	assert.Equal(t, 0, a.CreditsRemaining, "the admission credit is not refunded")

	assert.NoFileExists(t, j.InputPath)
	for _, p := range h.runner.Transients(pipeline.Input{JobID: j.ID}) {
		assert.NoFileExists(t, p)
	}
}

func TestOrchestrator_FailureDoesNotStopQueue(t *testing.T) {
	h := newHarness(t, 3, 3)
	first := h.submit(t, "a.mp4")
	second := h.submit(t, "b.mp4")
	h.runner.failAt[first.ID] = pipeline.StageSynthesize

	h.orch.TryDrain(context.Background())

	s1, _ := h.repo.FindByID(context.Background(), first.ID)
	s2, _ := h.repo.FindByID(context.Background(), second.ID)
	assert.Equal(t, StatusError, s1.Status)
	assert.Equal(t, StatusDone, s2.Status)
	assert.Equal(t, 2, h.account(t).UsageRemaining)
}

func TestOrchestrator_FIFOAndSingleFlight(t *testing.T) {
	h := newHarness(t, 10, 10)
	h.svc = NewService(h.repo, h.ledger, h.orch, nil)

	release := make(chan struct{})
	h.runner.hook = func(in pipeline.Input) {
		if in.JobID == 1 {
			<-release
		}
	}

	h.submit(t, "first.mp4")
	require.Eventually(t, func() bool { return len(h.runner.Order()) == 1 }, time.Second, time.Millisecond)

	// submitted while job 1 is still running
	h.submit(t, "a.mp4")
	h.submit(t, "b.mp4")
	h.submit(t, "c.mp4")
	assert.False(t, h.orch.TryDrain(context.Background()), "a second drain must not start")

	running, err := h.svc.GetStatus(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, running.Status)
	waiting, err := h.svc.GetStatus(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, waiting.Status)
	assert.Empty(t, waiting.OutputRef)

	close(release)
	h.orch.Wait()

	assert.Equal(t, []int64{1, 2, 3, 4}, h.runner.Order())
	assert.Equal(t, int32(1), h.runner.maxActive.Load())

	n, _ := h.repo.CountByStatus(context.Background(), StatusDone)
	assert.Equal(t, 4, n)
}

func TestOrchestrator_ConcurrentKicks(t *testing.T) {
	h := newHarness(t, 20, 20)
	h.svc = NewService(h.repo, h.ledger, h.orch, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Submit(context.Background(), SubmitInput{AccountCode: "ABC123", InputPath: filepath.Join(h.dir, "x"), TargetLanguage: "es"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	h.orch.Wait()
	h.orch.TryDrain(context.Background())

	assert.Equal(t, int32(1), h.runner.maxActive.Load())
	done, _ := h.repo.CountByStatus(context.Background(), StatusDone)
	assert.Equal(t, 8, done)
	assert.Equal(t, 12, h.account(t).UsageRemaining)
}

func TestOrchestrator_JobAdmittedDuringDrain(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.runner.hook = func(in pipeline.Input) {
		if in.JobID == 1 {
			h.submit(t, "late.mp4")
		}
	}
	h.submit(t, "first.mp4")

	h.orch.TryDrain(context.Background())

	assert.Equal(t, []int64{1, 2}, h.runner.Order())
	queued, _ := h.repo.CountByStatus(context.Background(), StatusQueued)
	assert.Zero(t, queued)
}

func TestOrchestrator_RunnerPanic(t *testing.T) {
	h := newHarness(t, 1, 3)
	runner := &panicRunner{fakeRunner{dir: h.dir}}
	orch := NewOrchestrator(h.repo, h.ledger, runner, h.cleaner, nil)
	j := h.submit(t, "in.mp4")

	orch.TryDrain(context.Background())

	stored, _ := h.repo.FindByID(context.Background(), j.ID)
	assert.Equal(t, StatusError, stored.Status)
	assert.Contains(t, stored.Error, "panicked")
	assert.NoFileExists(t, j.InputPath)
	assert.False(t, orch.Busy())
}

func TestOrchestrator_CleanupRetries(t *testing.T) {
	h := newHarness(t, 1, 3)
	h.cleaner.failures = 2
	j := h.submit(t, "in.mp4")

	h.orch.TryDrain(context.Background())

	assert.Equal(t, 3, h.cleaner.calls)
	assert.NoFileExists(t, j.InputPath)
}

func TestOrchestrator_CleanupGivesUp(t *testing.T) {
	h := newHarness(t, 1, 3)
	h.cleaner.failures = 10
	j := h.submit(t, "in.mp4")

	h.orch.TryDrain(context.Background())

	stored, _ := h.repo.FindByID(context.Background(), j.ID)
	assert.Equal(t, StatusDone, stored.Status, "cleanup failures do not change the outcome")
	assert.Equal(t, 3, h.cleaner.calls)
}

func newFlakyHarness(t *testing.T, err error, failures int32) (*harness, *flakyRepo, *atomic.Int32) {
	t.Helper()
	h := newHarness(t, 2, 3)
	repo := &flakyRepo{MemoryRepository: h.repo, err: err}
	repo.failures.Store(failures)
	h.orch = NewOrchestrator(repo, h.ledger, h.runner, h.cleaner, nil, WithCleanupRetry(3, time.Millisecond))

	var maxProcessing atomic.Int32
	h.runner.hook = func(pipeline.Input) {
		n, _ := h.repo.CountByStatus(context.Background(), StatusProcessing)
		if int32(n) > maxProcessing.Load() {
			maxProcessing.Store(int32(n))
		}
	}
	return h, repo, &maxProcessing
}

func TestOrchestrator_FinishRetried(t *testing.T) {
	h, _, maxProcessing := newFlakyHarness(t, errors.New("connection reset"), 2)
	h.submit(t, "a.mp4")
	h.submit(t, "b.mp4")

	require.True(t, h.orch.TryDrain(context.Background()))

	done, _ := h.repo.CountByStatus(context.Background(), StatusDone)
	assert.Equal(t, 2, done)
	assert.Equal(t, 1, h.account(t).UsageRemaining)
	assert.Equal(t, int32(1), maxProcessing.Load())
}

func TestOrchestrator_UnrecordedJobBlocksClaims(t *testing.T) {
	h, _, maxProcessing := newFlakyHarness(t, errors.New("connection reset"), 3)
	first := h.submit(t, "a.mp4")
	second := h.submit(t, "b.mp4")

	h.orch.TryDrain(context.Background())

	stored, _ := h.repo.FindByID(context.Background(), first.ID)
	assert.Equal(t, StatusProcessing, stored.Status)
	waiting, _ := h.repo.FindByID(context.Background(), second.ID)
	assert.Equal(t, StatusQueued, waiting.Status, "no claim while a job is unrecorded")
	assert.Equal(t, []int64{first.ID}, h.runner.Order())
	assert.Equal(t, 3, h.account(t).UsageRemaining)
	assert.FileExists(t, first.InputPath, "files stay until the outcome is stored")
	assert.False(t, h.orch.Busy())

	// the store recovers; the next drain records job 1 before claiming
	h.orch.TryDrain(context.Background())

	stored, _ = h.repo.FindByID(context.Background(), first.ID)
	assert.Equal(t, StatusDone, stored.Status)
	waiting, _ = h.repo.FindByID(context.Background(), second.ID)
	assert.Equal(t, StatusDone, waiting.Status)
	assert.Equal(t, []int64{first.ID, second.ID}, h.runner.Order())
	assert.Equal(t, 1, h.account(t).UsageRemaining, "one unit per done job")
	assert.NoFileExists(t, first.InputPath)
	assert.Equal(t, int32(1), maxProcessing.Load())
}

func TestOrchestrator_FinishRejected(t *testing.T) {
	h, _, _ := newFlakyHarness(t, ErrJobNotFound, 3)
	first := h.submit(t, "a.mp4")
	second := h.submit(t, "b.mp4")

	h.orch.TryDrain(context.Background())

	assert.NoFileExists(t, first.InputPath)
	stored, _ := h.repo.FindByID(context.Background(), second.ID)
	assert.Equal(t, StatusDone, stored.Status)
	assert.Equal(t, 2, h.account(t).UsageRemaining, "the rejected outcome spends nothing")
}

func TestOrchestrator_Recover(t *testing.T) {
	h := newHarness(t, 2, 3)
	j := h.submit(t, "in.mp4")
	h.submit(t, "waiting.mp4")
	_, err := h.repo.ClaimNext(context.Background())
	require.NoError(t, err)
	for _, p := range h.runner.Transients(pipeline.Input{JobID: j.ID}) {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	n, err := h.orch.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, _ := h.repo.FindByID(context.Background(), j.ID)
	assert.Equal(t, StatusError, stored.Status)
	assert.NoFileExists(t, j.InputPath)
	for _, p := range h.runner.Transients(pipeline.Input{JobID: j.ID}) {
		assert.NoFileExists(t, p)
	}

	queued, _ := h.repo.CountByStatus(context.Background(), StatusQueued)
	assert.Equal(t, 1, queued, "queued jobs are left for the drain")
	assert.Equal(t, 3, h.account(t).UsageRemaining)
}

func TestOrchestrator_Run(t *testing.T) {
	h := newHarness(t, 1, 3)
	h.orch = NewOrchestrator(h.repo, h.ledger, h.runner, h.cleaner, nil, WithPollInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		h.orch.Run(ctx)
		close(done)
	}()

	j := h.submit(t, "in.mp4")
	require.Eventually(t, func() bool {
		stored, _ := h.repo.FindByID(context.Background(), j.ID)
		return stored.Status == StatusDone
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestOrchestrator_Shutdown(t *testing.T) {
	h := newHarness(t, 2, 3)
	release := make(chan struct{})
	h.runner.hook = func(pipeline.Input) { <-release }
	h.submit(t, "a.mp4")
	h.submit(t, "b.mp4")

	h.orch.Kick()
	require.Eventually(t, h.orch.Busy, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, h.orch.Shutdown(ctx), "job still in flight")

	close(release)
	require.NoError(t, h.orch.Shutdown(context.Background()))
	h.orch.Wait()

	assert.Equal(t, []int64{1}, h.runner.Order(), "no job is claimed after shutdown")
	queued, _ := h.repo.CountByStatus(context.Background(), StatusQueued)
	assert.Equal(t, 1, queued)
}
