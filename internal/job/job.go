// Package job provides the dubbing Job aggregate and its lifecycle, the
// job store port, the submission gate and the single-flight orchestrator
// that drains the queue.
package job

import (
	"errors"
	"sync"
	"time"
)

// Status is the lifecycle state of a Job. The string values are part of the
// external contract and are case-sensitive.
type Status string

const (
	// StatusQueued indicates the job was admitted and awaits the worker.
	StatusQueued Status = "queued"
	// StatusProcessing indicates the worker claimed the job.
	StatusProcessing Status = "processing"
	// StatusDone indicates the job produced an output.
	StatusDone Status = "done"
	// StatusError indicates a stage failed. Terminal; there is no retry.
	StatusError Status = "error"
)

var (
	// ErrInvalidTransition is returned when an invalid state transition is attempted.
	ErrInvalidTransition = errors.New("job: invalid state transition")
	// ErrMissingOutput is returned when completing a job without an output reference.
	ErrMissingOutput = errors.New("job: done requires an output reference")
)

var validTransitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing},
	StatusProcessing: {StatusDone, StatusError},
	StatusDone:       {},
	StatusError:      {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is one submitted dubbing request.
type Job struct {
	mu sync.RWMutex

	// ID is assigned by the Repository on Create and grows with submission order.
	ID int64
	// AccountCode is the owning account.
	AccountCode string
	// InputPath is the uploaded source video. It is removed after the job finishes.
	InputPath string
	// TargetLanguage is the language the video is dubbed into.
	TargetLanguage string
	Status         Status
	// OutputRef is the final artifact reference, set only when Status is done.
	OutputRef string
	// FailedStage records the stage that failed. Internal only.
	FailedStage string
	Error       string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// New creates a queued job. The ID and the submission time are assigned
// when the job is stored.
func New(accountCode, inputPath, targetLanguage string) *Job {
	now := time.Now()
	return &Job{
		AccountCode:    accountCode,
		InputPath:      inputPath,
		TargetLanguage: targetLanguage,
		Status:         StatusQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TransitionTo moves the job to status, stamping StartedAt or CompletedAt.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusProcessing:
		j.StartedAt = j.UpdatedAt
	case StatusDone, StatusError:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start moves a queued job to processing.
func (j *Job) Start() error {
	return j.TransitionTo(StatusProcessing)
}

// Complete moves a processing job to done with its output reference.
func (j *Job) Complete(outputRef string) error {
	if outputRef == "" {
		return ErrMissingOutput
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusDone); err != nil {
		return err
	}
	j.OutputRef = outputRef
	return nil
}

// Fail moves a processing job to error, recording the failing stage.
func (j *Job) Fail(stage, errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusError); err != nil {
		return err
	}
	j.FailedStage = stage
	j.Error = errMsg
	return nil
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is done or error.
func (j *Job) IsTerminal() bool {
	s := j.GetStatus()
	return s == StatusDone || s == StatusError
}

// Clone creates a copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:             j.ID,
		AccountCode:    j.AccountCode,
		InputPath:      j.InputPath,
		TargetLanguage: j.TargetLanguage,
		Status:         j.Status,
		OutputRef:      j.OutputRef,
		FailedStage:    j.FailedStage,
		Error:          j.Error,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}
