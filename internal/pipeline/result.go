package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTranscript is returned when transcription yields no text.
	ErrEmptyTranscript = errors.New("pipeline: empty transcript")
	// ErrEmptyTranslation is returned when translation yields no text.
	ErrEmptyTranslation = errors.New("pipeline: empty translation")
	// ErrStagePanic wraps a panic raised inside a stage adapter.
	ErrStagePanic = errors.New("pipeline: stage panicked")
)

// StageError tags a failure with the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one pipeline run: either an output reference or
// a stage failure. Transient lists intermediate files the caller must remove
// once the job is finalized, whatever the outcome.
type Result struct {
	Output    string
	Failure   *StageError
	Transient []string
}

// OK reports whether the run produced an output.
func (r Result) OK() bool {
	return r.Failure == nil
}

// Failed builds a failed Result.
func Failed(stage Stage, err error, transient []string) Result {
	return Result{
		Failure:   &StageError{Stage: stage, Err: err},
		Transient: transient,
	}
}
