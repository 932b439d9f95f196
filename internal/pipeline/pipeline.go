package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Input identifies the job being dubbed.
type Input struct {
	JobID          int64
	VideoPath      string
	TargetLanguage string
}

// Adapters bundles the five stage implementations.
type Adapters struct {
	Extractor   AudioExtractor
	Transcriber Transcriber
	Translator  Translator
	Synthesizer Synthesizer
	Assembler   Assembler
}

// Observer is notified after every stage with its duration and error.
type Observer func(stage Stage, d time.Duration, err error)

// Pipeline runs the stages strictly in order and stops at the first failure.
// It never retries a stage.
type Pipeline struct {
	adapters     Adapters
	store        Store
	logger       *slog.Logger
	stageTimeout time.Duration
	publish      bool
	observer     Observer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStageTimeout bounds each stage. Zero disables the bound.
func WithStageTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.stageTimeout = d
	}
}

// WithPublish uploads the assembled video to S3 and reports the S3 URL as
// the output reference.
func WithPublish(enabled bool) Option {
	return func(p *Pipeline) {
		p.publish = enabled
	}
}

// WithObserver registers a per-stage observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// New creates a Pipeline.
func New(adapters Adapters, store Store, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		adapters: adapters,
		store:    store,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Transients returns the intermediate files a run for in may leave behind.
// Names derive from the job id only, so they can be computed for a job
// whose run never returned.
func (p *Pipeline) Transients(in Input) []string {
	return []string{
		p.store.TempPath(fmt.Sprintf("job-%d-source.mp3", in.JobID)),
		p.store.TempPath(fmt.Sprintf("job-%d-dubbed.mp3", in.JobID)),
	}
}

// Run executes the five stages for in.
func (p *Pipeline) Run(ctx context.Context, in Input) Result {
	transient := p.Transients(in)
	sourceAudio, dubbedAudio := transient[0], transient[1]

	err := p.step(ctx, in.JobID, StageExtractAudio, func(ctx context.Context) error {
		return p.adapters.Extractor.ExtractAudio(ctx, in.VideoPath, sourceAudio)
	})
	if err != nil {
		return Failed(StageExtractAudio, err, transient)
	}

	var transcript Transcript
	err = p.step(ctx, in.JobID, StageTranscribe, func(ctx context.Context) error {
		t, err := p.adapters.Transcriber.Transcribe(ctx, sourceAudio)
		if err != nil {
			return err
		}
		if strings.TrimSpace(t.Text) == "" {
			return ErrEmptyTranscript
		}
		transcript = t
		return nil
	})
	if err != nil {
		return Failed(StageTranscribe, err, transient)
	}

	var translated string
	err = p.step(ctx, in.JobID, StageTranslate, func(ctx context.Context) error {
		text, err := p.adapters.Translator.Translate(ctx, transcript.Text, transcript.Language, in.TargetLanguage)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return ErrEmptyTranslation
		}
		translated = text
		return nil
	})
	if err != nil {
		return Failed(StageTranslate, err, transient)
	}

	err = p.step(ctx, in.JobID, StageSynthesize, func(ctx context.Context) error {
		audio, err := p.adapters.Synthesizer.Synthesize(ctx, translated)
		if err != nil {
			return err
		}
		defer audio.Close()
		return p.store.WriteFile(ctx, dubbedAudio, audio)
	})
	if err != nil {
		return Failed(StageSynthesize, err, transient)
	}

	output := p.store.OutputPath(fmt.Sprintf("dubbed_%d.mp4", in.JobID))
	var ref string
	err = p.step(ctx, in.JobID, StageAssemble, func(ctx context.Context) error {
		if err := p.adapters.Assembler.Assemble(ctx, in.VideoPath, dubbedAudio, output); err != nil {
			return err
		}
		if !p.publish {
			ref = output
			return nil
		}
		url, err := p.upload(ctx, output)
		if err != nil {
			return err
		}
		ref = url
		return nil
	})
	if err != nil || p.publish {
		// the local file is not the reference in either case
		transient = append(transient, output)
	}
	if err != nil {
		return Failed(StageAssemble, err, transient)
	}

	return Result{Output: ref, Transient: transient}
}

func (p *Pipeline) upload(ctx context.Context, path string) (string, error) {
	f, err := p.store.LoadTemp(ctx, path)
	if err != nil {
		return "", fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	key := fmt.Sprintf("dubbed/%s.mp4", ulid.Make().String())
	url, err := p.store.UploadToS3(ctx, key, f)
	if err != nil {
		return "", fmt.Errorf("publish output: %w", err)
	}
	return url, nil
}

// step runs fn as one stage: optional timeout, panic recovery, logging and
// observation.
func (p *Pipeline) step(ctx context.Context, jobID int64, stage Stage, fn func(context.Context) error) (err error) {
	if p.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.stageTimeout)
		defer cancel()
	}

	log := p.logger.With(slog.Int64("job_id", jobID), slog.String("stage", string(stage)))
	log.Debug("stage started")
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStagePanic, r)
		}
		d := time.Since(start)
		if p.observer != nil {
			p.observer(stage, d, err)
		}
		if err != nil {
			log.Error("stage failed",
				slog.Duration("duration", d),
				slog.String("error", err.Error()),
			)
			return
		}
		log.Info("stage finished", slog.Duration("duration", d))
	}()

	return fn(ctx)
}
