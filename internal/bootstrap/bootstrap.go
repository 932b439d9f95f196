// Package bootstrap provides dependency initialization for the SmartDub API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maauso/smartdub-api/internal/account"
	"github.com/maauso/smartdub-api/internal/audio"
	"github.com/maauso/smartdub-api/internal/config"
	"github.com/maauso/smartdub-api/internal/elevenlabs"
	"github.com/maauso/smartdub-api/internal/gemini"
	"github.com/maauso/smartdub-api/internal/job"
	"github.com/maauso/smartdub-api/internal/media"
	"github.com/maauso/smartdub-api/internal/metrics"
	"github.com/maauso/smartdub-api/internal/openai"
	"github.com/maauso/smartdub-api/internal/pipeline"
	"github.com/maauso/smartdub-api/internal/postgres"
	"github.com/maauso/smartdub-api/internal/storage"
)

// Compile-time checks that the concrete adapters satisfy the ports they are
// wired into.
var (
	_ pipeline.Store          = (storage.Storage)(nil)
	_ job.Cleaner             = (storage.Storage)(nil)
	_ job.Runner              = (*pipeline.Pipeline)(nil)
	_ pipeline.AudioExtractor = (*media.FFmpegProcessor)(nil)
	_ pipeline.Assembler      = (*media.FFmpegProcessor)(nil)
	_ pipeline.Transcriber    = (*openai.Client)(nil)
	_ pipeline.Translator     = (*openai.Client)(nil)
	_ pipeline.Translator     = (*gemini.Translator)(nil)
	_ pipeline.Synthesizer    = (*elevenlabs.Client)(nil)
	_ account.Ledger          = (*postgres.Ledger)(nil)
	_ job.Repository          = (*postgres.JobRepository)(nil)
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Store        storage.Storage
	OutputDir    string
	Jobs         *job.Service
	Accounts     *account.Service
	Orchestrator *job.Orchestrator

	pool *pgxpool.Pool
}

// Close releases the database pool, if any.
func (d *Dependencies) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	plan := account.Plan(cfg.DefaultPlan)
	if !plan.IsValid() {
		return nil, fmt.Errorf("%w: DEFAULT_PLAN=%q", account.ErrInvalidPlan, cfg.DefaultPlan)
	}

	store, outputDir, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{Store: store, OutputDir: outputDir}

	var (
		repo   job.Repository
		ledger account.Ledger
	)
	if cfg.PostgresEnabled() {
		pool, err := postgres.Open(ctx, postgres.Config{
			DSN:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		deps.pool = pool
		repo = postgres.NewJobRepository(pool)
		ledger = postgres.NewLedger(pool)
		logger.Info("postgres persistence configured",
			slog.Int("max_conns", int(cfg.DBMaxConns)),
		)
	} else {
		repo = job.NewMemoryRepository()
		ledger = account.NewMemoryLedger()
		logger.Warn("DATABASE_URL not set, jobs and accounts are kept in memory")
	}

	adapters, err := initAdapters(ctx, cfg, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}

	pipe := pipeline.New(adapters, store, logger,
		pipeline.WithStageTimeout(cfg.StageTimeout),
		pipeline.WithPublish(cfg.S3Enabled()),
		pipeline.WithObserver(func(stage pipeline.Stage, d time.Duration, err error) {
			metrics.ObserveStage(string(stage), d, err == nil)
		}),
	)

	orch := job.NewOrchestrator(repo, ledger, pipe, store, logger,
		job.WithPollInterval(cfg.PollInterval),
		job.WithUsageUnit(cfg.UsageUnit),
	)

	deps.Orchestrator = orch
	deps.Jobs = job.NewService(repo, ledger, orch, logger)
	deps.Accounts = account.NewService(ledger, logger, account.WithDefaultPlan(plan))
	return deps, nil
}

// initAdapters builds the five stage implementations.
func initAdapters(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pipeline.Adapters, error) {
	processor := media.NewFFmpegProcessor(cfg.FFmpegPath, cfg.FFprobePath)

	splitOpts := audio.DefaultSplitOpts()
	splitOpts.ChunkTargetSec = cfg.TranscribeChunkSec

	oa, err := openai.NewClient(cfg.OpenAIAPIKey,
		openai.WithBaseURL(cfg.OpenAIBaseURL),
		openai.WithTranscribeModel(cfg.TranscribeModel),
		openai.WithTranslateModel(cfg.TranslateModel),
		openai.WithSplitter(audio.NewFFmpegSplitter(cfg.FFmpegPath), splitOpts, cfg.TranscribeConcurrency),
		openai.WithLogger(logger),
	)
	if err != nil {
		return pipeline.Adapters{}, fmt.Errorf("create OpenAI client: %w", err)
	}

	var translator pipeline.Translator = oa
	if strings.EqualFold(cfg.TranslationProvider, config.ProviderGemini) {
		gt, err := gemini.NewTranslator(ctx, gemini.Config{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		})
		if err != nil {
			return pipeline.Adapters{}, fmt.Errorf("create Gemini translator: %w", err)
		}
		translator = gt
	}
	logger.Info("translation provider configured",
		slog.String("provider", cfg.TranslationProvider),
	)

	tts, err := elevenlabs.NewClient(cfg.ElevenLabsAPIKey,
		elevenlabs.WithVoiceID(cfg.ElevenLabsVoiceID),
		elevenlabs.WithModelID(cfg.ElevenLabsModel),
		elevenlabs.WithOutputFormat(cfg.ElevenLabsOutputFormat),
	)
	if err != nil {
		return pipeline.Adapters{}, fmt.Errorf("create ElevenLabs client: %w", err)
	}

	return pipeline.Adapters{
		Extractor:   processor,
		Transcriber: oa,
		Translator:  translator,
		Synthesizer: tts,
		Assembler:   processor,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, string, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Storage(ctx, cfg.TempDir, cfg.OutputDir, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			PublicBaseURL:   cfg.S3PublicURL,
		})
		if err != nil {
			return nil, "", fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, s3Store.OutputDir(), nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir, cfg.OutputDir)
	if err != nil {
		return nil, "", fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", localStore.TempDir()),
		slog.String("output_dir", localStore.OutputDir()),
	)
	return localStore, localStore.OutputDir(), nil
}
