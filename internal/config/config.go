// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Translation providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Static errors for configuration validation.
var (
	// ErrOpenAIAPIKeyRequired is returned when OPENAI_API_KEY is not set.
	ErrOpenAIAPIKeyRequired = errors.New("config: OPENAI_API_KEY is required")
	// ErrElevenLabsAPIKeyRequired is returned when ELEVENLABS_API_KEY is not set.
	ErrElevenLabsAPIKeyRequired = errors.New("config: ELEVENLABS_API_KEY is required")
	// ErrGeminiAPIKeyRequired is returned when the gemini provider is selected without a key.
	ErrGeminiAPIKeyRequired = errors.New("config: GEMINI_API_KEY is required when TRANSLATION_PROVIDER=gemini")
	// ErrUnknownProvider is returned for an unsupported TRANSLATION_PROVIDER.
	ErrUnknownProvider = errors.New("config: TRANSLATION_PROVIDER must be openai or gemini")
	// ErrInvalidValue is returned when a numeric setting is out of range.
	ErrInvalidValue = errors.New("config: invalid value")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port          int    `env:"PORT, default=8080" json:"port"`
	AdminToken    string `env:"ADMIN_TOKEN" json:"-"`
	MaxUploadMB   int64  `env:"MAX_UPLOAD_MB, default=1024" json:"max_upload_mb"`
	AllowedOrigin string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`

	// Storage settings
	TempDir   string `env:"TEMP_DIR, default=/tmp/smartdub/work" json:"temp_dir"`
	OutputDir string `env:"OUTPUT_DIR, default=/tmp/smartdub/final" json:"output_dir"`

	// Database settings; an empty DatabaseURL selects the in-memory stores.
	DatabaseURL string `env:"DATABASE_URL" json:"-"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS, default=4" json:"db_max_conns"`

	// Queue and accounting settings
	PollInterval time.Duration `env:"POLL_INTERVAL, default=2s" json:"poll_interval"`
	UsageUnit    int           `env:"USAGE_UNIT, default=1" json:"usage_unit"`
	StageTimeout time.Duration `env:"STAGE_TIMEOUT, default=0s" json:"stage_timeout"`
	DefaultPlan  string        `env:"DEFAULT_PLAN, default=free" json:"default_plan"`

	// Media tools
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Transcription and translation settings
	OpenAIAPIKey          string `env:"OPENAI_API_KEY, required" json:"-"` // Masked in JSON
	OpenAIBaseURL         string `env:"OPENAI_BASE_URL, default=https://openrouter.ai/api/v1" json:"openai_base_url"`
	TranscribeModel       string `env:"TRANSCRIBE_MODEL, default=whisper-1" json:"transcribe_model"`
	TranslateModel        string `env:"TRANSLATE_MODEL, default=meta-llama/llama-3.1-8b-instruct" json:"translate_model"`
	TranscribeChunkSec    int    `env:"TRANSCRIBE_CHUNK_SEC, default=600" json:"transcribe_chunk_sec"`
	TranscribeConcurrency int    `env:"TRANSCRIBE_CONCURRENCY, default=2" json:"transcribe_concurrency"`
	TranslationProvider   string `env:"TRANSLATION_PROVIDER, default=openai" json:"translation_provider"`
	GeminiAPIKey          string `env:"GEMINI_API_KEY" json:"-"` // Masked in JSON
	GeminiModel           string `env:"GEMINI_MODEL, default=gemini-2.0-flash" json:"gemini_model"`

	// Voice synthesis settings
	ElevenLabsAPIKey       string `env:"ELEVENLABS_API_KEY, required" json:"-"` // Masked in JSON
	ElevenLabsVoiceID      string `env:"ELEVENLABS_VOICE_ID, default=pNInz6obpgDQGcFmaJgB" json:"elevenlabs_voice_id"`
	ElevenLabsModel        string `env:"ELEVENLABS_MODEL, default=eleven_multilingual_v2" json:"elevenlabs_model"`
	ElevenLabsOutputFormat string `env:"ELEVENLABS_OUTPUT_FORMAT, default=mp3_44100_96" json:"elevenlabs_output_format"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3PublicURL        string `env:"S3_PUBLIC_URL" json:"s3_public_url,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// PostgresEnabled returns true if a database URL is configured.
func (c *Config) PostgresEnabled() bool {
	return c.DatabaseURL != ""
}

// AllowedOrigins splits ALLOWED_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return load(envconfig.OsLookuper())
}

func load(l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: l,
	}); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "OPENAI_API_KEY") {
			return nil, ErrOpenAIAPIKeyRequired
		}
		if strings.Contains(err.Error(), "ELEVENLABS_API_KEY") {
			return nil, ErrElevenLabsAPIKeyRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and cross-field constraints.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return ErrOpenAIAPIKeyRequired
	}
	if c.ElevenLabsAPIKey == "" {
		return ErrElevenLabsAPIKeyRequired
	}

	switch strings.ToLower(c.TranslationProvider) {
	case ProviderOpenAI:
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return ErrGeminiAPIKeyRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.TranslationProvider)
	}

	switch {
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: POLL_INTERVAL must be positive", ErrInvalidValue)
	case c.UsageUnit <= 0:
		return fmt.Errorf("%w: USAGE_UNIT must be positive", ErrInvalidValue)
	case c.StageTimeout < 0:
		return fmt.Errorf("%w: STAGE_TIMEOUT must not be negative", ErrInvalidValue)
	case c.TranscribeChunkSec <= 0:
		return fmt.Errorf("%w: TRANSCRIBE_CHUNK_SEC must be positive", ErrInvalidValue)
	case c.TranscribeConcurrency <= 0:
		return fmt.Errorf("%w: TRANSCRIBE_CONCURRENCY must be positive", ErrInvalidValue)
	case c.MaxUploadMB <= 0:
		return fmt.Errorf("%w: MAX_UPLOAD_MB must be positive", ErrInvalidValue)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, OutputDir: %s, Database: %s, PollInterval: %s, UsageUnit: %d, StageTimeout: %s, DefaultPlan: %s, OpenAIBaseURL: %s, TranscribeModel: %s, TranslateModel: %s, TranslationProvider: %s, ElevenLabsModel: %s, S3Bucket: %s, S3Region: %s, AdminToken: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.OutputDir,
		mask(c.DatabaseURL),
		c.PollInterval,
		c.UsageUnit,
		c.StageTimeout,
		c.DefaultPlan,
		c.OpenAIBaseURL,
		c.TranscribeModel,
		c.TranslateModel,
		c.TranslationProvider,
		c.ElevenLabsModel,
		c.S3Bucket,
		c.S3Region,
		mask(c.AdminToken),
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(s string) string {
	if s == "" {
		return "<unset>"
	}
	return "<set>"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
