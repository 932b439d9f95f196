// Package openai transcribes and translates through an OpenAI-compatible
// API. OpenRouter is the default endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/maauso/smartdub-api/internal/audio"
)

// Defaults used when no option overrides them.
const (
	DefaultBaseURL          = "https://openrouter.ai/api/v1"
	DefaultTranscribeModel  = "whisper-1"
	DefaultTranslateModel   = "meta-llama/llama-3.1-8b-instruct"
	DefaultTemperature      = 0.2
	DefaultChunkConcurrency = 2
)

var (
	// ErrAPIKeyRequired is returned when no API key is configured.
	ErrAPIKeyRequired = errors.New("openai: API key is required")
	// ErrNoChoices is returned when a chat completion has no choices.
	ErrNoChoices = errors.New("openai: completion returned no choices")
)

// Client implements transcription and translation on one API connection.
type Client struct {
	api             sdk.Client
	logger          *slog.Logger
	transcribeModel string
	translateModel  string
	temperature     float64

	splitter    audio.Splitter
	splitOpts   audio.SplitOpts
	concurrency int
}

type settings struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// Option configures a Client.
type Option func(*Client, *settings)

// WithBaseURL points the client at another OpenAI-compatible endpoint.
func WithBaseURL(u string) Option {
	return func(_ *Client, s *settings) {
		if u != "" {
			s.baseURL = u
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(_ *Client, s *settings) {
		s.httpClient = hc
	}
}

// WithMaxRetries sets how often the SDK retries transient failures.
func WithMaxRetries(n int) Option {
	return func(_ *Client, s *settings) {
		s.maxRetries = n
	}
}

// WithTranscribeModel selects the speech-to-text model.
func WithTranscribeModel(m string) Option {
	return func(c *Client, _ *settings) {
		if m != "" {
			c.transcribeModel = m
		}
	}
}

// WithTranslateModel selects the chat model used for translation.
func WithTranslateModel(m string) Option {
	return func(c *Client, _ *settings) {
		if m != "" {
			c.translateModel = m
		}
	}
}

// WithTemperature sets the sampling temperature used for translation.
func WithTemperature(t float64) Option {
	return func(c *Client, _ *settings) {
		c.temperature = t
	}
}

// WithSplitter enables chunked transcription. Audio longer than
// opts.ChunkTargetSec is cut at silences and the chunks are transcribed
// with at most concurrency requests in flight.
func WithSplitter(sp audio.Splitter, opts audio.SplitOpts, concurrency int) Option {
	return func(c *Client, _ *settings) {
		c.splitter = sp
		c.splitOpts = opts
		if concurrency > 0 {
			c.concurrency = concurrency
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client, _ *settings) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	c := &Client{
		logger:          slog.Default(),
		transcribeModel: DefaultTranscribeModel,
		translateModel:  DefaultTranslateModel,
		temperature:     DefaultTemperature,
		concurrency:     DefaultChunkConcurrency,
	}
	s := &settings{baseURL: DefaultBaseURL, maxRetries: 2}
	for _, opt := range opts {
		opt(c, s)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(s.baseURL),
		option.WithMaxRetries(s.maxRetries),
	}
	if s.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(s.httpClient))
	}
	c.api = sdk.NewClient(reqOpts...)

	return c, nil
}

// Translate asks the chat model for a plain translation of text.
func (c *Client) Translate(ctx context.Context, text, source, target string) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model: c.translateModel,
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(SystemPrompt),
			sdk.UserMessage(TranslatePrompt(text, source, target)),
		},
		Temperature: sdk.Float(c.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai: translate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// SystemPrompt instructs the model to answer with the translation only.
const SystemPrompt = "Translate text accurately. Return only translation."

// TranslatePrompt builds the user message for a translation request. An
// unknown source language is left for the model to detect.
func TranslatePrompt(text, source, target string) string {
	if source == "" {
		return fmt.Sprintf("Translate to %s: %s", target, text)
	}
	return fmt.Sprintf("Translate from %s to %s: %s", source, target, text)
}
