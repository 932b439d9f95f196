package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Static errors for ElevenLabs client operations.
var (
	// ErrAPIKeyRequired is returned when no API key is configured.
	ErrAPIKeyRequired = errors.New("elevenlabs: API key is required")
	// ErrEmptyText is returned when there is nothing to synthesize.
	ErrEmptyText = errors.New("elevenlabs: text is empty")
	// ErrEmptyAudio is returned when the API answers 200 with no audio.
	ErrEmptyAudio = errors.New("elevenlabs: empty audio response")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("elevenlabs: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("elevenlabs: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("elevenlabs: request failed")
)

// Client synthesizes speech through the ElevenLabs HTTP API.
type Client struct {
	apiKey        string
	baseURL       string
	voiceID       string
	modelID       string
	outputFormat  string
	voiceSettings *VoiceSettings
	httpClient    *http.Client
	maxRetries    int
	baseBackoff   time.Duration
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(u string) ClientOption {
	return func(cl *Client) {
		cl.baseURL = strings.TrimRight(u, "/")
	}
}

// WithVoiceID selects the voice. Empty keeps the default.
func WithVoiceID(id string) ClientOption {
	return func(cl *Client) {
		if id != "" {
			cl.voiceID = id
		}
	}
}

// WithModelID selects the synthesis model. Empty keeps the default.
func WithModelID(id string) ClientOption {
	return func(cl *Client) {
		if id != "" {
			cl.modelID = id
		}
	}
}

// WithOutputFormat sets the output_format query parameter. Empty keeps the default.
func WithOutputFormat(f string) ClientOption {
	return func(cl *Client) {
		if f != "" {
			cl.outputFormat = f
		}
	}
}

func WithVoiceSettings(s VoiceSettings) ClientOption {
	return func(cl *Client) {
		cl.voiceSettings = &s
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(cl *Client) {
		cl.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(cl *Client) {
		cl.baseBackoff = d
	}
}

// NewClient creates a new ElevenLabs client.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	c := &Client{
		apiKey:       apiKey,
		baseURL:      DefaultBaseURL,
		voiceID:      DefaultVoiceID,
		modelID:      DefaultModelID,
		outputFormat: DefaultOutputFormat,
		httpClient:   &http.Client{Timeout: 2 * time.Minute},
		maxRetries:   3,
		baseBackoff:  1 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Synthesize converts text to speech and returns the encoded audio.
// The whole response is buffered so a failed transfer can be retried.
func (c *Client) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	body, err := json.Marshal(speechRequest{
		Text:          text,
		ModelID:       c.modelID,
		VoiceSettings: c.voiceSettings,
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		c.baseURL, url.PathEscape(c.voiceID), url.QueryEscape(c.outputFormat))

	audio, err := c.doRequestWithRetry(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	return io.NopCloser(bytes.NewReader(audio)), nil
}

// doRequestWithRetry performs the request with exponential backoff retry.
func (c *Client) doRequestWithRetry(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("elevenlabs: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		audio, err := c.doRequest(ctx, endpoint, body)
		if err == nil {
			return audio, nil
		}
		if !isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("elevenlabs: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request and returns the response body.
func (c *Client) doRequest(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create request: %w", err)
	}

	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("elevenlabs: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("elevenlabs: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := errorMessage(respBody)
		if resp.StatusCode >= 500 {
			return nil, &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, msg)}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, msg)}
		}
		return nil, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, msg)
	}

	return respBody, nil
}

// errorMessage extracts detail.message from an error body, falling back to
// the raw body.
func errorMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Detail.Message != "" {
		return er.Detail.Message
	}
	return string(body)
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
