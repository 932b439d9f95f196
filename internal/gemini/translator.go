// Package gemini translates text with Google Gemini.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/maauso/smartdub-api/internal/openai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

var (
	// ErrAPIKeyRequired is returned when no API key is configured.
	ErrAPIKeyRequired = errors.New("gemini: API key is required")
	// ErrEmptyResponse is returned when the model answers without text.
	ErrEmptyResponse = errors.New("gemini: empty response")
)

// Config configures a Translator.
type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the Gemini API endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

// Translator implements pipeline.Translator on the Gemini API.
type Translator struct {
	client *genai.Client
	model  string
}

// NewTranslator creates a Translator using the official SDK.
func NewTranslator(ctx context.Context, cfg Config) (*Translator, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Translator{client: c, model: cfg.Model}, nil
}

// Translate returns the translation of text into target.
func (t *Translator) Translate(ctx context.Context, text, source, target string) (string, error) {
	resp, err := t.client.Models.GenerateContent(ctx, t.model,
		genai.Text(openai.TranslatePrompt(text, source, target)),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(openai.SystemPrompt, genai.RoleUser),
			Temperature:       genai.Ptr[float32](openai.DefaultTemperature),
		},
	)
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}

	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
