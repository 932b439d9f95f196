package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTranslator(t *testing.T, handler http.HandlerFunc) *Translator {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tr, err := NewTranslator(context.Background(), Config{
		APIKey:  "test-key",
		Model:   "gemini-test",
		BaseURL: server.URL,
	})
	require.NoError(t, err)
	return tr
}

func TestNewTranslator_RequiresAPIKey(t *testing.T) {
	_, err := NewTranslator(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrAPIKeyRequired)
}

func TestTranslate(t *testing.T) {
	tr := newTestTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent"), r.URL.Path)

		var body struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
			SystemInstruction struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"systemInstruction"`
			GenerationConfig struct {
				Temperature float64 `json:"temperature"`
			} `json:"generationConfig"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Contents, 1) && assert.NotEmpty(t, body.Contents[0].Parts) {
			assert.Equal(t, "Translate from english to es: hello", body.Contents[0].Parts[0].Text)
		}
		if assert.NotEmpty(t, body.SystemInstruction.Parts) {
			assert.Contains(t, body.SystemInstruction.Parts[0].Text, "Return only translation")
		}
		assert.InDelta(t, 0.2, body.GenerationConfig.Temperature, 1e-6)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":" hola \n"}],"role":"model"}}]}`)
	})

	got, err := tr.Translate(context.Background(), "hello", "english", "es")
	require.NoError(t, err)
	assert.Equal(t, "hola", got)
}

func TestTranslate_EmptyResponse(t *testing.T) {
	tr := newTestTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	})

	_, err := tr.Translate(context.Background(), "hello", "", "es")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestTranslate_APIError(t *testing.T) {
	tr := newTestTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	})

	_, err := tr.Translate(context.Background(), "hello", "", "es")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini: generate")
}
