package elevenlabs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string, opts ...ClientOption) *Client {
	t.Helper()
	opts = append([]ClientOption{
		WithBaseURL(url),
		WithBaseBackoff(time.Millisecond),
	}, opts...)
	c, err := NewClient("test-key", opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	t.Run("requires API key", func(t *testing.T) {
		_, err := NewClient("")
		assert.ErrorIs(t, err, ErrAPIKeyRequired)
	})

	t.Run("defaults", func(t *testing.T) {
		c, err := NewClient("k")
		require.NoError(t, err)
		assert.Equal(t, DefaultBaseURL, c.baseURL)
		assert.Equal(t, DefaultVoiceID, c.voiceID)
		assert.Equal(t, DefaultModelID, c.modelID)
		assert.Equal(t, DefaultOutputFormat, c.outputFormat)
		assert.Equal(t, 3, c.maxRetries)
	})

	t.Run("empty option values keep defaults", func(t *testing.T) {
		c, err := NewClient("k", WithVoiceID(""), WithModelID(""), WithOutputFormat(""))
		require.NoError(t, err)
		assert.Equal(t, DefaultVoiceID, c.voiceID)
		assert.Equal(t, DefaultModelID, c.modelID)
		assert.Equal(t, DefaultOutputFormat, c.outputFormat)
	})
}

func TestSynthesize_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "mp3_22050_32", r.URL.Query().Get("output_format"))
		assert.Equal(t, "test-key", r.Header.Get("xi-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req speechRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hola mundo", req.Text)
		assert.Equal(t, "model-x", req.ModelID)
		assert.Nil(t, req.VoiceSettings)

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL,
		WithVoiceID("voice-1"),
		WithModelID("model-x"),
		WithOutputFormat("mp3_22050_32"),
	)

	rc, err := c.Synthesize(context.Background(), "hola mundo")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "ID3-audio", string(data))
}

func TestSynthesize_SendsVoiceSettings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req speechRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.NotNil(t, req.VoiceSettings) {
			assert.InDelta(t, 0.5, req.VoiceSettings.Stability, 1e-9)
			assert.InDelta(t, 0.75, req.VoiceSettings.SimilarityBoost, 1e-9)
		}
		_, _ = w.Write([]byte("a"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, WithVoiceSettings(VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75}))
	rc, err := c.Synthesize(context.Background(), "text")
	require.NoError(t, err)
	_ = rc.Close()
}

func TestSynthesize_EmptyText(t *testing.T) {
	c := newTestClient(t, "http://unused")
	_, err := c.Synthesize(context.Background(), "  \n")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestSynthesize_EmptyAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Synthesize(context.Background(), "text")
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestSynthesize_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   error
		wantCalls int32
		wantMsg   string
	}{
		{
			name:      "client error is not retried",
			status:    http.StatusUnauthorized,
			body:      `{"detail":{"status":"invalid_api_key","message":"Invalid API key"}}`,
			wantErr:   ErrRequestFailed,
			wantCalls: 1,
			wantMsg:   "Invalid API key",
		},
		{
			name:      "server error is retried",
			status:    http.StatusBadGateway,
			body:      "bad gateway",
			wantErr:   ErrServerError,
			wantCalls: 3,
			wantMsg:   "max retries exceeded",
		},
		{
			name:      "rate limit is retried",
			status:    http.StatusTooManyRequests,
			body:      `{"detail":{"message":"slow down"}}`,
			wantErr:   ErrRateLimited,
			wantCalls: 3,
			wantMsg:   "slow down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, WithMaxRetries(2))
			_, err := c.Synthesize(context.Background(), "text")

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestSynthesize_RecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("audio"))
	}))
	defer server.Close()

	rc, err := newTestClient(t, server.URL).Synthesize(context.Background(), "text")
	require.NoError(t, err)
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	assert.Equal(t, "audio", string(data))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSynthesize_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, WithBaseBackoff(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Synthesize(ctx, "text")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
