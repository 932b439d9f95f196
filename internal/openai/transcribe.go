package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"golang.org/x/sync/errgroup"

	"github.com/maauso/smartdub-api/internal/pipeline"
)

// Transcribe converts the speech in audioPath to text. With a splitter
// configured, long audio is transcribed chunk by chunk and the texts are
// joined in order. The detected language is the first chunk's.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (pipeline.Transcript, error) {
	if c.splitter == nil {
		return c.transcribeFile(ctx, audioPath)
	}

	opts := c.splitOpts
	if opts.ChunkPrefix == "" || opts.ChunkPrefix == "chunk" {
		// chunks share the job's temp dir, so derive a per-input prefix
		opts.ChunkPrefix = strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath)) + "-part"
	}

	chunks, split, err := c.splitter.Split(ctx, audioPath, filepath.Dir(audioPath), opts)
	if err != nil {
		return pipeline.Transcript{}, fmt.Errorf("openai: split audio: %w", err)
	}
	if !split {
		return c.transcribeFile(ctx, audioPath)
	}
	defer func() {
		for _, chunk := range chunks {
			_ = os.Remove(chunk)
		}
	}()

	c.logger.Info("transcribing in chunks",
		slog.String("audio", audioPath),
		slog.Int("chunks", len(chunks)),
	)

	results := make([]pipeline.Transcript, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			t, err := c.transcribeFile(gctx, chunk)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			results[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return pipeline.Transcript{}, err
	}

	texts := make([]string, 0, len(results))
	for _, r := range results {
		if t := strings.TrimSpace(r.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return pipeline.Transcript{
		Text:     strings.Join(texts, " "),
		Language: results[0].Language,
	}, nil
}

func (c *Client) transcribeFile(ctx context.Context, path string) (pipeline.Transcript, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from the job's temp dir
	if err != nil {
		return pipeline.Transcript{}, fmt.Errorf("openai: open audio: %w", err)
	}
	defer f.Close()

	resp, err := c.api.Audio.Transcriptions.New(ctx, sdk.AudioTranscriptionNewParams{
		File:           f,
		Model:          sdk.AudioModel(c.transcribeModel),
		ResponseFormat: sdk.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return pipeline.Transcript{}, fmt.Errorf("openai: transcribe: %w", err)
	}

	return pipeline.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Language: detectedLanguage(resp.RawJSON()),
	}, nil
}

// detectedLanguage reads the language field of a verbose_json transcription.
func detectedLanguage(raw string) string {
	var v struct {
		Language string `json:"language"`
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return ""
	}
	return v.Language
}
