// Package pipeline runs one dubbing job through its five stages: extract the
// source audio, transcribe it, translate the text, synthesize the dubbed
// voice and assemble the final video.
package pipeline

import (
	"context"
	"io"
)

// Stage names a pipeline step.
type Stage string

const (
	StageExtractAudio Stage = "extract_audio"
	StageTranscribe   Stage = "transcribe"
	StageTranslate    Stage = "translate"
	StageSynthesize   Stage = "synthesize"
	StageAssemble     Stage = "assemble"
)

// Stages lists the stages in execution order.
var Stages = []Stage{StageExtractAudio, StageTranscribe, StageTranslate, StageSynthesize, StageAssemble}

// Transcript is the output of the transcription stage.
type Transcript struct {
	Text string
	// Language is the detected source language as reported by the
	// transcription provider.
	Language string
}

// AudioExtractor writes the audio track of videoPath to dst.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, videoPath, dst string) error
}

// Transcriber turns speech into text and detects its language.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (Transcript, error)
}

// Translator translates text from source to target language.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Synthesizer produces spoken audio for text. The caller closes the reader.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

// Assembler muxes the video track of videoPath with audioPath into dst,
// keeping the video's duration.
type Assembler interface {
	Assemble(ctx context.Context, videoPath, audioPath, dst string) error
}

// Store is the subset of storage the pipeline writes through.
type Store interface {
	TempPath(name string) string
	OutputPath(name string) string
	WriteFile(ctx context.Context, path string, data io.Reader) error
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)
	UploadToS3(ctx context.Context, key string, data io.Reader) (string, error)
}
