// Package audio splits long audio tracks at silence boundaries so each
// piece fits the transcription provider's upload limit.
package audio

import "context"

// SplitOpts configures the behavior of audio splitting.
type SplitOpts struct {
	// ChunkTargetSec is the target duration for each audio chunk in seconds.
	// Audio will be split at silence boundaries close to this duration.
	ChunkTargetSec int

	// MinSilenceMs is the minimum silence duration in milliseconds
	// to consider for a split point.
	MinSilenceMs int

	// SilenceThreshDB is the volume threshold in dBFS below which
	// audio is considered silence.
	SilenceThreshDB float64

	// ChunkPrefix names the chunk files, "<prefix>_000<ext>". Defaults to "chunk".
	ChunkPrefix string
}

// DefaultSplitOpts returns the default options for audio splitting.
func DefaultSplitOpts() SplitOpts {
	return SplitOpts{
		ChunkTargetSec:  600,
		MinSilenceMs:    500,
		SilenceThreshDB: -40,
		ChunkPrefix:     "chunk",
	}
}

// Splitter defines the interface for splitting audio files at silence boundaries.
type Splitter interface {
	// Split divides an audio file into chunks at silence boundaries. Audio no
	// longer than ChunkTargetSec is returned as the input path itself, with
	// split reporting false.
	//
	// Chunk files keep the input's container format and are written to
	// outputDir. The caller removes them.
	Split(ctx context.Context, input, outputDir string, opts SplitOpts) (chunks []string, split bool, err error)
}
