// Package media wraps the ffmpeg CLI for the audio extraction and final
// assembly stages of a dubbing job.
package media

import "context"

// Processor defines the video operations the dubbing pipeline needs.
type Processor interface {
	// ExtractAudio drops the video stream of videoPath and writes its first
	// audio stream to dst as MP3.
	ExtractAudio(ctx context.Context, videoPath, dst string) error

	// Assemble replaces the audio of videoPath with audioPath and writes the
	// result to dst. The output lasts exactly as long as the input video:
	// shorter audio is padded with silence, longer audio is cut. The video
	// stream is copied untouched.
	Assemble(ctx context.Context, videoPath, audioPath, dst string) error

	// GetMediaDuration returns the duration in seconds of a media file.
	GetMediaDuration(ctx context.Context, path string) (float64, error)
}
