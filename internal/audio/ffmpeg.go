package audio

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	durationRe     = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)
	silenceStartRe = regexp.MustCompile(`silence_start:\s*(-?[\d.]+)`)
	silenceEndRe   = regexp.MustCompile(`silence_end:\s*([\d.]+)`)
)

// Verify interface implementation at compile time.
var _ Splitter = (*FFmpegSplitter)(nil)

// FFmpegSplitter implements Splitter using ffmpeg CLI.
type FFmpegSplitter struct {
	ffmpegPath string
}

// NewFFmpegSplitter creates a new FFmpegSplitter.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegSplitter(ffmpegPath string) *FFmpegSplitter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegSplitter{ffmpegPath: ffmpegPath}
}

// silenceInterval is a detected silence, in seconds from the start.
type silenceInterval struct {
	start float64
	end   float64
}

func (s silenceInterval) middle() float64 {
	return (s.start + s.end) / 2
}

// Split implements Splitter.Split using ffmpeg silencedetect and stream copy.
func (s *FFmpegSplitter) Split(ctx context.Context, input, outputDir string, opts SplitOpts) ([]string, bool, error) {
	if _, err := os.Stat(input); err != nil {
		return nil, false, fmt.Errorf("stat input: %w", err)
	}
	if opts.ChunkTargetSec <= 0 {
		opts.ChunkTargetSec = DefaultSplitOpts().ChunkTargetSec
	}
	if opts.ChunkPrefix == "" {
		opts.ChunkPrefix = "chunk"
	}

	duration, err := s.getAudioDuration(ctx, input)
	if err != nil {
		return nil, false, fmt.Errorf("get audio duration: %w", err)
	}
	if duration <= float64(opts.ChunkTargetSec) {
		return []string{input}, false, nil
	}

	silences, err := s.detectSilences(ctx, input, opts)
	if err != nil {
		return nil, false, fmt.Errorf("detect silences: %w", err)
	}

	points := calculateSplitPoints(silences, duration, opts.ChunkTargetSec)
	chunks, err := s.extractChunks(ctx, input, outputDir, opts.ChunkPrefix, points, duration)
	if err != nil {
		return nil, false, fmt.Errorf("extract chunks: %w", err)
	}
	return chunks, true, nil
}

// getAudioDuration reads the container duration ffmpeg prints on stderr.
func (s *FFmpegSplitter) getAudioDuration(ctx context.Context, inputPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-hide_banner",
		"-i", inputPath,
		"-f", "null", "-",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	_ = cmd.Run() // the null muxer still reports the input header

	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	return parseDuration(stderr.String())
}

func parseDuration(output string) (float64, error) {
	m := durationRe.FindStringSubmatch(output)
	if len(m) < 5 {
		return 0, fmt.Errorf("could not parse duration from ffmpeg output")
	}

	hours, _ := strconv.ParseFloat(m[1], 64)
	minutes, _ := strconv.ParseFloat(m[2], 64)
	seconds, _ := strconv.ParseFloat(m[3], 64)
	frac, _ := strconv.ParseFloat(m[4], 64)

	return hours*3600 + minutes*60 + seconds + frac/math.Pow10(len(m[4])), nil
}

// detectSilences uses ffmpeg silencedetect to find silence intervals.
func (s *FFmpegSplitter) detectSilences(ctx context.Context, inputPath string, opts SplitOpts) ([]silenceInterval, error) {
	filter := fmt.Sprintf("silencedetect=noise=%ddB:d=%.3f",
		int(opts.SilenceThreshDB),
		float64(opts.MinSilenceMs)/1000.0,
	)

	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-hide_banner",
		"-i", inputPath,
		"-af", filter,
		"-f", "null", "-",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	_ = cmd.Run()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return parseSilenceOutput(stderr.String()), nil
}

// parseSilenceOutput pairs silence_start and silence_end lines.
func parseSilenceOutput(output string) []silenceInterval {
	var intervals []silenceInterval
	var start float64
	hasStart := false

	for _, line := range strings.Split(output, "\n") {
		if m := silenceStartRe.FindStringSubmatch(line); len(m) > 1 {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				start = math.Max(v, 0)
				hasStart = true
			}
		}
		if m := silenceEndRe.FindStringSubmatch(line); len(m) > 1 && hasStart {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				intervals = append(intervals, silenceInterval{start: start, end: v})
				hasStart = false
			}
		}
	}
	return intervals
}

// calculateSplitPoints walks the track in steps of targetSec and snaps each
// cut to the nearest silence within a third of the target.
func calculateSplitPoints(silences []silenceInterval, totalDuration float64, targetSec int) []float64 {
	target := float64(targetSec)
	var points []float64
	last := 0.0

	for last < totalDuration-target/2 {
		ideal := last + target
		next := ideal

		if best := findBestSilence(silences, ideal, target/3); best != nil && best.middle() > last+1 {
			next = best.middle()
		}
		if next >= totalDuration-1 {
			break
		}
		points = append(points, next)
		last = next
	}
	return points
}

// findBestSilence finds the silence closest to ideal within tolerance.
// silences must be sorted by time.
func findBestSilence(silences []silenceInterval, ideal, tolerance float64) *silenceInterval {
	var best *silenceInterval
	bestDistance := tolerance

	for i := range silences {
		mid := silences[i].middle()
		if mid < ideal-tolerance {
			continue
		}
		if mid > ideal+tolerance {
			break
		}
		if d := math.Abs(mid - ideal); d < bestDistance {
			bestDistance = d
			best = &silences[i]
		}
	}
	return best
}

// extractChunks cuts the input at points into numbered files.
func (s *FFmpegSplitter) extractChunks(ctx context.Context, inputPath, outputDir, prefix string, points []float64, totalDuration float64) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	bounds := append(append([]float64{0}, points...), totalDuration)
	ext := filepath.Ext(inputPath)

	chunks := make([]string, 0, len(bounds)-1)
	for i := 0; i < len(bounds)-1; i++ {
		out := filepath.Join(outputDir, fmt.Sprintf("%s_%03d%s", prefix, i, ext))
		if err := s.extractSegment(ctx, inputPath, out, bounds[i], bounds[i+1]-bounds[i]); err != nil {
			for _, c := range chunks {
				_ = os.Remove(c)
			}
			return nil, fmt.Errorf("extract segment %d: %w", i, err)
		}
		chunks = append(chunks, out)
	}
	return chunks, nil
}

// extractSegment copies [start, start+duration) of the input without re-encoding.
func (s *FFmpegSplitter) extractSegment(ctx context.Context, inputPath, outputPath string, start, duration float64) error {
	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-y",
		"-ss", fmt.Sprintf("%.3f", start),
		"-t", fmt.Sprintf("%.3f", duration),
		"-i", inputPath,
		"-c", "copy",
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg error: %w, stderr: %s", err, stderr.String())
	}
	return nil
}
