// Package ffmpeg shells out to the ffmpeg and ffprobe binaries for video
// frame extraction and media duration.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Tool wraps the ffmpeg and ffprobe binaries
type Tool struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

// Config holds binary locations. Empty values resolve through PATH.
type Config struct {
	FFmpegPath  string
	FFprobePath string
}

// New creates a Tool
func New(config Config, logger *slog.Logger) *Tool {
	if config.FFmpegPath == "" {
		config.FFmpegPath = "ffmpeg"
	}
	if config.FFprobePath == "" {
		config.FFprobePath = "ffprobe"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{
		ffmpegPath:  config.FFmpegPath,
		ffprobePath: config.FFprobePath,
		logger:      logger.With("component", "ffmpeg"),
	}
}

// Available reports whether both binaries can be found
func (t *Tool) Available() bool {
	if _, err := exec.LookPath(t.ffmpegPath); err != nil {
		return false
	}
	_, err := exec.LookPath(t.ffprobePath)
	return err == nil
}

// ExtractFrame writes a single JPEG frame taken at offset at into outPath
func (t *Tool) ExtractFrame(ctx context.Context, videoPath, outPath string, at time.Duration) error {
	args := []string{
		"-v", "error",
		"-y",
		"-ss", formatSeconds(at),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		outPath,
	}
	t.logger.Debug("extracting frame", "video", videoPath, "out", outPath, "at", at)
	if _, err := t.run(ctx, t.ffmpegPath, args...); err != nil {
		return &simplemedia.ProcessingError{Op: "extract_frame", Path: videoPath, Err: err}
	}
	return nil
}

// Duration returns the media duration of path in whole seconds
func (t *Tool) Duration(ctx context.Context, path string) (int, error) {
	out, err := t.run(ctx, t.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, &simplemedia.ProcessingError{Op: "probe_duration", Path: path, Err: err}
	}
	secs, err := ParseDuration(out)
	if err != nil {
		return 0, &simplemedia.ProcessingError{Op: "probe_duration", Path: path, Err: err}
	}
	return secs, nil
}

func (t *Tool) run(ctx context.Context, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrOutput := strings.TrimSpace(stderr.String())
		t.logger.Error("command failed", "bin", bin, "err", err, "stderr", stderrOutput)
		return "", fmt.Errorf("%s failed: %w, stderr: %s", bin, err, stderrOutput)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// ParseDuration converts ffprobe's fractional seconds output to whole seconds
func ParseDuration(output string) (int, error) {
	output = strings.TrimSpace(output)
	if output == "" || output == "N/A" {
		return 0, fmt.Errorf("no duration in ffprobe output")
	}
	f, err := strconv.ParseFloat(output, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ffprobe duration %q: %w", output, err)
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid ffprobe duration %q", output)
	}
	return int(f), nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

var _ simplemedia.FrameExtractor = (*Tool)(nil)
