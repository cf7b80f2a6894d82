// Package ffmpeg wraps the ffmpeg and ffprobe binaries for audio extraction.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"kotoba/internal/services"
)

const (
	// Command is the ffmpeg binary name.
	Command = "ffmpeg"
	// ProbeCommand is the ffprobe binary name.
	ProbeCommand = "ffprobe"
)

// Service runs ffmpeg operations.
type Service struct {
	ffmpegBinary  string
	ffprobeBinary string
	commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewService creates a service using the given binaries, or the defaults when
// empty.
func NewService(ffmpegBinary, ffprobeBinary string) *Service {
	if ffmpegBinary == "" {
		ffmpegBinary = Command
	}
	if ffprobeBinary == "" {
		ffprobeBinary = ProbeCommand
	}
	return &Service{ffmpegBinary: ffmpegBinary, ffprobeBinary: ffprobeBinary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	s.commandRunner = runner
}

// ExtractAudio converts a video file to the mono 16kHz PCM WAV that Whisper
// expects. An existing destination is overwritten.
func (s *Service) ExtractAudio(ctx context.Context, source, dest string) error {
	if source == "" {
		return services.Wrap(services.ErrPrecondition, "transcribing", "ffmpeg", "source path required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("ensure audio dir: %w", err)
	}

	args := []string{
		"-i", source,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-y",
		dest,
	}
	if _, err := s.run(ctx, s.ffmpegBinary, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "transcribing", "ffmpeg", "audio extraction failed", err)
	}
	return nil
}

// Duration returns a media file's duration in seconds via ffprobe.
func (s *Service) Duration(ctx context.Context, source string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		source,
	}
	output, err := s.run(ctx, s.ffprobeBinary, args...)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "transcribing", "ffprobe", "duration probe failed", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "transcribing", "ffprobe", "unparseable duration", err)
	}
	return seconds, nil
}

func (s *Service) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return output, nil
}
