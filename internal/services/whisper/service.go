// Package whisper wraps the OpenAI Whisper CLI.
package whisper

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"kotoba/internal/services"
)

const (
	// Command is the whisper binary name.
	Command = "whisper"
	// DefaultModel is used when no model is configured.
	DefaultModel = "base"
)

// Config holds transcription settings.
type Config struct {
	Model    string
	Language string
}

// Service runs Whisper transcriptions.
type Service struct {
	cfg           Config
	binary        string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a service using the given binary, or the default when
// empty.
func NewService(cfg Config, binary string) *Service {
	if binary == "" {
		binary = Command
	}
	return &Service{cfg: cfg, binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

// Transcribe runs Whisper on a WAV file and returns the path of the text
// transcript it wrote. Whisper names the output after the audio file's stem,
// so the result lands at outputDir/<stem>.txt.
func (s *Service) Transcribe(ctx context.Context, audioPath, outputDir string) (string, error) {
	if audioPath == "" {
		return "", services.Wrap(services.ErrPrecondition, "transcribing", "whisper", "audio path required", nil)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure transcript dir: %w", err)
	}

	args := []string{
		audioPath,
		"--model", s.Model(),
		"--output_dir", outputDir,
		"--output_format", "txt",
		"--verbose", "False",
	}
	if s.cfg.Language != "" {
		args = append(args, "--language", s.cfg.Language)
	}

	if err := s.run(ctx, s.binary, args...); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcribing", "whisper", "transcription failed", err)
	}

	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	transcriptPath := filepath.Join(outputDir, stem+".txt")
	if _, err := os.Stat(transcriptPath); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcribing", "whisper", "transcript not written", err)
	}
	return transcriptPath, nil
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
