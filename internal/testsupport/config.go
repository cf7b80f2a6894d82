// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"kotoba/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config rooted at a unique temp directory per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Data.RootDir = base
	cfg.Logging.LogDir = filepath.Join(base, "logs")
	cfg.Logging.Console = false
	cfg.Anthropic.APIKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithDiskLimits overrides the disk-pressure thresholds on the test config.
func WithDiskLimits(hardGB, pauseGB, resumeGB float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.DiskManagement.HardLimitGB = hardGB
		cfg.DiskManagement.PauseThresholdGB = pauseGB
		cfg.DiskManagement.ResumeThresholdGB = resumeGB
	}
}

// WithCleanup overrides the artifact cleanup policy on the test config.
func WithCleanup(deleteVideo, deleteAudio bool) ConfigOption {
	return func(cfg *config.Config) {
		cfg.DiskManagement.Cleanup.DeleteVideoAfterTranscription = deleteVideo
		cfg.DiskManagement.Cleanup.DeleteAudioAfterTranscription = deleteAudio
	}
}
