package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kotoba/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.Default()
	if cfg.Data.RootDir != "data" {
		t.Errorf("root_dir = %q", cfg.Data.RootDir)
	}
	if cfg.Database.Path != "jobs.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.DiskManagement.PauseThresholdGB != 230 {
		t.Errorf("pause_threshold_gb = %v", cfg.DiskManagement.PauseThresholdGB)
	}
	if !cfg.DiskManagement.Cleanup.DeleteVideoAfterTranscription {
		t.Error("expected video cleanup enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Data.RootDir != "data" {
		t.Errorf("expected default root_dir, got %q", cfg.Data.RootDir)
	}
}

func TestLoadOverridesAndIgnoresUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[data]
root_dir = "/srv/anime"

[disk_management]
pause_threshold_gb = 10.0
resume_threshold_gb = 8.0

[disk_management.cleanup]
delete_video_after_transcription = false

[unknown_section]
mystery = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Data.RootDir != "/srv/anime" {
		t.Errorf("root_dir = %q", cfg.Data.RootDir)
	}
	if cfg.DiskManagement.PauseThresholdGB != 10 {
		t.Errorf("pause_threshold_gb = %v", cfg.DiskManagement.PauseThresholdGB)
	}
	if cfg.DiskManagement.Cleanup.DeleteVideoAfterTranscription {
		t.Error("cleanup override not applied")
	}
	// Unmodified sections keep defaults.
	if cfg.Scraper.BaseURL == "" {
		t.Error("expected scraper defaults to survive partial config")
	}
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	cfg := config.Default()
	cfg.DiskManagement.PauseThresholdGB = 8
	cfg.DiskManagement.ResumeThresholdGB = 10
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "resume_threshold_gb") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPathResolution(t *testing.T) {
	cfg := config.Default()
	cfg.Data.RootDir = "/data"

	if got := cfg.DatabasePath(); got != "/data/jobs.db" {
		t.Errorf("DatabasePath = %q", got)
	}
	if got := cfg.LogDir(); got != "/data/logs" {
		t.Errorf("LogDir = %q", got)
	}

	cfg.Database.Path = "/var/lib/kotoba/jobs.db"
	if got := cfg.DatabasePath(); got != "/var/lib/kotoba/jobs.db" {
		t.Errorf("absolute DatabasePath = %q", got)
	}
}
