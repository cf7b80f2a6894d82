package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config is the root configuration structure.
type Config struct {
	Data           Data           `toml:"data"`
	Database       Database       `toml:"database"`
	Logging        Logging        `toml:"logging"`
	Scraper        Scraper        `toml:"scraper"`
	Transcription  Transcription  `toml:"transcription"`
	Anthropic      Anthropic      `toml:"anthropic"`
	DiskManagement DiskManagement `toml:"disk_management"`
}

// Data contains data directory settings.
type Data struct {
	RootDir string `toml:"root_dir"`
}

// Database contains queue database settings.
type Database struct {
	// Path to the database file. Relative paths resolve under data.root_dir.
	Path string `toml:"path"`
}

// Logging contains log output settings.
type Logging struct {
	LogDir       string `toml:"log_dir"`
	DefaultLevel string `toml:"default_level"`
	Console      bool   `toml:"console"`
	File         bool   `toml:"file"`
	JSONFormat   bool   `toml:"json_format"`
}

// Scraper contains catalog scraper settings.
type Scraper struct {
	BaseURL          string           `toml:"base_url"`
	RateLimit        ScraperRateLimit `toml:"rate_limit"`
	Cache            ScraperCache     `toml:"cache"`
	MinCategoryItems int              `toml:"min_category_items"`
	MaxRetries       int              `toml:"max_retries"`
	RetryDelayMS     int              `toml:"retry_delay_ms"`
}

// ScraperRateLimit bounds outgoing catalog API requests.
type ScraperRateLimit struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	RequestsPerMinute int     `toml:"requests_per_minute"`
}

// ScraperCache controls the on-disk catalog response cache.
type ScraperCache struct {
	Enabled  bool   `toml:"enabled"`
	CacheDir string `toml:"cache_dir"`
}

// Transcription contains Whisper settings.
type Transcription struct {
	Model    string `toml:"model"`
	Language string `toml:"language"`
}

// Anthropic contains settings for the Claude-assisted title selector.
type Anthropic struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// DiskManagement contains disk-pressure admission settings.
type DiskManagement struct {
	HardLimitGB                 float64 `toml:"hard_limit_gb"`
	PauseThresholdGB            float64 `toml:"pause_threshold_gb"`
	ResumeThresholdGB           float64 `toml:"resume_threshold_gb"`
	CheckIntervalSeconds        int     `toml:"check_interval_seconds"`
	CacheDurationSeconds        int     `toml:"cache_duration_seconds"`
	MaxConcurrentDownloads      int     `toml:"max_concurrent_downloads"`
	MaxConcurrentTranscriptions int     `toml:"max_concurrent_transcriptions"`
	Cleanup                     Cleanup `toml:"cleanup"`
}

// Cleanup declares which intermediate artifacts are deleted once the next
// stage has consumed them.
type Cleanup struct {
	DeleteVideoAfterTranscription     bool `toml:"delete_video_after_transcription"`
	DeleteAudioAfterTranscription     bool `toml:"delete_audio_after_transcription"`
	DeleteTranscriptAfterTokenization bool `toml:"delete_transcript_after_tokenization"`
	DeleteTokensAfterAnalysis         bool `toml:"delete_tokens_after_analysis"`
}

// Load reads the configuration from path. A missing file is not an error;
// defaults are returned instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// DataDir returns the data root directory.
func (c *Config) DataDir() string {
	return c.Data.RootDir
}

// DatabasePath resolves the queue database file path.
func (c *Config) DatabasePath() string {
	return c.resolve(c.Database.Path)
}

// LogDir resolves the log directory path.
func (c *Config) LogDir() string {
	return c.resolve(c.Logging.LogDir)
}

// CacheDir resolves the scraper cache directory path.
func (c *Config) CacheDir() string {
	return c.resolve(c.Scraper.Cache.CacheDir)
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Data.RootDir, path)
}

// EnsureDirectories creates the data root and log directory.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.DataDir(), c.LogDir(), c.CacheDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure directory %s: %w", dir, err)
		}
	}
	return nil
}
