package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Data.RootDir) == "" {
		problems = append(problems, "data.root_dir must be set")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		problems = append(problems, "database.path must be set")
	}

	dm := c.DiskManagement
	if dm.PauseThresholdGB <= 0 {
		problems = append(problems, "disk_management.pause_threshold_gb must be positive")
	}
	if dm.ResumeThresholdGB >= dm.PauseThresholdGB {
		problems = append(problems, fmt.Sprintf(
			"disk_management.resume_threshold_gb (%.1f) must be below pause_threshold_gb (%.1f)",
			dm.ResumeThresholdGB, dm.PauseThresholdGB))
	}
	if dm.MaxConcurrentDownloads < 1 {
		problems = append(problems, "disk_management.max_concurrent_downloads must be at least 1")
	}
	if dm.MaxConcurrentTranscriptions < 1 {
		problems = append(problems, "disk_management.max_concurrent_transcriptions must be at least 1")
	}
	if dm.CheckIntervalSeconds < 1 {
		problems = append(problems, "disk_management.check_interval_seconds must be at least 1")
	}
	if dm.CacheDurationSeconds < 0 {
		problems = append(problems, "disk_management.cache_duration_seconds must not be negative")
	}

	if c.Scraper.RateLimit.RequestsPerSecond <= 0 {
		problems = append(problems, "scraper.rate_limit.requests_per_second must be positive")
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
