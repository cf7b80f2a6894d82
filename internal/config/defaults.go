package config

const (
	defaultRootDir          = "data"
	defaultDatabasePath     = "jobs.db"
	defaultLogDir           = "logs"
	defaultLogLevel         = "info"
	defaultScraperBaseURL   = "https://api.jikan.moe/v4"
	defaultCacheDir         = "cache"
	defaultMinCategoryItems = 50
	defaultScraperRetries   = 3
	defaultRetryDelayMS     = 1000
	defaultWhisperModel     = "base"
	defaultWhisperLanguage  = "ja"
	defaultClaudeModel      = "claude-3-5-haiku-20241022"

	defaultHardLimitGB          = 250
	defaultPauseThresholdGB     = 230
	defaultResumeThresholdGB    = 200
	defaultCheckIntervalSeconds = 30
	defaultCacheDurationSeconds = 5
	defaultDownloadWorkers      = 5
	defaultTranscriptionWorkers = 2
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Data: Data{
			RootDir: defaultRootDir,
		},
		Database: Database{
			Path: defaultDatabasePath,
		},
		Logging: Logging{
			LogDir:       defaultLogDir,
			DefaultLevel: defaultLogLevel,
			Console:      true,
			File:         true,
			JSONFormat:   false,
		},
		Scraper: Scraper{
			BaseURL: defaultScraperBaseURL,
			RateLimit: ScraperRateLimit{
				RequestsPerSecond: 2.0,
				RequestsPerMinute: 50,
			},
			Cache: ScraperCache{
				Enabled:  true,
				CacheDir: defaultCacheDir,
			},
			MinCategoryItems: defaultMinCategoryItems,
			MaxRetries:       defaultScraperRetries,
			RetryDelayMS:     defaultRetryDelayMS,
		},
		Transcription: Transcription{
			Model:    defaultWhisperModel,
			Language: defaultWhisperLanguage,
		},
		Anthropic: Anthropic{
			Model: defaultClaudeModel,
		},
		DiskManagement: DiskManagement{
			HardLimitGB:                 defaultHardLimitGB,
			PauseThresholdGB:            defaultPauseThresholdGB,
			ResumeThresholdGB:           defaultResumeThresholdGB,
			CheckIntervalSeconds:        defaultCheckIntervalSeconds,
			CacheDurationSeconds:        defaultCacheDurationSeconds,
			MaxConcurrentDownloads:      defaultDownloadWorkers,
			MaxConcurrentTranscriptions: defaultTranscriptionWorkers,
			Cleanup: Cleanup{
				DeleteVideoAfterTranscription:     true,
				DeleteAudioAfterTranscription:     true,
				DeleteTranscriptAfterTokenization: false,
				DeleteTokensAfterAnalysis:         false,
			},
		},
	}
}
