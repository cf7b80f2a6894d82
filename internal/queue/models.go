package queue

import "time"

// Stage identifies where a job sits in the pipeline.
type Stage string

const (
	StageQueued       Stage = "queued"
	StageDownloading  Stage = "downloading"
	StageDownloaded   Stage = "downloaded"
	StageTranscribing Stage = "transcribing"
	StageTranscribed  Stage = "transcribed"
	StageTokenizing   Stage = "tokenizing"
	StageTokenized    Stage = "tokenized"
	StageAnalyzing    Stage = "analyzing"
	StageComplete     Stage = "complete"
	StageFailed       Stage = "failed"
)

// DefaultMaxRetries is applied to new jobs unless the caller overrides it.
const DefaultMaxRetries = 3

// processingStages maps each transient stage to the stable stage a stuck job
// is reset to.
var processingStages = map[Stage]Stage{
	StageDownloading:  StageQueued,
	StageTranscribing: StageDownloaded,
	StageTokenizing:   StageTranscribed,
	StageAnalyzing:    StageTokenized,
}

// IsProcessing reports whether the stage marks a job as claimed by a worker.
func (s Stage) IsProcessing() bool {
	_, ok := processingStages[s]
	return ok
}

// IsTerminal reports whether the stage ends the pipeline for a job.
func (s Stage) IsTerminal() bool {
	return s == StageComplete || s == StageFailed
}

// Anime is one series known to the pipeline.
type Anime struct {
	ID                int64
	MALID             int64
	Title             string
	TitleEnglish      string
	Episodes          int
	Season            string
	Year              int
	Status            string
	EpisodesProcessed int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Job is one episode moving through the pipeline. Series identity is
// denormalized onto the row so a claimed job carries everything a worker
// needs without a second query.
type Job struct {
	ID           int64
	AnimeID      int64
	AnimeTitle   string
	TitleEnglish string
	MALID        int64
	Episode      int
	Season       string
	Year         int

	Stage    Stage
	Progress float64

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	ErrorMessage string
	RetryCount   int
	MaxRetries   int

	VideoPath      string
	TranscriptPath string
	TokensPath     string
	AnalysisPath   string

	DurationSeconds     float64
	VideoSizeBytes      int64
	AudioSizeBytes      int64
	TranscriptSizeBytes int64
	TokensSizeBytes     int64
	WordCount           int64
	TokenCount          int64

	VideoDeleted bool
	AudioDeleted bool

	Priority  int
	DependsOn *int64
}

// NewJob builds a queued job for one episode of the given series.
func NewJob(anime *Anime, episode int) *Job {
	return &Job{
		AnimeID:      anime.ID,
		AnimeTitle:   anime.Title,
		TitleEnglish: anime.TitleEnglish,
		MALID:        anime.MALID,
		Episode:      episode,
		Season:       anime.Season,
		Year:         anime.Year,
		Stage:        StageQueued,
		MaxRetries:   DefaultMaxRetries,
	}
}

// JobMetadata carries a sparse metadata update; nil fields are left untouched.
type JobMetadata struct {
	VideoPath      *string
	TranscriptPath *string
	TokensPath     *string
	AnalysisPath   *string

	DurationSeconds     *float64
	VideoSizeBytes      *int64
	AudioSizeBytes      *int64
	TranscriptSizeBytes *int64
	TokensSizeBytes     *int64
	WordCount           *int64
	TokenCount          *int64
}

// FileKind names a job artifact that cleanup can delete.
type FileKind string

const (
	FileVideo FileKind = "video"
	FileAudio FileKind = "audio"
)

// Selection records which download-source candidate was chosen for a series.
type Selection struct {
	AnimeID        int64
	MALTitle       string
	SelectedTitle  string
	SelectedIndex  int
	Confidence     string
	Reasoning      string
	EpisodeMatch   string
	CandidatesJSON string
	CreatedAt      time.Time
}

// Stats is a per-stage job count snapshot.
type Stats struct {
	ByStage map[Stage]int
	Total   int
}
