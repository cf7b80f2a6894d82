package logging

// Standardized attribute keys shared across components.
const (
	FieldComponent = "component"
	FieldRunID     = "run_id"
	FieldJobID     = "job_id"
	FieldAnimeID   = "anime_id"
	FieldMALID     = "mal_id"
	FieldEpisode   = "episode"
	FieldStage     = "stage"
	FieldWorker    = "worker"
)
