package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const jobColumns = "id, anime_id, anime_title, title_english, mal_id, episode, season, year, stage, progress, created_at, updated_at, started_at, completed_at, error_message, retry_count, max_retries, video_path, transcript_path, tokens_path, analysis_path, duration_seconds, video_size_bytes, audio_size_bytes, transcript_size_bytes, tokens_size_bytes, word_count, token_count, video_deleted, audio_deleted, priority, depends_on"

// Enqueue inserts a queued job for one episode. Enqueueing an episode that
// already has a job is not an error; the existing job's ID is returned
// unchanged.
func (s *Store) Enqueue(ctx context.Context, job *Job) (int64, error) {
	if job == nil {
		return 0, errors.New("job is nil")
	}
	now := timestamp()
	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	stage := job.Stage
	if stage == "" {
		stage = StageQueued
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            anime_id, anime_title, title_english, mal_id, episode, season, year,
            stage, progress, created_at, updated_at, max_retries, priority, depends_on
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?)
        ON CONFLICT(anime_id, episode) DO NOTHING`,
		job.AnimeID,
		job.AnimeTitle,
		nullableString(job.TitleEnglish),
		job.MALID,
		job.Episode,
		nullableString(job.Season),
		nullableInt64(int64(job.Year)),
		stage,
		now,
		now,
		maxRetries,
		job.Priority,
		job.DependsOn,
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue job: %w", err)
	}

	var id int64
	row := s.db.QueryRowContext(ctx, `SELECT id FROM jobs WHERE anime_id = ? AND episode = ?`, job.AnimeID, job.Episode)
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve enqueued job id: %w", err)
	}
	job.ID = id
	return id, nil
}

// Dequeue atomically claims the next job waiting in the from stage and moves
// it to the to stage. Jobs are claimed highest priority first, oldest first
// within a priority. Returns nil when no job is waiting.
func (s *Store) Dequeue(ctx context.Context, from, to Stage) (*Job, error) {
	return s.dequeue(ctx, from, to, 0)
}

// DequeueForAnime is Dequeue restricted to a single series by MAL ID.
func (s *Store) DequeueForAnime(ctx context.Context, from, to Stage, malID int64) (*Job, error) {
	return s.dequeue(ctx, from, to, malID)
}

func (s *Store) dequeue(ctx context.Context, from, to Stage, malID int64) (*Job, error) {
	now := timestamp()
	filter := ""
	args := []any{to, now, now, from}
	if malID != 0 {
		filter = " AND mal_id = ?"
		args = append(args, malID)
	}

	// The claim and the stage change are one statement, so two workers can
	// never pull the same row.
	query := `UPDATE jobs
        SET stage = ?, started_at = COALESCE(started_at, ?), updated_at = ?
        WHERE id = (
            SELECT id FROM jobs WHERE stage = ?` + filter + `
            ORDER BY priority DESC, created_at ASC LIMIT 1
        )
        RETURNING ` + jobColumns

	row := s.db.QueryRowContext(ctx, query, args...)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return job, nil
}

// GetJob fetches a job by identifier. Returns nil when the job does not exist.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// JobForEpisode fetches the job for one episode of a series by MAL ID.
func (s *Store) JobForEpisode(ctx context.Context, malID int64, episode int) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE mal_id = ? AND episode = ?`, malID, episode)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job for episode: %w", err)
	}
	return job, nil
}

// UpdateStage moves a job to the given stage and clears any error message.
// Reaching the complete stage also records the completion time.
func (s *Store) UpdateStage(ctx context.Context, id int64, stage Stage) error {
	now := timestamp()
	var completedAt any
	if stage == StageComplete {
		completedAt = now
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET stage = ?, error_message = NULL, updated_at = ?,
             completed_at = COALESCE(?, completed_at)
         WHERE id = ?`,
		stage,
		now,
		completedAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	return nil
}

// UpdateStageWithError moves a job to the given stage and records the error
// that put it there.
func (s *Store) UpdateStageWithError(ctx context.Context, id int64, stage Stage, message string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET stage = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		stage,
		nullableString(message),
		timestamp(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update stage with error: %w", err)
	}
	return nil
}

// UpdateProgress records a progress fraction in [0, 1] for a job.
func (s *Store) UpdateProgress(ctx context.Context, id int64, progress float64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ?`,
		progress,
		timestamp(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// UpdateMetadata applies a sparse metadata update; nil fields are untouched.
func (s *Store) UpdateMetadata(ctx context.Context, id int64, meta JobMetadata) error {
	sets := make([]string, 0, 12)
	args := make([]any, 0, 13)

	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if meta.VideoPath != nil {
		add("video_path", nullableString(*meta.VideoPath))
	}
	if meta.TranscriptPath != nil {
		add("transcript_path", nullableString(*meta.TranscriptPath))
	}
	if meta.TokensPath != nil {
		add("tokens_path", nullableString(*meta.TokensPath))
	}
	if meta.AnalysisPath != nil {
		add("analysis_path", nullableString(*meta.AnalysisPath))
	}
	if meta.DurationSeconds != nil {
		add("duration_seconds", *meta.DurationSeconds)
	}
	if meta.VideoSizeBytes != nil {
		add("video_size_bytes", *meta.VideoSizeBytes)
	}
	if meta.AudioSizeBytes != nil {
		add("audio_size_bytes", *meta.AudioSizeBytes)
	}
	if meta.TranscriptSizeBytes != nil {
		add("transcript_size_bytes", *meta.TranscriptSizeBytes)
	}
	if meta.TokensSizeBytes != nil {
		add("tokens_size_bytes", *meta.TokensSizeBytes)
	}
	if meta.WordCount != nil {
		add("word_count", *meta.WordCount)
	}
	if meta.TokenCount != nil {
		add("token_count", *meta.TokenCount)
	}
	if len(sets) == 0 {
		return nil
	}

	add("updated_at", timestamp())
	args = append(args, id)

	query := `UPDATE jobs SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return nil
}

// MarkFileDeleted records that a job artifact was removed from disk. The flag
// is set before the file is unlinked so a crash between the two never leaves
// an unmarked orphan.
func (s *Store) MarkFileDeleted(ctx context.Context, id int64, kind FileKind) error {
	var column string
	switch kind {
	case FileVideo:
		column = "video_deleted"
	case FileAudio:
		column = "audio_deleted"
	default:
		return fmt.Errorf("unknown file kind %q", kind)
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET `+column+` = 1, updated_at = ? WHERE id = ?`,
		timestamp(),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark %s deleted: %w", kind, err)
	}
	return nil
}

// IncrementRetry bumps a job's retry counter if budget remains. It reports
// whether a retry was granted.
func (s *Store) IncrementRetry(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET retry_count = retry_count + 1, updated_at = ?
         WHERE id = ? AND retry_count < max_retries`,
		timestamp(),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("increment retry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RetryFailed moves failed jobs back to queued, clearing the error. Only
// jobs with retry budget left are eligible; a job that exhausted its
// retries stays failed. With no IDs every eligible failed job is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := timestamp()
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs
             SET stage = ?, error_message = NULL, progress = 0, updated_at = ?
             WHERE stage = ? AND retry_count < max_retries`,
			StageQueued,
			now,
			StageFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StageQueued, now, StageFailed)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE jobs
        SET stage = ?, error_message = NULL, progress = 0, updated_at = ?
        WHERE stage = ? AND retry_count < max_retries AND id IN (` + placeholders + `)`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuck returns jobs abandoned mid-processing to the stable stage their
// worker claimed them from. Run it at operator request after a crash; a live
// deployment must be stopped first or in-flight jobs will be handed out twice.
func (s *Store) ResetStuck(ctx context.Context) (int64, error) {
	now := timestamp()
	var total int64
	for processing, stable := range processingStages {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs SET stage = ?, progress = 0, updated_at = ? WHERE stage = ?`,
			stable,
			now,
			processing,
		)
		if err != nil {
			return total, fmt.Errorf("reset stuck %s jobs: %w", processing, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("rows affected: %w", err)
		}
		total += affected
	}
	return total, nil
}

// JobsByStage returns jobs in any of the given stages, or every job when no
// stage is provided, ordered by creation time.
func (s *Store) JobsByStage(ctx context.Context, stages ...Stage) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at, id`

	if len(stages) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(stages))
		args := make([]any, len(stages))
		for i, stage := range stages {
			args[i] = stage
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE stage IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Stats returns a count of jobs grouped by stage.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, COUNT(1) FROM jobs GROUP BY stage`)
	if err != nil {
		return Stats{}, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{ByStage: make(map[Stage]int)}
	for rows.Next() {
		var stage Stage
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return Stats{}, err
		}
		stats.ByStage[stage] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           int64
		animeID      int64
		animeTitle   string
		titleEnglish sql.NullString
		malID        int64
		episode      int
		season       sql.NullString
		year         sql.NullInt64
		stageStr     string
		progress     float64
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
		errorMessage sql.NullString
		retryCount   int
		maxRetries   int

		videoPath      sql.NullString
		transcriptPath sql.NullString
		tokensPath     sql.NullString
		analysisPath   sql.NullString

		durationSeconds     sql.NullFloat64
		videoSizeBytes      sql.NullInt64
		audioSizeBytes      sql.NullInt64
		transcriptSizeBytes sql.NullInt64
		tokensSizeBytes     sql.NullInt64
		wordCount           sql.NullInt64
		tokenCount          sql.NullInt64

		videoDeleted sql.NullInt64
		audioDeleted sql.NullInt64
		priority     int
		dependsOn    sql.NullInt64
	)

	if err := scanner.Scan(
		&id,
		&animeID,
		&animeTitle,
		&titleEnglish,
		&malID,
		&episode,
		&season,
		&year,
		&stageStr,
		&progress,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
		&errorMessage,
		&retryCount,
		&maxRetries,
		&videoPath,
		&transcriptPath,
		&tokensPath,
		&analysisPath,
		&durationSeconds,
		&videoSizeBytes,
		&audioSizeBytes,
		&transcriptSizeBytes,
		&tokensSizeBytes,
		&wordCount,
		&tokenCount,
		&videoDeleted,
		&audioDeleted,
		&priority,
		&dependsOn,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:                  id,
		AnimeID:             animeID,
		AnimeTitle:          animeTitle,
		TitleEnglish:        titleEnglish.String,
		MALID:               malID,
		Episode:             episode,
		Season:              season.String,
		Year:                int(year.Int64),
		Stage:               Stage(stageStr),
		Progress:            progress,
		ErrorMessage:        errorMessage.String,
		RetryCount:          retryCount,
		MaxRetries:          maxRetries,
		VideoPath:           videoPath.String,
		TranscriptPath:      transcriptPath.String,
		TokensPath:          tokensPath.String,
		AnalysisPath:        analysisPath.String,
		DurationSeconds:     durationSeconds.Float64,
		VideoSizeBytes:      videoSizeBytes.Int64,
		AudioSizeBytes:      audioSizeBytes.Int64,
		TranscriptSizeBytes: transcriptSizeBytes.Int64,
		TokensSizeBytes:     tokensSizeBytes.Int64,
		WordCount:           wordCount.Int64,
		TokenCount:          tokenCount.Int64,
		VideoDeleted:        videoDeleted.Int64 != 0,
		AudioDeleted:        audioDeleted.Int64 != 0,
		Priority:            priority,
	}
	if dependsOn.Valid {
		v := dependsOn.Int64
		job.DependsOn = &v
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	return job, nil
}
