// Package transcribe drains the downloaded stage: audio is extracted from
// each video, run through Whisper, and the cleaned transcript stored at its
// canonical path.
//
// Artifact cleanup runs only after the job has advanced to transcribed, and
// each file is marked deleted in the queue before it is unlinked. A crash at
// any point leaves either an extra file on disk or a flag with no file,
// never a job that thinks it has a file it lost.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"kotoba/internal/logging"
	"kotoba/internal/paths"
	"kotoba/internal/queue"
	"kotoba/internal/services"
)

// AudioExtractor is the part of the ffmpeg service the worker uses.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, source, dest string) error
	Duration(ctx context.Context, source string) (float64, error)
}

// Transcriber is the part of the Whisper service the worker uses.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, outputDir string) (string, error)
}

// Invalidator lets the worker tell the disk monitor that bytes moved.
type Invalidator interface {
	InvalidateCache()
}

// CleanupPolicy declares which consumed artifacts to delete.
type CleanupPolicy struct {
	DeleteVideo bool
	DeleteAudio bool
}

// Options configures a transcription run.
type Options struct {
	// Workers is the transcription pool size.
	Workers int
	// DryRun writes placeholder transcripts instead of running the tools.
	DryRun bool
	// Cleanup declares what to delete after a successful transcription.
	Cleanup CleanupPolicy
	// Pacing is a pause between jobs so a long drain does not monopolize
	// the machine. Zero disables it.
	Pacing time.Duration
}

// Stats summarizes a transcription run.
type Stats struct {
	Transcribed int
	Retried     int
	Failed      int
}

// Worker drains the downloaded stage.
type Worker struct {
	store       *queue.Store
	extractor   AudioExtractor
	transcriber Transcriber
	invalidator Invalidator
	data        paths.Data
	opts        Options
	logger      *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New builds a transcription worker pool.
func New(store *queue.Store, extractor AudioExtractor, transcriber Transcriber, invalidator Invalidator, data paths.Data, opts Options, logger *slog.Logger) *Worker {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		store:       store,
		extractor:   extractor,
		transcriber: transcriber,
		invalidator: invalidator,
		data:        data,
		opts:        opts,
		logger:      logger,
	}
}

// Run drains the downloaded stage and returns when no jobs remain or the
// context is canceled.
func (w *Worker) Run(ctx context.Context) (Stats, error) {
	var wg sync.WaitGroup
	for i := 0; i < w.opts.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			w.loop(ctx, worker)
		}(i)
	}
	wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats, ctx.Err()
}

func (w *Worker) loop(ctx context.Context, worker int) {
	logger := w.logger.With(logging.Int(logging.FieldWorker, worker))
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.store.Dequeue(ctx, queue.StageDownloaded, queue.StageTranscribing)
		if err != nil {
			logger.Error("claim failed", logging.Error(err))
			return
		}
		if job == nil {
			return
		}

		if w.process(ctx, logger, job) {
			return
		}

		if w.opts.Pacing > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.opts.Pacing):
			}
		}
	}
}

// process handles one claimed job and reports whether the worker should
// stop. Storage failures are fatal to the worker, not the job: the job keeps
// the stage its last committed transaction reached and its retry budget.
func (w *Worker) process(ctx context.Context, logger *slog.Logger, job *queue.Job) bool {
	jobLogger := logging.WithJob(logger, job.ID, job.AnimeTitle, job.Episode)

	err := w.transcribe(ctx, jobLogger, job)
	if err == nil {
		w.count(func(s *Stats) { s.Transcribed++ })
		return false
	}
	if errors.Is(err, queue.ErrStorage) {
		jobLogger.Error("storage failure, worker stopping", logging.Error(err))
		return true
	}

	if services.IsRetryable(err) {
		granted, retryErr := w.store.IncrementRetry(ctx, job.ID)
		if retryErr != nil {
			jobLogger.Error("retry bookkeeping failed, worker stopping", logging.Error(retryErr))
			return true
		}
		if granted {
			if stageErr := w.store.UpdateStage(ctx, job.ID, queue.StageDownloaded); stageErr != nil {
				jobLogger.Error("requeue failed, worker stopping", logging.Error(stageErr))
				return true
			}
			w.count(func(s *Stats) { s.Retried++ })
			jobLogger.Warn("transcription failed, requeued", logging.Error(err))
			return false
		}
	}

	w.count(func(s *Stats) { s.Failed++ })
	jobLogger.Error("transcription failed permanently", logging.Error(err))
	if stageErr := w.store.UpdateStageWithError(ctx, job.ID, queue.StageFailed, err.Error()); stageErr != nil {
		jobLogger.Error("failure bookkeeping failed, worker stopping", logging.Error(stageErr))
		return true
	}
	return false
}

func (w *Worker) transcribe(ctx context.Context, logger *slog.Logger, job *queue.Job) error {
	if job.VideoPath == "" {
		return services.Wrap(services.ErrPrecondition, "transcribing", "",
			"job has no video path; download did not complete", nil)
	}
	if _, err := os.Stat(job.VideoPath); err != nil {
		return services.Wrap(services.ErrPrecondition, "transcribing", "",
			fmt.Sprintf("video missing at %s", job.VideoPath), err)
	}

	audioPath := w.data.AudioFile(job.MALID, job.AnimeTitle, job.Episode)
	transcriptPath := w.data.TranscriptFile(job.MALID, job.AnimeTitle, job.Episode)

	var (
		duration  float64
		audioSize int64
	)

	if w.opts.DryRun {
		if err := os.MkdirAll(w.data.AudioDir(job.MALID), 0o755); err != nil {
			return fmt.Errorf("ensure audio dir: %w", err)
		}
		if err := os.WriteFile(audioPath, nil, 0o644); err != nil {
			return fmt.Errorf("write audio placeholder: %w", err)
		}
		if err := os.MkdirAll(w.data.TranscriptDir(job.MALID), 0o755); err != nil {
			return fmt.Errorf("ensure transcript dir: %w", err)
		}
		if err := os.WriteFile(transcriptPath, []byte("Dry run transcript"), 0o644); err != nil {
			return fmt.Errorf("write transcript placeholder: %w", err)
		}
		logger.Info("dry run, placeholder transcript written", logging.String("path", transcriptPath))
	} else {
		if err := w.extractor.ExtractAudio(ctx, job.VideoPath, audioPath); err != nil {
			return err
		}
		if info, err := os.Stat(audioPath); err == nil {
			audioSize = info.Size()
		}
		if seconds, err := w.extractor.Duration(ctx, job.VideoPath); err == nil {
			duration = seconds
		} else {
			logger.Warn("duration probe failed", logging.Error(err))
		}

		written, err := w.transcriber.Transcribe(ctx, audioPath, w.data.TranscriptDir(job.MALID))
		if err != nil {
			return err
		}
		if written != transcriptPath {
			if err := os.Rename(written, transcriptPath); err != nil {
				return fmt.Errorf("rename transcript: %w", err)
			}
		}

		raw, err := os.ReadFile(transcriptPath)
		if err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}
		cleaned := CleanTranscript(string(raw))
		if err := os.WriteFile(transcriptPath, []byte(cleaned), 0o644); err != nil {
			return fmt.Errorf("write cleaned transcript: %w", err)
		}
	}

	transcriptInfo, err := os.Stat(transcriptPath)
	if err != nil {
		return fmt.Errorf("stat transcript: %w", err)
	}
	transcriptSize := transcriptInfo.Size()

	content, err := os.ReadFile(transcriptPath)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	words := WordCount(string(content))

	if err := w.store.UpdateMetadata(ctx, job.ID, queue.JobMetadata{
		TranscriptPath:      &transcriptPath,
		TranscriptSizeBytes: &transcriptSize,
		AudioSizeBytes:      &audioSize,
		DurationSeconds:     &duration,
		WordCount:           &words,
	}); err != nil {
		return fmt.Errorf("record metadata: %w: %w", queue.ErrStorage, err)
	}
	if err := w.store.UpdateStage(ctx, job.ID, queue.StageTranscribed); err != nil {
		return fmt.Errorf("advance stage: %w: %w", queue.ErrStorage, err)
	}
	if err := w.store.IncrementEpisodesProcessed(ctx, job.AnimeID); err != nil {
		logger.Warn("episode counter update failed", logging.Error(err))
	}

	logger.Info("episode transcribed",
		logging.String("path", transcriptPath),
		logging.Int64("words", words))

	w.cleanup(ctx, logger, job, audioPath)
	return nil
}

// cleanup removes consumed artifacts. The stage has already advanced, so a
// failure here costs disk, not correctness. Mark first, unlink second.
func (w *Worker) cleanup(ctx context.Context, logger *slog.Logger, job *queue.Job, audioPath string) {
	freed := false
	if w.opts.Cleanup.DeleteVideo {
		if w.removeArtifact(ctx, logger, job.ID, queue.FileVideo, job.VideoPath) {
			freed = true
		}
	}
	if w.opts.Cleanup.DeleteAudio {
		if w.removeArtifact(ctx, logger, job.ID, queue.FileAudio, audioPath) {
			freed = true
		}
	}
	if freed && w.invalidator != nil {
		w.invalidator.InvalidateCache()
	}
}

func (w *Worker) removeArtifact(ctx context.Context, logger *slog.Logger, jobID int64, kind queue.FileKind, path string) bool {
	if path == "" {
		return false
	}
	if err := w.store.MarkFileDeleted(ctx, jobID, kind); err != nil {
		logger.Warn("cleanup mark failed",
			logging.String("kind", string(kind)),
			logging.Error(err))
		return false
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("cleanup unlink failed",
			logging.String("kind", string(kind)),
			logging.String("path", path),
			logging.Error(err))
		return false
	}
	return true
}

func (w *Worker) count(mutate func(*Stats)) {
	w.mu.Lock()
	mutate(&w.stats)
	w.mu.Unlock()
}
