// Package downloader drains the queued stage: it claims jobs, fetches each
// episode through ani-cli, and leaves the video at its canonical path.
//
// Downloads are the only stage that adds bulk data, so admission is gated on
// the disk monitor: when usage crosses the pause threshold the workers idle
// until cleanup frees enough space to resume.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"kotoba/internal/diskspace"
	"kotoba/internal/logging"
	"kotoba/internal/paths"
	"kotoba/internal/queue"
	"kotoba/internal/services"
	"kotoba/internal/textutil"
)

// Fetcher is the part of the ani-cli client the worker uses.
type Fetcher interface {
	Download(ctx context.Context, title string, episode int, destDir string) (string, error)
}

// Admission gates downloads on disk pressure.
type Admission interface {
	ShouldPauseDownloads() (bool, error)
	InvalidateCache()
}

// Options configures a download run.
type Options struct {
	// Workers is the download pool size.
	Workers int
	// DryRun writes empty placeholder files instead of downloading.
	DryRun bool
	// FilterMALID restricts the run to one series. Zero means all.
	FilterMALID int64
	// AdmissionInterval is how long a paused worker sleeps before
	// rechecking disk pressure.
	AdmissionInterval time.Duration
}

// Stats summarizes a download run.
type Stats struct {
	Downloaded int
	Skipped    int
	Retried    int
	Failed     int
}

// Worker drains the queued stage.
type Worker struct {
	store     *queue.Store
	fetcher   Fetcher
	admission Admission
	data      paths.Data
	opts      Options
	logger    *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New builds a download worker pool.
func New(store *queue.Store, fetcher Fetcher, admission Admission, data paths.Data, opts Options, logger *slog.Logger) *Worker {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.AdmissionInterval <= 0 {
		opts.AdmissionInterval = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{store: store, fetcher: fetcher, admission: admission, data: data, opts: opts, logger: logger}
}

// Run drains the queued stage and returns when no jobs remain or the context
// is canceled.
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
		if err := w.waitForAdmission(ctx, logger); err != nil {
			return
		}

		job, err := w.claim(ctx)
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
	}
}

func (w *Worker) claim(ctx context.Context) (*queue.Job, error) {
	if w.opts.FilterMALID != 0 {
		return w.store.DequeueForAnime(ctx, queue.StageQueued, queue.StageDownloading, w.opts.FilterMALID)
	}
	return w.store.Dequeue(ctx, queue.StageQueued, queue.StageDownloading)
}

func (w *Worker) waitForAdmission(ctx context.Context, logger *slog.Logger) error {
	announced := false
	for {
		paused, err := w.admission.ShouldPauseDownloads()
		if err != nil {
			logger.Warn("disk check failed", logging.Error(err))
		}
		if !paused {
			if announced {
				logger.Info("downloads resumed")
			}
			return nil
		}
		if !announced {
			logger.Warn("downloads paused on disk pressure")
			announced = true
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.opts.AdmissionInterval):
		}
	}
}

// process handles one claimed job and reports whether the worker should
// stop. Storage failures are fatal to the worker, not the job: the job keeps
// the stage its last committed transaction reached and its retry budget.
func (w *Worker) process(ctx context.Context, logger *slog.Logger, job *queue.Job) bool {
	jobLogger := logging.WithJob(logger, job.ID, job.AnimeTitle, job.Episode)

	skipped, err := w.download(ctx, jobLogger, job)
	if err == nil {
		if skipped {
			w.count(func(s *Stats) { s.Skipped++ })
		} else {
			w.count(func(s *Stats) { s.Downloaded++ })
		}
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
			if stageErr := w.store.UpdateStage(ctx, job.ID, queue.StageQueued); stageErr != nil {
				jobLogger.Error("requeue failed, worker stopping", logging.Error(stageErr))
				return true
			}
			w.count(func(s *Stats) { s.Retried++ })
			jobLogger.Warn("download failed, requeued",
				logging.Int("retry", job.RetryCount+1),
				logging.Error(err))
			return false
		}
	}

	w.count(func(s *Stats) { s.Failed++ })
	jobLogger.Error("download failed permanently", logging.Error(err))
	if stageErr := w.store.UpdateStageWithError(ctx, job.ID, queue.StageFailed, err.Error()); stageErr != nil {
		jobLogger.Error("failure bookkeeping failed, worker stopping", logging.Error(stageErr))
		return true
	}
	return false
}

func (w *Worker) download(ctx context.Context, logger *slog.Logger, job *queue.Job) (bool, error) {
	selection, err := w.store.GetSelection(ctx, job.AnimeID)
	if err != nil {
		return false, fmt.Errorf("load selection: %w: %w", queue.ErrStorage, err)
	}
	if selection == nil || selection.SelectedIndex < 0 {
		return false, services.Wrap(services.ErrPrecondition, "downloading", "",
			fmt.Sprintf("no anime selection found for %q; run anime-selector first", job.AnimeTitle), nil)
	}

	videoPath := w.data.VideoFile(job.MALID, job.AnimeTitle, job.Episode, "mp4")

	if info, statErr := os.Stat(videoPath); statErr == nil {
		logger.Info("episode already downloaded", logging.String("path", videoPath))
		return true, w.finish(ctx, job, videoPath, info.Size())
	}

	// The selection stores the candidate's display form; the suffix is for
	// humans, not for ani-cli.
	sourceTitle := textutil.StripEpisodeSuffix(selection.SelectedTitle)

	if w.opts.DryRun {
		if err := os.MkdirAll(w.data.VideoDir(job.MALID), 0o755); err != nil {
			return false, fmt.Errorf("ensure video dir: %w", err)
		}
		if err := os.WriteFile(videoPath, nil, 0o644); err != nil {
			return false, fmt.Errorf("write placeholder: %w", err)
		}
		logger.Info("dry run, placeholder written", logging.String("path", videoPath))
		return false, w.finish(ctx, job, videoPath, 0)
	}

	downloaded, err := w.fetcher.Download(ctx, sourceTitle, job.Episode, w.data.VideoDir(job.MALID))
	if err != nil {
		return false, err
	}
	if downloaded != videoPath {
		if err := os.Rename(downloaded, videoPath); err != nil {
			return false, fmt.Errorf("rename download: %w", err)
		}
	}

	info, err := os.Stat(videoPath)
	if err != nil {
		return false, fmt.Errorf("stat download: %w", err)
	}
	logger.Info("episode downloaded",
		logging.String("path", videoPath),
		logging.Int64("bytes", info.Size()))
	return false, w.finish(ctx, job, videoPath, info.Size())
}

func (w *Worker) finish(ctx context.Context, job *queue.Job, videoPath string, size int64) error {
	if err := w.store.UpdateMetadata(ctx, job.ID, queue.JobMetadata{
		VideoPath:      &videoPath,
		VideoSizeBytes: &size,
	}); err != nil {
		return fmt.Errorf("record metadata: %w: %w", queue.ErrStorage, err)
	}
	if err := w.store.UpdateStage(ctx, job.ID, queue.StageDownloaded); err != nil {
		return fmt.Errorf("advance stage: %w: %w", queue.ErrStorage, err)
	}
	w.admission.InvalidateCache()
	return nil
}

func (w *Worker) count(mutate func(*Stats)) {
	w.mu.Lock()
	mutate(&w.stats)
	w.mu.Unlock()
}

var _ Admission = (*diskspace.Monitor)(nil)
