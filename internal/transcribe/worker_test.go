package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"kotoba/internal/paths"
	"kotoba/internal/queue"
	"kotoba/internal/services"
)

type fakeExtractor struct {
	fail  bool
	calls atomic.Int64
}

func (f *fakeExtractor) ExtractAudio(_ context.Context, source, dest string) error {
	f.calls.Add(1)
	if f.fail {
		return services.Wrap(services.ErrExternalTool, "transcribing", "ffmpeg", "audio extraction failed", errors.New("exit status 1"))
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte("audio-bytes"), 0o644)
}

func (f *fakeExtractor) Duration(context.Context, string) (float64, error) {
	return 1420.5, nil
}

type fakeTranscriber struct {
	text       string
	afterWrite func()
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audioPath, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	path := filepath.Join(outputDir, stem+".txt")
	if err := os.WriteFile(path, []byte(f.text), 0o644); err != nil {
		return "", err
	}
	if f.afterWrite != nil {
		f.afterWrite()
	}
	return path, nil
}

type fakeInvalidator struct {
	calls atomic.Int64
}

func (f *fakeInvalidator) InvalidateCache() { f.calls.Add(1) }

func newFixture(t *testing.T) (*queue.Store, paths.Data, *queue.Anime) {
	t.Helper()
	root := t.TempDir()
	store, err := queue.Open(filepath.Join(root, "jobs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	data := paths.NewData(root)
	if err := data.CreateDirs(); err != nil {
		t.Fatal(err)
	}

	anime, err := store.GetOrCreateAnime(context.Background(), &queue.Anime{
		MALID: 1, Title: "Cowboy Bebop", Episodes: 26,
	})
	if err != nil {
		t.Fatal(err)
	}
	return store, data, anime
}

// seedDownloaded enqueues an episode, writes its video file, and moves the job
// to the downloaded stage the way a download worker would.
func seedDownloaded(t *testing.T, store *queue.Store, data paths.Data, anime *queue.Anime, episode int) int64 {
	t.Helper()
	ctx := context.Background()

	id, err := store.Enqueue(ctx, queue.NewJob(anime, episode))
	if err != nil {
		t.Fatal(err)
	}

	videoPath := data.VideoFile(anime.MALID, anime.Title, episode, "mp4")
	if err := os.MkdirAll(filepath.Dir(videoPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(videoPath, []byte("video-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	size := int64(len("video-bytes"))
	if err := store.UpdateMetadata(ctx, id, queue.JobMetadata{
		VideoPath:      &videoPath,
		VideoSizeBytes: &size,
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateStage(ctx, id, queue.StageDownloaded); err != nil {
		t.Fatal(err)
	}
	return id
}

func TestTranscribeHappyPath(t *testing.T) {
	store, data, anime := newFixture(t)
	ctx := context.Background()
	id := seedDownloaded(t, store, data, anime, 1)

	transcriber := &fakeTranscriber{
		text: "本当にそうなの？\nThank you for watching!\nそうだよ\nそうだよ\n",
	}
	invalidator := &fakeInvalidator{}
	w := New(store, &fakeExtractor{}, transcriber, invalidator, data, Options{
		Workers: 1,
		Cleanup: CleanupPolicy{DeleteVideo: true, DeleteAudio: true},
	}, nil)

	stats, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Transcribed != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}

	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Stage != queue.StageTranscribed {
		t.Errorf("stage = %q", job.Stage)
	}
	wantPath := data.TranscriptFile(1, "Cowboy Bebop", 1)
	if job.TranscriptPath != wantPath {
		t.Errorf("transcript path = %q, want %q", job.TranscriptPath, wantPath)
	}
	if job.DurationSeconds != 1420.5 {
		t.Errorf("duration = %v", job.DurationSeconds)
	}

	// Hallucination line dropped, duplicate collapsed.
	content, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(content); got != "本当にそうなの？\nそうだよ" {
		t.Errorf("cleaned transcript = %q", got)
	}
	if job.WordCount != 2 {
		t.Errorf("word count = %d", job.WordCount)
	}
	if job.TranscriptSizeBytes == 0 {
		t.Error("transcript size not recorded")
	}

	series, err := store.AnimeByID(ctx, anime.ID)
	if err != nil {
		t.Fatal(err)
	}
	if series.EpisodesProcessed != 1 {
		t.Errorf("episodes processed = %d", series.EpisodesProcessed)
	}
}

func TestTranscribeCleanupMarksThenUnlinks(t *testing.T) {
	store, data, anime := newFixture(t)
	ctx := context.Background()
	id := seedDownloaded(t, store, data, anime, 1)

	invalidator := &fakeInvalidator{}
	w := New(store, &fakeExtractor{}, &fakeTranscriber{text: "セリフ\n"}, invalidator, data, Options{
		Workers: 1,
		Cleanup: CleanupPolicy{DeleteVideo: true, DeleteAudio: true},
	}, nil)

	if _, err := w.Run(ctx); err != nil {
		t.Fatal(err)
	}

	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !job.VideoDeleted || !job.AudioDeleted {
		t.Errorf("cleanup flags: video=%v audio=%v", job.VideoDeleted, job.AudioDeleted)
	}
	if _, err := os.Stat(job.VideoPath); !os.IsNotExist(err) {
		t.Errorf("video still on disk: %v", err)
	}
	if _, err := os.Stat(data.AudioFile(1, "Cowboy Bebop", 1)); !os.IsNotExist(err) {
		t.Errorf("audio still on disk: %v", err)
	}
	if invalidator.calls.Load() == 0 {
		t.Error("disk cache not invalidated after cleanup")
	}
}

func TestTranscribeCleanupDisabledKeepsFiles(t *testing.T) {
	store, data, anime := newFixture(t)
	ctx := context.Background()
	id := seedDownloaded(t, store, data, anime, 1)

	w := New(store, &fakeExtractor{}, &fakeTranscriber{text: "セリフ\n"}, &fakeInvalidator{}, data, Options{
		Workers: 1,
	}, nil)

	if _, err := w.Run(ctx); err != nil {
		t.Fatal(err)
	}

	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if job.VideoDeleted || job.AudioDeleted {
		t.Errorf("cleanup flags set despite disabled policy: %+v", job)
	}
	if _, err := os.Stat(job.VideoPath); err != nil {
		t.Errorf("video removed: %v", err)
	}
	if _, err := os.Stat(data.AudioFile(1, "Cowboy Bebop", 1)); err != nil {
		t.Errorf("audio removed: %v", err)
	}
}

func TestTranscribeDryRunWritesPlaceholder(t *testing.T) {
	store, data, anime := newFixture(t)
	ctx := context.Background()
	id := seedDownloaded(t, store, data, anime, 2)

	extractor := &fakeExtractor{}
	w := New(store, extractor, &fakeTranscriber{text: "unused"}, &fakeInvalidator{}, data, Options{
		Workers: 1,
		DryRun:  true,
		Cleanup: CleanupPolicy{DeleteVideo: true, DeleteAudio: true},
	}, nil)

	stats, err := w.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Transcribed != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if extractor.calls.Load() != 0 {
		t.Error("dry run must not invoke ffmpeg")
	}

	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Stage != queue.StageTranscribed {
		t.Errorf("stage = %q", job.Stage)
	}
	content, err := os.ReadFile(job.TranscriptPath)
	if err != nil {
		t.Fatalf("placeholder missing: %v", err)
	}
	if string(content) != "Dry run transcript" {
		t.Errorf("placeholder body = %q", content)
	}
	// Cleanup still runs against the placeholders.
	if !job.VideoDeleted || !job.AudioDeleted {
		t.Errorf("cleanup flags: video=%v audio=%v", job.VideoDeleted, job.AudioDeleted)
	}
}

func TestTranscribeMissingVideoFailsWithoutRetry(t *testing.T) {
	store, data, anime := newFixture(t)
	ctx := context.Background()
	id := seedDownloaded(t, store, data, anime, 1)

	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(job.VideoPath); err != nil {
		t.Fatal(err)
	}

	w := New(store, &fakeExtractor{}, &fakeTranscriber{text: "unused"}, &fakeInvalidator{}, data, Options{Workers: 1}, nil)

	stats, err := w.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}

	job, err = store.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Stage != queue.StageFailed {
		t.Errorf("stage = %q", job.Stage)
	}
	if job.RetryCount != 0 {
		t.Errorf("precondition failure must not burn retries: %d", job.RetryCount)
	}
	if !strings.Contains(job.ErrorMessage, "video missing") {
		t.Errorf("error message = %q", job.ErrorMessage)
	}
}

func TestTranscribeStorageFailureStopsWorker(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, "jobs.db")
	store, err := queue.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	data := paths.NewData(root)
	if err := data.CreateDirs(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	anime, err := store.GetOrCreateAnime(ctx, &queue.Anime{MALID: 1, Title: "Cowboy Bebop", Episodes: 26})
	if err != nil {
		t.Fatal(err)
	}
	id := seedDownloaded(t, store, data, anime, 1)

	// The store dies between the tool runs and the bookkeeping writes.
	transcriber := &fakeTranscriber{text: "セリフ\n", afterWrite: func() { _ = store.Close() }}
	w := New(store, &fakeExtractor{}, transcriber, &fakeInvalidator{}, data, Options{Workers: 1}, nil)

	stats, err := w.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Transcribed != 0 || stats.Retried != 0 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want untouched counters", stats)
	}

	reopened, err := queue.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	job, err := reopened.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Stage != queue.StageTranscribing {
		t.Errorf("stage = %q, want the claimed stage kept", job.Stage)
	}
	if job.RetryCount != 0 {
		t.Errorf("storage failure burned retry budget: %d", job.RetryCount)
	}
}

func TestTranscribeRetriesThenFails(t *testing.T) {
	store, data, anime := newFixture(t)
	ctx := context.Background()
	id := seedDownloaded(t, store, data, anime, 1)

	extractor := &fakeExtractor{fail: true}
	w := New(store, extractor, &fakeTranscriber{text: "unused"}, &fakeInvalidator{}, data, Options{Workers: 1}, nil)

	stats, err := w.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Retried != queue.DefaultMaxRetries || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}

	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Stage != queue.StageFailed {
		t.Errorf("stage = %q", job.Stage)
	}
	if job.RetryCount != queue.DefaultMaxRetries {
		t.Errorf("retry count = %d", job.RetryCount)
	}
	if extractor.calls.Load() != int64(queue.DefaultMaxRetries)+1 {
		t.Errorf("extraction attempts = %d", extractor.calls.Load())
	}
}
