package queue_test

import (
	"context"
	"path/filepath"
	"testing"

	"kotoba/internal/queue"
)

func openStore(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func seedAnime(t *testing.T, store *queue.Store, malID int64, title string, episodes int) *queue.Anime {
	t.Helper()
	anime, err := store.GetOrCreateAnime(context.Background(), &queue.Anime{
		MALID:    malID,
		Title:    title,
		Episodes: episodes,
		Season:   "spring",
		Year:     1998,
	})
	if err != nil {
		t.Fatalf("seed anime: %v", err)
	}
	return anime
}

func TestGetOrCreateAnimeUpsertsByMALID(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first := seedAnime(t, store, 1, "Cowboy Bebop", 26)
	if first.ID == 0 {
		t.Fatal("expected assigned anime id")
	}

	second, err := store.GetOrCreateAnime(ctx, &queue.Anime{
		MALID:        1,
		Title:        "Cowboy Bebop",
		TitleEnglish: "Cowboy Bebop",
		Episodes:     26,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert created a new row: %d != %d", second.ID, first.ID)
	}
	if second.TitleEnglish != "Cowboy Bebop" {
		t.Errorf("catalog refresh not applied: %q", second.TitleEnglish)
	}
}

func TestEnqueueDeduplicatesEpisodes(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	anime := seedAnime(t, store, 1, "Cowboy Bebop", 26)

	id1, err := store.Enqueue(ctx, queue.NewJob(anime, 5))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	id2, err := store.Enqueue(ctx, queue.NewJob(anime, 5))
	if err != nil {
		t.Fatalf("duplicate enqueue: %v", err)
	}
	if id1 != id2 {
		t.Errorf("duplicate enqueue produced a new job: %d != %d", id2, id1)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("total jobs = %d, want 1", stats.Total)
	}
}

func TestDequeueClaimsByPriorityThenAge(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	anime := seedAnime(t, store, 1, "Cowboy Bebop", 26)

	for episode := 1; episode <= 3; episode++ {
		job := queue.NewJob(anime, episode)
		if episode == 3 {
			job.Priority = 10
		}
		if _, err := store.Enqueue(ctx, job); err != nil {
			t.Fatalf("enqueue ep%d: %v", episode, err)
		}
	}

	job, err := store.Dequeue(ctx, queue.StageQueued, queue.StageDownloading)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job == nil {
		t.Fatal("expected a job")
	}
	if job.Episode != 3 {
		t.Errorf("priority job not claimed first: episode %d", job.Episode)
	}
	if job.Stage != queue.StageDownloading {
		t.Errorf("claimed job stage = %q", job.Stage)
	}
	if job.StartedAt == nil {
		t.Error("claim should record started_at")
	}
	if job.AnimeTitle != "Cowboy Bebop" {
		t.Errorf("claimed job missing series identity: %q", job.AnimeTitle)
	}

	job, err = store.Dequeue(ctx, queue.StageQueued, queue.StageDownloading)
	if err != nil {
		t.Fatalf("second dequeue: %v", err)
	}
	if job.Episode != 1 {
		t.Errorf("expected oldest job next, got episode %d", job.Episode)
	}
}

func TestDequeueEmptyStageReturnsNil(t *testing.T) {
	store := openStore(t)
	job, err := store.Dequeue(context.Background(), queue.StageTranscribed, queue.StageTokenizing)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job != nil {
		t.Errorf("expected nil job, got %+v", job)
	}
}

func TestDequeueForAnimeFilters(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	bebop := seedAnime(t, store, 1, "Cowboy Bebop", 26)
	lain := seedAnime(t, store, 339, "Serial Experiments Lain", 13)

	if _, err := store.Enqueue(ctx, queue.NewJob(bebop, 1)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Enqueue(ctx, queue.NewJob(lain, 1)); err != nil {
		t.Fatal(err)
	}

	job, err := store.DequeueForAnime(ctx, queue.StageQueued, queue.StageDownloading, 339)
	if err != nil {
		t.Fatalf("dequeue for anime: %v", err)
	}
	if job == nil || job.MALID != 339 {
		t.Fatalf("expected lain job, got %+v", job)
	}

	job, err = store.DequeueForAnime(ctx, queue.StageQueued, queue.StageDownloading, 339)
	if err != nil {
		t.Fatal(err)
	}
	if job != nil {
		t.Errorf("filter leaked another series: %+v", job)
	}
}

func TestUpdateStageClearsErrorAndCompletes(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	anime := seedAnime(t, store, 1, "Cowboy Bebop", 26)
	id, err := store.Enqueue(ctx, queue.NewJob(anime, 1))
	if err != nil {
		t.Fatal(err)
	}

	if err := store.UpdateStageWithError(ctx, id, queue.StageFailed, "ani-cli exited 1"); err != nil {
		t.Fatal(err)
	}
	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Stage != queue.StageFailed || job.ErrorMessage != "ani-cli exited 1" {
		t.Fatalf("failure not recorded: %+v", job)
	}

	if err := store.UpdateStage(ctx, id, queue.StageComplete); err != nil {
		t.Fatal(err)
	}
	job, err = store.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if job.ErrorMessage != "" {
		t.Errorf("error message should clear on stage change: %q", job.ErrorMessage)
	}
	if job.CompletedAt == nil {
		t.Error("completion time not recorded")
	}
}

func TestUpdateMetadataIsSparse(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	anime := seedAnime(t, store, 1, "Cowboy Bebop", 26)
	id, err := store.Enqueue(ctx, queue.NewJob(anime, 1))
	if err != nil {
		t.Fatal(err)
	}

	videoPath := "/data/videos/1/episodes/cowboy_bebop_ep001.mp4"
	videoSize := int64(1 << 20)
	if err := store.UpdateMetadata(ctx, id, queue.JobMetadata{
		VideoPath:      &videoPath,
		VideoSizeBytes: &videoSize,
	}); err != nil {
		t.Fatal(err)
	}

	wordCount := int64(4200)
	if err := store.UpdateMetadata(ctx, id, queue.JobMetadata{WordCount: &wordCount}); err != nil {
		t.Fatal(err)
	}

	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if job.VideoPath != videoPath {
		t.Errorf("video path lost by later sparse update: %q", job.VideoPath)
	}
	if job.VideoSizeBytes != videoSize {
		t.Errorf("video size = %d", job.VideoSizeBytes)
	}
	if job.WordCount != wordCount {
		t.Errorf("word count = %d", job.WordCount)
	}
}

func TestMarkFileDeleted(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	anime := seedAnime(t, store, 1, "Cowboy Bebop", 26)
	id, err := store.Enqueue(ctx, queue.NewJob(anime, 1))
	if err != nil {
		t.Fatal(err)
	}

	if err := store.MarkFileDeleted(ctx, id, queue.FileVideo); err != nil {
		t.Fatal(err)
	}
	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !job.VideoDeleted {
		t.Error("video_deleted not set")
	}
	if job.AudioDeleted {
		t.Error("audio_deleted set unexpectedly")
	}

	if err := store.MarkFileDeleted(ctx, id, queue.FileKind("subtitles")); err == nil {
		t.Error("unknown file kind should error")
	}
}

func TestIncrementRetryRespectsBudget(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	anime := seedAnime(t, store, 1, "Cowboy Bebop", 26)
	id, err := store.Enqueue(ctx, queue.NewJob(anime, 1))
	if err != nil {
		t.Fatal(err)
	}

	for attempt := 1; attempt <= queue.DefaultMaxRetries; attempt++ {
		granted, err := store.IncrementRetry(ctx, id)
		if err != nil {
			t.Fatalf("attempt %d: %v", attempt, err)
		}
		if !granted {
			t.Fatalf("attempt %d should be within budget", attempt)
		}
	}

	granted, err := store.IncrementRetry(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if granted {
		t.Error("retry granted past max_retries")
	}
}

func TestRetryFailedRequeuesJobs(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	anime := seedAnime(t, store, 1, "Cowboy Bebop", 26)

	var failed []int64
	for episode := 1; episode <= 2; episode++ {
		id, err := store.Enqueue(ctx, queue.NewJob(anime, episode))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := store.IncrementRetry(ctx, id); err != nil {
			t.Fatal(err)
		}
		if err := store.UpdateStageWithError(ctx, id, queue.StageFailed, "boom"); err != nil {
			t.Fatal(err)
		}
		failed = append(failed, id)
	}

	count, err := store.RetryFailed(ctx, failed[0])
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("retried %d jobs, want 1", count)
	}

	job, err := store.GetJob(ctx, failed[0])
	if err != nil {
		t.Fatal(err)
	}
	if job.Stage != queue.StageQueued || job.ErrorMessage != "" {
		t.Errorf("retry did not requeue job: %+v", job)
	}
	// The budget already spent is kept, not replenished.
	if job.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", job.RetryCount)
	}

	count, err = store.RetryFailed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("retry-all retried %d jobs, want the remaining 1", count)
	}
}

func TestRetryFailedSkipsExhaustedJobs(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	anime := seedAnime(t, store, 1, "Cowboy Bebop", 26)

	id, err := store.Enqueue(ctx, queue.NewJob(anime, 1))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < queue.DefaultMaxRetries; i++ {
		if _, err := store.IncrementRetry(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.UpdateStageWithError(ctx, id, queue.StageFailed, "boom"); err != nil {
		t.Fatal(err)
	}

	count, err := store.RetryFailed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("retried %d jobs, want 0", count)
	}

	count, err = store.RetryFailed(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("targeted retry moved %d jobs, want 0", count)
	}

	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Stage != queue.StageFailed || job.RetryCount != queue.DefaultMaxRetries || job.ErrorMessage != "boom" {
		t.Errorf("exhausted job changed: %+v", job)
	}
}

func TestResetStuckReturnsProcessingJobs(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	anime := seedAnime(t, store, 1, "Cowboy Bebop", 26)

	downloading, err := store.Enqueue(ctx, queue.NewJob(anime, 1))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateStage(ctx, downloading, queue.StageDownloading); err != nil {
		t.Fatal(err)
	}

	transcribing, err := store.Enqueue(ctx, queue.NewJob(anime, 2))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateStage(ctx, transcribing, queue.StageTranscribing); err != nil {
		t.Fatal(err)
	}

	untouched, err := store.Enqueue(ctx, queue.NewJob(anime, 3))
	if err != nil {
		t.Fatal(err)
	}

	count, err := store.ResetStuck(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("reset %d jobs, want 2", count)
	}

	job, _ := store.GetJob(ctx, downloading)
	if job.Stage != queue.StageQueued {
		t.Errorf("downloading job reset to %q, want queued", job.Stage)
	}
	job, _ = store.GetJob(ctx, transcribing)
	if job.Stage != queue.StageDownloaded {
		t.Errorf("transcribing job reset to %q, want downloaded", job.Stage)
	}
	job, _ = store.GetJob(ctx, untouched)
	if job.Stage != queue.StageQueued {
		t.Errorf("queued job should be untouched, got %q", job.Stage)
	}
}

func TestStatsCountsByStage(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	anime := seedAnime(t, store, 1, "Cowboy Bebop", 26)

	for episode := 1; episode <= 3; episode++ {
		if _, err := store.Enqueue(ctx, queue.NewJob(anime, episode)); err != nil {
			t.Fatal(err)
		}
	}
	job, err := store.Dequeue(ctx, queue.StageQueued, queue.StageDownloading)
	if err != nil || job == nil {
		t.Fatalf("dequeue: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 {
		t.Errorf("total = %d", stats.Total)
	}
	if stats.ByStage[queue.StageQueued] != 2 || stats.ByStage[queue.StageDownloading] != 1 {
		t.Errorf("stage counts = %v", stats.ByStage)
	}
}

func TestSelectionCacheRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	anime := seedAnime(t, store, 1, "Cowboy Bebop", 26)

	if sel, err := store.GetSelection(ctx, anime.ID); err != nil || sel != nil {
		t.Fatalf("expected no selection yet, got %+v err %v", sel, err)
	}

	err := store.CacheSelection(ctx, &queue.Selection{
		AnimeID:        anime.ID,
		MALTitle:       "Cowboy Bebop",
		SelectedTitle:  "Cowboy Bebop (26 eps)",
		SelectedIndex:  0,
		Confidence:     "high",
		Reasoning:      "exact title match",
		EpisodeMatch:   "exact",
		CandidatesJSON: `["Cowboy Bebop (26 eps)"]`,
	})
	if err != nil {
		t.Fatalf("cache selection: %v", err)
	}

	sel, err := store.GetSelection(ctx, anime.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sel == nil || sel.SelectedTitle != "Cowboy Bebop (26 eps)" || sel.Confidence != "high" {
		t.Fatalf("selection round trip failed: %+v", sel)
	}

	// Replacement overwrites in place.
	if err := store.CacheSelection(ctx, &queue.Selection{
		AnimeID:       anime.ID,
		MALTitle:      "Cowboy Bebop",
		SelectedIndex: -1,
		Confidence:    "no_candidates",
	}); err != nil {
		t.Fatal(err)
	}
	sel, err = store.GetSelection(ctx, anime.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sel.SelectedIndex != -1 || sel.Confidence != "no_candidates" {
		t.Errorf("replacement not applied: %+v", sel)
	}
}

func TestLowConfidenceSelections(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	bebop := seedAnime(t, store, 1, "Cowboy Bebop", 26)
	lain := seedAnime(t, store, 339, "Serial Experiments Lain", 13)
	eva := seedAnime(t, store, 30, "Neon Genesis Evangelion", 26)

	selections := []*queue.Selection{
		{AnimeID: bebop.ID, MALTitle: "Cowboy Bebop", SelectedIndex: 0, Confidence: "high"},
		{AnimeID: lain.ID, MALTitle: "Serial Experiments Lain", SelectedIndex: 2, Confidence: "low"},
		{AnimeID: eva.ID, MALTitle: "Neon Genesis Evangelion", SelectedIndex: -1, Confidence: "no_candidates"},
	}
	for _, sel := range selections {
		if err := store.CacheSelection(ctx, sel); err != nil {
			t.Fatal(err)
		}
	}

	flagged, err := store.LowConfidenceSelections(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(flagged) != 2 {
		t.Fatalf("flagged %d selections, want 2", len(flagged))
	}
	for _, sel := range flagged {
		if sel.AnimeID == bebop.ID {
			t.Error("high confidence selection should not be flagged")
		}
	}
}

func TestUnselectedAnime(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	bebop := seedAnime(t, store, 1, "Cowboy Bebop", 26)
	lain := seedAnime(t, store, 339, "Serial Experiments Lain", 13)

	if err := store.CacheSelection(ctx, &queue.Selection{
		AnimeID: bebop.ID, MALTitle: "Cowboy Bebop", SelectedIndex: 0, Confidence: "high",
	}); err != nil {
		t.Fatal(err)
	}

	unselected, err := store.UnselectedAnime(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(unselected) != 1 || unselected[0].ID != lain.ID {
		t.Fatalf("unexpected unselected set: %+v", unselected)
	}
}

func TestIncrementEpisodesProcessed(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	anime := seedAnime(t, store, 1, "Cowboy Bebop", 26)

	if err := store.IncrementEpisodesProcessed(ctx, anime.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.IncrementEpisodesProcessed(ctx, anime.ID); err != nil {
		t.Fatal(err)
	}

	got, err := store.AnimeByID(ctx, anime.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.EpisodesProcessed != 2 {
		t.Errorf("episodes_processed = %d, want 2", got.EpisodesProcessed)
	}
	if got.Status == "completed" {
		t.Error("status flipped early")
	}
}

func TestEpisodesProcessedCompletesSeries(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	anime := seedAnime(t, store, 1, "FLCL", 6)

	for i := 0; i < 6; i++ {
		if err := store.IncrementEpisodesProcessed(ctx, anime.ID); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.AnimeByID(ctx, anime.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "completed" {
		t.Errorf("status = %q, want completed", got.Status)
	}
}
