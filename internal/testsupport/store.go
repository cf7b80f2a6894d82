package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"kotoba/internal/queue"
)

// MustOpenStore opens a fresh queue database under the test's temp directory
// and closes it on cleanup.
func MustOpenStore(t testing.TB) *queue.Store {
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

// SeedAnime inserts a series with the given identity and returns the stored
// row.
func SeedAnime(t testing.TB, store *queue.Store, malID int64, title string, episodes int) *queue.Anime {
	t.Helper()

	anime, err := store.GetOrCreateAnime(context.Background(), &queue.Anime{
		MALID:    malID,
		Title:    title,
		Episodes: episodes,
	})
	if err != nil {
		t.Fatalf("seed anime %q: %v", title, err)
	}
	return anime
}

// SeedJob enqueues one episode for the series and returns the job ID.
func SeedJob(t testing.TB, store *queue.Store, anime *queue.Anime, episode int) int64 {
	t.Helper()

	id, err := store.Enqueue(context.Background(), queue.NewJob(anime, episode))
	if err != nil {
		t.Fatalf("seed job ep %d: %v", episode, err)
	}
	return id
}

// SeedSelection caches a high-confidence title selection for the series.
func SeedSelection(t testing.TB, store *queue.Store, anime *queue.Anime, selectedTitle string) {
	t.Helper()

	err := store.CacheSelection(context.Background(), &queue.Selection{
		AnimeID:       anime.ID,
		MALTitle:      anime.Title,
		SelectedTitle: selectedTitle,
		SelectedIndex: 0,
		Confidence:    "high",
	})
	if err != nil {
		t.Fatalf("seed selection for %q: %v", anime.Title, err)
	}
}
