package scraper_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"kotoba/internal/paths"
	"kotoba/internal/queue"
	"kotoba/internal/scraper"
	"kotoba/internal/services/jikan"
)

type fakeCatalog struct {
	genres    map[jikan.CategoryFilter][]jikan.Genre
	pages     map[int64][]jikan.AnimePage
	top       []jikan.AnimePage
	genreErr  error
	pageCalls int
	idCalls   int
}

func (f *fakeCatalog) Genres(_ context.Context, filter jikan.CategoryFilter) ([]jikan.Genre, error) {
	return f.genres[filter], f.genreErr
}

func (f *fakeCatalog) AnimeByGenre(_ context.Context, genreID int64, page int) (jikan.AnimePage, error) {
	f.pageCalls++
	pages := f.pages[genreID]
	if page > len(pages) {
		return jikan.AnimePage{}, errors.New("page out of range")
	}
	return pages[page-1], nil
}

func (f *fakeCatalog) TopAnime(_ context.Context, page int) (jikan.AnimePage, error) {
	if page > len(f.top) {
		return jikan.AnimePage{}, nil
	}
	return f.top[page-1], nil
}

func (f *fakeCatalog) AnimeByID(_ context.Context, malID int64) (*jikan.Anime, error) {
	f.idCalls++
	for _, pages := range f.pages {
		for _, p := range pages {
			for _, a := range p.Anime {
				if a.MALID == malID {
					detail := a
					return &detail, nil
				}
			}
		}
	}
	for _, p := range f.top {
		for _, a := range p.Anime {
			if a.MALID == malID {
				detail := a
				return &detail, nil
			}
		}
	}
	return nil, errors.New("unknown anime")
}

func openStore(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDiscoverCategoriesFiltersSmallGenres(t *testing.T) {
	catalog := &fakeCatalog{genres: map[jikan.CategoryFilter][]jikan.Genre{
		jikan.FilterGenres: {
			{MALID: 1, Name: "Action", Count: 5000},
			{MALID: 2, Name: "Obscure", Count: 12},
		},
	}}
	s := scraper.New(catalog, nil, openStore(t), scraper.Options{MinCategoryItems: 50}, nil)

	categories, err := s.DiscoverCategories(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(categories) != 1 || categories[0].Name != "Action" || categories[0].Type != jikan.FilterGenres {
		t.Errorf("categories = %+v", categories)
	}
}

func TestDiscoverCategoriesWalksAllTaxonomies(t *testing.T) {
	catalog := &fakeCatalog{genres: map[jikan.CategoryFilter][]jikan.Genre{
		jikan.FilterGenres:         {{MALID: 1, Name: "Action", Count: 5000}},
		jikan.FilterExplicitGenres: {{MALID: 9, Name: "Ecchi", Count: 900}},
		jikan.FilterThemes:         {{MALID: 23, Name: "School", Count: 3000}},
		jikan.FilterDemographics:   {{MALID: 27, Name: "Shounen", Count: 4000}},
	}}
	s := scraper.New(catalog, nil, openStore(t), scraper.Options{MinCategoryItems: 50}, nil)

	categories, err := s.DiscoverCategories(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(categories) != 4 {
		t.Fatalf("categories = %+v", categories)
	}
	want := []jikan.CategoryFilter{
		jikan.FilterGenres, jikan.FilterExplicitGenres, jikan.FilterThemes, jikan.FilterDemographics,
	}
	for i, filter := range want {
		if categories[i].Type != filter {
			t.Errorf("categories[%d].Type = %q, want %q", i, categories[i].Type, filter)
		}
	}
}

func TestScrapeCategoryEnqueuesPerEpisode(t *testing.T) {
	catalog := &fakeCatalog{pages: map[int64][]jikan.AnimePage{
		1: {{
			Anime: []jikan.Anime{
				{MALID: 1, Title: "Cowboy Bebop", Episodes: 26, Year: 1998},
				{MALID: 339, Title: "Serial Experiments Lain", Episodes: 13, Year: 1998},
				{MALID: 777, Title: "Airing Show", Episodes: 0},
			},
		}},
	}}
	store := openStore(t)
	s := scraper.New(catalog, nil, store, scraper.Options{}, nil)

	cat := scraper.Category{Type: jikan.FilterGenres, MALID: 1, Name: "Action"}
	stats, err := s.ScrapeCategory(context.Background(), cat)
	if err != nil {
		t.Fatal(err)
	}
	if stats.AnimeStored != 3 {
		t.Errorf("anime stored = %d", stats.AnimeStored)
	}
	if stats.JobsEnqueued != 39 {
		t.Errorf("jobs enqueued = %d, want 39", stats.JobsEnqueued)
	}
	// Each stored series goes through the detail endpoint.
	if catalog.idCalls != 3 {
		t.Errorf("detail fetches = %d, want 3", catalog.idCalls)
	}

	queueStats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if queueStats.ByStage[queue.StageQueued] != 39 {
		t.Errorf("queued = %d", queueStats.ByStage[queue.StageQueued])
	}
}

func TestScrapeCategoryIsIdempotent(t *testing.T) {
	catalog := &fakeCatalog{pages: map[int64][]jikan.AnimePage{
		1: {{Anime: []jikan.Anime{{MALID: 1, Title: "Cowboy Bebop", Episodes: 26}}}},
	}}
	store := openStore(t)
	s := scraper.New(catalog, nil, store, scraper.Options{}, nil)

	cat := scraper.Category{Type: jikan.FilterGenres, MALID: 1, Name: "Action"}
	if _, err := s.ScrapeCategory(context.Background(), cat); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ScrapeCategory(context.Background(), cat); err != nil {
		t.Fatal(err)
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 26 {
		t.Errorf("total jobs = %d after rescrape, want 26", stats.Total)
	}
}

func TestScrapeCategoryUsesCache(t *testing.T) {
	data := paths.NewData(t.TempDir())
	cache := scraper.NewFileCache(data)
	catalog := &fakeCatalog{pages: map[int64][]jikan.AnimePage{
		1: {{Anime: []jikan.Anime{{MALID: 1, Title: "Cowboy Bebop", Episodes: 2}}}},
	}}
	store := openStore(t)
	s := scraper.New(catalog, cache, store, scraper.Options{}, nil)

	cat := scraper.Category{Type: jikan.FilterGenres, MALID: 1, Name: "Action"}
	if _, err := s.ScrapeCategory(context.Background(), cat); err != nil {
		t.Fatal(err)
	}
	if catalog.pageCalls != 1 {
		t.Fatalf("page calls = %d", catalog.pageCalls)
	}
	if catalog.idCalls != 1 {
		t.Fatalf("detail fetches = %d", catalog.idCalls)
	}

	// Second run is served from the file cache, details included.
	if _, err := s.ScrapeCategory(context.Background(), cat); err != nil {
		t.Fatal(err)
	}
	if catalog.pageCalls != 1 {
		t.Errorf("page calls = %d, want cache hit", catalog.pageCalls)
	}
	if catalog.idCalls != 1 {
		t.Errorf("detail fetches = %d, want cache hit", catalog.idCalls)
	}
}

func TestRunDedupesAcrossCategories(t *testing.T) {
	// Cowboy Bebop appears in both the Action genre and the Shounen
	// demographic; it is ingested once.
	catalog := &fakeCatalog{
		genres: map[jikan.CategoryFilter][]jikan.Genre{
			jikan.FilterGenres:       {{MALID: 1, Name: "Action", Count: 5000}},
			jikan.FilterDemographics: {{MALID: 27, Name: "Shounen", Count: 4000}},
		},
		pages: map[int64][]jikan.AnimePage{
			1:  {{Anime: []jikan.Anime{{MALID: 1, Title: "Cowboy Bebop", Episodes: 26}}}},
			27: {{Anime: []jikan.Anime{{MALID: 1, Title: "Cowboy Bebop", Episodes: 26}}}},
		},
	}
	store := openStore(t)
	s := scraper.New(catalog, nil, store, scraper.Options{MinCategoryItems: 50}, nil)

	stats, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.AnimeSeen != 1 || stats.AnimeStored != 1 {
		t.Errorf("stats = %+v, want one series across both categories", stats)
	}
	if catalog.idCalls != 1 {
		t.Errorf("detail fetches = %d, want 1", catalog.idCalls)
	}

	queueStats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if queueStats.Total != 26 {
		t.Errorf("total jobs = %d, want 26", queueStats.Total)
	}
}

func TestRunSweepsTopListing(t *testing.T) {
	catalog := &fakeCatalog{
		top: []jikan.AnimePage{{Anime: []jikan.Anime{{MALID: 339, Title: "Serial Experiments Lain", Episodes: 13}}}},
	}
	store := openStore(t)
	s := scraper.New(catalog, nil, store, scraper.Options{}, nil)

	stats, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.AnimeStored != 1 || stats.JobsEnqueued != 13 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestFileCacheMissOnCorruptFile(t *testing.T) {
	data := paths.NewData(t.TempDir())
	cache := scraper.NewFileCache(data)

	if err := cache.StoreCategory("genres", "Action", []jikan.Anime{{MALID: 1, Title: "X"}}); err != nil {
		t.Fatal(err)
	}
	listing, ok := cache.LoadCategory("genres", "Action")
	if !ok || len(listing) != 1 {
		t.Fatalf("round trip failed: %v %v", listing, ok)
	}

	if _, ok := cache.LoadCategory("genres", "Missing"); ok {
		t.Error("missing category should be a miss")
	}
}

func TestFileCacheAnimeRoundTrip(t *testing.T) {
	data := paths.NewData(t.TempDir())
	cache := scraper.NewFileCache(data)

	if err := cache.StoreAnime(jikan.Anime{MALID: 1, Title: "Cowboy Bebop", Episodes: 26}); err != nil {
		t.Fatal(err)
	}
	anime, ok := cache.LoadAnime(1, "Cowboy Bebop")
	if !ok || anime.Episodes != 26 {
		t.Fatalf("round trip failed: %+v %v", anime, ok)
	}

	if _, ok := cache.LoadAnime(2, "Missing"); ok {
		t.Error("missing anime should be a miss")
	}
}
