// Package scraper discovers anime categories in the MyAnimeList catalog and
// enqueues one pipeline job per episode.
package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"kotoba/internal/logging"
	"kotoba/internal/queue"
	"kotoba/internal/services/jikan"
)

// Options configures a scrape run.
type Options struct {
	// MinCategoryItems drops categories whose catalog entry count is below
	// this.
	MinCategoryItems int
	// MaxPagesPerCategory bounds paging through a category listing. Zero
	// means one page.
	MaxPagesPerCategory int
	// MaxAnimePerCategory bounds how many series one category contributes.
	// Zero means no bound.
	MaxAnimePerCategory int
}

// Stats summarizes a scrape run.
type Stats struct {
	Categories   int
	AnimeSeen    int
	AnimeStored  int
	JobsEnqueued int
}

func (s *Stats) add(other Stats) {
	s.Categories += other.Categories
	s.AnimeSeen += other.AnimeSeen
	s.AnimeStored += other.AnimeStored
	s.JobsEnqueued += other.JobsEnqueued
}

// Category is one taxonomy entry worth scraping. Genres, explicit genres,
// themes, and demographics all share the MAL genre id namespace.
type Category struct {
	Type  jikan.CategoryFilter
	MALID int64
	Name  string
	Count int
}

// Catalog is the part of the Jikan client the scraper uses.
type Catalog interface {
	Genres(ctx context.Context, filter jikan.CategoryFilter) ([]jikan.Genre, error)
	AnimeByGenre(ctx context.Context, genreID int64, page int) (jikan.AnimePage, error)
	TopAnime(ctx context.Context, page int) (jikan.AnimePage, error)
	AnimeByID(ctx context.Context, malID int64) (*jikan.Anime, error)
}

// Cache persists catalog responses between runs.
type Cache interface {
	LoadCategory(categoryType, name string) ([]jikan.Anime, bool)
	StoreCategory(categoryType, name string, anime []jikan.Anime) error
	LoadAnime(malID int64, title string) (*jikan.Anime, bool)
	StoreAnime(anime jikan.Anime) error
}

// Scraper walks the catalog and feeds the queue.
type Scraper struct {
	catalog Catalog
	cache   Cache
	store   *queue.Store
	opts    Options
	logger  *slog.Logger
}

// New builds a scraper. cache may be nil to disable response caching.
func New(catalog Catalog, cache Cache, store *queue.Store, opts Options, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.MaxPagesPerCategory <= 0 {
		opts.MaxPagesPerCategory = 1
	}
	return &Scraper{catalog: catalog, cache: cache, store: store, opts: opts, logger: logger}
}

// DiscoverCategories walks every taxonomy and returns the categories large
// enough to be worth scraping.
func (s *Scraper) DiscoverCategories(ctx context.Context) ([]Category, error) {
	var kept []Category
	total := 0
	for _, filter := range jikan.CategoryFilters() {
		entries, err := s.catalog.Genres(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("discover %s: %w", filter, err)
		}
		total += len(entries)
		for _, entry := range entries {
			if entry.Count < s.opts.MinCategoryItems {
				continue
			}
			kept = append(kept, Category{
				Type:  filter,
				MALID: entry.MALID,
				Name:  entry.Name,
				Count: entry.Count,
			})
		}
	}
	s.logger.Info("categories discovered",
		logging.Int("total", total),
		logging.Int("kept", len(kept)),
		logging.Int("min_items", s.opts.MinCategoryItems))
	return kept, nil
}

// ScrapeCategory stores every series in one category and enqueues its
// episodes.
func (s *Scraper) ScrapeCategory(ctx context.Context, cat Category) (Stats, error) {
	return s.scrapeCategory(ctx, cat, make(map[int64]bool))
}

func (s *Scraper) scrapeCategory(ctx context.Context, cat Category, seen map[int64]bool) (Stats, error) {
	listing, cached := s.loadCachedCategory(cat)
	if !cached {
		var err error
		listing, err = s.fetchCategory(ctx, cat)
		if err != nil {
			return Stats{Categories: 1}, err
		}
		s.storeCachedCategory(cat, listing)
	}
	return s.ingestListing(ctx, cat.Name, listing, seen), nil
}

// scrapeTop sweeps the overall top listing, catching popular series whose
// categories all fall below the size threshold.
func (s *Scraper) scrapeTop(ctx context.Context, seen map[int64]bool) (Stats, error) {
	const name = "overall"
	var listing []jikan.Anime
	cached := false
	if s.cache != nil {
		listing, cached = s.cache.LoadCategory("top", name)
	}
	if !cached {
		for page := 1; page <= s.opts.MaxPagesPerCategory; page++ {
			result, err := s.catalog.TopAnime(ctx, page)
			if err != nil {
				return Stats{Categories: 1}, fmt.Errorf("scrape top anime page %d: %w", page, err)
			}
			listing = append(listing, result.Anime...)
			if !result.Pagination.HasNextPage {
				break
			}
		}
		if s.cache != nil {
			if err := s.cache.StoreCategory("top", name, listing); err != nil {
				s.logger.Warn("category cache write failed",
					logging.String("category", name),
					logging.Error(err))
			}
		}
	}
	return s.ingestListing(ctx, "top anime", listing, seen), nil
}

// Run discovers categories across every taxonomy, scrapes each in turn, then
// sweeps the overall top listing. A series appearing in several categories is
// ingested once.
func (s *Scraper) Run(ctx context.Context) (Stats, error) {
	categories, err := s.DiscoverCategories(ctx)
	if err != nil {
		return Stats{}, err
	}

	seen := make(map[int64]bool)
	var total Stats
	for _, cat := range categories {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		stats, err := s.scrapeCategory(ctx, cat, seen)
		total.add(stats)
		if err != nil {
			s.logger.Warn("category failed",
				logging.String("category", cat.Name),
				logging.String("taxonomy", string(cat.Type)),
				logging.Error(err))
		}
	}

	if err := ctx.Err(); err != nil {
		return total, err
	}
	stats, err := s.scrapeTop(ctx, seen)
	total.add(stats)
	if err != nil {
		s.logger.Warn("top anime sweep failed", logging.Error(err))
	}
	return total, nil
}

// ingestListing upserts each unseen series in a listing and enqueues its
// episodes. Per-series failures are logged and skipped.
func (s *Scraper) ingestListing(ctx context.Context, name string, listing []jikan.Anime, seen map[int64]bool) Stats {
	stats := Stats{Categories: 1}
	for _, entry := range listing {
		if s.opts.MaxAnimePerCategory > 0 && stats.AnimeSeen >= s.opts.MaxAnimePerCategory {
			break
		}
		if seen[entry.MALID] {
			continue
		}
		seen[entry.MALID] = true
		stats.AnimeSeen++

		enqueued, err := s.ingest(ctx, entry)
		if err != nil {
			s.logger.Warn("anime skipped",
				logging.Int64(logging.FieldMALID, entry.MALID),
				logging.String("title", entry.Title),
				logging.Error(err))
			continue
		}
		stats.AnimeStored++
		stats.JobsEnqueued += enqueued
	}

	s.logger.Info("category scraped",
		logging.String("category", name),
		logging.Int("anime", stats.AnimeStored),
		logging.Int("jobs", stats.JobsEnqueued))
	return stats
}

// ingest upserts one series and enqueues a job per known episode. Series with
// an unknown episode count are stored but contribute no jobs until a later
// scrape learns the count.
func (s *Scraper) ingest(ctx context.Context, entry jikan.Anime) (int, error) {
	detail, err := s.resolveDetails(ctx, entry)
	if err != nil {
		return 0, err
	}

	anime, err := s.store.GetOrCreateAnime(ctx, &queue.Anime{
		MALID:        detail.MALID,
		Title:        detail.Title,
		TitleEnglish: detail.TitleEnglish,
		Episodes:     detail.Episodes,
		Season:       detail.Season,
		Year:         detail.Year,
	})
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for episode := 1; episode <= detail.Episodes; episode++ {
		job := queue.NewJob(anime, episode)
		if _, err := s.store.Enqueue(ctx, job); err != nil {
			return enqueued, fmt.Errorf("enqueue episode %d: %w", episode, err)
		}
		enqueued++
	}
	return enqueued, nil
}

// resolveDetails upgrades a listing entry to the full per-id record.
// Category listings omit fields like the English title and season, so the
// detail endpoint is authoritative.
func (s *Scraper) resolveDetails(ctx context.Context, entry jikan.Anime) (jikan.Anime, error) {
	if s.cache != nil {
		if cached, ok := s.cache.LoadAnime(entry.MALID, entry.Title); ok {
			return *cached, nil
		}
	}

	detail, err := s.catalog.AnimeByID(ctx, entry.MALID)
	if err != nil {
		return jikan.Anime{}, fmt.Errorf("fetch details for %d: %w", entry.MALID, err)
	}

	if s.cache != nil {
		if err := s.cache.StoreAnime(*detail); err != nil {
			s.logger.Warn("anime cache write failed",
				logging.Int64(logging.FieldMALID, detail.MALID),
				logging.Error(err))
		}
	}
	return *detail, nil
}

func (s *Scraper) fetchCategory(ctx context.Context, cat Category) ([]jikan.Anime, error) {
	var listing []jikan.Anime
	for page := 1; page <= s.opts.MaxPagesPerCategory; page++ {
		result, err := s.catalog.AnimeByGenre(ctx, cat.MALID, page)
		if err != nil {
			return nil, fmt.Errorf("scrape %s page %d: %w", cat.Name, page, err)
		}
		listing = append(listing, result.Anime...)
		if !result.Pagination.HasNextPage {
			break
		}
	}
	return listing, nil
}

func (s *Scraper) loadCachedCategory(cat Category) ([]jikan.Anime, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.LoadCategory(string(cat.Type), cat.Name)
}

func (s *Scraper) storeCachedCategory(cat Category, listing []jikan.Anime) {
	if s.cache == nil {
		return
	}
	if err := s.cache.StoreCategory(string(cat.Type), cat.Name, listing); err != nil {
		s.logger.Warn("category cache write failed",
			logging.String("category", cat.Name),
			logging.Error(err))
	}
}
