// Package selector decides which download-source title each series maps to
// and caches the decision, which gates the downloader.
package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"kotoba/internal/logging"
	"kotoba/internal/queue"
	"kotoba/internal/services/allanime"
	"kotoba/internal/services/claude"
)

// Confidence values stored alongside a selection. The model reports high,
// medium, or low; no_candidates marks an exhausted search.
const (
	ConfidenceHigh         = "high"
	ConfidenceNoCandidates = "no_candidates"
)

// Searcher is the part of the AllAnime client the selector uses.
type Searcher interface {
	Search(ctx context.Context, query string) ([]allanime.Candidate, error)
}

// Chooser is the part of the Claude client the selector uses.
type Chooser interface {
	SelectTitle(ctx context.Context, title, titleEnglish string, expectedEpisodes int, candidates []string) (*claude.Result, error)
}

// Stats summarizes a selection run.
type Stats struct {
	Considered   int
	Selected     int
	NoCandidates int
	Failed       int
}

// Selector resolves catalog titles to source titles.
type Selector struct {
	store    *queue.Store
	searcher Searcher
	chooser  Chooser
	workers  int
	logger   *slog.Logger
}

// New builds a selector. workers <= 1 selects sequentially.
func New(store *queue.Store, searcher Searcher, chooser Chooser, workers int, logger *slog.Logger) *Selector {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Selector{store: store, searcher: searcher, chooser: chooser, workers: workers, logger: logger}
}

// Run selects a source title for every series that does not have one yet,
// spreading the work across the configured pool.
func (s *Selector) Run(ctx context.Context) (Stats, error) {
	anime, err := s.store.UnselectedAnime(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list unselected anime: %w", err)
	}

	pending := make(chan *queue.Anime)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		stats Stats
	)

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range pending {
				sel, err := s.SelectFor(ctx, a)

				mu.Lock()
				stats.Considered++
				switch {
				case err != nil:
					stats.Failed++
				case sel.SelectedIndex < 0:
					stats.NoCandidates++
				default:
					stats.Selected++
				}
				mu.Unlock()

				if err != nil {
					s.logger.Warn("selection failed",
						logging.Int64(logging.FieldMALID, a.MALID),
						logging.String("title", a.Title),
						logging.Error(err))
				}
			}
		}()
	}

feed:
	for _, a := range anime {
		select {
		case <-ctx.Done():
			break feed
		case pending <- a:
		}
	}
	close(pending)
	wg.Wait()

	return stats, ctx.Err()
}

// SelectFor resolves one series and caches the outcome. An already-cached
// series is returned as is.
func (s *Selector) SelectFor(ctx context.Context, anime *queue.Anime) (*queue.Selection, error) {
	existing, err := s.store.GetSelection(ctx, anime.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	candidates, err := s.searcher.Search(ctx, anime.Title)
	if err != nil {
		return nil, fmt.Errorf("search source: %w", err)
	}

	sel := &queue.Selection{
		AnimeID:  anime.ID,
		MALTitle: anime.Title,
	}

	switch len(candidates) {
	case 0:
		sel.SelectedIndex = -1
		sel.Confidence = ConfidenceNoCandidates
		sel.Reasoning = "source search returned no candidates"
		s.logger.Warn("no candidates",
			logging.Int64(logging.FieldMALID, anime.MALID),
			logging.String("title", anime.Title))
	case 1:
		// A single result needs no model call; the episode count still
		// decides how much to trust it.
		sel.SelectedIndex = 0
		sel.SelectedTitle = candidates[0].Display()
		sel.Confidence = ConfidenceHigh
		sel.Reasoning = "only candidate"
		sel.EpisodeMatch = episodeMatchLabel(anime.Episodes, candidates[0].Episodes)
		sel.CandidatesJSON = encodeCandidates(candidates)
	default:
		displays := make([]string, len(candidates))
		for i, candidate := range candidates {
			displays[i] = candidate.Display()
		}

		result, err := s.chooser.SelectTitle(ctx, anime.Title, anime.TitleEnglish, anime.Episodes, displays)
		if err != nil {
			return nil, fmt.Errorf("choose candidate: %w", err)
		}

		sel.SelectedIndex = result.SelectedIndex
		sel.Confidence = result.Confidence
		sel.Reasoning = result.Reasoning
		sel.EpisodeMatch = result.EpisodeMatch
		sel.CandidatesJSON = encodeCandidates(candidates)
		if result.SelectedIndex >= 0 {
			sel.SelectedTitle = displays[result.SelectedIndex]
		}
	}

	if err := s.store.CacheSelection(ctx, sel); err != nil {
		return nil, fmt.Errorf("cache selection: %w", err)
	}

	s.logger.Info("selection cached",
		logging.Int64(logging.FieldMALID, anime.MALID),
		logging.String("title", anime.Title),
		logging.String("selected", sel.SelectedTitle),
		logging.String("confidence", sel.Confidence),
		logging.String("episode_match", sel.EpisodeMatch))
	return sel, nil
}

// Review returns the selections worth a human look.
func (s *Selector) Review(ctx context.Context) ([]*queue.Selection, error) {
	return s.store.LowConfidenceSelections(ctx)
}

// episodeMatchLabel grades how well a candidate's episode count matches the
// catalog's.
func episodeMatchLabel(expected, actual int) string {
	if expected <= 0 || actual <= 0 {
		return "unknown"
	}
	diff := expected - actual
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff == 0:
		return "exact"
	case diff <= 2:
		return "close"
	case diff <= 5:
		return "acceptable"
	default:
		return "mismatch"
	}
}

func encodeCandidates(candidates []allanime.Candidate) string {
	displays := make([]string, len(candidates))
	for i, candidate := range candidates {
		displays[i] = candidate.Display()
	}
	raw, err := json.Marshal(displays)
	if err != nil {
		return ""
	}
	return string(raw)
}
