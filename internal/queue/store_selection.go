package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const selectionColumns = "anime_id, mal_title, selected_title, selected_index, confidence, reasoning, episode_match, candidates_json, created_at"

// CacheSelection stores or replaces the title selection for a series.
func (s *Store) CacheSelection(ctx context.Context, sel *Selection) error {
	if sel == nil {
		return errors.New("selection is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO anime_selection_cache (
            anime_id, mal_title, selected_title, selected_index, confidence,
            reasoning, episode_match, candidates_json, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(anime_id) DO UPDATE SET
            mal_title = excluded.mal_title,
            selected_title = excluded.selected_title,
            selected_index = excluded.selected_index,
            confidence = excluded.confidence,
            reasoning = excluded.reasoning,
            episode_match = excluded.episode_match,
            candidates_json = excluded.candidates_json,
            created_at = excluded.created_at`,
		sel.AnimeID,
		sel.MALTitle,
		nullableString(sel.SelectedTitle),
		sel.SelectedIndex,
		sel.Confidence,
		nullableString(sel.Reasoning),
		nullableString(sel.EpisodeMatch),
		nullableString(sel.CandidatesJSON),
		timestamp(),
	)
	if err != nil {
		return fmt.Errorf("cache selection: %w", err)
	}
	return nil
}

// GetSelection returns the cached selection for a series, or nil when no
// selection has been made.
func (s *Store) GetSelection(ctx context.Context, animeID int64) (*Selection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectionColumns+` FROM anime_selection_cache WHERE anime_id = ?`, animeID)
	sel, err := scanSelection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get selection: %w", err)
	}
	return sel, nil
}

// DeleteSelection drops the cached selection for a series so the next
// selector run redoes it.
func (s *Store) DeleteSelection(ctx context.Context, animeID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM anime_selection_cache WHERE anime_id = ?`, animeID)
	if err != nil {
		return false, fmt.Errorf("delete selection: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// LowConfidenceSelections returns selections worth a human look: anything
// not marked high confidence, plus exhausted searches with no candidates.
func (s *Store) LowConfidenceSelections(ctx context.Context) ([]*Selection, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+selectionColumns+` FROM anime_selection_cache
         WHERE confidence != 'high' OR selected_index < 0
         ORDER BY mal_title`,
	)
	if err != nil {
		return nil, fmt.Errorf("list low confidence selections: %w", err)
	}
	defer rows.Close()

	var out []*Selection
	for rows.Next() {
		sel, err := scanSelection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, rows.Err()
}

func scanSelection(scanner interface{ Scan(dest ...any) error }) (*Selection, error) {
	var (
		animeID        int64
		malTitle       string
		selectedTitle  sql.NullString
		selectedIndex  int
		confidence     string
		reasoning      sql.NullString
		episodeMatch   sql.NullString
		candidatesJSON sql.NullString
		createdRaw     sql.NullString
	)

	if err := scanner.Scan(
		&animeID,
		&malTitle,
		&selectedTitle,
		&selectedIndex,
		&confidence,
		&reasoning,
		&episodeMatch,
		&candidatesJSON,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	sel := &Selection{
		AnimeID:        animeID,
		MALTitle:       malTitle,
		SelectedTitle:  selectedTitle.String,
		SelectedIndex:  selectedIndex,
		Confidence:     confidence,
		Reasoning:      reasoning.String,
		EpisodeMatch:   episodeMatch.String,
		CandidatesJSON: candidatesJSON.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		sel.CreatedAt = created
	}
	return sel, nil
}
