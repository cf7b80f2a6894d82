package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const animeColumns = "id, mal_id, title, title_english, episodes, season, year, status, episodes_processed, created_at, updated_at"

// GetOrCreateAnime inserts a series if it is new, or refreshes its catalog
// fields if a row with the same MAL ID exists. The stored row is returned.
func (s *Store) GetOrCreateAnime(ctx context.Context, anime *Anime) (*Anime, error) {
	if anime == nil {
		return nil, errors.New("anime is nil")
	}
	now := timestamp()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO anime (mal_id, title, title_english, episodes, season, year, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?)
         ON CONFLICT(mal_id) DO UPDATE SET
             title = excluded.title,
             title_english = excluded.title_english,
             episodes = excluded.episodes,
             season = excluded.season,
             year = excluded.year,
             updated_at = excluded.updated_at`,
		anime.MALID,
		anime.Title,
		nullableString(anime.TitleEnglish),
		anime.Episodes,
		nullableString(anime.Season),
		nullableInt64(int64(anime.Year)),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert anime: %w", err)
	}
	return s.AnimeByMALID(ctx, anime.MALID)
}

// AnimeByMALID fetches a series by MAL ID. Returns nil when unknown.
func (s *Store) AnimeByMALID(ctx context.Context, malID int64) (*Anime, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+animeColumns+` FROM anime WHERE mal_id = ?`, malID)
	anime, err := scanAnime(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get anime by mal id: %w", err)
	}
	return anime, nil
}

// AnimeByID fetches a series by row ID. Returns nil when unknown.
func (s *Store) AnimeByID(ctx context.Context, id int64) (*Anime, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+animeColumns+` FROM anime WHERE id = ?`, id)
	anime, err := scanAnime(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get anime: %w", err)
	}
	return anime, nil
}

// ListAnime returns every known series ordered by title.
func (s *Store) ListAnime(ctx context.Context) ([]*Anime, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+animeColumns+` FROM anime ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("list anime: %w", err)
	}
	defer rows.Close()

	var out []*Anime
	for rows.Next() {
		anime, err := scanAnime(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, anime)
	}
	return out, rows.Err()
}

// UnselectedAnime returns series that have no cached title selection yet.
func (s *Store) UnselectedAnime(ctx context.Context) ([]*Anime, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+animeColumns+` FROM anime
         WHERE id NOT IN (SELECT anime_id FROM anime_selection_cache)
         ORDER BY title`,
	)
	if err != nil {
		return nil, fmt.Errorf("list unselected anime: %w", err)
	}
	defer rows.Close()

	var out []*Anime
	for rows.Next() {
		anime, err := scanAnime(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, anime)
	}
	return out, rows.Err()
}

// UpdateAnimeStatus sets the series-level status field.
func (s *Store) UpdateAnimeStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE anime SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		timestamp(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update anime status: %w", err)
	}
	return nil
}

// IncrementEpisodesProcessed bumps the per-series processed counter. Called
// once per episode when its transcript lands. When the counter reaches the
// series' episode count the status flips to completed.
func (s *Store) IncrementEpisodesProcessed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE anime
         SET episodes_processed = episodes_processed + 1,
             status = CASE
                 WHEN episodes > 0 AND episodes_processed + 1 >= episodes THEN 'completed'
                 ELSE status
             END,
             updated_at = ?
         WHERE id = ?`,
		timestamp(),
		id,
	)
	if err != nil {
		return fmt.Errorf("increment episodes processed: %w", err)
	}
	return nil
}

func scanAnime(scanner interface{ Scan(dest ...any) error }) (*Anime, error) {
	var (
		id                int64
		malID             int64
		title             string
		titleEnglish      sql.NullString
		episodes          int
		season            sql.NullString
		year              sql.NullInt64
		status            string
		episodesProcessed int
		createdRaw        sql.NullString
		updatedRaw        sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&malID,
		&title,
		&titleEnglish,
		&episodes,
		&season,
		&year,
		&status,
		&episodesProcessed,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	anime := &Anime{
		ID:                id,
		MALID:             malID,
		Title:             title,
		TitleEnglish:      titleEnglish.String,
		Episodes:          episodes,
		Season:            season.String,
		Year:              int(year.Int64),
		Status:            status,
		EpisodesProcessed: episodesProcessed,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		anime.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		anime.UpdatedAt = updated
	}
	return anime, nil
}
