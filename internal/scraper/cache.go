package scraper

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"kotoba/internal/paths"
	"kotoba/internal/services/jikan"
)

// FileCache stores catalog responses as JSON files under the data root so
// repeated scrapes do not re-hit the API for unchanged listings.
type FileCache struct {
	data paths.Data
}

// NewFileCache builds a cache over the standard layout.
func NewFileCache(data paths.Data) *FileCache {
	return &FileCache{data: data}
}

// LoadCategory reads a cached category listing. A missing or corrupt file is
// a cache miss, never an error.
func (c *FileCache) LoadCategory(categoryType, name string) ([]jikan.Anime, bool) {
	raw, err := os.ReadFile(c.data.CategoryCacheFile(categoryType, name))
	if err != nil {
		return nil, false
	}
	var listing []jikan.Anime
	if err := json.Unmarshal(raw, &listing); err != nil {
		return nil, false
	}
	return listing, true
}

// StoreCategory writes a category listing to the cache.
func (c *FileCache) StoreCategory(categoryType, name string, anime []jikan.Anime) error {
	path := c.data.CategoryCacheFile(categoryType, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure cache dir: %w", err)
	}
	raw, err := json.MarshalIndent(anime, "", "  ")
	if err != nil {
		return fmt.Errorf("encode category cache: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write category cache: %w", err)
	}
	return nil
}

// LoadAnime reads a cached per-series detail record. A missing or corrupt
// file is a cache miss, never an error.
func (c *FileCache) LoadAnime(malID int64, title string) (*jikan.Anime, bool) {
	raw, err := os.ReadFile(c.data.AnimeCacheFile(malID, title))
	if err != nil {
		return nil, false
	}
	var anime jikan.Anime
	if err := json.Unmarshal(raw, &anime); err != nil {
		return nil, false
	}
	return &anime, true
}

// StoreAnime writes a per-series detail record to the cache.
func (c *FileCache) StoreAnime(anime jikan.Anime) error {
	path := c.data.AnimeCacheFile(anime.MALID, anime.Title)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure cache dir: %w", err)
	}
	raw, err := json.MarshalIndent(anime, "", "  ")
	if err != nil {
		return fmt.Errorf("encode anime cache: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write anime cache: %w", err)
	}
	return nil
}
