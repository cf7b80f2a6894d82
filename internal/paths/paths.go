package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"kotoba/internal/textutil"
)

// Data resolves file locations under the managed data root.
type Data struct {
	root string
}

// NewData creates a Data rooted at the given directory.
func NewData(root string) Data {
	return Data{root: root}
}

// Root returns the data root directory.
func (d Data) Root() string {
	return d.root
}

// VideosRoot returns the directory holding every series' downloads.
func (d Data) VideosRoot() string {
	return filepath.Join(d.root, "videos")
}

// AudioRoot returns the directory holding every series' extracted audio.
func (d Data) AudioRoot() string {
	return filepath.Join(d.root, "audio")
}

// TranscriptsRoot returns the directory holding every series' transcripts.
func (d Data) TranscriptsRoot() string {
	return filepath.Join(d.root, "transcripts")
}

// TokensRoot returns the directory holding every series' token output.
func (d Data) TokensRoot() string {
	return filepath.Join(d.root, "tokens")
}

// AnalysisRoot returns the directory holding analysis output.
func (d Data) AnalysisRoot() string {
	return filepath.Join(d.root, "analysis")
}

// VideoDir returns the episode download directory for an anime.
func (d Data) VideoDir(malID int64) string {
	return filepath.Join(d.root, "videos", strconv.FormatInt(malID, 10), "episodes")
}

// AudioDir returns the extracted-audio directory for an anime.
func (d Data) AudioDir(malID int64) string {
	return filepath.Join(d.root, "audio", strconv.FormatInt(malID, 10))
}

// TranscriptDir returns the transcript directory for an anime.
func (d Data) TranscriptDir(malID int64) string {
	return filepath.Join(d.root, "transcripts", strconv.FormatInt(malID, 10))
}

// TokensDir returns the tokenization output directory for an anime.
func (d Data) TokensDir(malID int64) string {
	return filepath.Join(d.root, "tokens", strconv.FormatInt(malID, 10))
}

// AnalysisDir returns the per-anime analysis directory.
func (d Data) AnalysisDir(malID int64) string {
	return filepath.Join(d.root, "analysis", "per_anime", strconv.FormatInt(malID, 10))
}

// VideoFile returns the canonical video path for an episode.
func (d Data) VideoFile(malID int64, title string, episode int, ext string) string {
	return filepath.Join(d.VideoDir(malID), EpisodeFilename(title, episode, ext))
}

// AudioFile returns the canonical WAV path for an episode.
func (d Data) AudioFile(malID int64, title string, episode int) string {
	return filepath.Join(d.AudioDir(malID), EpisodeFilename(title, episode, "wav"))
}

// TranscriptFile returns the canonical transcript path for an episode.
func (d Data) TranscriptFile(malID int64, title string, episode int) string {
	return filepath.Join(d.TranscriptDir(malID), EpisodeFilename(title, episode, "txt"))
}

// TokensFile returns the canonical token-output path for an episode.
func (d Data) TokensFile(malID int64, title string, episode int) string {
	safe := textutil.SanitizeFilename(title)
	return filepath.Join(d.TokensDir(malID), fmt.Sprintf("%s_ep%03d_tokens.json", safe, episode))
}

// CacheDir returns the scraper cache directory.
func (d Data) CacheDir() string {
	return filepath.Join(d.root, "cache")
}

// MALCacheDir returns the catalog cache directory.
func (d Data) MALCacheDir() string {
	return filepath.Join(d.CacheDir(), "mal_cache")
}

// CategoryCacheFile returns the cached category listing path.
func (d Data) CategoryCacheFile(categoryType, name string) string {
	return filepath.Join(d.MALCacheDir(), "categories", categoryType, textutil.TitleSlug(name)+"_top.json")
}

// AnimeCacheFile returns the cached per-anime metadata path.
func (d Data) AnimeCacheFile(malID int64, title string) string {
	name := fmt.Sprintf("%d_%s.json", malID, textutil.TitleSlug(title))
	return filepath.Join(d.MALCacheDir(), "anime", name)
}

// LogsDir returns the log directory.
func (d Data) LogsDir() string {
	return filepath.Join(d.root, "logs")
}

// LogFile returns the log path for a component.
func (d Data) LogFile(component string) string {
	return filepath.Join(d.LogsDir(), component+".log")
}

// LockFile returns the single-instance lock path for a component.
func (d Data) LockFile(component string) string {
	return filepath.Join(d.LogsDir(), component+".lock")
}

// JobsDB returns the queue database path.
func (d Data) JobsDB() string {
	return filepath.Join(d.root, "jobs.db")
}

// EpisodeFilename builds the canonical artifact filename for an episode.
func EpisodeFilename(title string, episode int, ext string) string {
	return fmt.Sprintf("%s_ep%03d.%s", textutil.SanitizeFilename(title), episode, ext)
}

// CreateDirs creates the standard directory tree under the root.
func (d Data) CreateDirs() error {
	dirs := []string{
		d.VideosRoot(),
		d.AudioRoot(),
		d.TranscriptsRoot(),
		d.TokensRoot(),
		filepath.Join(d.AnalysisRoot(), "per_anime"),
		filepath.Join(d.MALCacheDir(), "categories"),
		filepath.Join(d.MALCacheDir(), "anime"),
		d.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
