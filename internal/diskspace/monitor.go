package diskspace

import (
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"kotoba/internal/paths"
)

const bytesPerGB = 1 << 30

// Usage is a per-artifact-class byte count snapshot.
type Usage struct {
	Videos      int64
	Audio       int64
	Transcripts int64
	Tokens      int64
	Analysis    int64
	Total       int64
}

// Breakdown pairs a usage snapshot with the admission verdict derived from it.
type Breakdown struct {
	Usage       Usage
	HardLimitGB float64
	Percentage  float64
	CanDownload bool
	FreeBytes   uint64
}

// Monitor meters the data directory against the configured thresholds.
type Monitor struct {
	data   paths.Data
	pause  int64
	resume int64
	hard   int64
	ttl    time.Duration
	statfs func(path string) (uint64, error)
	now    func() time.Time

	mu        sync.Mutex
	paused    bool
	cached    Usage
	cachedAt  time.Time
	haveCache bool
}

// NewMonitor builds a monitor over the given data layout. Thresholds are in
// GB; pause must sit above resume for the hysteresis to mean anything, which
// config validation enforces.
func NewMonitor(data paths.Data, hardGB, pauseGB, resumeGB float64, ttl time.Duration) *Monitor {
	return &Monitor{
		data:   data,
		hard:   int64(hardGB * bytesPerGB),
		pause:  int64(pauseGB * bytesPerGB),
		resume: int64(resumeGB * bytesPerGB),
		ttl:    ttl,
		statfs: freeBytes,
		now:    time.Now,
	}
}

// Usage returns the current per-class byte counts, served from cache when the
// last walk is younger than the TTL.
func (m *Monitor) Usage() (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usageLocked()
}

func (m *Monitor) usageLocked() (Usage, error) {
	if m.haveCache && m.now().Sub(m.cachedAt) < m.ttl {
		return m.cached, nil
	}

	var usage Usage
	classes := []struct {
		dir  string
		dest *int64
	}{
		{m.data.VideosRoot(), &usage.Videos},
		{m.data.AudioRoot(), &usage.Audio},
		{m.data.TranscriptsRoot(), &usage.Transcripts},
		{m.data.TokensRoot(), &usage.Tokens},
		{m.data.AnalysisRoot(), &usage.Analysis},
	}
	for _, class := range classes {
		size, err := dirSize(class.dir)
		if err != nil {
			return Usage{}, err
		}
		*class.dest = size
		usage.Total += size
	}

	m.cached = usage
	m.cachedAt = m.now()
	m.haveCache = true
	return usage, nil
}

// InvalidateCache forces the next Usage call to walk the filesystem. Workers
// call it after writing or deleting artifacts.
func (m *Monitor) InvalidateCache() {
	m.mu.Lock()
	m.haveCache = false
	m.mu.Unlock()
}

// ShouldPauseDownloads reports whether download admission is currently
// closed. Crossing the pause threshold closes it; it reopens only once usage
// drops below the resume threshold.
func (m *Monitor) ShouldPauseDownloads() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	usage, err := m.usageLocked()
	if err != nil {
		return m.paused, err
	}

	if m.paused {
		if usage.Total <= m.resume {
			m.paused = false
		}
	} else {
		if usage.Total >= m.pause {
			m.paused = true
		}
	}
	return m.paused, nil
}

// CanResumeDownloads reports whether usage has fallen to the resume
// threshold. It is a pure query; admission state only changes through
// ShouldPauseDownloads.
func (m *Monitor) CanResumeDownloads() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	usage, err := m.usageLocked()
	if err != nil {
		return false, err
	}
	return usage.Total <= m.resume, nil
}

// Breakdown returns usage, the percentage of the hard limit consumed, the
// admission verdict, and free bytes on the volume holding the data root.
func (m *Monitor) Breakdown() (Breakdown, error) {
	paused, err := m.ShouldPauseDownloads()
	if err != nil {
		return Breakdown{}, err
	}

	m.mu.Lock()
	usage := m.cached
	hard := m.hard
	m.mu.Unlock()

	var percentage float64
	if hard > 0 {
		percentage = float64(usage.Total) / float64(hard) * 100
	}

	free, err := m.statfs(m.data.Root())
	if err != nil {
		return Breakdown{}, err
	}

	return Breakdown{
		Usage:       usage,
		HardLimitGB: float64(hard) / bytesPerGB,
		Percentage:  percentage,
		CanDownload: !paused,
		FreeBytes:   free,
	}, nil
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories appear as workers create them; absent is zero.
			if path == root {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func freeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
