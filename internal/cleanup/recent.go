package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"codeberg.org/mutker/sysoptctl/internal/errors"
	"codeberg.org/mutker/sysoptctl/internal/logger"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
)

// DefaultListSize is the number of shortcuts List returns when asked for a
// non-positive amount.
const DefaultListSize = 50

// RecentInfo summarises the recent-files locations.
type RecentInfo struct {
	TotalCount int
	TotalSize  uint64
}

// RecentItem is one shortcut in the Recent folder.
type RecentItem struct {
	Name         string
	Path         string
	LastAccessed time.Time
	Size         uint64
}

// RecentFiles manages the shell's recent-document history. The first
// location is the Recent folder itself; the others hold jump list data.
type RecentFiles struct {
	fs        afero.Fs
	locations []string
	log       logger.Logger
	now       func() time.Time
}

// DefaultRecentLocations returns the Recent folder and the jump list
// directories of the current user.
func DefaultRecentLocations() ([]string, error) {
	appData, err := os.UserConfigDir()
	if err != nil {
		return nil, errors.New().Wrap(ErrRecentLocation, err)
	}

	recent := filepath.Join(appData, "Microsoft", "Windows", "Recent")

	return []string{
		recent,
		filepath.Join(recent, "AutomaticDestinations"),
		filepath.Join(recent, "CustomDestinations"),
	}, nil
}

func NewRecentFiles(fs afero.Fs, log logger.Logger, locations ...string) *RecentFiles {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if log == nil {
		log = logger.Nop()
	}

	return &RecentFiles{
		fs:        fs,
		locations: locations,
		log:       log.With("recent_files"),
		now:       time.Now,
	}
}

// Info counts the files directly inside every location and sums their size.
func (r *RecentFiles) Info() RecentInfo {
	var info RecentInfo

	for _, location := range r.locations {
		files, err := r.files(location)
		if err != nil {
			r.log.Debug().Err(err).Str("location", location).Msg("Skipping recent location")
			continue
		}

		for _, f := range files {
			info.TotalCount++
			info.TotalSize += uint64(f.Size())
		}
	}

	return info
}

// List returns up to limit shortcuts from the Recent folder, most recently
// modified first.
func (r *RecentFiles) List(limit int) []RecentItem {
	if limit <= 0 {
		limit = DefaultListSize
	}
	if len(r.locations) == 0 {
		return nil
	}

	dir := r.locations[0]
	files, err := r.files(dir)
	if err != nil {
		r.log.Debug().Err(err).Str("location", dir).Msg("Cannot list recent folder")
		return nil
	}

	shortcuts := files[:0]
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f.Name()), ".lnk") {
			shortcuts = append(shortcuts, f)
		}
	}

	sort.SliceStable(shortcuts, func(i, j int) bool {
		return shortcuts[i].ModTime().After(shortcuts[j].ModTime())
	})

	if len(shortcuts) > limit {
		shortcuts = shortcuts[:limit]
	}

	items := make([]RecentItem, 0, len(shortcuts))
	for _, f := range shortcuts {
		items = append(items, RecentItem{
			Name:         strings.TrimSuffix(f.Name(), filepath.Ext(f.Name())),
			Path:         filepath.Join(dir, f.Name()),
			LastAccessed: f.ModTime(),
			Size:         uint64(f.Size()),
		})
	}

	return items
}

// Clear deletes every file in the recent locations. Files that cannot be
// removed are counted as failed; the operation succeeds if anything was
// deleted.
func (r *RecentFiles) Clear() Result {
	tracker := Track(r.now)

	var deleted, failed int
	var freed uint64

	for _, location := range r.locations {
		files, err := r.files(location)
		if err != nil {
			r.log.Debug().Err(err).Str("location", location).Msg("Skipping recent location")
			continue
		}

		for _, f := range files {
			path := filepath.Join(location, f.Name())
			if err := r.fs.Remove(path); err != nil {
				r.log.Debug().Err(err).Str("path", path).Msg("Failed to delete recent file")
				failed++
				continue
			}

			deleted++
			freed += uint64(f.Size())
		}
	}

	r.log.Info().Int("deleted", deleted).Int("failed", failed).Msg("Recent files cleared")

	return tracker.Finish(Result{
		Success:        deleted > 0,
		Operation:      OperationRecentFiles,
		Message:        fmt.Sprintf("Cleared %d recent files (%s freed)", deleted, humanize.IBytes(freed)),
		ItemsProcessed: deleted,
		ItemsFailed:    failed,
		BytesFreed:     freed,
	})
}

// files returns the regular files directly inside dir. A missing directory
// yields no files and no error.
func (r *RecentFiles) files(dir string) ([]os.FileInfo, error) {
	exists, err := afero.DirExists(r.fs, dir)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		return nil, err
	}

	files := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.Mode().IsRegular() {
			files = append(files, e)
		}
	}

	return files, nil
}
