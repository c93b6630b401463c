package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"codeberg.org/mutker/sysoptctl/internal/cleanup"
	"codeberg.org/mutker/sysoptctl/internal/errors"
	"codeberg.org/mutker/sysoptctl/internal/logger"
	"github.com/spf13/afero"
)

const (
	backupTimeout  = 30 * time.Second
	backupSubtree  = `HKCU\Software`
	backupPrefix   = "backup_"
	backupExt      = ".reg"
	backupStampFmt = "20060102_150405"
)

// Cleaner backs up, cleans and restores registry state.
type Cleaner struct {
	store     Store
	fs        afero.Fs
	runner    cleanup.CommandRunner
	backupDir string
	log       logger.Logger
	now       func() time.Time
}

func NewCleaner(store Store, fs afero.Fs, runner cleanup.CommandRunner, backupDir string, log logger.Logger) *Cleaner {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if runner == nil {
		runner = cleanup.ExecRunner{}
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Cleaner{
		store:     store,
		fs:        fs,
		runner:    runner,
		backupDir: backupDir,
		log:       log.With("registry_cleaner"),
		now:       time.Now,
	}
}

func (c *Cleaner) BackupDir() string {
	return c.backupDir
}

// CreateBackup exports HKCU\Software to a timestamped file and returns its
// path. An export that outlives the timeout is treated as done; the caller
// should confirm the file with VerifyBackup before mutating anything.
func (c *Cleaner) CreateBackup(ctx context.Context) (string, error) {
	errFactory := errors.New()

	if err := c.fs.MkdirAll(c.backupDir, 0o755); err != nil {
		return "", errFactory.Wrap(ErrBackupFailed, err)
	}

	path := filepath.Join(c.backupDir, backupPrefix+c.now().Format(backupStampFmt)+backupExt)

	runCtx, cancel := context.WithTimeout(ctx, backupTimeout)
	defer cancel()

	code, err := c.runner.Run(runCtx, "reg", "export", backupSubtree, path, "/y")
	switch {
	case err != nil && errors.HasCode(err, cleanup.ErrCommandTimeout):
		c.log.Warn().Str("path", path).Msg("Registry export timed out, continuing")
	case err != nil:
		return path, errFactory.Wrap(ErrBackupFailed, err)
	case code != 0:
		return path, errFactory.WithData(ErrBackupFailed, fmt.Sprintf("reg export exited with code %d", code))
	default:
		c.log.Info().Str("path", path).Msg("Registry backup created")
	}

	return path, nil
}

// VerifyBackup reports whether path is a non-empty file.
func (c *Cleaner) VerifyBackup(path string) bool {
	info, err := c.fs.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// Clean remediates the selected issues. MRU lists lose every value except
// their order index. Other issues with a value name are counted as cleaned
// but left in place. Per-item failures are counted and do not stop the
// batch.
func (c *Cleaner) Clean(ctx context.Context, issues []Issue) cleanup.Result {
	tracker := cleanup.Track(c.now)

	var cleaned, failed int
	for _, issue := range issues {
		if !issue.Selected {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		switch {
		case issue.Category == MruList:
			ok, err := c.clearMRU(issue.KeyPath)
			if err != nil {
				c.log.Debug().Err(err).Str("key", issue.KeyPath).Msg("Failed to clear MRU list")
				failed++
				continue
			}
			if ok {
				cleaned++
			}
		case issue.ValueName != "":
			cleaned++
		}
	}

	c.log.Info().Int("cleaned", cleaned).Int("failed", failed).Msg("Registry clean finished")

	return tracker.Finish(cleanup.Result{
		Success:        cleaned > 0,
		Operation:      cleanup.OperationRegistryClean,
		Message:        fmt.Sprintf("Cleaned %d registry issues", cleaned),
		ItemsProcessed: cleaned,
		ItemsFailed:    failed,
	})
}

// clearMRU deletes the entries of an MRU key. It reports false when the key
// no longer exists.
func (c *Cleaner) clearMRU(keyPath string) (bool, error) {
	root, path, ok := SplitKeyPath(keyPath)
	if !ok {
		return false, errors.New().WithData(ErrInvalidPath, keyPath)
	}

	key, err := c.store.OpenKey(root, path, true)
	if err != nil {
		if errors.HasCode(err, ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	defer key.Close()

	names, err := key.ValueNames()
	if err != nil {
		return false, err
	}

	for _, name := range names {
		if strings.EqualFold(name, MRUOrderValue) {
			continue
		}
		if err := key.DeleteValue(name); err != nil && !errors.HasCode(err, ErrValueNotFound) {
			return false, err
		}
	}

	return true, nil
}

// RestoreBackup imports a backup file. Success is decided by the exit code
// of the import; a timeout counts as failure.
func (c *Cleaner) RestoreBackup(ctx context.Context, path string) bool {
	runCtx, cancel := context.WithTimeout(ctx, backupTimeout)
	defer cancel()

	code, err := c.runner.Run(runCtx, "reg", "import", path)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("Registry import failed")
		return false
	}
	if code != 0 {
		c.log.Warn().Int("exit_code", code).Str("path", path).Msg("Registry import rejected")
		return false
	}

	c.log.Info().Str("path", path).Msg("Registry backup restored")
	return true
}

// ListBackups returns the backup files, newest first. A missing backup
// directory yields an empty list.
func (c *Cleaner) ListBackups() ([]string, error) {
	entries, err := afero.ReadDir(c.fs, c.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New().Wrap(ErrStoreFailed, err)
	}

	backups := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.Mode().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), backupExt) {
			backups = append(backups, e)
		}
	}

	sort.SliceStable(backups, func(i, j int) bool {
		return backups[i].ModTime().After(backups[j].ModTime())
	})

	paths := make([]string, 0, len(backups))
	for _, b := range backups {
		paths = append(paths, filepath.Join(c.backupDir, b.Name()))
	}

	return paths, nil
}
