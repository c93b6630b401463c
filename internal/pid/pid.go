package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/sysoptctl/internal/errors"
)

const (
	pidFile = "sysoptctl.pid"
)

// Path returns the PID file location inside dir, or the temp dir when dir is
// empty.
func Path(dir string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, pidFile)
}

// Write records the current process ID. It fails with ErrAlreadyRunning when
// the file names a live process other than this one. Stale or unreadable
// files are replaced.
func Write(dir string) error {
	errFactory := errors.New()
	path := Path(dir)
	self := os.Getpid()

	if data, err := os.ReadFile(path); err == nil {
		if other, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && other != self && alive(other) {
			return errFactory.WithData(errors.ErrAlreadyRunning, struct {
				PID  int
				Path string
			}{
				PID:  other,
				Path: path,
			})
		}
	} else if !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(self)), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove deletes the PID file. A missing file is not an error.
func Remove(dir string) error {
	if err := os.Remove(Path(dir)); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}
