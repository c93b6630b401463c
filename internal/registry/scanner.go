package registry

import (
	"context"
	"fmt"
	"strings"

	"codeberg.org/mutker/sysoptctl/internal/errors"
	"codeberg.org/mutker/sysoptctl/internal/logger"
	"github.com/spf13/afero"
)

const (
	uninstallPath      = `SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`
	uninstallPathWow64 = `SOFTWARE\WOW6432Node\Microsoft\Windows\CurrentVersion\Uninstall`
	sharedDLLsPath     = `SOFTWARE\Microsoft\Windows\CurrentVersion\SharedDLLs`
	runPath            = `SOFTWARE\Microsoft\Windows\CurrentVersion\Run`
	runPathWow64       = `SOFTWARE\WOW6432Node\Microsoft\Windows\CurrentVersion\Run`

	// MRUOrderValue holds the order of an MRU list and survives a clean.
	MRUOrderValue = "MRUListEx"
)

var (
	runKeys = []struct {
		root Root
		path string
	}{
		{CurrentUser, runPath},
		{LocalMachine, runPath},
		{LocalMachine, runPathWow64},
	}

	mruPaths = []string{
		`Software\Microsoft\Windows\CurrentVersion\Explorer\ComDlg32\OpenSavePidlMRU`,
		`Software\Microsoft\Windows\CurrentVersion\Explorer\ComDlg32\LastVisitedPidlMRU`,
		`Software\Microsoft\Windows\CurrentVersion\Explorer\RunMRU`,
	}
)

// ProgressFunc receives the completed percentage of a scan.
type ProgressFunc func(percent int)

type scanStep struct {
	category Category
	run      func() ([]Issue, error)
}

// Scanner looks for stale registry entries.
type Scanner struct {
	store Store
	fs    afero.Fs
	log   logger.Logger
	steps []scanStep
}

func NewScanner(store Store, fs afero.Fs, log logger.Logger) *Scanner {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &Scanner{
		store: store,
		fs:    fs,
		log:   log.With("registry_scanner"),
	}

	s.steps = []scanStep{
		{FileAssociation, s.scanFileAssociations},
		{ObsoleteSoftware, s.scanObsoleteSoftware},
		{SharedDll, s.scanSharedDLLs},
		{StartupEntry, s.scanStartupEntries},
		{MruList, s.scanMRULists},
	}

	return s
}

// Scan runs every sub-scan in order and returns the union of their issues.
// A failing sub-scan contributes nothing and does not stop the others.
// progress, if set, is called after each sub-scan.
func (s *Scanner) Scan(ctx context.Context, progress ProgressFunc) []Issue {
	var issues []Issue

	for i, step := range s.steps {
		if ctx.Err() != nil {
			s.log.Debug().Msg("Scan cancelled")
			break
		}

		found, err := s.runStep(step)
		if err != nil {
			s.log.Debug().Err(err).Str("category", step.category.String()).Msg("Sub-scan failed")
		} else {
			issues = append(issues, found...)
		}

		if progress != nil {
			progress((i + 1) * 100 / len(s.steps))
		}
	}

	s.log.Info().Int("issues", len(issues)).Msg("Registry scan complete")

	return issues
}

func (s *Scanner) runStep(step scanStep) (issues []Issue, err error) {
	defer func() {
		if r := recover(); r != nil {
			issues = nil
			err = errors.New().WithData(ErrScanStepFailed, fmt.Sprint(r))
		}
	}()

	return step.run()
}

func (s *Scanner) scanFileAssociations() ([]Issue, error) {
	classes, err := s.store.OpenKey(ClassesRoot, "", false)
	if err != nil {
		return nil, err
	}
	defer classes.Close()

	names, err := classes.SubKeyNames()
	if err != nil {
		return nil, err
	}

	var issues []Issue
	for _, ext := range names {
		if !strings.HasPrefix(ext, ".") {
			continue
		}

		progID, err := s.readString(ClassesRoot, ext, "")
		if err != nil || progID == "" {
			continue
		}

		if exists, err := s.keyExists(ClassesRoot, progID); err != nil || exists {
			continue
		}

		issues = append(issues, newIssue(FileAssociation, Low,
			KeyPath(ClassesRoot, ext), "(Default)",
			fmt.Sprintf("File association '%s' points to missing ProgID '%s'", ext, progID)))
	}

	return issues, nil
}

func (s *Scanner) scanObsoleteSoftware() ([]Issue, error) {
	var issues []Issue

	for _, base := range []string{uninstallPath, uninstallPathWow64} {
		key, err := s.store.OpenKey(LocalMachine, base, false)
		if err != nil {
			if errors.HasCode(err, ErrKeyNotFound) {
				continue
			}
			return nil, err
		}

		names, err := key.SubKeyNames()
		key.Close()
		if err != nil {
			return nil, err
		}

		for _, name := range names {
			path := base + `\` + name

			location, err := s.readString(LocalMachine, path, "InstallLocation")
			if err != nil || location == "" {
				continue
			}

			if exists, _ := afero.DirExists(s.fs, location); exists {
				continue
			}

			display, err := s.readString(LocalMachine, path, "DisplayName")
			if err != nil || display == "" {
				display = name
			}

			issues = append(issues, newIssue(ObsoleteSoftware, Medium,
				KeyPath(LocalMachine, path), "InstallLocation",
				fmt.Sprintf("Software '%s' references non-existent path: %s", display, location)))
		}
	}

	return issues, nil
}

func (s *Scanner) scanSharedDLLs() ([]Issue, error) {
	key, err := s.store.OpenKey(LocalMachine, sharedDLLsPath, false)
	if err != nil {
		if errors.HasCode(err, ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer key.Close()

	names, err := key.ValueNames()
	if err != nil {
		return nil, err
	}

	var issues []Issue
	for _, dll := range names {
		if s.fileExists(dll) {
			continue
		}

		issues = append(issues, newIssue(SharedDll, Low,
			KeyPath(LocalMachine, sharedDLLsPath), dll,
			fmt.Sprintf("Shared DLL entry points to non-existent file: %s", baseName(dll))))
	}

	return issues, nil
}

func (s *Scanner) scanStartupEntries() ([]Issue, error) {
	var issues []Issue

	for _, rk := range runKeys {
		key, err := s.store.OpenKey(rk.root, rk.path, false)
		if err != nil {
			if errors.HasCode(err, ErrKeyNotFound) {
				continue
			}
			return nil, err
		}

		found, err := s.checkRunKey(key, rk.root, rk.path)
		key.Close()
		if err != nil {
			return nil, err
		}
		issues = append(issues, found...)
	}

	return issues, nil
}

func (s *Scanner) checkRunKey(key Key, root Root, path string) ([]Issue, error) {
	names, err := key.ValueNames()
	if err != nil {
		return nil, err
	}

	var issues []Issue
	for _, name := range names {
		command, err := key.StringValue(name)
		if err != nil || command == "" {
			continue
		}

		exe := ExtractExecutablePath(command)
		if exe == "" || s.fileExists(exe) {
			continue
		}

		issues = append(issues, newIssue(StartupEntry, Medium,
			KeyPath(root, path), name,
			fmt.Sprintf("Startup entry '%s' references non-existent file", name)))
	}

	return issues, nil
}

func (s *Scanner) scanMRULists() ([]Issue, error) {
	var issues []Issue

	for _, path := range mruPaths {
		key, err := s.store.OpenKey(CurrentUser, path, false)
		if err != nil {
			if errors.HasCode(err, ErrKeyNotFound) {
				continue
			}
			return nil, err
		}

		names, err := key.ValueNames()
		key.Close()
		if err != nil {
			return nil, err
		}

		if len(names) == 0 {
			continue
		}

		issues = append(issues, newIssue(MruList, Low,
			KeyPath(CurrentUser, path), "",
			fmt.Sprintf("MRU list contains %d entries (privacy)", len(names))))
	}

	return issues, nil
}

func (s *Scanner) readString(root Root, path, name string) (string, error) {
	key, err := s.store.OpenKey(root, path, false)
	if err != nil {
		return "", err
	}
	defer key.Close()

	return key.StringValue(name)
}

func (s *Scanner) keyExists(root Root, path string) (bool, error) {
	key, err := s.store.OpenKey(root, path, false)
	if err != nil {
		if errors.HasCode(err, ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	key.Close()

	return true, nil
}

func (s *Scanner) fileExists(path string) bool {
	info, err := s.fs.Stat(path)
	return err == nil && !info.IsDir()
}

// ExtractExecutablePath returns the program part of a command line: the
// contents of a leading quoted string, otherwise everything up to the first
// space.
func ExtractExecutablePath(command string) string {
	command = strings.TrimSpace(command)

	if strings.HasPrefix(command, `"`) {
		if end := strings.Index(command[1:], `"`); end > 0 {
			return command[1 : end+1]
		}
	}

	if i := strings.Index(command, " "); i > 0 {
		return command[:i]
	}

	return command
}

// baseName strips the directory from a Windows or slash-separated path.
func baseName(path string) string {
	if i := strings.LastIndexAny(path, `\/`); i >= 0 {
		return path[i+1:]
	}
	return path
}
