package process

import (
	"cmp"
	"os"
	"slices"
	"strings"

	"codeberg.org/mutker/sysoptctl/internal/errors"
	"codeberg.org/mutker/sysoptctl/internal/logger"
)

// ActionTerminate names process terminations in the history log.
const ActionTerminate = "Terminate Process"

// Manager lists processes and terminates them, refusing dangerous ones.
type Manager struct {
	src  Source
	self uint32
	log  logger.Logger
}

func New(src Source, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	} else {
		log = log.With("process")
	}

	return &Manager{src: src, self: uint32(os.Getpid()), log: log}
}

// List returns all processes ordered by working set, largest first. Ties
// are broken by name and then PID.
func (m *Manager) List() ([]Info, error) {
	procs, err := m.snapshot()
	if err != nil {
		return nil, err
	}

	slices.SortFunc(procs, func(a, b Info) int {
		if c := cmp.Compare(b.WorkingSet, a.WorkingSet); c != 0 {
			return c
		}
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.PID, b.PID)
	})

	return procs, nil
}

// Terminate kills a single process.
func (m *Manager) Terminate(pid uint32) (Info, error) {
	procs, err := m.snapshot()
	if err != nil {
		return Info{}, err
	}

	target, err := m.find(procs, pid)
	if err != nil {
		return Info{}, err
	}

	if err := m.kill(target); err != nil {
		return target, err
	}

	return target, nil
}

// TerminateTree kills pid and all of its descendants, children before their
// parents. Dangerous descendants are left running and descendants that fail
// to die are skipped; only a failure on pid itself is returned. The result
// lists the processes actually terminated.
func (m *Manager) TerminateTree(pid uint32) ([]Info, error) {
	procs, err := m.snapshot()
	if err != nil {
		return nil, err
	}

	root, err := m.find(procs, pid)
	if err != nil {
		return nil, err
	}

	children := make(map[uint32][]Info)
	for _, p := range procs {
		if p.PID != p.ParentPID {
			children[p.ParentPID] = append(children[p.ParentPID], p)
		}
	}

	var order []Info
	visited := map[uint32]bool{root.PID: true}
	var walk func(parent uint32)
	walk = func(parent uint32) {
		for _, c := range children[parent] {
			// parent ids outlive their process; a reused pid can form a cycle
			if visited[c.PID] {
				continue
			}
			visited[c.PID] = true
			walk(c.PID)
			order = append(order, c)
		}
	}
	walk(root.PID)

	var killed []Info
	for _, p := range order {
		if p.Dangerous {
			m.log.Warn().Uint32("pid", p.PID).Str("name", p.Name).Msg("Leaving protected child process running")
			continue
		}
		if err := m.kill(p); err != nil {
			m.log.Warn().Err(err).Uint32("pid", p.PID).Msg("Failed to terminate child process")
			continue
		}
		killed = append(killed, p)
	}

	if err := m.kill(root); err != nil {
		return killed, err
	}

	return append(killed, root), nil
}

func (m *Manager) snapshot() ([]Info, error) {
	procs, err := m.src.Snapshot()
	if err != nil {
		return nil, errors.New().Wrap(ErrListFailed, err)
	}

	for i := range procs {
		procs[i].Dangerous = IsDangerous(procs[i].Name, procs[i].PID) || procs[i].PID == m.self
	}

	return procs, nil
}

func (m *Manager) find(procs []Info, pid uint32) (Info, error) {
	errFactory := errors.New()

	i := slices.IndexFunc(procs, func(p Info) bool { return p.PID == pid })
	if i < 0 {
		return Info{}, errFactory.WithData(ErrNotFound, pid)
	}

	p := procs[i]
	if p.Dangerous {
		return p, errFactory.WithData(ErrProtectedProcess, p.Name)
	}

	return p, nil
}

func (m *Manager) kill(p Info) error {
	if p.Dangerous {
		return errors.New().WithData(ErrProtectedProcess, p.Name)
	}

	if err := m.src.Kill(p.PID); err != nil {
		return errors.New().Wrap(ErrTerminateFailed, err).WithData(p.Name)
	}

	m.log.Info().Uint32("pid", p.PID).Str("name", p.Name).Msg("Process terminated")

	return nil
}
