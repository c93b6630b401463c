package process_test

import (
	"bytes"
	stderrors "errors"
	"os"
	"testing"

	"codeberg.org/mutker/sysoptctl/internal/errors"
	"codeberg.org/mutker/sysoptctl/internal/logger"
	"codeberg.org/mutker/sysoptctl/internal/process"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	procs  []process.Info
	err    error
	killed []uint32
	fail   map[uint32]error
}

func (s *fakeSource) Snapshot() ([]process.Info, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]process.Info(nil), s.procs...), nil
}

func (s *fakeSource) Kill(pid uint32) error {
	if err := s.fail[pid]; err != nil {
		return err
	}
	s.killed = append(s.killed, pid)
	return nil
}

func tree() *fakeSource {
	return &fakeSource{procs: []process.Info{
		{PID: 4, Name: "System", WorkingSet: 100},
		{PID: 700, ParentPID: 600, Name: "explorer", WorkingSet: 90 << 20},
		{PID: 1000, ParentPID: 700, Name: "editor", WorkingSet: 300 << 20},
		{PID: 1001, ParentPID: 1000, Name: "helper", WorkingSet: 20 << 20},
		{PID: 1002, ParentPID: 1001, Name: "worker", WorkingSet: 10 << 20},
		{PID: 1003, ParentPID: 1000, Name: "conhost", WorkingSet: 5 << 20},
		{PID: 1004, ParentPID: 1000, Name: "plugin", WorkingSet: 20 << 20},
	}}
}

func TestListOrdersByWorkingSet(t *testing.T) {
	m := process.New(tree(), nil)

	procs, err := m.List()
	require.NoError(t, err)
	require.Len(t, procs, 7)

	var pids []uint32
	for _, p := range procs {
		pids = append(pids, p.PID)
	}
	assert.Equal(t, []uint32{1000, 700, 1001, 1004, 1002, 1003, 4}, pids)

	assert.False(t, procs[0].Dangerous)
	assert.True(t, procs[1].Dangerous, "explorer")
	assert.True(t, procs[6].Dangerous, "kernel")
}

func TestListFailure(t *testing.T) {
	m := process.New(&fakeSource{err: errors.New().New(errors.ErrNotSupported)}, nil)

	_, err := m.List()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, process.ErrListFailed))
	assert.True(t, errors.HasCode(err, errors.ErrNotSupported))
}

func TestIsDangerous(t *testing.T) {
	tests := []struct {
		name string
		pid  uint32
		want bool
	}{
		{"System Idle Process", 0, true},
		{"anything", 4, true},
		{"lsass", 812, true},
		{"LSASS.EXE", 812, true},
		{"svchost", 1200, true},
		{"svchost.exe", 1200, true},
		{"Memory Compression", 2000, true},
		{"MsMpEng", 3000, true},
		{"chrome", 4000, false},
		{"notepad.exe", 4001, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, process.IsDangerous(tt.name, tt.pid))
		})
	}
}

func TestTerminate(t *testing.T) {
	src := tree()
	m := process.New(src, nil)

	info, err := m.Terminate(1004)
	require.NoError(t, err)
	assert.Equal(t, "plugin", info.Name)
	assert.Equal(t, []uint32{1004}, src.killed)
}

func TestTerminateRefusesDangerous(t *testing.T) {
	for _, pid := range []uint32{4, 700, 1003} {
		src := tree()
		m := process.New(src, nil)

		_, err := m.Terminate(pid)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, process.ErrProtectedProcess), "pid %d", pid)
		assert.Empty(t, src.killed)
	}
}

func TestTerminateRefusesSelf(t *testing.T) {
	self := uint32(os.Getpid())
	src := &fakeSource{procs: []process.Info{{PID: self, Name: "sysoptctl"}}}

	_, err := process.New(src, nil).Terminate(self)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, process.ErrProtectedProcess))
	assert.Empty(t, src.killed)
}

func TestTerminateUnknownPID(t *testing.T) {
	_, err := process.New(tree(), nil).Terminate(9999)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, process.ErrNotFound))
}

func TestTerminateFailureKeepsCause(t *testing.T) {
	cause := stderrors.New("Access is denied.")
	src := tree()
	src.fail = map[uint32]error{1004: cause}

	_, err := process.New(src, nil).Terminate(1004)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, process.ErrTerminateFailed))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "Access is denied.")
}

func TestTerminateTreeKillsChildrenFirst(t *testing.T) {
	src := tree()
	var buf bytes.Buffer
	m := process.New(src, logger.New(zerolog.New(&buf)))

	killed, err := m.TerminateTree(1000)
	require.NoError(t, err)

	// conhost is protected and survives
	assert.Equal(t, []uint32{1002, 1001, 1004, 1000}, src.killed)
	require.Len(t, killed, 4)
	assert.Equal(t, uint32(1000), killed[3].PID)
	assert.Contains(t, buf.String(), "Leaving protected child process running")
}

func TestTerminateTreeSkipsFailedChild(t *testing.T) {
	src := tree()
	src.fail = map[uint32]error{1001: stderrors.New("gone")}

	killed, err := process.New(src, nil).TerminateTree(1000)
	require.NoError(t, err)

	// the failed helper's own child still goes first
	assert.Equal(t, []uint32{1002, 1004, 1000}, src.killed)
	assert.Len(t, killed, 3)
}

func TestTerminateTreeRootFailure(t *testing.T) {
	src := tree()
	src.fail = map[uint32]error{1000: stderrors.New("denied")}

	killed, err := process.New(src, nil).TerminateTree(1000)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, process.ErrTerminateFailed))
	assert.Len(t, killed, 3)
}

func TestTerminateTreeRefusesDangerousRoot(t *testing.T) {
	src := tree()

	_, err := process.New(src, nil).TerminateTree(700)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, process.ErrProtectedProcess))
	assert.Empty(t, src.killed, "children of a protected root are left alone")
}

func TestTerminateTreeSurvivesParentCycle(t *testing.T) {
	// a recycled pid can make two processes each other's parent
	src := &fakeSource{procs: []process.Info{
		{PID: 2000, ParentPID: 2001, Name: "a"},
		{PID: 2001, ParentPID: 2000, Name: "b"},
		{PID: 2002, ParentPID: 2002, Name: "self-parent"},
	}}

	killed, err := process.New(src, nil).TerminateTree(2000)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2001, 2000}, src.killed)
	assert.Len(t, killed, 2)
}
