package tui

import (
	"context"
	"testing"
	"time"

	"codeberg.org/mutker/sysoptctl/internal/config"
	"codeberg.org/mutker/sysoptctl/internal/errors"
	"codeberg.org/mutker/sysoptctl/internal/memory"
	"codeberg.org/mutker/sysoptctl/internal/monitor"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	calls   int
	outcome monitor.PurgeOutcome
	err     error
}

func (f *fakePurger) PurgeNow(context.Context) (monitor.PurgeOutcome, error) {
	f.calls++
	return f.outcome, f.err
}

type fakeSettings struct {
	policy config.AutoPurgePolicy
	err    error
}

func (f *fakeSettings) AutoPurgePolicy() config.AutoPurgePolicy { return f.policy }

func (f *fakeSettings) SetAutoPurgeEnabled(enabled bool) error {
	if f.err != nil {
		return f.err
	}
	f.policy.Enabled = enabled
	return nil
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestWaitForEvent(t *testing.T) {
	ch := make(chan monitor.Event, 1)
	snap := memory.Snapshot{TotalPhysical: 1 << 30}
	ch <- monitor.Event{Snapshot: &snap}

	msg := waitForEvent(ch)()
	ev, ok := msg.(eventMsg)
	require.True(t, ok)
	assert.Equal(t, uint64(1<<30), ev.Snapshot.TotalPhysical)

	close(ch)
	assert.IsType(t, eventsClosedMsg{}, waitForEvent(ch)())
}

func TestSnapshotEventRendersAndResubscribes(t *testing.T) {
	m := NewModel(t.Context(), make(chan monitor.Event), nil, nil)
	assert.Contains(t, m.View(), "Waiting for first sample")

	snap := memory.Snapshot{TotalPhysical: 16 << 30, StandbyListSize: 2 << 30, UsagePercent: 42}
	m, cmd := update(t, m, eventMsg{Snapshot: &snap})

	assert.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "16 GiB")
	assert.Contains(t, view, "2.0 GiB")
	assert.Contains(t, view, "42%")
}

func TestOutcomeEventCountsSuccessfulPurges(t *testing.T) {
	m := NewModel(t.Context(), make(chan monitor.Event), nil, nil)
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	m, _ = update(t, m, eventMsg{Outcome: &monitor.PurgeOutcome{Success: true, BytesFreed: 512 << 20, Timestamp: at}})
	m, _ = update(t, m, eventMsg{Outcome: &monitor.PurgeOutcome{Success: false, Timestamp: at}})

	assert.Equal(t, 1, m.purges)
	assert.Equal(t, "Purge failed", m.message)
	assert.Contains(t, m.View(), "failed at 12:30:00")
}

func TestPurgeKey(t *testing.T) {
	p := &fakePurger{err: errors.New().New(errors.ErrOperationFailed)}
	m := NewModel(t.Context(), make(chan monitor.Event), p, nil)

	m, cmd := update(t, m, key("p"))
	require.NotNil(t, cmd)
	assert.True(t, m.purging)

	// a second press while purging is ignored
	_, again := update(t, m, key("p"))
	assert.Nil(t, again)

	m, _ = update(t, m, cmd())
	assert.Equal(t, 1, p.calls)
	assert.False(t, m.purging)
	assert.Error(t, m.lastErr)
}

func TestToggleAutoPurgeKey(t *testing.T) {
	s := &fakeSettings{}
	m := NewModel(t.Context(), make(chan monitor.Event), nil, s)

	m, cmd := update(t, m, key("a"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.True(t, s.policy.Enabled)
	assert.Equal(t, "Auto-purge enabled", m.message)
	assert.Contains(t, m.View(), "on (standby")
}

func TestEventsClosed(t *testing.T) {
	m := NewModel(t.Context(), make(chan monitor.Event), nil, nil)

	m, cmd := update(t, m, eventsClosedMsg{})
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "Monitor stopped")
}

func TestQuitKey(t *testing.T) {
	m := NewModel(t.Context(), make(chan monitor.Event), nil, nil)

	_, cmd := update(t, m, key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
