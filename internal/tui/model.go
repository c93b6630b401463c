// Package tui renders a live memory dashboard fed by the monitor's event
// stream.
package tui

import (
	"context"

	"codeberg.org/mutker/sysoptctl/internal/config"
	"codeberg.org/mutker/sysoptctl/internal/memory"
	"codeberg.org/mutker/sysoptctl/internal/monitor"
	tea "github.com/charmbracelet/bubbletea"
)

// Purger runs a manual standby purge.
type Purger interface {
	PurgeNow(ctx context.Context) (monitor.PurgeOutcome, error)
}

// Settings reads and toggles auto-purge.
type Settings interface {
	AutoPurgePolicy() config.AutoPurgePolicy
	SetAutoPurgeEnabled(enabled bool) error
}

type Model struct {
	ctx      context.Context
	events   <-chan monitor.Event
	purger   Purger
	settings Settings

	snapshot   *memory.Snapshot
	outcome    *monitor.PurgeOutcome
	purges     int
	purging    bool
	lastErr    error
	message    string
	width      int
	eventsDone bool
}

// eventMsg carries one monitor event.
type eventMsg monitor.Event

// eventsClosedMsg signals that the subscription ended.
type eventsClosedMsg struct{}

// purgeDoneMsg is the result of a manual purge.
type purgeDoneMsg struct {
	outcome monitor.PurgeOutcome
	err     error
}

// toggleMsg is the result of flipping auto-purge.
type toggleMsg struct {
	enabled bool
	err     error
}

func NewModel(ctx context.Context, events <-chan monitor.Event, purger Purger, settings Settings) Model {
	return Model{
		ctx:      ctx,
		events:   events,
		purger:   purger,
		settings: settings,
	}
}

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

// Run blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, m Model) error {
	_, err := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen()).Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
