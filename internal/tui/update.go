package tui

import (
	"codeberg.org/mutker/sysoptctl/internal/monitor"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "p":
			if m.purging || m.purger == nil {
				return m, nil
			}
			m.purging = true
			m.message = "Purging standby list..."
			return m, purgeCmd(m.ctx, m.purger)

		case "a":
			if m.settings == nil {
				return m, nil
			}
			return m, toggleAutoPurgeCmd(m.settings)
		}

	case eventMsg:
		switch {
		case msg.Snapshot != nil:
			m.snapshot = msg.Snapshot
			m.lastErr = nil
		case msg.Outcome != nil:
			m.recordOutcome(*msg.Outcome)
		case msg.Err != nil:
			m.lastErr = msg.Err
		}
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		m.eventsDone = true

	case purgeDoneMsg:
		// the monitor also publishes the outcome; only surface failures here
		m.purging = false
		if msg.err != nil {
			m.lastErr = msg.err
			m.message = "Purge failed"
		}

	case toggleMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			m.message = "Could not change auto-purge"
		} else if msg.enabled {
			m.message = "Auto-purge enabled"
		} else {
			m.message = "Auto-purge disabled"
		}
	}

	return m, nil
}

func (m *Model) recordOutcome(o monitor.PurgeOutcome) {
	m.outcome = &o
	if o.Success {
		m.purges++
		m.message = "Freed " + humanize.IBytes(o.BytesFreed)
	} else {
		m.message = "Purge failed"
	}
}
