package tui

import (
	"context"

	"codeberg.org/mutker/sysoptctl/internal/monitor"
	tea "github.com/charmbracelet/bubbletea"
)

// waitForEvent blocks on the next monitor event.
func waitForEvent(events <-chan monitor.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func purgeCmd(ctx context.Context, p Purger) tea.Cmd {
	return func() tea.Msg {
		outcome, err := p.PurgeNow(ctx)
		return purgeDoneMsg{outcome: outcome, err: err}
	}
}

func toggleAutoPurgeCmd(s Settings) tea.Cmd {
	return func() tea.Msg {
		enabled := !s.AutoPurgePolicy().Enabled
		return toggleMsg{enabled: enabled, err: s.SetAutoPurgeEnabled(enabled)}
	}
}
