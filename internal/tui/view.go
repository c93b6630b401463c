package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("sysoptctl memory monitor"))
	b.WriteString("\n\n")

	b.WriteString(panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, m.memoryRows()...)))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, m.purgeRows()...)))
	b.WriteString("\n")

	if m.message != "" {
		b.WriteString(m.message)
		b.WriteString("\n")
	}
	if m.lastErr != nil {
		b.WriteString(warnStyle.Render("Error: " + m.lastErr.Error()))
		b.WriteString("\n")
	}
	if m.eventsDone {
		b.WriteString(warnStyle.Render("Monitor stopped"))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("p: purge standby  a: toggle auto-purge  q: quit"))

	return b.String()
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func (m Model) memoryRows() []string {
	s := m.snapshot
	if s == nil {
		return []string{"Waiting for first sample..."}
	}

	return []string{
		row("Total", humanize.IBytes(s.TotalPhysical)),
		row("Used", fmt.Sprintf("%s (%d%%)", humanize.IBytes(s.UsedPhysical), s.UsagePercent)),
		row("Available", humanize.IBytes(s.AvailablePhysical)),
		row("Standby", humanize.IBytes(s.StandbyListSize)),
		row("Free", humanize.IBytes(s.FreeMemory)),
		row("Processes", fmt.Sprintf("%d (%d threads, %d handles)", s.ProcessCount, s.ThreadCount, s.HandleCount)),
	}
}

func (m Model) purgeRows() []string {
	auto := offStyle.Render("off")
	if m.settings != nil {
		p := m.settings.AutoPurgePolicy()
		if p.Enabled {
			auto = onStyle.Render(fmt.Sprintf("on (standby >= %s, free <= %s)",
				humanize.IBytes(p.StandbyThresholdBytes), humanize.IBytes(p.FreeThresholdBytes)))
		}
	}

	last := "never"
	if o := m.outcome; o != nil {
		if o.Success {
			last = fmt.Sprintf("%s freed at %s", humanize.IBytes(o.BytesFreed), o.Timestamp.Format("15:04:05"))
		} else {
			last = offStyle.Render("failed at " + o.Timestamp.Format("15:04:05"))
		}
	}

	return []string{
		row("Auto-purge", auto),
		row("Purges", fmt.Sprintf("%d", m.purges)),
		row("Last purge", last),
	}
}
