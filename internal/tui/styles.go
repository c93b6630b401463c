package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#B4BEFE"))

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6ADC8")).Width(18)

	onStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))

	offStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))

	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6ADC8")).Padding(1, 0)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#585B70")).
			Padding(0, 2)
)
