package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	canvasStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444466"))

	statsStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 2).
			Width(40)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	graphStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)

	statusRunning = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff88"))
	statusPaused  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffaa00"))
	statusLanded  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ccff"))
	statusCrashed = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff4444"))

	engineOn  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffcc00"))
	engineOff = lipgloss.NewStyle().Foreground(lipgloss.Color("#666688"))
)

// engineBar renders a power level in [0,1] as a fixed-width bar.
func engineBar(power float64, width int) string {
	filled := int(power * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	if filled > 0 {
		return engineOn.Render(bar)
	}
	return engineOff.Render(bar)
}
