package watch

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/foodflow/notifier/internal/notify"
)

// StatusBar shows the connection state and traffic counters.
type StatusBar struct {
	State    notify.State
	Endpoint string
	Received int
	LastErr  string
	Width    int
}

func (m StatusBar) View() string {
	width := max(m.Width, 40)

	var conn string
	switch m.State {
	case notify.StateConnected:
		conn = lipgloss.NewStyle().Foreground(ColorHealthy).Render("● Connected")
	case notify.StateConnecting:
		conn = lipgloss.NewStyle().Foreground(ColorWarning).Render("◌ Connecting...")
	default:
		conn = lipgloss.NewStyle().Foreground(ColorDanger).Render("○ Disconnected")
	}

	sep := lipgloss.NewStyle().Foreground(ColorBorder).Render(" | ")
	content := conn + sep + StyleDimmed.Render(m.Endpoint) + sep +
		fmt.Sprintf("%d received", m.Received)
	if m.LastErr != "" {
		content += sep + StyleError.Render(m.LastErr)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(ColorBorder).
		Render(content)
}
