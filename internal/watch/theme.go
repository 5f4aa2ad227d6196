package watch

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// Channel family colors.
var (
	ColorMessages     = lipgloss.Color("#3b82f6")
	ColorClaims       = lipgloss.Color("#a855f7")
	ColorDonations    = lipgloss.Color("#10b981")
	ColorAchievements = lipgloss.Color("#f59e0b")
	ColorReviews      = lipgloss.Color("#06b6d4")
	ColorDefault      = lipgloss.Color("#9ca3af")
)

var (
	StyleHeader = lipgloss.NewStyle().Bold(true).Foreground(ColorBright)
	StyleDimmed = lipgloss.NewStyle().Foreground(ColorDimmed)
	StyleError  = lipgloss.NewStyle().Foreground(ColorDanger)
)

// ChannelColor groups destinations by their path so related channels share
// a color.
func ChannelColor(destination string) lipgloss.Color {
	switch {
	case strings.HasPrefix(destination, "/user/queue/messages"):
		return ColorMessages
	case strings.HasPrefix(destination, "/user/queue/claims"):
		return ColorClaims
	case strings.HasPrefix(destination, "/user/queue/donations"):
		return ColorDonations
	case strings.HasPrefix(destination, "/user/queue/achievements"),
		strings.HasPrefix(destination, "/user/queue/verification"):
		return ColorAchievements
	case strings.HasPrefix(destination, "/user/queue/reviews"):
		return ColorReviews
	default:
		return ColorDefault
	}
}
