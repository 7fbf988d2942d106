package feed

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("#2563EB")
	colorText    = lipgloss.Color("#111827")
	colorMuted   = lipgloss.Color("#6B7280")
	colorLiked   = lipgloss.Color("#EF4444")
	colorBorder  = lipgloss.Color("#D1D5DB")
	colorError   = lipgloss.Color("#DC2626")
)

// Theme holds the styles used to render the feed.
type Theme struct {
	Header  lipgloss.Style
	Action  lipgloss.Style
	Card    lipgloss.Style
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Liked   lipgloss.Style
	Comment lipgloss.Style
	Error   lipgloss.Style
}

// DefaultTheme returns the light feed theme.
func DefaultTheme() Theme {
	return Theme{
		Header: lipgloss.NewStyle().Bold(true).Foreground(colorText),
		Action: lipgloss.NewStyle().Foreground(colorPrimary).Bold(true),
		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1),
		Title:   lipgloss.NewStyle().Bold(true).Foreground(colorText),
		Muted:   lipgloss.NewStyle().Foreground(colorMuted),
		Liked:   lipgloss.NewStyle().Foreground(colorLiked),
		Comment: lipgloss.NewStyle().PaddingLeft(2),
		Error:   lipgloss.NewStyle().Foreground(colorError).Bold(true),
	}
}
