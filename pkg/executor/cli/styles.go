package cli

import "github.com/charmbracelet/lipgloss"

// Color palette shared by every CLI view.
var (
	salmonPink  = lipgloss.Color("#FFB3BA") // primary accent
	mintGreen   = lipgloss.Color("#A8E6CF") // success
	mutedGray   = lipgloss.Color("#6B7280") // secondary text
	brightWhite = lipgloss.Color("#F9FAFB") // primary text
	amber       = lipgloss.Color("#FFE08A") // warnings, matches the default pattern color
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(mintGreen).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(salmonPink)

	warnStyle = lipgloss.NewStyle().
			Foreground(amber)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	valueStyle = lipgloss.NewStyle().
			Foreground(brightWhite)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Width(10)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(salmonPink)

	crashBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(salmonPink).
			Padding(0, 1)
)
