package prompt

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary   = lipgloss.Color("12")  // bright blue
	colorDim       = lipgloss.Color("240") // gray
	colorHighlight = lipgloss.Color("11")  // bright yellow
	colorWarn      = lipgloss.Color("9")   // bright red
	colorBorder    = lipgloss.Color("238") // dark gray

	styleTitle = lipgloss.NewStyle().
			Foreground(colorWarn).
			Bold(true)

	styleLabel = lipgloss.NewStyle().
			Foreground(colorDim).
			Width(10)

	styleValue = lipgloss.NewStyle().
			Foreground(colorPrimary)

	styleSelected = lipgloss.NewStyle().
			Foreground(colorHighlight).
			Bold(true)

	styleNormal = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	stylePanel = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	styleStatusBar = lipgloss.NewStyle().
			Foreground(colorDim).
			Padding(0, 1)
)
