package tui

import "github.com/charmbracelet/lipgloss"

var (
	passedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "2", Dark: "10"})
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "1", Dark: "9"})
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "245"})
	headerStyle  = lipgloss.NewStyle().Bold(true)
	errTextStyle = failedStyle.Bold(true)
)
