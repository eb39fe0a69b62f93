package tui

import "github.com/charmbracelet/lipgloss"

const (
	colorAccent = lipgloss.Color("212")
	colorMuted  = lipgloss.Color("241")
	colorText   = lipgloss.Color("252")
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	subtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	helpStyle    = dimStyle

	userMsgStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("111"))
	assistantMsgStyle = lipgloss.NewStyle().Foreground(colorText)
	// sourceStyle renders the file:line list under an answer.
	sourceStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			PaddingLeft(2).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(lipgloss.Color("238"))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Background(lipgloss.Color("236")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	listItemStyle = lipgloss.NewStyle().Foreground(colorText)

	barFilledStyle = lipgloss.NewStyle().Foreground(colorAccent)
	barEmptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)
