package ui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	subHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	systemStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("214"))
	welcomeStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Padding(1, 2)
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	noticeStyles = map[string]lipgloss.Style{
		"info":    lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		"success": lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"error":   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)
