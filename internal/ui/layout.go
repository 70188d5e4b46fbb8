package ui

import "github.com/charmbracelet/lipgloss"

// ComposeLayout joins the reading panel and device list horizontally,
// with menu bar on top and status bar on bottom.
func ComposeLayout(menuBar, readingPanel, deviceList, statusBar string) string {
	middle := lipgloss.JoinHorizontal(lipgloss.Top, readingPanel, deviceList)
	return lipgloss.JoinVertical(lipgloss.Left, menuBar, middle, statusBar)
}
