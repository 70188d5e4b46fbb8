package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"scale-scanner.klederson.com/internal/config"
)

// RenderMenuBar renders the top menu bar.
func RenderMenuBar(width int, source string, scanning bool) string {
	title := fmt.Sprintf(" %s v%s ", config.AppName, config.AppVersion)

	keys := []struct{ key, label string }{
		{"S", "can"},
		{"P", "ause"},
		{"F", "ilter"},
		{"/", "search"},
		{"Q", "uit"},
	}

	menu := ""
	for _, k := range keys {
		menu += "  " + StyleMenuKey.Render("["+k.key+"]") + StyleMenuLabel.Render(k.label)
	}

	status := StyleStatusPaused.Render("PAUSED")
	if scanning {
		status = StyleStatusScanning.Render("LIVE")
	}

	left := StyleMenuKey.Render(title) + menu
	right := status + "  " + StyleMenuLabel.Render("Source: "+source) + " "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	return StyleMenuBar.Width(width).Render(left + spaces(gap) + right)
}
