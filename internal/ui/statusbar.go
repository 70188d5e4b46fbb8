package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// RenderStatusBar renders the bottom status bar. last is the most recent
// session status or error line.
func RenderStatusBar(width int, scanning bool, total, scales, measuring int, last string, lastIsError bool) string {
	status := StyleStatusPaused.Render("[PAUSED]")
	if scanning {
		status = StyleStatusScanning.Render("[LIVE]")
	}

	info := fmt.Sprintf(" Devices: %d  Scales: %d  Measuring: %d", total, scales, measuring)
	content := status + StyleStatusBar.Foreground(ColorGreen).Render(info)
	if last != "" {
		sty := StyleHelp
		if lastIsError {
			sty = StyleStatusError
		}
		room := width - lipgloss.Width(content) - 6
		if room > 3 && len(last) > room {
			last = last[:room-3] + "..."
		}
		if room > 3 {
			content += "  " + sty.Render(last)
		}
	}

	return StyleStatusBar.Width(width).Render(fill(content, width-2))
}
