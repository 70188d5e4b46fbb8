package ui

import "github.com/charmbracelet/lipgloss"

// Matrix color palette
var (
	ColorMatrixGreen  = lipgloss.Color("#00FF41")
	ColorGreen        = lipgloss.Color("#00CC33")
	ColorMidGreen     = lipgloss.Color("#008F11")
	ColorDimGreen     = lipgloss.Color("#004A0A")
	ColorBlack        = lipgloss.Color("#000000")
	ColorScale        = lipgloss.Color("#00FFAA")
	ColorOther        = lipgloss.Color("#33FF66")
	ColorBorderBright = lipgloss.Color("#00FF41")
	ColorBorderNorm   = lipgloss.Color("#00AA22")
	ColorError        = lipgloss.Color("#FF3300")
	ColorWarning      = lipgloss.Color("#FFAA00")
)

// Pre-built styles
var (
	StyleMenuBar = lipgloss.NewStyle().
			Background(lipgloss.Color("#002200")).
			Foreground(ColorMatrixGreen).
			Bold(true).
			Padding(0, 1)

	StyleMenuKey = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true)

	StyleMenuLabel = lipgloss.NewStyle().
			Foreground(ColorGreen)

	StyleStatusBar = lipgloss.NewStyle().
			Background(lipgloss.Color("#002200")).
			Foreground(ColorGreen).
			Padding(0, 1)

	StyleStatusScanning = lipgloss.NewStyle().
				Foreground(ColorMatrixGreen).
				Bold(true)

	StyleStatusPaused = lipgloss.NewStyle().
				Foreground(ColorWarning).
				Bold(true)

	StyleStatusError = lipgloss.NewStyle().
				Foreground(ColorError).
				Bold(true)

	StylePanelBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorBorderNorm)

	StylePanelActive = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorBorderBright)

	StylePanelTitle = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true).
			Padding(0, 1)

	StyleDeviceName = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true)

	StyleDeviceMAC = lipgloss.NewStyle().
			Foreground(ColorMidGreen)

	StyleDeviceRSSI = lipgloss.NewStyle().
			Foreground(ColorGreen)

	StyleDeviceScale = lipgloss.NewStyle().
				Foreground(ColorScale)

	StyleDeviceOther = lipgloss.NewStyle().
				Foreground(ColorOther)

	StyleFilterActive = lipgloss.NewStyle().
				Foreground(ColorMatrixGreen).
				Bold(true)

	StyleFilterInactive = lipgloss.NewStyle().
				Foreground(ColorDimGreen)

	StyleSeparator = lipgloss.NewStyle().
			Foreground(ColorMidGreen)

	StyleWeight = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true)

	StyleSettling = lipgloss.NewStyle().
			Foreground(ColorWarning).
			Bold(true)

	StyleProblem = lipgloss.NewStyle().
			Foreground(ColorError)

	StyleHelp = lipgloss.NewStyle().
			Foreground(ColorDimGreen)

	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorMidGreen)

	StyleValue = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true)
)

func signalColor(rssi float64) lipgloss.Color {
	switch {
	case rssi > -50:
		return "#00FF41"
	case rssi > -60:
		return "#00CC33"
	case rssi > -70:
		return "#00AA22"
	case rssi > -80:
		return "#008F11"
	default:
		return "#005511"
	}
}

// fill pads s with spaces to width w, measured in terminal cells.
func fill(s string, w int) string {
	gap := w - lipgloss.Width(s)
	if gap <= 0 {
		return s
	}
	return s + spaces(gap)
}

func spaces(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}
