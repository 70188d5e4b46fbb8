package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"scale-scanner.klederson.com/internal/beacon"
	"scale-scanner.klederson.com/internal/bluetooth"
)

// FilterState holds the current filter settings for the device list.
type FilterState struct {
	ScalesOnly bool   // hide devices that never looked like a scale
	Search     string // text search on name/id
	Active     bool   // text input mode
}

// Apply returns the devices that pass the filter, in order.
func (f FilterState) Apply(devices []*bluetooth.Device) []*bluetooth.Device {
	search := strings.ToLower(f.Search)
	out := make([]*bluetooth.Device, 0, len(devices))
	for _, d := range devices {
		if f.ScalesOnly && !d.Scale {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(d.Name), search) &&
			!strings.Contains(strings.ToLower(d.ID), search) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Cursor row style: black text on bright green = unmissable highlight
var cursorRowSty = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#000000")).
	Background(ColorMatrixGreen).
	Bold(true)

// RenderDeviceList renders the scrollable device list panel with cursor.
// The filter bar stays fixed at the top; only the device entries scroll.
func RenderDeviceList(devices []*bluetooth.Device, width, height int, cursorIndex int, filter FilterState) string {
	innerW := width - 4
	if innerW < 10 {
		innerW = 10
	}

	title := StylePanelTitle.Render(fmt.Sprintf("DEVICES [%d]", len(devices)))
	separator := StyleSeparator.Render(strings.Repeat("-", innerW))
	headerLines := []string{title, separator, renderFilterBar(filter)}
	headerCount := len(headerLines)

	innerH := height - 2
	if innerH < headerCount+1 {
		innerH = headerCount + 1
	}
	devSpace := innerH - headerCount

	var devLines []string
	if len(devices) == 0 {
		devLines = append(devLines, "", StyleHelp.Render(" No devices..."), StyleHelp.Render(" Waiting for scan"))
	} else {
		const linesPerDevice = 4 // 3 content + 1 blank
		maxVisible := devSpace / linesPerDevice
		if maxVisible < 1 {
			maxVisible = 1
		}

		// Compute viewport start so cursor is always visible
		viewStart := 0
		if cursorIndex >= maxVisible {
			viewStart = cursorIndex - maxVisible + 1
		}

		for i := viewStart; i < len(devices) && len(devLines) < devSpace; i++ {
			devLines = append(devLines, renderDeviceEntry(devices[i], innerW, i == cursorIndex)...)
		}
	}

	if len(devLines) > devSpace {
		devLines = devLines[:devSpace]
	}
	for len(devLines) < devSpace {
		devLines = append(devLines, "")
	}

	all := append(headerLines, devLines...)
	rendered := StylePanelBorder.Width(width - 2).Height(innerH).Render(strings.Join(all, "\n"))

	// lipgloss Height() only sets a minimum; it won't truncate overflow.
	return clampLines(rendered, height)
}

func renderDeviceEntry(d *bluetooth.Device, maxW int, isCursor bool) []string {
	symbol := "*"
	if d.Scale {
		symbol = "S"
	}

	name := d.DisplayName()
	nameMax := maxW - 14
	if nameMax < 4 {
		nameMax = 4
	}
	if len(name) > nameMax {
		name = name[:nameMax]
	}

	tag := KindTag(d.Kind)
	reading := ""
	if w, ok := d.Weight(); ok {
		reading = "  " + FormatWeight(w)
		if d.Last.Stabilized {
			reading += " ok"
		}
	}
	rssi := fmt.Sprintf("%ddBm %s", int(d.RSSI), bars(d.SignalBars()))

	if isCursor {
		return []string{
			cursorRowSty.Render(truncRaw(fmt.Sprintf(">> %s %s %s", symbol, name, tag), maxW)),
			cursorRowSty.Render(truncRaw("     "+d.ID, maxW)),
			cursorRowSty.Render(truncRaw("     "+rssi+reading, maxW)),
			"",
		}
	}

	symSty := StyleDeviceOther
	if d.Scale {
		symSty = StyleDeviceScale
	}
	line3 := "     " + StyleDeviceRSSI.Render(rssi)
	if reading != "" {
		line3 += StyleWeight.Render(reading)
	} else if d.Problem != "" {
		line3 += "  " + StyleProblem.Render("!")
	}
	return []string{
		fmt.Sprintf("   %s %s %s", symSty.Render(symbol), StyleDeviceName.Render(name), symSty.Render(tag)),
		"     " + StyleDeviceMAC.Render(d.ID),
		line3,
		"",
	}
}

// KindTag is a short list label for the decode path a device used.
func KindTag(k beacon.FrameKind) string {
	switch k {
	case beacon.KindLegacy:
		return "[LEG]"
	case beacon.KindMiBeacon:
		return "[MIB]"
	case beacon.KindVendorManufacturer:
		return "[MFR]"
	case beacon.KindWeightCharacteristic, beacon.KindBodyCompositionCharacteristic,
		beacon.KindVendorNotification, beacon.KindGenericCharacteristic:
		return "[GATT]"
	default:
		return ""
	}
}

func bars(n int) string {
	return strings.Repeat("|", n) + strings.Repeat(".", 4-n)
}

// truncRaw pads or truncates a raw string to exactly w characters.
func truncRaw(s string, w int) string {
	if len(s) > w {
		return s[:w]
	}
	return s + strings.Repeat(" ", w-len(s))
}

func clampLines(s string, height int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func renderFilterBar(f FilterState) string {
	toggle := StyleFilterInactive.Render("[F:scales]")
	if f.ScalesOnly {
		toggle = StyleFilterActive.Render("[F:scales]")
	}
	bar := " " + toggle
	if f.Active {
		bar += "  " + StyleFilterActive.Render("/"+f.Search+"_")
	} else if f.Search != "" {
		bar += "  " + StyleFilterInactive.Render("/"+f.Search)
	}
	return bar
}
