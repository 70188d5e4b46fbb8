package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"scale-scanner.klederson.com/internal/bluetooth"
	"scale-scanner.klederson.com/internal/measure"
)

// RenderDetailPanel renders the reading for the selected device: the big
// weight line, every decoded field and the weight history.
func RenderDetailPanel(d *bluetooth.Device, width, height int) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}

	lines := []string{StylePanelTitle.Render("READING"), StyleSeparator.Render(strings.Repeat("-", innerW)), ""}
	if d == nil {
		lines = append(lines, StyleHelp.Render("  Step on a scale..."))
		return StylePanelActive.Width(width - 2).Height(height - 2).Render(strings.Join(lines, "\n"))
	}

	lines = append(lines, "  "+StyleDeviceName.Render(d.DisplayName())+"  "+StyleDeviceMAC.Render(d.ID), "")
	lines = append(lines, "  "+renderHeadline(d.Last), "")

	for _, f := range readingFields(d) {
		lines = append(lines, StyleLabel.Render(fmt.Sprintf("  %-12s", f.label))+StyleValue.Render(f.value))
	}
	lines = append(lines, "")

	barWidth := innerW - 22
	if barWidth < 10 {
		barWidth = 10
	}
	lines = append(lines, StyleLabel.Render("  Signal ")+renderSignalBar(d.RSSI, barWidth)+
		StyleValue.Render(fmt.Sprintf(" %ddBm", int(d.RSSI))))

	if d.Problem != "" {
		lines = append(lines, "", "  "+StyleProblem.Render(d.Problem))
	}

	if len(d.History) > 0 {
		sparkW := innerW - 4
		if sparkW < 10 {
			sparkW = 10
		}
		lines = append(lines, "", StyleLabel.Render("  Weight History:"))
		lines = append(lines, "  "+lipgloss.NewStyle().Foreground(ColorGreen).Render(renderSparkline(d.History, sparkW)))
	}

	content := strings.Join(lines, "\n")
	return clampLines(StylePanelActive.Width(width-2).Height(height-2).Render(content), height)
}

func renderHeadline(m *measure.Measurement) string {
	if m == nil || m.WeightKg == nil {
		return StyleHelp.Render("no weight yet")
	}
	w := StyleWeight.Render(FormatWeight(*m.WeightKg))
	switch {
	case m.LoadRemoved:
		return w + "  " + StyleHelp.Render("load removed")
	case m.Stabilized:
		return w + "  " + StyleStatusScanning.Render("STABLE")
	default:
		return w + "  " + StyleSettling.Render("settling")
	}
}

type field struct{ label, value string }

func readingFields(d *bluetooth.Device) []field {
	fields := []field{
		{"Source", d.Kind.String()},
		{"Readings", fmt.Sprintf("%d", d.Readings)},
		{"Last", formatLastSeen(d.LastSeen)},
	}
	m := d.Last
	if m == nil {
		return fields
	}
	if m.Unit != "" {
		fields = append(fields, field{"Unit", string(m.Unit)})
	}
	if m.ImpedanceOhm != nil {
		fields = append(fields, field{"Impedance", fmt.Sprintf("%.0f ohm", *m.ImpedanceOhm)})
	}
	if m.ImpedanceLowOhm != nil {
		fields = append(fields, field{"Imp. (low)", fmt.Sprintf("%.0f ohm", *m.ImpedanceLowOhm)})
	}
	if m.HeartRateBpm != nil {
		fields = append(fields, field{"Heart rate", fmt.Sprintf("%d bpm", *m.HeartRateBpm)})
	}
	if m.ProfileID != nil {
		fields = append(fields, field{"Profile", fmt.Sprintf("%d", *m.ProfileID)})
	}
	if m.UserID != nil {
		fields = append(fields, field{"User", fmt.Sprintf("%d", *m.UserID)})
	}
	if m.BMI != nil {
		fields = append(fields, field{"BMI", fmt.Sprintf("%.1f", *m.BMI)})
	}
	if m.MeasuredAt != nil {
		fields = append(fields, field{"Measured", m.MeasuredAt.Format(time.DateTime)})
	}
	return fields
}

// FormatWeight renders kilograms with two decimals.
func FormatWeight(kg float64) string {
	return fmt.Sprintf("%.2f kg", kg)
}

func renderSignalBar(rssi float64, width int) string {
	// Map RSSI -100..-30 to 0..width filled bars
	ratio := math.Min(math.Max((rssi+100.0)/70.0, 0), 1)
	filled := int(math.Round(ratio * float64(width)))

	filledPart := lipgloss.NewStyle().Foreground(signalColor(rssi)).Render(strings.Repeat("|", filled))
	emptyPart := lipgloss.NewStyle().Foreground(ColorDimGreen).Render(strings.Repeat("-", width-filled))
	return StyleHelp.Render("[") + filledPart + emptyPart + StyleHelp.Render("]")
}

func renderSparkline(values []float64, width int) string {
	if len(values) == 0 {
		return ""
	}

	chars := []byte{'_', '.', '-', '~', '^'}

	// Take last `width` values
	if len(values) > width {
		values = values[len(values)-width:]
	}

	minV, maxV := values[0], values[0]
	for _, v := range values {
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	rng := maxV - minV
	if rng < 1 {
		rng = 1
	}

	var sb strings.Builder
	for _, v := range values {
		idx := int((v - minV) / rng * float64(len(chars)-1))
		idx = min(max(idx, 0), len(chars)-1)
		sb.WriteByte(chars[idx])
	}
	return sb.String()
}

func formatLastSeen(t time.Time) string {
	d := time.Since(t)
	if d < time.Second {
		return "now"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm ago", int(d.Minutes()))
}
