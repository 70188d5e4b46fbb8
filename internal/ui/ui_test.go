package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"scale-scanner.klederson.com/internal/beacon"
	"scale-scanner.klederson.com/internal/bluetooth"
	"scale-scanner.klederson.com/internal/measure"
)

func TestRenderSparkline(t *testing.T) {
	assert.Equal(t, "", renderSparkline(nil, 10))
	assert.Equal(t, "_^", renderSparkline([]float64{70, 80}, 10))
	assert.Equal(t, "__", renderSparkline([]float64{70, 70}, 10))
	assert.Len(t, renderSparkline([]float64{1, 2, 3, 4, 5}, 3), 3)
}

func TestFilterApply(t *testing.T) {
	devices := []*bluetooth.Device{
		{ID: "AA:BB:CC:DD:EE:01", Name: "MIBFS", Scale: true},
		{ID: "AA:BB:CC:DD:EE:02", Name: "iPhone"},
	}
	assert.Len(t, FilterState{}.Apply(devices), 2)
	assert.Len(t, FilterState{ScalesOnly: true}.Apply(devices), 1)
	got := FilterState{Search: "phone"}.Apply(devices)
	assert.Len(t, got, 1)
	assert.Equal(t, "iPhone", got[0].Name)
	assert.Len(t, FilterState{Search: "ee:01"}.Apply(devices), 1)
}

func TestRenderDeviceListHeight(t *testing.T) {
	w := 72.5
	devices := []*bluetooth.Device{
		{ID: "AA:BB:CC:DD:EE:01", Name: "MIBFS", Scale: true, Kind: beacon.KindMiBeacon, Last: &measure.Measurement{WeightKg: &w, Stabilized: true}},
		{ID: "AA:BB:CC:DD:EE:02", Name: "iPhone"},
	}
	for _, h := range []int{6, 12, 30} {
		out := RenderDeviceList(devices, 40, h, 0, FilterState{})
		assert.Len(t, strings.Split(out, "\n"), h)
	}
}

func TestRenderDetailPanel(t *testing.T) {
	w, imp := 72.5, 480.0
	d := &bluetooth.Device{
		ID: "AA:BB:CC:DD:EE:01", Name: "MIBFS", Kind: beacon.KindLegacy, Readings: 3,
		Last:    &measure.Measurement{WeightKg: &w, ImpedanceOhm: &imp, Stabilized: true, Unit: measure.UnitKg},
		History: []float64{70, 72.5},
	}
	out := RenderDetailPanel(d, 60, 30)
	assert.Contains(t, out, "72.50 kg")
	assert.Contains(t, out, "STABLE")
	assert.Contains(t, out, "480 ohm")
	assert.Equal(t, 30, lipgloss.Height(out))

	assert.Contains(t, RenderDetailPanel(nil, 60, 20), "Step on a scale")
}

func TestKindTag(t *testing.T) {
	assert.Equal(t, "[LEG]", KindTag(beacon.KindLegacy))
	assert.Equal(t, "[GATT]", KindTag(beacon.KindVendorNotification))
	assert.Equal(t, "", KindTag(beacon.KindUnrecognized))
}
