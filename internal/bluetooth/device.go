package bluetooth

import (
	"time"

	"scale-scanner.klederson.com/internal/beacon"
	"scale-scanner.klederson.com/internal/measure"
)

// Device is what the scanner knows about one advertiser.
type Device struct {
	ID        string
	Name      string
	RSSI      float64 // EMA smoothed
	FirstSeen time.Time
	LastSeen  time.Time
	Scale     bool // advertised scale data or a scale name

	Kind     beacon.FrameKind // origin of the last measurement
	Last     *measure.Measurement
	Readings int
	History  []float64 // recent weights in kg, oldest first
	Problem  string    // last reported decode problem
}

// DisplayName returns the device name or "[unnamed]" if empty.
func (d *Device) DisplayName() string {
	if d.Name == "" {
		return "[unnamed]"
	}
	return d.Name
}

// SignalBars maps RSSI onto 0..4 bars.
func (d *Device) SignalBars() int {
	switch {
	case d.RSSI >= -55:
		return 4
	case d.RSSI >= -67:
		return 3
	case d.RSSI >= -78:
		return 2
	case d.RSSI >= -90:
		return 1
	default:
		return 0
	}
}

// Weight returns the last decoded weight.
func (d *Device) Weight() (float64, bool) {
	if d.Last == nil || d.Last.WeightKg == nil {
		return 0, false
	}
	return *d.Last.WeightKg, true
}
