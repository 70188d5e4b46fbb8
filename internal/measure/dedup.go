package measure

import "math"

// Weight deltas that count as a new reading.
const (
	AdvertisementTolerance = 0.1
	NotificationTolerance  = 0.05
)

// Deduper passes a measurement only when it differs meaningfully from the
// last one it passed.
type Deduper struct {
	Tolerance float64
	last      *Measurement
}

func NewDeduper(tolerance float64) *Deduper {
	return &Deduper{Tolerance: tolerance}
}

// Changed reports whether m should be emitted and remembers it if so.
func (d *Deduper) Changed(m *Measurement) bool {
	if m.Empty() {
		return false
	}
	if d.last == nil || d.differs(m) {
		cp := *m
		d.last = &cp
		return true
	}
	return false
}

func (d *Deduper) differs(m *Measurement) bool {
	prev := d.last
	switch {
	case (m.WeightKg == nil) != (prev.WeightKg == nil):
		return true
	case m.WeightKg != nil && math.Abs(*m.WeightKg-*prev.WeightKg) > d.Tolerance:
		return true
	case m.Stabilized != prev.Stabilized, m.LoadRemoved != prev.LoadRemoved:
		return true
	}
	return !eqFloat(m.ImpedanceOhm, prev.ImpedanceOhm) ||
		!eqFloat(m.ImpedanceLowOhm, prev.ImpedanceLowOhm) ||
		!eqU8(m.HeartRateBpm, prev.HeartRateBpm) ||
		!eqU8(m.ProfileID, prev.ProfileID)
}

// Reset forgets the last emitted measurement.
func (d *Deduper) Reset() { d.last = nil }

func eqFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqU8(a, b *uint8) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
