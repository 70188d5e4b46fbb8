package measure

import "math"

const (
	DefaultStableThreshold = 3
	DefaultStableTolerance = 0.05
)

// StabilityTracker approximates a "reading settled" signal for formats that
// do not carry one: the weight is stable once Threshold consecutive samples
// sit within Tolerance kg of their predecessor. One tracker per session.
type StabilityTracker struct {
	Threshold int
	Tolerance float64

	last   *float64
	count  int
	stable *float64
}

func NewStabilityTracker(threshold int, tolerance float64) *StabilityTracker {
	if threshold <= 0 {
		threshold = DefaultStableThreshold
	}
	if tolerance < 0 {
		tolerance = DefaultStableTolerance
	}
	return &StabilityTracker{Threshold: threshold, Tolerance: tolerance}
}

// Observe records a weight sample and reports whether it is stable.
func (s *StabilityTracker) Observe(kg float64) bool {
	if s.last == nil {
		s.last = ptr(kg)
		s.count = 1
		return false
	}

	if math.Abs(kg-*s.last) <= s.Tolerance+1e-9 {
		s.count++
	} else {
		s.count = 1
	}
	*s.last = kg

	if s.count >= s.Threshold {
		s.stable = ptr(kg)
		return true
	}
	return false
}

// Stable returns the most recent weight that reached the threshold.
func (s *StabilityTracker) Stable() (float64, bool) {
	if s.stable == nil {
		return 0, false
	}
	return *s.stable, true
}

// Count is the current run of similar samples.
func (s *StabilityTracker) Count() int { return s.count }

// Reset clears all samples, as on a new connection.
func (s *StabilityTracker) Reset() {
	s.last, s.stable, s.count = nil, nil, 0
}

// Annotate sets m.Stabilized from the tracker when the format lacks a native
// flag. Measurements without weight are left untouched.
func (s *StabilityTracker) Annotate(m *Measurement) {
	if m == nil || m.NativeStability || m.WeightKg == nil {
		return
	}
	m.Stabilized = s.Observe(*m.WeightKg)
}
