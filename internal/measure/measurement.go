package measure

import (
	"errors"
	"math"
	"time"
)

var ErrTruncated = errors.New("payload truncated")

// Validity bounds. Values outside are discarded, never clamped.
const (
	MinWeightKg     = 1.0
	MaxWeightKg     = 300.0
	MinImpedanceOhm = 100.0
	MaxImpedanceOhm = 3000.0
	MaxHeartRateRaw = 127

	heartRateOffset = 50
	lbToKg          = 0.453592
	jinToKg         = 0.5
)

type Unit string

const (
	UnitKg  Unit = "kg"
	UnitLb  Unit = "lbs"
	UnitJin Unit = "jin"
)

// Measurement is one decoded reading. Pointer fields are absent when nil.
// ImpedanceOhm and ImpedanceLowOhm are never both set.
type Measurement struct {
	WeightKg        *float64   `json:"weightKg"`
	ImpedanceOhm    *float64   `json:"impedanceOhm"`
	ImpedanceLowOhm *float64   `json:"impedanceLowOhm"`
	HeartRateBpm    *uint8     `json:"heartRateBpm"`
	ProfileID       *uint8     `json:"profileId"`
	UserID          *uint8     `json:"userId,omitempty"`
	BMI             *float64   `json:"bmi,omitempty"`
	HeightCm        *float64   `json:"heightCm,omitempty"`
	Unit            Unit       `json:"unit,omitempty"`
	Stabilized      bool       `json:"isStabilized"`
	LoadRemoved     bool       `json:"loadRemoved,omitempty"`
	DeviceTime      *uint32    `json:"deviceTime,omitempty"`
	MeasuredAt      *time.Time `json:"measuredAt,omitempty"`
	CapturedAt      time.Time  `json:"timestamp"`

	// NativeStability is set when the wire format carries its own settled
	// flag; otherwise Stabilized comes from a StabilityTracker.
	NativeStability bool `json:"-"`
}

// Empty reports whether no physiological field is present.
func (m *Measurement) Empty() bool {
	return m == nil || (m.WeightKg == nil && m.ImpedanceOhm == nil && m.ImpedanceLowOhm == nil && m.HeartRateBpm == nil)
}

func ValidWeight(kg float64) bool {
	return kg >= MinWeightKg && kg <= MaxWeightKg
}

func ValidImpedance(ohm float64) bool {
	return ohm >= MinImpedanceOhm && ohm <= MaxImpedanceOhm
}

func ValidHeartRateRaw(raw uint8) bool {
	return raw > 0 && raw < MaxHeartRateRaw
}

func ptr[T any](v T) *T { return &v }

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// setWeight records kg when it passes the validity predicate.
func (m *Measurement) setWeight(kg float64) bool {
	kg = round2(kg)
	if !ValidWeight(kg) {
		return false
	}
	m.WeightKg = ptr(kg)
	return true
}

// orNil drops a measurement that ended up with no present field.
func orNil(m *Measurement) *Measurement {
	if m.Empty() {
		return nil
	}
	return m
}
