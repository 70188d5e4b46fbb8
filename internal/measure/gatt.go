package measure

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Weight Measurement (0x2A9D) flags.
const (
	wmImperial  = 0x01
	wmTimestamp = 0x02
	wmUserID    = 0x04
	wmBMIHeight = 0x08
)

// Body Composition Measurement (0x2A9C) flags.
const (
	bcImperial      = 0x0001
	bcTimestamp     = 0x0002
	bcUserID        = 0x0004
	bcBasal         = 0x0008
	bcMusclePct     = 0x0010
	bcMuscleMass    = 0x0020
	bcFatFreeMass   = 0x0040
	bcSoftLeanMass  = 0x0080
	bcBodyWaterMass = 0x0100
	bcImpedance     = 0x0200
	bcWeight        = 0x0400
	bcHeight        = 0x0800
)

const (
	dateTimeLen = 7
	inchToCm    = 2.54
)

// reader consumes little-endian fields and stops at the first short read.
type reader struct {
	buf []byte
	off int
	ok  bool
}

func newReader(b []byte) *reader { return &reader{buf: b, ok: true} }

func (r *reader) take(n int) []byte {
	if !r.ok || len(r.buf)-r.off < n {
		r.ok = false
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() (uint8, bool) {
	b := r.take(1)
	if b == nil {
		return 0, false
	}
	return b[0], true
}

func (r *reader) u16() (uint16, bool) {
	b := r.take(2)
	if b == nil {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

func parseDateTime(b []byte) *time.Time {
	year := int(binary.LittleEndian.Uint16(b[0:2]))
	if year == 0 || b[2] == 0 || b[3] == 0 {
		return nil
	}
	t := time.Date(year, time.Month(b[2]), int(b[3]), int(b[4]), int(b[5]), int(b[6]), 0, time.UTC)
	return &t
}

// DecodeWeightMeasurement parses the standard weight characteristic. Optional
// fields are read in flag order; a field the buffer is too short for ends
// parsing without discarding the weight.
func DecodeWeightMeasurement(data []byte) (*Measurement, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("weight measurement is %d bytes: %w", len(data), ErrTruncated)
	}

	flags := data[0]
	raw := binary.LittleEndian.Uint16(data[1:3])
	imperial := flags&wmImperial != 0

	m := &Measurement{Unit: UnitKg}
	kg := float64(raw) / 200
	if imperial {
		m.Unit = UnitLb
		kg = float64(raw) / 100 * lbToKg
	}
	m.setWeight(kg)

	r := newReader(data[3:])
	if flags&wmTimestamp != 0 {
		if b := r.take(dateTimeLen); b != nil {
			m.MeasuredAt = parseDateTime(b)
		}
	}
	if flags&wmUserID != 0 {
		if id, ok := r.u8(); ok {
			m.UserID = ptr(id)
		}
	}
	if flags&wmBMIHeight != 0 {
		bmi, ok1 := r.u16()
		height, ok2 := r.u16()
		if ok1 && ok2 {
			m.BMI = ptr(round2(float64(bmi) / 10))
			m.HeightCm = ptr(heightCm(height, imperial))
		}
	}
	return orNil(m), nil
}

// DecodeBodyComposition extracts weight and impedance from the standard body
// composition characteristic. Device-computed composition fields are skipped.
func DecodeBodyComposition(data []byte) (*Measurement, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("body composition is %d bytes: %w", len(data), ErrTruncated)
	}

	flags := binary.LittleEndian.Uint16(data[0:2])
	imperial := flags&bcImperial != 0

	m := &Measurement{}
	r := newReader(data[4:])
	if flags&bcTimestamp != 0 {
		if b := r.take(dateTimeLen); b != nil {
			m.MeasuredAt = parseDateTime(b)
		}
	}
	if flags&bcUserID != 0 {
		if id, ok := r.u8(); ok {
			m.UserID = ptr(id)
		}
	}
	for _, skip := range []uint16{bcBasal, bcMusclePct, bcMuscleMass, bcFatFreeMass, bcSoftLeanMass, bcBodyWaterMass} {
		if flags&skip != 0 {
			r.take(2)
		}
	}
	if flags&bcImpedance != 0 {
		if raw, ok := r.u16(); ok {
			ohm := float64(raw) / 10
			if ValidImpedance(ohm) {
				m.ImpedanceOhm = ptr(ohm)
			}
		}
	}
	if flags&bcWeight != 0 {
		if raw, ok := r.u16(); ok {
			m.Unit = UnitKg
			kg := float64(raw) / 200
			if imperial {
				m.Unit = UnitLb
				kg = float64(raw) / 100 * lbToKg
			}
			m.setWeight(kg)
		}
	}
	if flags&bcHeight != 0 {
		if raw, ok := r.u16(); ok {
			m.HeightCm = ptr(heightCm(raw, imperial))
		}
	}
	return orNil(m), nil
}

// heightCm converts 0.001 m or 0.1 inch units to centimetres.
func heightCm(raw uint16, imperial bool) float64 {
	if imperial {
		return round2(float64(raw) / 10 * inchToCm)
	}
	return round2(float64(raw) / 10)
}
