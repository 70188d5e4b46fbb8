package measure

import (
	"encoding/binary"
	"fmt"
)

// Vendor notification status flags.
const (
	vnKg          = 0x02
	vnLb          = 0x04
	vnJin         = 0x10
	vnStabilized  = 0x20
	vnLoadRemoved = 0x80

	vendorNotificationLen = 10
)

// Legacy service-data control byte.
const (
	lgLb         = 0x01
	lgJin        = 0x02
	lgStabilized = 0x10
	lgRemoved    = 0x20
	lgImpedance  = 0x80

	legacyMinLen         = 10
	legacyExtendedMinLen = 13
	legacyImpedanceEnd   = 15
	legacyImpedanceMax   = 2000.0

	manufacturerMinLen = 6
)

// DecodeVendorNotification parses the 10-byte status notification sent on
// the vendor history characteristic. It carries its own settled flag.
func DecodeVendorNotification(data []byte) (*Measurement, error) {
	if len(data) < vendorNotificationLen {
		return nil, fmt.Errorf("vendor notification is %d bytes: %w", len(data), ErrTruncated)
	}

	flags := data[0]
	raw := float64(binary.LittleEndian.Uint16(data[1:3]))

	m := &Measurement{
		Stabilized:      flags&vnStabilized != 0,
		LoadRemoved:     flags&vnLoadRemoved != 0,
		NativeStability: true,
	}
	var kg float64
	switch {
	case flags&vnJin != 0:
		m.Unit, kg = UnitJin, raw/100*jinToKg
	case flags&vnLb != 0:
		m.Unit, kg = UnitLb, raw/100*lbToKg
	case flags&vnKg != 0:
		m.Unit, kg = UnitKg, raw/200
	default:
		m.Unit, kg = UnitKg, raw/100
	}
	m.setWeight(kg)
	return orNil(m), nil
}

// DecodeLegacy parses unencrypted service data from older scales. Weight is
// read at bytes 1-2 in 0.01 units; if that is out of range the extended
// layout at bytes 11-12 (0.005 kg) is tried.
func DecodeLegacy(data []byte) (*Measurement, error) {
	if len(data) < legacyMinLen {
		return nil, fmt.Errorf("legacy frame is %d bytes: %w", len(data), ErrTruncated)
	}

	ctrl := data[0]
	lb, jin := ctrl&lgLb != 0, ctrl&lgJin != 0

	m := &Measurement{
		Stabilized:      ctrl&lgStabilized != 0,
		LoadRemoved:     ctrl&lgRemoved != 0,
		NativeStability: true,
		Unit:            UnitKg,
	}
	switch {
	case lb:
		m.Unit = UnitLb
	case jin:
		m.Unit = UnitJin
	}

	hundredths := func(raw uint16) float64 {
		switch {
		case lb:
			return float64(raw) / 100 * lbToKg
		case jin:
			return float64(raw) / 100 * jinToKg
		default:
			return float64(raw) / 100
		}
	}

	if !m.setWeight(hundredths(binary.LittleEndian.Uint16(data[1:3]))) && len(data) >= legacyExtendedMinLen {
		raw := binary.LittleEndian.Uint16(data[11:13])
		kg := float64(raw) / 200
		if lb || jin {
			kg = hundredths(raw)
		}
		m.setWeight(kg)
	}
	if m.WeightKg == nil {
		return nil, nil
	}

	if ctrl&lgImpedance != 0 && len(data) >= legacyImpedanceEnd {
		ohm := float64(binary.LittleEndian.Uint16(data[13:15]))
		if ValidImpedance(ohm) && ohm <= legacyImpedanceMax {
			m.ImpedanceOhm = ptr(ohm)
		}
	}
	return m, nil
}

// DecodeManufacturerHeuristic scans vendor manufacturer data for the first
// little-endian pair that reads as a plausible weight, at 0.01 kg and then
// 0.005 kg resolution. Matches are reported as settled.
func DecodeManufacturerHeuristic(data []byte) (*Measurement, error) {
	if len(data) < manufacturerMinLen {
		return nil, nil
	}
	for i := 0; i+1 < len(data); i++ {
		raw := float64(binary.LittleEndian.Uint16(data[i : i+2]))
		for _, kg := range []float64{raw / 100, raw / 200} {
			m := &Measurement{Unit: UnitKg, Stabilized: true, NativeStability: true}
			if m.setWeight(kg) {
				return m, nil
			}
		}
	}
	return nil, nil
}
