package measure

import (
	"encoding/binary"
	"fmt"
)

// CompactLen is the size of the fixed-layout decrypted body-composition object.
const CompactLen = 12

// DecodeCompact unpacks the 12-byte object: byte 3 profile, bytes 4-7 a
// little-endian bit field (weight 0-10, heart rate 11-17, impedance 18-31),
// bytes 8-11 an opaque device clock. Impedance goes to the low-phase field
// when the same object carries no weight.
func DecodeCompact(payload []byte) (*Measurement, error) {
	if len(payload) != CompactLen {
		return nil, fmt.Errorf("compact object is %d bytes, want %d: %w", len(payload), CompactLen, ErrTruncated)
	}

	bits := binary.LittleEndian.Uint32(payload[4:8])
	weightRaw := bits & 0x7ff
	hrRaw := uint8((bits >> 11) & 0x7f)
	impRaw := bits >> 18

	m := &Measurement{
		ProfileID:  ptr(payload[3]),
		DeviceTime: ptr(binary.LittleEndian.Uint32(payload[8:12])),
	}

	hasWeight := weightRaw > 0 && m.setWeight(float64(weightRaw)/10)
	if hasWeight {
		m.Unit = UnitKg
	}
	if ValidHeartRateRaw(hrRaw) {
		m.HeartRateBpm = ptr(hrRaw + heartRateOffset)
	}
	if impRaw > 0 {
		ohm := float64(impRaw) / 10
		if ValidImpedance(ohm) {
			if weightRaw > 0 {
				m.ImpedanceOhm = ptr(ohm)
			} else {
				m.ImpedanceLowOhm = ptr(ohm)
			}
		}
	}
	return orNil(m), nil
}

// PackCompact is the inverse of DecodeCompact for raw field values.
func PackCompact(profile uint8, weightRaw, hrRaw, impedanceRaw, deviceTime uint32) []byte {
	out := make([]byte, CompactLen)
	out[3] = profile
	bits := weightRaw&0x7ff | (hrRaw&0x7f)<<11 | (impedanceRaw&0x3fff)<<18
	binary.LittleEndian.PutUint32(out[4:8], bits)
	binary.LittleEndian.PutUint32(out[8:12], deviceTime)
	return out
}
