package measure

import (
	"encoding/binary"
	"fmt"
)

// Object ids in the self-describing stream.
const (
	ObjectWeight    uint16 = 0x1006
	ObjectImpedance uint16 = 0x1007
	ObjectHeartRate uint16 = 0x1008

	objectHeaderLen = 3

	streamImpedanceMax = 2000.0
)

// Object is one {id, len, data} record.
type Object struct {
	ID   uint16
	Data []byte
}

// SplitObjects walks the stream until fewer than three bytes remain. A
// record whose declared length overruns the buffer is ErrTruncated.
func SplitObjects(payload []byte) ([]Object, error) {
	var objs []Object
	for len(payload) >= objectHeaderLen {
		id := binary.LittleEndian.Uint16(payload[0:2])
		n := int(payload[2])
		if len(payload) < objectHeaderLen+n {
			return objs, fmt.Errorf("object %#04x declares %d bytes, %d left: %w", id, n, len(payload)-objectHeaderLen, ErrTruncated)
		}
		objs = append(objs, Object{ID: id, Data: payload[objectHeaderLen : objectHeaderLen+n]})
		payload = payload[objectHeaderLen+n:]
	}
	return objs, nil
}

// DecodeObjects reads weight, impedance and heart-rate records from the
// stream. Unknown ids are skipped by their declared length.
func DecodeObjects(payload []byte) (*Measurement, error) {
	objs, err := SplitObjects(payload)
	if err != nil && len(objs) == 0 {
		return nil, err
	}

	m := &Measurement{}
	for _, o := range objs {
		switch o.ID {
		case ObjectWeight:
			if len(o.Data) >= 2 && m.setWeight(float64(binary.LittleEndian.Uint16(o.Data))/100) {
				m.Unit = UnitKg
			}
		case ObjectImpedance:
			if len(o.Data) >= 2 {
				ohm := float64(binary.LittleEndian.Uint16(o.Data))
				if ValidImpedance(ohm) && ohm <= streamImpedanceMax {
					m.ImpedanceOhm = ptr(ohm)
				}
			}
		case ObjectHeartRate:
			// The stream carries beats per minute directly, no offset.
			if len(o.Data) >= 1 && ValidHeartRateRaw(o.Data[0]) {
				m.HeartRateBpm = ptr(o.Data[0])
			}
		}
	}
	return orNil(m), nil
}

// AppendObject encodes one record onto dst.
func AppendObject(dst []byte, id uint16, data []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, id)
	dst = append(dst, byte(len(data)))
	return append(dst, data...)
}
