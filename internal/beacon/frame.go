package beacon

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// FrameControl is the little-endian control word leading every beacon frame.
type FrameControl uint16

const (
	ctrlEncrypted  FrameControl = 0x0008
	ctrlMACInclude FrameControl = 0x0010
	ctrlObject     FrameControl = 0x0040

	headerLen      = 5 // control(2) + product id(2) + frame counter(1)
	addressLen     = 6
	trailerCounter = 3
	// minSealed is the smallest encrypted tail: one ciphertext byte, the
	// trailing counter and the tag.
	minSealed = 1 + trailerCounter + TagSize
)

// ParseFrameControl reads the control word from the first two bytes.
func ParseFrameControl(frame []byte) (FrameControl, error) {
	if len(frame) < 2 {
		return 0, fmt.Errorf("frame control needs 2 bytes, got %d: %w", len(frame), ErrTruncated)
	}
	return FrameControl(binary.LittleEndian.Uint16(frame)), nil
}

func (fc FrameControl) Encrypted() bool  { return fc&ctrlEncrypted != 0 }
func (fc FrameControl) HasAddress() bool { return fc&ctrlMACInclude != 0 }
func (fc FrameControl) Version() int     { return int(fc >> 12) }

// PayloadStart is the offset of the first payload byte.
func (fc FrameControl) PayloadStart() int {
	if fc.HasAddress() {
		return headerLen + addressLen
	}
	return headerLen
}

// Address is a 6-byte hardware address in display order (AA:BB:CC:DD:EE:FF).
// Beacon frames carry it reversed.
type Address [addressLen]byte

// ParseAddress accepts the colon or dash separated form. Platform handles
// that are not hardware addresses fail to parse.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimSpace(s)
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != addressLen {
		return a, fmt.Errorf("address %q: want 6 octets, got %d", s, len(parts))
	}
	for i, p := range parts {
		if len(p) != 2 {
			return a, fmt.Errorf("address %q: bad octet %q", s, p)
		}
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return a, fmt.Errorf("address %q: %w", s, err)
		}
		a[i] = byte(v)
	}
	return a, nil
}

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// wire returns the address in the byte order used inside frames and nonces.
func (a Address) wire() []byte {
	out := make([]byte, addressLen)
	for i := range a {
		out[i] = a[addressLen-1-i]
	}
	return out
}

func addressFromWire(b []byte) Address {
	var a Address
	for i := range a {
		a[i] = b[addressLen-1-i]
	}
	return a
}

// EmbeddedAddress returns the address carried in the frame, if any.
func EmbeddedAddress(frame []byte) (Address, bool) {
	fc, err := ParseFrameControl(frame)
	if err != nil || !fc.HasAddress() || len(frame) < headerLen+addressLen {
		return Address{}, false
	}
	return addressFromWire(frame[headerLen : headerLen+addressLen]), true
}
