package beacon

import (
	"encoding/binary"
	"fmt"
)

// DecryptionContext is the key material a caller holds for one device.
// Address is optional; frames that embed their address ignore it.
type DecryptionContext struct {
	Key     *[KeySize]byte
	Address *Address
}

// Decrypt returns the plaintext payload of a beacon frame. Unencrypted frames
// return a sub-slice of frame without touching the key material. Encrypted
// frames fail closed: missing key or address is ErrMissingKeyMaterial, never a
// plaintext fallback.
func Decrypt(frame []byte, ctx DecryptionContext) ([]byte, error) {
	fc, err := ParseFrameControl(frame)
	if err != nil {
		return nil, err
	}
	start := fc.PayloadStart()

	if !fc.Encrypted() {
		if len(frame) < start {
			return nil, fmt.Errorf("plain frame is %d bytes, payload starts at %d: %w", len(frame), start, ErrTruncated)
		}
		return frame[start:], nil
	}

	if len(frame) < start+minSealed {
		return nil, fmt.Errorf("encrypted frame is %d bytes, need %d: %w", len(frame), start+minSealed, ErrTruncated)
	}

	var addr Address
	switch {
	case fc.HasAddress():
		addr = addressFromWire(frame[headerLen : headerLen+addressLen])
	case ctx.Address != nil:
		addr = *ctx.Address
	default:
		return nil, fmt.Errorf("no device address for nonce: %w", ErrMissingKeyMaterial)
	}
	if ctx.Key == nil {
		return nil, fmt.Errorf("no bind key: %w", ErrMissingKeyMaterial)
	}

	n := len(frame)
	sealed := make([]byte, 0, n-trailerCounter-start)
	sealed = append(sealed, frame[start:n-trailerCounter-TagSize]...)
	sealed = append(sealed, frame[n-TagSize:]...)

	return Open(*ctx.Key, nonce(addr, frame), sealed, beaconAD)
}

// nonce is reverse(address) || product id and frame counter || trailing counter.
func nonce(addr Address, frame []byte) []byte {
	n := len(frame)
	out := make([]byte, 0, NonceSize)
	out = append(out, addr.wire()...)
	out = append(out, frame[2:headerLen]...)
	out = append(out, frame[n-trailerCounter-TagSize:n-TagSize]...)
	return out
}

// Frame describes a beacon frame to be serialized, the inverse of Decrypt.
type Frame struct {
	ProductID    uint16
	Sequence     byte
	Address      Address
	EmbedAddress bool
	Counter      [trailerCounter]byte
	Payload      []byte
}

func (f Frame) header(encrypted bool) []byte {
	fc := ctrlObject | FrameControl(5)<<12
	if encrypted {
		fc |= ctrlEncrypted
	}
	if f.EmbedAddress {
		fc |= ctrlMACInclude
	}
	out := make([]byte, headerLen, headerLen+addressLen+len(f.Payload)+minSealed)
	binary.LittleEndian.PutUint16(out[0:2], uint16(fc))
	binary.LittleEndian.PutUint16(out[2:4], f.ProductID)
	out[4] = f.Sequence
	if f.EmbedAddress {
		out = append(out, f.Address.wire()...)
	}
	return out
}

// Plain serializes the frame without encryption.
func (f Frame) Plain() []byte {
	return append(f.header(false), f.Payload...)
}

// Encrypt seals the payload with key. The nonce uses f.Address whether or not
// it is embedded.
func (f Frame) Encrypt(key [KeySize]byte) ([]byte, error) {
	out := f.header(true)
	nonceFrame := append(append(append([]byte{}, out...), f.Counter[:]...), make([]byte, TagSize)...)

	sealed, err := Seal(key, nonce(f.Address, nonceFrame), f.Payload, beaconAD)
	if err != nil {
		return nil, err
	}
	ct, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	out = append(out, ct...)
	out = append(out, f.Counter[:]...)
	return append(out, tag...), nil
}
