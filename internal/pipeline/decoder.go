// Package pipeline turns raw radio buffers into measurements: classify,
// decrypt when needed, then run the decode strategies for the frame kind in
// a fixed order.
package pipeline

import (
	"time"

	"scale-scanner.klederson.com/internal/beacon"
	"scale-scanner.klederson.com/internal/measure"
)

// Frame is one buffer delivered by the radio, tagged with its origin.
// DeviceID is opaque: a hardware address or a platform handle.
type Frame struct {
	DeviceID   string
	DeviceName string
	Origin     beacon.Origin
	Data       []byte
	RSSI       int16
	At         time.Time
}

// KeySource supplies decryption material per device.
type KeySource interface {
	Lookup(deviceID string) (beacon.DecryptionContext, bool)
}

type strategy struct {
	name    string
	applies func([]byte) bool
	decode  func([]byte) (*measure.Measurement, error)
}

func always([]byte) bool { return true }

func isCompact(b []byte) bool  { return len(b) == measure.CompactLen }
func notCompact(b []byte) bool { return len(b) != measure.CompactLen }

// strategies lists, per frame kind, the decoders tried in order. The first
// applicable strategy that yields a measurement wins.
var strategies = map[beacon.FrameKind][]strategy{
	beacon.KindLegacy: {
		{"legacy", always, measure.DecodeLegacy},
	},
	beacon.KindMiBeacon: {
		{"compact", isCompact, measure.DecodeCompact},
		{"objects", notCompact, measure.DecodeObjects},
	},
	beacon.KindVendorManufacturer: {
		{"manufacturer", always, measure.DecodeManufacturerHeuristic},
	},
	beacon.KindWeightCharacteristic: {
		{"weight-measurement", always, measure.DecodeWeightMeasurement},
	},
	beacon.KindBodyCompositionCharacteristic: {
		{"body-composition", always, measure.DecodeBodyComposition},
	},
	beacon.KindVendorNotification: {
		{"vendor-notification", always, measure.DecodeVendorNotification},
	},
	beacon.KindGenericCharacteristic: {
		{"weight-measurement", always, measure.DecodeWeightMeasurement},
		{"vendor-notification", always, measure.DecodeVendorNotification},
	},
}

// Decoder is stateless; one value may serve any number of goroutines.
type Decoder struct {
	Keys KeySource
}

func NewDecoder(keys KeySource) *Decoder {
	return &Decoder{Keys: keys}
}

// keysFor looks the device up by id, then by the address the frame embeds.
// Platforms that hide hardware addresses behind opaque ids need the second.
func (d *Decoder) keysFor(deviceID string, frame []byte) beacon.DecryptionContext {
	if d.Keys == nil {
		return beacon.DecryptionContext{}
	}
	if ctx, ok := d.Keys.Lookup(deviceID); ok {
		return ctx
	}
	if addr, ok := beacon.EmbeddedAddress(frame); ok {
		ctx, _ := d.Keys.Lookup(addr.String())
		return ctx
	}
	return beacon.DecryptionContext{}
}

// Decode runs the pipeline over one frame. It returns a nil measurement and a
// nil error when the frame carries nothing recognizable.
func (d *Decoder) Decode(f Frame) (beacon.FrameKind, *measure.Measurement, error) {
	kind, data, err := beacon.Classify(f.Origin, f.Data)
	if err != nil {
		return kind, nil, err
	}

	if kind == beacon.KindMiBeacon {
		if data, err = beacon.Decrypt(data, d.keysFor(f.DeviceID, data)); err != nil {
			return kind, nil, err
		}
	}

	var firstErr error
	for _, s := range strategies[kind] {
		if !s.applies(data) {
			continue
		}
		m, err := s.decode(data)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if m != nil {
			m.CapturedAt = f.At
			return kind, m, nil
		}
	}
	return kind, nil, firstErr
}
