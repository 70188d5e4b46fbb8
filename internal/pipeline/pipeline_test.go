package pipeline

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scale-scanner.klederson.com/internal/beacon"
	"scale-scanner.klederson.com/internal/keys"
	"scale-scanner.klederson.com/internal/measure"
)

const (
	deviceMAC = "C8:47:80:12:34:56"
	bindKey   = "814d3f0f9c0b2a516e1d55c7029a37e4"
)

var discard = slog.New(slog.DiscardHandler)

func weightPayload(raw uint16) []byte {
	return measure.AppendObject(nil, measure.ObjectWeight, binary.LittleEndian.AppendUint16(nil, raw))
}

func encryptedFrame(t *testing.T, payload []byte, counter byte) []byte {
	t.Helper()
	addr, err := beacon.ParseAddress(deviceMAC)
	require.NoError(t, err)
	key, err := keys.Parse(bindKey)
	require.NoError(t, err)
	frame, err := beacon.Frame{ProductID: 0x3b3c, Sequence: counter, Address: addr, Counter: [3]byte{counter, 0, 0}, Payload: payload}.Encrypt(key)
	require.NoError(t, err)
	return frame
}

func TestDecodePlainBeaconScenario(t *testing.T) {
	data := append([]byte{0x00, 0x00, 0x3c, 0x3b, 0x01}, weightPayload(7500)...)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	kind, m, err := NewDecoder(nil).Decode(Frame{DeviceID: deviceMAC, Origin: beacon.ServiceData(beacon.ServiceMiBeacon), Data: data, At: at})
	require.NoError(t, err)
	assert.Equal(t, beacon.KindMiBeacon, kind)
	require.NotNil(t, m)
	assert.Equal(t, 75.0, *m.WeightKg)
	assert.Equal(t, at, m.CapturedAt)
}

func TestDecodeGATTScenario(t *testing.T) {
	kind, m, err := NewDecoder(nil).Decode(Frame{Origin: beacon.Characteristic("2a9d"), Data: []byte{0x00, 0x98, 0x3a}})
	require.NoError(t, err)
	assert.Equal(t, beacon.KindWeightCharacteristic, kind)
	require.NotNil(t, m)
	assert.Equal(t, 75.0, *m.WeightKg)
}

func TestDecodeEncryptedCompact(t *testing.T) {
	ring := keys.NewKeyring()
	require.NoError(t, ring.Add(deviceMAC, bindKey))

	f := Frame{
		DeviceID: deviceMAC,
		Origin:   beacon.ServiceData(beacon.ServiceMiBeacon),
		Data:     encryptedFrame(t, measure.PackCompact(3, 812, 22, 4875, 1000), 1),
	}
	dec := NewDecoder(ring)
	_, m, err := dec.Decode(f)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 81.2, *m.WeightKg)
	assert.Equal(t, uint8(72), *m.HeartRateBpm)
	assert.Equal(t, 487.5, *m.ImpedanceOhm)
	assert.Equal(t, uint8(3), *m.ProfileID)

	_, again, err := dec.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, m, again)

	_, _, err = NewDecoder(keys.NewKeyring()).Decode(f)
	assert.ErrorIs(t, err, beacon.ErrMissingKeyMaterial)
}

func TestDecodeKeyByEmbeddedAddress(t *testing.T) {
	addr, err := beacon.ParseAddress(deviceMAC)
	require.NoError(t, err)
	key, err := keys.Parse(bindKey)
	require.NoError(t, err)
	data, err := beacon.Frame{ProductID: 0x3b3c, Sequence: 2, Address: addr, EmbedAddress: true, Counter: [3]byte{2, 0, 0}, Payload: weightPayload(7500)}.Encrypt(key)
	require.NoError(t, err)

	ring := keys.NewKeyring()
	require.NoError(t, ring.Add(deviceMAC, bindKey))

	// Platform handle instead of a hardware address.
	f := Frame{DeviceID: "6B1F2A4E-90C3-4D55-8E21-0A7F3C9D1B22", Origin: beacon.ServiceData(beacon.ServiceMiBeacon), Data: data}
	_, m, err := NewDecoder(ring).Decode(f)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 75.0, *m.WeightKg)
}

func TestDecodeUnrecognized(t *testing.T) {
	_, m, err := NewDecoder(nil).Decode(Frame{Origin: beacon.Manufacturer(0x004c), Data: []byte{1, 2, 3}})
	assert.ErrorIs(t, err, beacon.ErrUnrecognized)
	assert.Nil(t, m)
}

func TestProcessorReportsOnce(t *testing.T) {
	p := NewProcessor(NewDecoder(keys.NewKeyring()), DefaultConfig(), discard)
	f := Frame{DeviceID: deviceMAC, Origin: beacon.ServiceData(beacon.ServiceMiBeacon), Data: encryptedFrame(t, weightPayload(7500), 1)}

	u, emit := p.Process(f)
	require.True(t, emit)
	assert.ErrorIs(t, u.Err, beacon.ErrMissingKeyMaterial)

	_, emit = p.Process(f)
	assert.False(t, emit)
}

func TestProcessorAuthFailure(t *testing.T) {
	ring := keys.NewKeyring()
	require.NoError(t, ring.Add(deviceMAC, "00000000000000000000000000000000"))
	p := NewProcessor(NewDecoder(ring), DefaultConfig(), discard)

	u, emit := p.Process(Frame{DeviceID: deviceMAC, Origin: beacon.ServiceData(beacon.ServiceMiBeacon), Data: encryptedFrame(t, weightPayload(7500), 1)})
	require.True(t, emit)
	assert.ErrorIs(t, u.Err, beacon.ErrAuthenticationFailed)
}

func TestProcessorReportDropped(t *testing.T) {
	truncated := Frame{DeviceID: deviceMAC, Origin: beacon.ServiceData(beacon.ServiceMiBeacon), Data: []byte{0x10, 0x00, 0x01, 0x02, 0x03}}
	noise := Frame{DeviceID: deviceMAC, Origin: beacon.Manufacturer(0x004c), Data: []byte{1, 2, 3}}

	quiet := NewProcessor(NewDecoder(nil), DefaultConfig(), discard)
	_, emit := quiet.Process(truncated)
	assert.False(t, emit)

	cfg := DefaultConfig()
	cfg.ReportDropped = true
	verbose := NewProcessor(NewDecoder(nil), cfg, discard)
	u, emit := verbose.Process(truncated)
	require.True(t, emit)
	assert.ErrorIs(t, u.Err, beacon.ErrTruncated)
	assert.Nil(t, u.Measurement)

	_, emit = verbose.Process(noise)
	assert.False(t, emit)
}

func TestProcessorStabilityAndDedup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DedupTolerance = measure.NotificationTolerance
	p := NewProcessor(NewDecoder(nil), cfg, discard)

	sample := func(raw uint16) Frame {
		return Frame{DeviceID: "scale", Origin: beacon.Characteristic(beacon.CharWeightMeasurement), Data: binary.LittleEndian.AppendUint16([]byte{0x00}, raw)}
	}

	u, emit := p.Process(sample(15000))
	require.True(t, emit)
	assert.False(t, u.Measurement.Stabilized)

	_, emit = p.Process(sample(15002))
	assert.False(t, emit, "within tolerance and still settling")

	u, emit = p.Process(sample(15004))
	require.True(t, emit, "stability flipped")
	assert.True(t, u.Measurement.Stabilized)

	p.Reset()
	u, emit = p.Process(sample(15004))
	require.True(t, emit)
	assert.False(t, u.Measurement.Stabilized)
}

func TestDispatcherPerDeviceOrder(t *testing.T) {
	var mu sync.Mutex
	got := make(map[string][]float64)

	d := NewDispatcher(NewDecoder(nil), Config{StableThreshold: 3, StableTolerance: 0.05, DedupTolerance: 0}, func(u Update) {
		mu.Lock()
		defer mu.Unlock()
		got[u.DeviceID] = append(got[u.DeviceID], *u.Measurement.WeightKg)
	}, discard)

	const devices, samples = 4, 20
	for i := 0; i < samples; i++ {
		for dev := 0; dev < devices; dev++ {
			raw := uint16(14000 + i*10 + dev)
			ok := d.Dispatch(Frame{
				DeviceID: fmt.Sprintf("dev-%d", dev),
				Origin:   beacon.Characteristic(beacon.CharWeightMeasurement),
				Data:     binary.LittleEndian.AppendUint16([]byte{0x00}, raw),
			})
			require.True(t, ok)
		}
	}
	d.Close()

	assert.Equal(t, devices, d.Devices())
	assert.False(t, d.Dispatch(Frame{DeviceID: "late"}))
	for dev := 0; dev < devices; dev++ {
		series := got[fmt.Sprintf("dev-%d", dev)]
		require.Len(t, series, samples)
		assert.IsIncreasing(t, series)
	}
}
