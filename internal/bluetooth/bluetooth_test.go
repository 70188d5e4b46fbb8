package bluetooth

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tinygo "tinygo.org/x/bluetooth"

	"scale-scanner.klederson.com/internal/beacon"
	"scale-scanner.klederson.com/internal/keys"
	"scale-scanner.klederson.com/internal/measure"
	"scale-scanner.klederson.com/internal/pipeline"
	"scale-scanner.klederson.com/internal/session"
)

func TestParseMatchPolicy(t *testing.T) {
	p, err := ParseMatchPolicy("")
	require.NoError(t, err)
	assert.Equal(t, MatchStrict, p)

	p, err = ParseMatchPolicy("Lenient")
	require.NoError(t, err)
	assert.Equal(t, MatchLenient, p)

	_, err = ParseMatchPolicy("fuzzy")
	assert.Error(t, err)
}

func TestMatcher(t *testing.T) {
	tests := []struct {
		name   string
		m      Matcher
		id     string
		dev    string
		expect bool
	}{
		{"no target", Matcher{}, "anything", "", true},
		{"strict exact", Matcher{MatchStrict, "AA:BB:CC:DD:EE:FF"}, "aa-bb-cc-dd-ee-ff", "", true},
		{"strict other", Matcher{MatchStrict, "AA:BB:CC:DD:EE:FF"}, "AA:BB:CC:DD:EE:00", "MIBFS", false},
		{"strict ignores name", Matcher{MatchStrict, "AA:BB:CC:DD:EE:FF"}, "3f2a-uuid", "MIBFS", false},
		{"lenient substring", Matcher{MatchLenient, "3F2A"}, "3f2a9c-handle", "", true},
		{"lenient scale name on opaque id", Matcher{MatchLenient, "AA:BB:CC:DD:EE:FF"}, "3f2a9c-handle", "MIBFS", true},
		{"lenient non scale name", Matcher{MatchLenient, "AA:BB:CC:DD:EE:FF"}, "3f2a9c-handle", "iPhone", false},
		{"lenient other mac", Matcher{MatchLenient, "AA:BB:CC:DD:EE:FF"}, "11:22:33:44:55:66", "MIBFS", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.m.Match(tt.id, tt.dev))
		})
	}
}

func TestLooksLikeScale(t *testing.T) {
	for _, name := range []string{"MIBFS", "mibcs", "XMTZC05HM", "MI_SCALE", "MI SCALE2", "Mi Scale", "Body Composition Scale", "Xiaomi Smart Scale", "Scale S400"} {
		assert.True(t, LooksLikeScale(name), name)
	}
	for _, name := range []string{"", "iPhone", "Galaxy Buds", "Kitchen Timer"} {
		assert.False(t, LooksLikeScale(name), name)
	}
}

func TestAdvertisementFrames(t *testing.T) {
	at := time.Unix(1700000000, 0)
	adv := Advertisement{
		Address:      "AA:BB:CC:DD:EE:FF",
		Name:         "MIBFS",
		RSSI:         -60,
		ServiceData:  []ServiceData{{UUID: beacon.ServiceMiBeacon, Data: []byte{1}}},
		Manufacturer: []ManufacturerData{{CompanyID: beacon.VendorCompanyID, Data: []byte{2}}},
		At:           at,
	}
	frames := adv.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, beacon.ServiceData(beacon.ServiceMiBeacon), frames[0].Origin)
	assert.Equal(t, beacon.Manufacturer(beacon.VendorCompanyID), frames[1].Origin)
	for _, f := range frames {
		assert.Equal(t, "AA:BB:CC:DD:EE:FF", f.DeviceID)
		assert.Equal(t, "MIBFS", f.DeviceName)
		assert.Equal(t, int16(-60), f.RSSI)
		assert.Equal(t, at, f.At)
	}
	assert.True(t, adv.CarriesScaleData())
	assert.False(t, Advertisement{Manufacturer: []ManufacturerData{{CompanyID: 0x004C}}}.CarriesScaleData())
}

func TestWeightRing(t *testing.T) {
	r := NewWeightRing(3)
	assert.Nil(t, r.Values())
	assert.Equal(t, 0.0, r.Last())
	for _, v := range []float64{1, 2, 3, 4} {
		r.Push(v)
	}
	assert.Equal(t, []float64{2, 3, 4}, r.Values())
	assert.Equal(t, 4.0, r.Last())
	assert.Equal(t, 3, r.Len())
}

func TestDeviceStore(t *testing.T) {
	s := NewDeviceStore()
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }

	assert.True(t, s.Upsert("phone", "iPhone", -40, false))
	assert.True(t, s.Upsert("scale", "", -80, true))
	assert.False(t, s.Upsert("scale", "MIBFS", -70, false))

	w := 72.4
	s.Record("scale", beacon.KindMiBeacon, &measure.Measurement{WeightKg: &w})
	s.Fail("phone", errors.New("boom"))

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	scale := snap[0]
	assert.Equal(t, "scale", scale.ID)
	assert.Equal(t, "MIBFS", scale.Name)
	assert.InDelta(t, -77.0, scale.RSSI, 1e-9)
	assert.Equal(t, []float64{72.4}, scale.History)
	assert.Equal(t, 1, scale.Readings)
	got, ok := scale.Weight()
	assert.True(t, ok)
	assert.Equal(t, 72.4, got)
	assert.Equal(t, "boom", snap[1].Problem)

	scales, measuring := s.CountScales()
	assert.Equal(t, 1, scales)
	assert.Equal(t, 1, measuring)

	now = now.Add(time.Minute)
	s.Upsert("phone", "", -40, false)
	assert.Equal(t, 1, s.Evict(30*time.Second))
	assert.Equal(t, 1, s.Count())
}

func TestSignalBars(t *testing.T) {
	assert.Equal(t, 4, (&Device{RSSI: -50}).SignalBars())
	assert.Equal(t, 2, (&Device{RSSI: -75}).SignalBars())
	assert.Equal(t, 0, (&Device{RSSI: -99}).SignalBars())
	assert.Equal(t, "[unnamed]", (&Device{}).DisplayName())
}

func TestDemoScaleDecodes(t *testing.T) {
	demo := NewDemoScale(7)
	ring := keys.NewKeyring()
	for id, k := range demo.Keys() {
		require.NoError(t, ring.Add(id, k))
	}
	require.Len(t, demo.Keys(), 1)
	dec := pipeline.NewDecoder(ring)

	kinds := map[beacon.FrameKind]int{}
	for i := 0; i < 2*demoCycle; i++ {
		for _, adv := range demo.Tick() {
			for _, f := range adv.Frames() {
				kind, m, err := dec.Decode(f)
				if kind == beacon.KindUnrecognized {
					continue
				}
				require.NoError(t, err, "%s %s", adv.Name, kind)
				require.NotNil(t, m, "%s %s", adv.Name, kind)
				require.NotNil(t, m.WeightKg)
				assert.True(t, measure.ValidWeight(*m.WeightKg))
				kinds[kind]++
			}
		}
	}
	assert.Positive(t, kinds[beacon.KindLegacy])
	assert.Positive(t, kinds[beacon.KindMiBeacon])
}

func TestDemoScaleWithoutKeyReportsMissingKey(t *testing.T) {
	demo := NewDemoScale(3)
	dec := pipeline.NewDecoder(keys.NewKeyring())

	var missing int
	for i := 0; i < demoCycle; i++ {
		for _, adv := range demo.Tick() {
			if adv.Name != "XMTZC05HM" {
				continue
			}
			for _, f := range adv.Frames() {
				_, _, err := dec.Decode(f)
				if errors.Is(err, beacon.ErrMissingKeyMaterial) {
					missing++
				}
			}
		}
	}
	assert.Equal(t, demoCycle, missing)
}

func TestDemoDialStreamsAndDrops(t *testing.T) {
	demo := NewDemoScale(5)
	demo.every = time.Millisecond

	conn, err := demo.Dial(t.Context(), demo.Address())
	require.NoError(t, err)
	chars, err := conn.Characteristics(t.Context())
	require.NoError(t, err)
	require.Contains(t, chars, beacon.CharWeightMeasurement)

	out := make(chan session.Notification, 64)
	assert.Error(t, conn.Subscribe(chars[1], out))
	require.NoError(t, conn.Subscribe(beacon.CharWeightMeasurement, out))

	select {
	case <-conn.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("demo link never dropped")
	}
	require.NoError(t, conn.Close())
	close(out)

	var n int
	for note := range out {
		m, err := measure.DecodeWeightMeasurement(note.Data)
		require.NoError(t, err)
		require.NotNil(t, m)
		n++
	}
	assert.Equal(t, demoLinkCycles*(demoRamp+demoHold), n)
}

type propChar uint32

func (p propChar) Properties() uint32 { return uint32(p) }

func TestCanNotify(t *testing.T) {
	assert.True(t, canNotify(propChar(0x10)), "notify")
	assert.True(t, canNotify(propChar(0x22)), "read + indicate")
	assert.False(t, canNotify(propChar(0x02)), "read only")
	assert.True(t, canNotify(struct{}{}), "no property reporting")
}

func TestAdapterForDefault(t *testing.T) {
	discard := slog.New(slog.DiscardHandler)
	assert.Same(t, tinygo.DefaultAdapter, adapterFor("", discard))
	assert.Same(t, tinygo.DefaultAdapter, adapterFor(DefaultAdapterID, discard))
}
