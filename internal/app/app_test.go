package app

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scale-scanner.klederson.com/internal/beacon"
	"scale-scanner.klederson.com/internal/bluetooth"
	"scale-scanner.klederson.com/internal/events"
	"scale-scanner.klederson.com/internal/keys"
	"scale-scanner.klederson.com/internal/measure"
	"scale-scanner.klederson.com/internal/pipeline"
	"scale-scanner.klederson.com/internal/session"
)

var discard = slog.New(slog.DiscardHandler)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) ofType(t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) statuses() []string {
	var out []string
	for _, e := range r.ofType(events.TypeStatus) {
		out = append(out, e.Status)
	}
	return out
}

type staticSource []bluetooth.Advertisement

func (s staticSource) Scan(ctx context.Context, handle func(bluetooth.Advertisement)) error {
	for _, adv := range s {
		handle(adv)
	}
	return nil
}

type failingSource struct{ err error }

func (s failingSource) Scan(context.Context, func(bluetooth.Advertisement)) error { return s.err }

func legacy(weight float64, settled bool) []byte {
	data := make([]byte, 13)
	if settled {
		data[0] = 0x10
	}
	binary.LittleEndian.PutUint16(data[1:3], uint16(weight*100))
	return data
}

func TestScanReportsScalesAndMeasurements(t *testing.T) {
	const scaleID, lockedID, phoneID = "AA:BB:CC:DD:EE:01", "AA:BB:CC:DD:EE:02", "AA:BB:CC:DD:EE:03"

	addr, err := beacon.ParseAddress(lockedID)
	require.NoError(t, err)
	locked, err := beacon.Frame{ProductID: 1, Sequence: 1, Address: addr, EmbedAddress: true,
		Payload: measure.PackCompact(1, 725, 0, 0, 0)}.Encrypt([16]byte{1})
	require.NoError(t, err)

	adv := func(id, name string, sd ...bluetooth.ServiceData) bluetooth.Advertisement {
		return bluetooth.Advertisement{Address: id, Name: name, RSSI: -60, ServiceData: sd, At: time.Now()}
	}
	src := staticSource{
		adv(phoneID, "iPhone"),
		adv(scaleID, "MIBCS", bluetooth.ServiceData{UUID: beacon.ServiceBodyComposition, Data: legacy(72.5, false)}),
		adv(scaleID, "MIBCS", bluetooth.ServiceData{UUID: beacon.ServiceBodyComposition, Data: legacy(72.5, false)}),
		adv(scaleID, "MIBCS", bluetooth.ServiceData{UUID: beacon.ServiceBodyComposition, Data: legacy(72.5, true)}),
		adv(lockedID, "XMTZC05HM", bluetooth.ServiceData{UUID: beacon.ServiceMiBeacon, Data: locked}),
		adv(lockedID, "XMTZC05HM", bluetooth.ServiceData{UUID: beacon.ServiceMiBeacon, Data: locked}),
	}

	rec := &recorder{}
	store := bluetooth.NewDeviceStore()
	opts := ScanOptions{
		Keys:     keys.NewKeyring(),
		Names:    func(id string) string { return map[string]string{scaleID: "bathroom"}[id] },
		Pipeline: pipeline.DefaultConfig(),
	}
	require.NoError(t, Scan(context.Background(), src, rec, store, opts, discard))

	assert.Equal(t, []string{"scanning", "complete"}, rec.statuses())

	discovered := rec.ofType(events.TypeDiscovered)
	require.Len(t, discovered, 2)
	ids := []string{discovered[0].Device.ID, discovered[1].Device.ID}
	assert.ElementsMatch(t, []string{scaleID, lockedID}, ids)

	ms := rec.ofType(events.TypeMeasurement)
	require.Len(t, ms, 2)
	assert.Equal(t, "bathroom", ms[0].DeviceName)
	assert.False(t, ms[0].Measurement.Stabilized)
	assert.True(t, ms[1].Measurement.Stabilized)
	assert.InDelta(t, 72.5, *ms[1].Measurement.WeightKg, 1e-9)

	errs := rec.ofType(events.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, events.KindMissingKeyMaterial, errs[0].Error)

	assert.Equal(t, 3, store.Count())
	scales, measuring := store.CountScales()
	assert.Equal(t, 2, scales)
	assert.Equal(t, 1, measuring)
}

func TestScanTargetFilter(t *testing.T) {
	src := staticSource{
		{Address: "AA:BB:CC:DD:EE:01", Name: "MIBFS"},
		{Address: "AA:BB:CC:DD:EE:02", Name: "MIBFS"},
	}
	rec := &recorder{}
	opts := ScanOptions{Keys: keys.NewKeyring(), Target: bluetooth.Matcher{Target: "aa-bb-cc-dd-ee-02"}, Pipeline: pipeline.DefaultConfig()}
	require.NoError(t, Scan(context.Background(), src, rec, bluetooth.NewDeviceStore(), opts, discard))

	discovered := rec.ofType(events.TypeDiscovered)
	require.Len(t, discovered, 1)
	assert.Equal(t, "AA:BB:CC:DD:EE:02", discovered[0].Device.ID)
}

func TestScanFailureEmitsError(t *testing.T) {
	boom := errors.New("adapter missing")
	rec := &recorder{}
	err := Scan(context.Background(), failingSource{boom}, rec, bluetooth.NewDeviceStore(), ScanOptions{Keys: keys.NewKeyring(), Pipeline: pipeline.DefaultConfig()}, discard)
	assert.ErrorIs(t, err, boom)

	errs := rec.ofType(events.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, events.KindScanFailed, errs[0].Error)
}

func TestScanDurationStopsDemo(t *testing.T) {
	rec := &recorder{}
	opts := ScanOptions{Duration: 50 * time.Millisecond, Keys: keys.NewKeyring(), Pipeline: pipeline.DefaultConfig()}
	start := time.Now()
	require.NoError(t, Scan(context.Background(), bluetooth.NewDemoScale(1), rec, bluetooth.NewDeviceStore(), opts, discard))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []string{"scanning", "complete"}, rec.statuses())
}

type fakeConn struct {
	notes [][]byte
	done  chan struct{}
}

func (c *fakeConn) Characteristics(context.Context) ([]string, error) {
	return []string{beacon.CharWeightMeasurement}, nil
}

func (c *fakeConn) Subscribe(uuid string, out chan<- session.Notification) error {
	for _, n := range c.notes {
		out <- session.Notification{Characteristic: uuid, Data: n, At: time.Now()}
	}
	close(c.done)
	return nil
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }
func (c *fakeConn) Close() error          { return nil }

type fakeDialer struct {
	conn *fakeConn
	err  error
}

func (d fakeDialer) Dial(context.Context, string) (session.Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func weightNote(kg float64) []byte {
	return binary.LittleEndian.AppendUint16([]byte{0x00}, uint16(kg*200))
}

func TestListenStreamsUntilDrop(t *testing.T) {
	conn := &fakeConn{
		notes: [][]byte{weightNote(72.5), weightNote(72.5), weightNote(72.5)},
		done:  make(chan struct{}),
	}
	rec := &recorder{}
	cfg := pipeline.DefaultConfig()
	cfg.DedupTolerance = measure.NotificationTolerance
	opts := ListenOptions{
		DeviceName: "MIBFS",
		Session:    session.Config{DeviceID: "AA:BB:CC:DD:EE:01", AutoReconnect: false},
		Keys:       keys.NewKeyring(),
		Pipeline:   cfg,
	}

	err := Listen(context.Background(), fakeDialer{conn: conn}, rec, bluetooth.NewDeviceStore(), opts, discard)
	assert.ErrorIs(t, err, session.ErrMaxReconnectAttemptsReached)

	assert.Equal(t, []string{"connecting", "subscribing", "listening", "disconnected", "terminated"}, rec.statuses())

	ms := rec.ofType(events.TypeMeasurement)
	require.Len(t, ms, 2)
	assert.False(t, ms[0].Measurement.Stabilized)
	assert.True(t, ms[1].Measurement.Stabilized)
	assert.Equal(t, "MIBFS", ms[1].DeviceName)

	errs := rec.ofType(events.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, events.KindMaxReconnects, errs[0].Error)
}

func TestListenFirstDialFails(t *testing.T) {
	rec := &recorder{}
	opts := ListenOptions{
		Session:  session.Config{DeviceID: "AA:BB:CC:DD:EE:01", AutoReconnect: true, MaxAttempts: 3},
		Keys:     keys.NewKeyring(),
		Pipeline: pipeline.DefaultConfig(),
	}
	err := Listen(context.Background(), fakeDialer{err: bluetooth.ErrDeviceNotFound}, rec, bluetooth.NewDeviceStore(), opts, discard)
	assert.ErrorIs(t, err, session.ErrConnectFailed)
	assert.ErrorIs(t, err, bluetooth.ErrDeviceNotFound)

	assert.Equal(t, []string{"connecting", "terminated"}, rec.statuses())
	errs := rec.ofType(events.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, events.KindDeviceNotFound, errs[0].Error)
}

func TestListenStopIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	opts := ListenOptions{
		Session:  session.Config{DeviceID: "AA:BB:CC:DD:EE:01"},
		Keys:     keys.NewKeyring(),
		Pipeline: pipeline.DefaultConfig(),
	}
	// The link never drops on its own; the dialer cancels shortly after connecting.
	dialer := stopDialer{conn: &neverDrops{}, cancel: cancel}

	assert.NoError(t, Listen(ctx, dialer, rec, bluetooth.NewDeviceStore(), opts, discard))
	assert.Equal(t, []string{"connecting", "subscribing", "listening"}, rec.statuses())
}

func TestListenParentDeadlineIsClean(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	rec := &recorder{}
	opts := ListenOptions{
		Session:  session.Config{DeviceID: "AA:BB:CC:DD:EE:01", AutoReconnect: true, MaxAttempts: 3},
		Pipeline: pipeline.DefaultConfig(),
	}
	dialer := stopDialer{conn: &neverDrops{}, cancel: func() {}}

	assert.NoError(t, Listen(ctx, dialer, rec, bluetooth.NewDeviceStore(), opts, discard))
	assert.Equal(t, []string{"connecting", "subscribing", "listening"}, rec.statuses())
}

type neverDrops struct{ done chan struct{} }

func (c *neverDrops) Characteristics(context.Context) ([]string, error) {
	return []string{beacon.CharWeightMeasurement}, nil
}
func (c *neverDrops) Subscribe(string, chan<- session.Notification) error { return nil }
func (c *neverDrops) Done() <-chan struct{}                               { return c.done }
func (c *neverDrops) Close() error                                        { return nil }

type stopDialer struct {
	conn   *neverDrops
	cancel context.CancelFunc
}

func (d stopDialer) Dial(context.Context, string) (session.Conn, error) {
	time.AfterFunc(20*time.Millisecond, d.cancel)
	return d.conn, nil
}
