package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scale-scanner.klederson.com/internal/config"
	"scale-scanner.klederson.com/internal/events"
)

func listenFlagsFrom(t *testing.T, args ...string) (listenFlags, *cobra.Command) {
	t.Helper()
	var lf listenFlags
	cmd := listenCmd()
	f := cmd.Flags()
	require.NoError(t, f.Parse(args))
	lf.duration, _ = f.GetDuration("listen-duration")
	lf.noReconnect, _ = f.GetBool("no-reconnect")
	lf.maxAttempts, _ = f.GetInt("max-reconnect-attempts")
	lf.baseDelay, _ = f.GetDuration("reconnect-delay")
	lf.maxDelay, _ = f.GetDuration("max-reconnect-delay")
	return lf, cmd
}

func TestSessionConfigDefaults(t *testing.T) {
	lf, cmd := listenFlagsFrom(t)
	cfg := sessionConfig(cmd, lf, config.Reconnect{})

	assert.True(t, cfg.AutoReconnect)
	assert.Equal(t, config.ReconnectMaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, config.ReconnectBaseDelay, cfg.BaseDelay)
	assert.Equal(t, config.ReconnectMaxDelay, cfg.MaxDelay)
	assert.Zero(t, cfg.Lifetime)
}

func TestSessionConfigFileOverridesDefaults(t *testing.T) {
	off := false
	three := 3
	lf, cmd := listenFlagsFrom(t)
	cfg := sessionConfig(cmd, lf, config.Reconnect{
		Enabled:     &off,
		MaxAttempts: &three,
		BaseDelay:   2 * time.Second,
	})

	assert.False(t, cfg.AutoReconnect)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.BaseDelay)
	assert.Equal(t, config.ReconnectMaxDelay, cfg.MaxDelay)
}

func TestSessionConfigFlagsBeatFile(t *testing.T) {
	on := true
	three := 3
	lf, cmd := listenFlagsFrom(t, "--max-reconnect-attempts=7", "--no-reconnect", "--listen-duration=1m")
	cfg := sessionConfig(cmd, lf, config.Reconnect{Enabled: &on, MaxAttempts: &three})

	assert.False(t, cfg.AutoReconnect)
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Lifetime)
}

func TestBuildKeyring(t *testing.T) {
	t.Cleanup(func() { flagKey, flagDeviceMAC = "", "" })

	file := config.File{Devices: []config.Device{
		{ID: "AA:BB:CC:DD:EE:FF", Key: "00112233445566778899aabbccddeeff"},
	}}
	flagDeviceMAC = "11:22:33:44:55:66"
	flagKey = "ffeeddccbbaa99887766554433221100"

	ring, err := buildKeyring(file)
	require.NoError(t, err)
	assert.Equal(t, 2, ring.Len())

	_, ok := ring.Lookup("aa:bb:cc:dd:ee:ff")
	assert.True(t, ok)
}

func TestBuildKeyringRejectsBadKeys(t *testing.T) {
	t.Cleanup(func() { flagKey, flagDeviceMAC = "", "" })

	file := config.File{Devices: []config.Device{{ID: "AA:BB:CC:DD:EE:FF", Key: "abc"}}}
	flagKey = "not-hex-not-hex-not-hex-not-hex!"

	_, err := buildKeyring(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--key")
}

func TestBrokerEventsSkipsDebug(t *testing.T) {
	var got []events.Type
	sink := brokerEvents(events.SinkFunc(func(e events.Event) error {
		got = append(got, e.Type)
		return nil
	}))

	for _, e := range []events.Event{
		events.Discovered("AA:BB:CC:DD:EE:FF", "MIBFS", -60),
		events.Debug("frame truncated"),
		events.Measurement("AA:BB:CC:DD:EE:FF", "MIBFS", nil),
		events.Status("complete", ""),
		events.Error(events.KindScanFailed, "adapter off"),
	} {
		require.NoError(t, sink.Emit(e))
	}
	assert.Equal(t, []events.Type{events.TypeDiscovered, events.TypeMeasurement, events.TypeStatus, events.TypeError}, got)
}
