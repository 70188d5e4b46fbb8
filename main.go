package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"scale-scanner.klederson.com/internal/bluetooth"
)

var (
	flagDemo      bool
	flagAdapter   string
	flagConfig    string
	flagLogLevel  string
	flagMQTT      string
	flagTUI       bool
	flagKey       string
	flagDeviceMAC string
	flagMatch     string
	flagVerbose   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "scale-scanner",
		Short: "Scale Scanner - decode BLE body composition scales into JSON events",
		Long: `Scale Scanner listens to Bluetooth Low Energy body composition scales,
decodes their advertisements and notifications (including encrypted beacons,
given the bind key) and prints one JSON event per line on stdout.

Requires sudo or CAP_NET_ADMIN capability for real Bluetooth scanning.
Use --demo for a simulated scale without Bluetooth hardware.`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flagDemo, "demo", false, "Use a simulated scale (no Bluetooth required)")
	pf.StringVar(&flagAdapter, "adapter", bluetooth.DefaultAdapterID, "Bluetooth adapter to use (Linux only; other platforms use the system adapter)")
	pf.StringVar(&flagConfig, "config", "", "YAML devices file (default $SCALE_CONFIG)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (default $LOG_LEVEL)")
	pf.StringVar(&flagMQTT, "mqtt", "", "Also publish events to this MQTT broker host (default $MQTT_BROKER)")
	pf.BoolVar(&flagTUI, "tui", false, "Show the live terminal view instead of JSON output")
	pf.StringVar(&flagKey, "key", "", "32 hex character bind key for encrypted beacons")
	pf.StringVar(&flagDeviceMAC, "device-mac", "", "Target device address or platform id")
	pf.StringVar(&flagMatch, "match", "", "Device match policy: strict or lenient (default strict)")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Emit debug events for frames that fail to decode")

	rootCmd.AddCommand(scanCmd(), listenCmd(), servicesCmd(), keycheckCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}
