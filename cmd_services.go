package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"scale-scanner.klederson.com/internal/beacon"
	"scale-scanner.klederson.com/internal/bluetooth"
	"scale-scanner.klederson.com/internal/config"
	"scale-scanner.klederson.com/internal/events"
	"scale-scanner.klederson.com/internal/ui"
)

var knownChars = map[string]string{
	beacon.CharWeightMeasurement:          "  (weight measurement)",
	beacon.CharBodyCompositionMeasurement: "  (body composition measurement)",
	beacon.CharVendorHistory:              "  (vendor history)",
}

func servicesCmd() *cobra.Command {
	var findTimeout = config.DefaultListenScanLimit
	cmd := &cobra.Command{
		Use:   "services",
		Short: "List the GATT services and characteristics of a scale",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			target := rt.target()
			if target == "" {
				return fail(rt.sinkWith(nil), events.KindDeviceNotFound, errors.New("services needs --device-mac"))
			}

			dialer := bluetooth.NewGATTDialer(flagAdapter, rt.match, findTimeout, rt.logger)
			services, err := dialer.Services(cmd.Context(), target)
			if err != nil {
				kind := events.KindConnectionFailed
				if errors.Is(err, bluetooth.ErrDeviceNotFound) {
					kind = events.KindDeviceNotFound
				}
				return fail(rt.sinkWith(nil), kind, err)
			}

			out := lipgloss.NewStyle().Foreground(ui.ColorScale)
			for _, svc := range services {
				fmt.Fprintln(os.Stderr, out.Render(svc.UUID))
				for _, ch := range svc.Characteristics {
					fmt.Fprintf(os.Stderr, "  %s%s\n", ch, knownChars[beacon.NormalizeUUID(ch)])
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&findTimeout, "find-timeout", config.DefaultListenScanLimit, "How long to scan for the device before connecting")
	return cmd
}
