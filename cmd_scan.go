package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"scale-scanner.klederson.com/internal/app"
	"scale-scanner.klederson.com/internal/bluetooth"
	"scale-scanner.klederson.com/internal/config"
	"scale-scanner.klederson.com/internal/events"
	"scale-scanner.klederson.com/internal/measure"
	"scale-scanner.klederson.com/internal/pipeline"
)

func scanCmd() *cobra.Command {
	var (
		duration   time.Duration
		continuous bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Decode scale advertisements passively",
		Long: `Scan listens to advertisements from every nearby scale (or only the one
given by --device-mac) and emits discovered, measurement and error events.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if continuous {
				duration = 0
			}
			return runScan(cmd.Context(), duration)
		},
	}
	cmd.Flags().DurationVar(&duration, "scan-duration", config.DefaultScanDuration, "How long to scan")
	cmd.Flags().BoolVar(&continuous, "continuous", false, "Scan until interrupted")
	return cmd
}

func runScan(ctx context.Context, duration time.Duration) error {
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	var src app.Source
	source := "adapter " + flagAdapter
	if flagDemo {
		demo := bluetooth.NewDemoScale(time.Now().UnixNano())
		if err := addDemoKeys(rt, demo); err != nil {
			return err
		}
		src, source = demo, "demo"
	} else {
		src = bluetooth.NewBLEScanner(flagAdapter, rt.logger)
	}

	pcfg := pipeline.DefaultConfig()
	pcfg.DedupTolerance = measure.AdvertisementTolerance
	pcfg.ReportDropped = flagVerbose
	opts := app.ScanOptions{
		Duration: duration,
		Target:   bluetooth.Matcher{Policy: rt.match, Target: flagDeviceMAC},
		Keys:     rt.keys,
		Names:    rt.names,
		Pipeline: pcfg,
	}

	store := bluetooth.NewDeviceStore()
	work := func(ctx context.Context, sink events.Sink) error {
		return app.Scan(ctx, src, sink, store, opts, rt.logger)
	}

	if flagTUI {
		err = app.Run(ctx, app.New(store, source), func(ctx context.Context, view events.Sink) error {
			return work(ctx, rt.sinkWith(view))
		})
	} else {
		err = work(ctx, rt.sinkWith(nil))
	}
	if err != nil && !flagDemo {
		permissionHint()
	}
	return err
}

func addDemoKeys(rt *runtime, demo *bluetooth.DemoScale) error {
	for id, key := range demo.Keys() {
		if err := rt.keys.Add(id, key); err != nil {
			return fail(rt.sinkWith(nil), events.KindInvalidKey, err)
		}
	}
	return nil
}

func permissionHint() {
	fmt.Fprintln(os.Stderr, "Bluetooth scanning requires elevated permissions.")
	fmt.Fprintln(os.Stderr, "Try one of:")
	fmt.Fprintln(os.Stderr, "  sudo ./scale-scanner scan")
	fmt.Fprintln(os.Stderr, "  sudo setcap cap_net_admin+ep ./scale-scanner")
	fmt.Fprintln(os.Stderr, "  ./scale-scanner --demo scan    (demo mode, no hardware needed)")
}
