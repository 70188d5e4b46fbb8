package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"scale-scanner.klederson.com/internal/app"
	"scale-scanner.klederson.com/internal/bluetooth"
	"scale-scanner.klederson.com/internal/config"
	"scale-scanner.klederson.com/internal/events"
	"scale-scanner.klederson.com/internal/measure"
	"scale-scanner.klederson.com/internal/pipeline"
	"scale-scanner.klederson.com/internal/session"
)

type listenFlags struct {
	duration    time.Duration
	noReconnect bool
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	findTimeout time.Duration
}

func listenCmd() *cobra.Command {
	var lf listenFlags
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Connect to one scale and decode its notifications",
		Long: `Listen connects to the scale given by --device-mac (or the first device in
the config file), subscribes to its measurement characteristics and emits
events until interrupted. Dropped links are retried with exponential backoff.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(cmd, lf)
		},
	}
	f := cmd.Flags()
	f.DurationVar(&lf.duration, "listen-duration", 0, "Stop listening after this long (0 = until interrupted)")
	f.BoolVar(&lf.noReconnect, "no-reconnect", false, "Stop at the first disconnect")
	f.IntVar(&lf.maxAttempts, "max-reconnect-attempts", config.ReconnectMaxAttempts, "Reconnect attempts before giving up")
	f.DurationVar(&lf.baseDelay, "reconnect-delay", config.ReconnectBaseDelay, "First reconnect delay")
	f.DurationVar(&lf.maxDelay, "max-reconnect-delay", config.ReconnectMaxDelay, "Reconnect delay cap")
	f.DurationVar(&lf.findTimeout, "find-timeout", config.DefaultListenScanLimit, "How long to scan for the device before connecting")
	return cmd
}

func runListen(cmd *cobra.Command, lf listenFlags) error {
	ctx := cmd.Context()
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	var (
		dialer session.Dialer
		source = "device"
		target = rt.target()
	)
	if flagDemo {
		demo := bluetooth.NewDemoScale(time.Now().UnixNano())
		if err := addDemoKeys(rt, demo); err != nil {
			return err
		}
		if target == "" {
			target = demo.Address()
		}
		dialer, source = demo, "demo"
	} else {
		dialer = bluetooth.NewGATTDialer(flagAdapter, rt.match, lf.findTimeout, rt.logger)
	}
	if target == "" {
		return fail(rt.sinkWith(nil), events.KindDeviceNotFound, errors.New("listen needs --device-mac or a device in the config file"))
	}

	scfg := sessionConfig(cmd, lf, rt.file.Reconnect)
	scfg.DeviceID = target

	pcfg := pipeline.DefaultConfig()
	pcfg.DedupTolerance = measure.NotificationTolerance
	pcfg.ReportDropped = flagVerbose
	opts := app.ListenOptions{
		Session:  scfg,
		Keys:     rt.keys,
		Names:    rt.names,
		Pipeline: pcfg,
	}

	rt.logger.Info("listening", "device", target, "reconnect", scfg.AutoReconnect, "max_attempts", scfg.MaxAttempts)

	store := bluetooth.NewDeviceStore()
	if flagTUI {
		return app.Run(ctx, app.New(store, source), func(ctx context.Context, view events.Sink) error {
			return app.Listen(ctx, dialer, rt.sinkWith(view), store, opts, rt.logger)
		})
	}
	return app.Listen(ctx, dialer, rt.sinkWith(nil), store, opts, rt.logger)
}

// sessionConfig layers explicit flags over the config file over defaults.
func sessionConfig(cmd *cobra.Command, lf listenFlags, file config.Reconnect) session.Config {
	cfg := session.Config{
		AutoReconnect: true,
		MaxAttempts:   lf.maxAttempts,
		BaseDelay:     lf.baseDelay,
		MaxDelay:      lf.maxDelay,
		Lifetime:      lf.duration,
	}
	f := cmd.Flags()
	if file.Enabled != nil {
		cfg.AutoReconnect = *file.Enabled
	}
	if file.MaxAttempts != nil && !f.Changed("max-reconnect-attempts") {
		cfg.MaxAttempts = *file.MaxAttempts
	}
	if file.BaseDelay > 0 && !f.Changed("reconnect-delay") {
		cfg.BaseDelay = file.BaseDelay
	}
	if file.MaxDelay > 0 && !f.Changed("max-reconnect-delay") {
		cfg.MaxDelay = file.MaxDelay
	}
	if lf.noReconnect {
		cfg.AutoReconnect = false
	}
	return cfg
}
