package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"scale-scanner.klederson.com/internal/bluetooth"
	"scale-scanner.klederson.com/internal/config"
	"scale-scanner.klederson.com/internal/events"
	"scale-scanner.klederson.com/internal/pipeline"
)

// Source delivers advertisements until ctx is done. The radio scanner and
// the demo scale both satisfy it.
type Source interface {
	Scan(ctx context.Context, handle func(bluetooth.Advertisement)) error
}

type ScanOptions struct {
	// Duration bounds the scan; zero scans until ctx is cancelled.
	Duration time.Duration
	Target   bluetooth.Matcher
	Keys     pipeline.KeySource
	Names    func(id string) string
	Pipeline pipeline.Config
}

// Scan runs passive advertisement decoding. Each device gets its own
// pipeline lane; decode problems never stop the scan.
func Scan(ctx context.Context, src Source, sink events.Sink, store *bluetooth.DeviceStore, opts ScanOptions, logger *slog.Logger) error {
	r := &reporter{sink: sink, store: store, names: opts.Names, logger: logger}

	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
		r.emit(events.Status("scanning", fmt.Sprintf("scanning for %s", opts.Duration)))
	} else {
		r.emit(events.Status("scanning", "scanning continuously"))
	}

	dispatcher := pipeline.NewDispatcher(pipeline.NewDecoder(opts.Keys), opts.Pipeline, r.update, logger)

	var (
		mu        sync.Mutex
		announced = make(map[string]bool)
	)
	handle := func(adv bluetooth.Advertisement) {
		if !opts.Target.Match(adv.Address, adv.Name) {
			return
		}
		scale := adv.CarriesScaleData() || bluetooth.LooksLikeScale(adv.Name)
		store.Upsert(adv.Address, adv.Name, float64(adv.RSSI), scale)

		if scale {
			mu.Lock()
			first := !announced[adv.Address]
			announced[adv.Address] = true
			mu.Unlock()
			if first {
				r.emit(events.Discovered(adv.Address, r.name(adv.Address, adv.Name), adv.RSSI))
			}
		}
		for _, f := range adv.Frames() {
			dispatcher.Dispatch(f)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	gctx, stop := context.WithCancel(gctx)
	defer stop()
	g.Go(func() error {
		defer stop()
		return src.Scan(gctx, handle)
	})
	g.Go(func() error {
		ticker := time.NewTicker(config.EvictInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := store.Evict(config.DeviceTimeout); n > 0 {
					logger.Debug("evicted stale devices", "count", n)
				}
			}
		}
	})
	err := g.Wait()
	dispatcher.Close()

	if err != nil {
		r.emit(events.Error(events.KindScanFailed, err.Error()))
		return err
	}

	mu.Lock()
	found := len(announced)
	mu.Unlock()
	r.emit(events.Status("complete", fmt.Sprintf("scan finished, %d scale(s) seen", found)))
	return nil
}
