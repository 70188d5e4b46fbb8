package app

import (
	"context"
	"fmt"
	"log/slog"

	"scale-scanner.klederson.com/internal/beacon"
	"scale-scanner.klederson.com/internal/bluetooth"
	"scale-scanner.klederson.com/internal/events"
	"scale-scanner.klederson.com/internal/pipeline"
	"scale-scanner.klederson.com/internal/session"
)

// DefaultCharacteristics are subscribed first when a scale offers them.
var DefaultCharacteristics = []string{
	beacon.CharWeightMeasurement,
	beacon.CharBodyCompositionMeasurement,
	beacon.CharVendorHistory,
}

type ListenOptions struct {
	DeviceName string
	Session    session.Config
	Keys       pipeline.KeySource
	Names      func(id string) string
	Pipeline   pipeline.Config
}

// Listen holds a notification session open to one scale. It returns nil
// when ctx is cancelled or the listen duration ends, and the fatal session
// error otherwise.
func Listen(ctx context.Context, dialer session.Dialer, sink events.Sink, store *bluetooth.DeviceStore, opts ListenOptions, logger *slog.Logger) error {
	r := &reporter{sink: sink, store: store, names: opts.Names, logger: logger}
	id := opts.Session.DeviceID
	name := r.name(id, opts.DeviceName)
	if len(opts.Session.Characteristics) == 0 {
		opts.Session.Characteristics = DefaultCharacteristics
	}

	proc := pipeline.NewProcessor(pipeline.NewDecoder(opts.Keys), opts.Pipeline, logger.With("device", id))
	hooks := session.Hooks{
		Notify: func(n session.Notification) {
			u, emit := proc.Process(pipeline.Frame{
				DeviceID:   id,
				DeviceName: name,
				Origin:     beacon.Characteristic(n.Characteristic),
				Data:       n.Data,
				At:         n.At,
			})
			if emit {
				r.update(u)
			}
		},
		Transition: func(t session.Transition) {
			r.transition(t)
		},
		Disconnected: proc.Reset,
	}

	store.Upsert(id, name, -100, true)
	ctrl := session.NewController(opts.Session, dialer, hooks, logger)
	if err := ctrl.Run(ctx); session.IsFatal(err) {
		return err
	}
	// Stopped by cancellation, a parent deadline or the listen duration.
	return nil
}

func (r *reporter) transition(t session.Transition) {
	switch t.To {
	case session.Connecting:
		r.emit(events.Status("connecting", "connecting to "+t.DeviceID))
	case session.Subscribing:
		r.emit(events.Status("subscribing", "discovering characteristics"))
	case session.Streaming:
		r.emit(events.Status("listening", "waiting for measurements"))
	case session.Disconnected:
		r.emit(events.Status("disconnected", t.DeviceID+" disconnected"))
	case session.Backoff:
		r.emit(events.Status("reconnecting", fmt.Sprintf("attempt %d in %s", t.Attempt, t.Delay)))
	case session.Terminated:
		if t.Err != nil {
			r.emit(events.Error(errorKind(t.Err), t.Err.Error()))
			r.emit(events.Status("terminated", t.Err.Error()))
			return
		}
		r.emit(events.Status("terminated", "session ended"))
	}
}
