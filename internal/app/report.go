package app

import (
	"errors"
	"log/slog"

	"scale-scanner.klederson.com/internal/beacon"
	"scale-scanner.klederson.com/internal/bluetooth"
	"scale-scanner.klederson.com/internal/events"
	"scale-scanner.klederson.com/internal/pipeline"
	"scale-scanner.klederson.com/internal/session"
)

// reporter turns pipeline updates into events and store records.
type reporter struct {
	sink   events.Sink
	store  *bluetooth.DeviceStore
	names  func(id string) string
	logger *slog.Logger
}

func (r *reporter) emit(e events.Event) {
	if err := r.sink.Emit(e); err != nil {
		r.logger.Warn("event not delivered", "type", e.Type, "error", err)
	}
}

func (r *reporter) name(id, advertised string) string {
	if r.names != nil {
		if n := r.names(id); n != "" {
			return n
		}
	}
	return advertised
}

func (r *reporter) update(u pipeline.Update) {
	name := r.name(u.DeviceID, u.DeviceName)
	if u.Err != nil {
		r.store.Fail(u.DeviceID, u.Err)
		switch {
		case errors.Is(u.Err, beacon.ErrMissingKeyMaterial):
			r.emit(events.Error(events.KindMissingKeyMaterial, u.DeviceID+": "+u.Err.Error()))
		case errors.Is(u.Err, beacon.ErrAuthenticationFailed):
			r.emit(events.Error(events.KindAuthenticationFailed, u.DeviceID+": "+u.Err.Error()+" (check the bind key)"))
		default:
			r.emit(events.Debug(u.DeviceID + " " + u.Kind.String() + ": " + u.Err.Error()))
		}
		return
	}

	r.store.Record(u.DeviceID, u.Kind, u.Measurement)
	r.logger.Debug("measurement", "device", u.DeviceID, "kind", u.Kind.String())
	r.emit(events.Measurement(u.DeviceID, name, u.Measurement))
}

// errorKind maps a session-fatal error onto an error event kind.
func errorKind(err error) string {
	switch {
	case errors.Is(err, session.ErrNoSubscribableCharacteristic):
		return events.KindNoCharacteristics
	case errors.Is(err, session.ErrMaxReconnectAttemptsReached):
		return events.KindMaxReconnects
	case errors.Is(err, bluetooth.ErrDeviceNotFound):
		return events.KindDeviceNotFound
	default:
		return events.KindConnectionFailed
	}
}
