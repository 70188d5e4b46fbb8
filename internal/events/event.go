// Package events carries what the scanner reports outward: one JSON object
// per event, written as it happens.
package events

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"scale-scanner.klederson.com/internal/measure"
)

type Type string

const (
	TypeDiscovered  Type = "discovered"
	TypeMeasurement Type = "measurement"
	TypeStatus      Type = "status"
	TypeError       Type = "error"
	TypeDebug       Type = "debug"
)

// Error kinds reported in error events.
const (
	KindMissingKeyMaterial   = "missing_key_material"
	KindAuthenticationFailed = "authentication_failed"
	KindNoCharacteristics    = "no_characteristics"
	KindMaxReconnects        = "max_reconnect_attempts"
	KindConnectionFailed     = "connection_failed"
	KindScanFailed           = "scan_failed"
	KindInvalidKey           = "invalid_key"
	KindDeviceNotFound       = "device_not_found"
)

// Device is the discovered payload.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	RSSI int16  `json:"rssi"`
}

type Event struct {
	ID          string               `json:"id"`
	Type        Type                 `json:"type"`
	Time        time.Time            `json:"time"`
	Device      *Device              `json:"device,omitempty"`
	DeviceID    string               `json:"deviceId,omitempty"`
	DeviceName  string               `json:"deviceName,omitempty"`
	Measurement *measure.Measurement `json:"measurement,omitempty"`
	Status      string               `json:"status,omitempty"`
	Error       string               `json:"error,omitempty"`
	Message     string               `json:"message,omitempty"`
}

func stamp(e Event) Event {
	e.ID = ulid.Make().String()
	e.Time = time.Now().UTC()
	return e
}

func Discovered(id, name string, rssi int16) Event {
	return stamp(Event{Type: TypeDiscovered, Device: &Device{ID: id, Name: name, RSSI: rssi}})
}

func Measurement(deviceID, deviceName string, m *measure.Measurement) Event {
	return stamp(Event{Type: TypeMeasurement, DeviceID: deviceID, DeviceName: deviceName, Measurement: m})
}

func Status(state, message string) Event {
	return stamp(Event{Type: TypeStatus, Status: state, Message: message})
}

func Error(kind, message string) Event {
	return stamp(Event{Type: TypeError, Error: kind, Message: message})
}

func Debug(message string) Event {
	return stamp(Event{Type: TypeDebug, Message: message})
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Emit(e Event) error { return f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) error { return nil })

// Multi emits to every sink and joins their errors.
type Multi []Sink

func (m Multi) Emit(e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Filter passes only events whose type is allowed.
func Filter(next Sink, allow ...Type) Sink {
	set := make(map[Type]bool, len(allow))
	for _, t := range allow {
		set[t] = true
	}
	return SinkFunc(func(e Event) error {
		if !set[e.Type] {
			return nil
		}
		return next.Emit(e)
	})
}
