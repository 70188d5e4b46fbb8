package app

import (
	"time"

	"scale-scanner.klederson.com/internal/events"
)

// TickMsg triggers a frame update.
type TickMsg time.Time

// EvictMsg triggers device eviction.
type EvictMsg time.Time

// EventMsg carries an outbound event into the live view.
type EventMsg events.Event

// DoneMsg reports that the scan or listen loop returned.
type DoneMsg struct {
	Err error
}
