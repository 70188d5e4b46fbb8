package session

import (
	"errors"
	"time"
)

// State is a phase of a streaming session.
type State int

const (
	Idle State = iota
	Connecting
	Subscribing
	Streaming
	Disconnected
	Backoff
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Subscribing:
		return "subscribing"
	case Streaming:
		return "streaming"
	case Disconnected:
		return "disconnected"
	case Backoff:
		return "backoff"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session-fatal errors. They end Run and reach the caller.
var (
	ErrNoSubscribableCharacteristic = errors.New("no subscribable characteristic")
	ErrMaxReconnectAttemptsReached  = errors.New("max reconnect attempts reached")
	ErrConnectFailed                = errors.New("connect failed")
	ErrTerminated                   = errors.New("session already terminated")
)

// Transition describes a state change. Attempt and Delay are set on Backoff;
// Err on Terminated.
type Transition struct {
	DeviceID string
	From     State
	To       State
	Attempt  int
	Delay    time.Duration
	Err      error
}
