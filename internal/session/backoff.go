package session

import "time"

const (
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMaxAttempts = 10
)

// ReconnectState is the per-device retry budget. Attempt counts backoff
// cycles since the last time the session reached Streaming.
type ReconnectState struct {
	Attempt     int
	Scheduled   bool
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Delay is min(BaseDelay * 2^Attempt, MaxDelay).
func (r *ReconnectState) Delay() time.Duration {
	d := r.BaseDelay
	for i := 0; i < r.Attempt; i++ {
		if d >= r.MaxDelay {
			break
		}
		d *= 2
	}
	if d > r.MaxDelay {
		return r.MaxDelay
	}
	return d
}

// Exhausted reports whether another backoff cycle is out of budget.
func (r *ReconnectState) Exhausted() bool {
	return r.Attempt >= r.MaxAttempts
}

// Advance schedules the next cycle and returns its delay.
func (r *ReconnectState) Advance() time.Duration {
	d := r.Delay()
	r.Attempt++
	r.Scheduled = true
	return d
}

func (r *ReconnectState) Reset() {
	r.Attempt = 0
	r.Scheduled = false
}
