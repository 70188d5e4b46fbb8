// Package session supervises one long-lived connection to a scale:
// connect, subscribe, stream, and recover from radio drops with capped
// exponential backoff.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scale-scanner.klederson.com/internal/beacon"
)

const notificationBuffer = 32

// Notification is one characteristic value pushed by the radio.
type Notification struct {
	Characteristic string
	Data           []byte
	At             time.Time
}

// Conn is an established link to one device.
type Conn interface {
	// Characteristics lists the characteristic UUIDs that can notify. Where
	// the platform does not report properties every characteristic is
	// listed and Subscribe rejects the ones that cannot notify.
	Characteristics(ctx context.Context) ([]string, error)
	// Subscribe starts delivering notifications for uuid onto out.
	Subscribe(uuid string, out chan<- Notification) error
	// Done is closed when the radio reports the link lost.
	Done() <-chan struct{}
	Close() error
}

// Dialer opens links. Implementations must honor ctx.
type Dialer interface {
	Dial(ctx context.Context, deviceID string) (Conn, error)
}

type Config struct {
	DeviceID string
	// Characteristics are subscribed in preference; when none is offered
	// by the device every notifiable characteristic is used instead.
	Characteristics []string
	AutoReconnect   bool
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	// Lifetime bounds the whole session; zero means until cancelled.
	Lifetime time.Duration
}

// Hooks are called from the Run goroutine, in order.
type Hooks struct {
	Notify       func(Notification)
	Transition   func(Transition)
	Disconnected func()
}

// Controller runs the session state machine for a single device. Separate
// devices use separate controllers and share nothing.
type Controller struct {
	cfg    Config
	dialer Dialer
	hooks  Hooks
	logger *slog.Logger

	// after is swapped in tests.
	after func(time.Duration) <-chan time.Time

	mu        sync.Mutex
	state     State
	reconnect ReconnectState
	stop      context.Context
}

func NewController(cfg Config, dialer Dialer, hooks Hooks, logger *slog.Logger) *Controller {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	maxAttempts := cfg.MaxAttempts
	if !cfg.AutoReconnect {
		maxAttempts = 0
	}
	return &Controller{
		cfg:    cfg,
		dialer: dialer,
		hooks:  hooks,
		logger: logger.With("device", cfg.DeviceID),
		after:  time.After,
		reconnect: ReconnectState{
			MaxAttempts: maxAttempts,
			BaseDelay:   cfg.BaseDelay,
			MaxDelay:    cfg.MaxDelay,
		},
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reconnect returns a copy of the retry budget.
func (c *Controller) Reconnect() ReconnectState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnect
}

type streamEnd int

const (
	endDropped streamEnd = iota
	endStopped
	endExpired
)

// Run drives the session until it terminates or ctx is cancelled.
// Cancelling ctx is a stop: any pending reconnect is abandoned and no
// further transitions are reported. Lifetime expiry instead takes the
// disconnect path and ends in Terminated with a nil error.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Terminated {
		c.mu.Unlock()
		return ErrTerminated
	}
	c.stop = ctx
	c.mu.Unlock()

	life := ctx
	if c.cfg.Lifetime > 0 {
		var cancel context.CancelFunc
		life, cancel = context.WithTimeout(ctx, c.cfg.Lifetime)
		defer cancel()
	}

	connected := false
	for {
		c.transition(Transition{To: Connecting})
		conn, err := c.dialer.Dial(life, c.cfg.DeviceID)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case life.Err() != nil:
				return c.expire()
			case !connected:
				return c.terminate(fmt.Errorf("%w: %w", ErrConnectFailed, err))
			}
			c.logger.Warn("reconnect failed", "error", err)
			if done, err := c.afterDisconnect(ctx, life); done {
				return err
			}
			continue
		}
		connected = true

		c.transition(Transition{To: Subscribing})
		notes := make(chan Notification, notificationBuffer)
		if n := c.subscribe(life, conn, notes); n == 0 {
			_ = conn.Close()
			return c.terminate(ErrNoSubscribableCharacteristic)
		}

		c.mu.Lock()
		c.reconnect.Reset()
		c.mu.Unlock()
		c.transition(Transition{To: Streaming})

		end := c.stream(ctx, life, conn, notes)
		_ = conn.Close()
		switch end {
		case endStopped:
			return ctx.Err()
		case endExpired:
			return c.expire()
		}

		if done, err := c.afterDisconnect(ctx, life); done {
			return err
		}
	}
}

func (c *Controller) subscribe(ctx context.Context, conn Conn, out chan<- Notification) int {
	available, err := conn.Characteristics(ctx)
	if err != nil {
		c.logger.Warn("characteristic discovery failed", "error", err)
		return 0
	}

	want := preferred(c.cfg.Characteristics, available)
	n := c.subscribeAll(conn, want, out)
	if n == 0 && len(want) < len(available) {
		c.logger.Info("preferred characteristics refused, trying the rest")
		n = c.subscribeAll(conn, without(available, want), out)
	}
	return n
}

func (c *Controller) subscribeAll(conn Conn, uuids []string, out chan<- Notification) int {
	n := 0
	for _, uuid := range uuids {
		if err := conn.Subscribe(uuid, out); err != nil {
			c.logger.Debug("subscribe failed", "characteristic", uuid, "error", err)
			continue
		}
		c.logger.Info("subscribed", "characteristic", uuid)
		n++
	}
	return n
}

// preferred picks the wanted characteristics the device offers, in the
// order wanted. When it offers none of them, every characteristic is used.
func preferred(want, available []string) []string {
	var out []string
	for _, w := range want {
		for _, a := range available {
			if beacon.NormalizeUUID(w) == beacon.NormalizeUUID(a) {
				out = append(out, a)
				break
			}
		}
	}
	if len(out) == 0 {
		return available
	}
	return out
}

func without(all, drop []string) []string {
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[beacon.NormalizeUUID(d)] = true
	}
	var out []string
	for _, a := range all {
		if !skip[beacon.NormalizeUUID(a)] {
			out = append(out, a)
		}
	}
	return out
}

func (c *Controller) stream(ctx, life context.Context, conn Conn, notes <-chan Notification) streamEnd {
	for {
		select {
		case <-ctx.Done():
			return endStopped
		case <-life.Done():
			if ctx.Err() != nil {
				return endStopped
			}
			return endExpired
		case n := <-notes:
			c.notify(n)
		case <-conn.Done():
			for {
				select {
				case n := <-notes:
					c.notify(n)
				default:
					return endDropped
				}
			}
		}
	}
}

func (c *Controller) notify(n Notification) {
	if c.hooks.Notify != nil {
		c.hooks.Notify(n)
	}
}

// afterDisconnect reports the drop, runs the disconnect hook and then either
// waits out a backoff or terminates. done is true when Run must return err.
func (c *Controller) afterDisconnect(ctx, life context.Context) (done bool, err error) {
	c.transition(Transition{To: Disconnected})
	if ctx.Err() == nil && c.hooks.Disconnected != nil {
		c.hooks.Disconnected()
	}

	c.mu.Lock()
	if c.reconnect.Exhausted() {
		c.mu.Unlock()
		return true, c.terminate(ErrMaxReconnectAttemptsReached)
	}
	delay := c.reconnect.Advance()
	attempt := c.reconnect.Attempt
	c.mu.Unlock()

	c.transition(Transition{To: Backoff, Attempt: attempt, Delay: delay})
	c.logger.Info("reconnect scheduled", "attempt", attempt, "max_attempts", c.reconnect.MaxAttempts, "delay", delay)

	select {
	case <-c.after(delay):
		c.mu.Lock()
		c.reconnect.Scheduled = false
		c.mu.Unlock()
		return false, nil
	case <-ctx.Done():
		return true, ctx.Err()
	case <-life.Done():
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		return true, c.terminate(nil)
	}
}

// expire runs the same disconnect path as a radio drop, then terminates.
func (c *Controller) expire() error {
	c.transition(Transition{To: Disconnected})
	if c.hooks.Disconnected != nil {
		c.hooks.Disconnected()
	}
	return c.terminate(nil)
}

func (c *Controller) terminate(err error) error {
	c.mu.Lock()
	c.reconnect.Scheduled = false
	c.mu.Unlock()
	c.transition(Transition{To: Terminated, Err: err})
	if err != nil {
		c.logger.Error("session terminated", "error", err)
	}
	return err
}

func (c *Controller) transition(t Transition) {
	c.mu.Lock()
	if c.state == Terminated || (c.stop != nil && c.stop.Err() != nil) {
		c.mu.Unlock()
		return
	}
	t.From, t.DeviceID = c.state, c.cfg.DeviceID
	c.state = t.To
	c.mu.Unlock()

	c.logger.Debug("session state", "from", t.From.String(), "to", t.To.String())
	if c.hooks.Transition != nil {
		c.hooks.Transition(t)
	}
}

// IsFatal reports whether err ends a session rather than a single frame.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNoSubscribableCharacteristic) ||
		errors.Is(err, ErrMaxReconnectAttemptsReached) ||
		errors.Is(err, ErrConnectFailed)
}
