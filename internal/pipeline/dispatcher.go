package pipeline

import (
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

const laneBuffer = 64

// Dispatcher fans frames out to one goroutine per device. Frames for the same
// device are processed in arrival order; different devices run concurrently
// and share no mutable state.
type Dispatcher struct {
	decoder *Decoder
	cfg     Config
	handle  func(Update)
	logger  *slog.Logger

	mu     sync.Mutex
	lanes  map[string]chan Frame
	closed bool
	group  errgroup.Group
}

// NewDispatcher calls handle from the device goroutines; it must be safe for
// concurrent use.
func NewDispatcher(decoder *Decoder, cfg Config, handle func(Update), logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		decoder: decoder,
		cfg:     cfg,
		handle:  handle,
		logger:  logger,
		lanes:   make(map[string]chan Frame),
	}
}

// Dispatch queues f on its device lane without blocking the caller. It
// reports false when the lane is full or the dispatcher is closed.
func (d *Dispatcher) Dispatch(f Frame) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}

	lane, ok := d.lanes[f.DeviceID]
	if !ok {
		lane = make(chan Frame, laneBuffer)
		d.lanes[f.DeviceID] = lane
		proc := NewProcessor(d.decoder, d.cfg, d.logger.With("device", f.DeviceID))
		d.group.Go(func() error {
			for frame := range lane {
				if u, emit := proc.Process(frame); emit {
					d.handle(u)
				}
			}
			return nil
		})
	}

	select {
	case lane <- f:
		return true
	default:
		d.logger.Debug("device lane full, frame dropped", "device", f.DeviceID)
		return false
	}
}

// Devices is the number of lanes opened so far.
func (d *Dispatcher) Devices() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lanes)
}

// Close stops accepting frames, drains every lane and waits for the device
// goroutines to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, lane := range d.lanes {
			close(lane)
		}
	}
	d.mu.Unlock()
	_ = d.group.Wait()
}
