package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"scale-scanner.klederson.com/internal/beacon"
	"scale-scanner.klederson.com/internal/session"
)

var ErrDeviceNotFound = errors.New("device not found")

// GATTDialer opens notification links over one adapter. It finds
// the target by scanning, since the radio connects by scanned address.
type GATTDialer struct {
	adapter *bluetooth.Adapter
	match   MatchPolicy
	find    time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	links map[string]*gattConn
	once  sync.Once
}

// NewGATTDialer creates a dialer that spends at most find scanning for the
// target before giving up on a dial.
func NewGATTDialer(adapterID string, match MatchPolicy, find time.Duration, logger *slog.Logger) *GATTDialer {
	return &GATTDialer{
		adapter: adapterFor(adapterID, logger),
		match:   match,
		find:    find,
		logger:  logger,
		links:   make(map[string]*gattConn),
	}
}

func (d *GATTDialer) Dial(ctx context.Context, deviceID string) (session.Conn, error) {
	if err := enable(d.adapter); err != nil {
		return nil, err
	}
	d.once.Do(func() { d.adapter.SetConnectHandler(d.onConnect) })

	result, err := d.locate(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	device, err := d.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", deviceID, err)
	}

	conn := &gattConn{
		device: device,
		id:     result.Address.String(),
		done:   make(chan struct{}),
		chars:  make(map[string]bluetooth.DeviceCharacteristic),
	}
	d.mu.Lock()
	d.links[conn.id] = conn
	d.mu.Unlock()

	d.logger.Info("connected", "device", conn.id, "name", result.LocalName())
	return conn, nil
}

func (d *GATTDialer) locate(ctx context.Context, deviceID string) (bluetooth.ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.find)
	defer cancel()

	m := Matcher{Policy: d.match, Target: deviceID}
	var (
		found bluetooth.ScanResult
		ok    bool
	)
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			_ = d.adapter.StopScan()
		case <-stopped:
		}
	}()

	err := d.adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
		if ok || !m.Match(result.Address.String(), result.LocalName()) {
			return
		}
		found, ok = result, true
		_ = a.StopScan()
	})
	if ok {
		return found, nil
	}
	if err != nil && ctx.Err() == nil {
		return found, fmt.Errorf("ble scan: %w", err)
	}
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return found, ctx.Err()
	}
	return found, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
}

func (d *GATTDialer) onConnect(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	id := device.Address.String()
	d.mu.Lock()
	conn := d.links[id]
	delete(d.links, id)
	d.mu.Unlock()
	if conn != nil {
		d.logger.Warn("link lost", "device", id)
		conn.drop()
	}
}

type gattConn struct {
	device bluetooth.Device
	id     string

	mu     sync.Mutex
	chars  map[string]bluetooth.DeviceCharacteristic
	closed bool

	done     chan struct{}
	dropOnce sync.Once
}

func (c *gattConn) Characteristics(ctx context.Context) ([]string, error) {
	services, err := c.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}

	var uuids []string
	for _, svc := range services {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			continue
		}
		c.mu.Lock()
		for _, ch := range chars {
			if !canNotify(ch) {
				continue
			}
			uuid := beacon.NormalizeUUID(ch.UUID().String())
			c.chars[uuid] = ch
			uuids = append(uuids, uuid)
		}
		c.mu.Unlock()
	}
	return uuids, nil
}

// Characteristic property bits for notify and indicate.
const notifyProperties = 0x10 | 0x20

// canNotify checks the characteristic properties on platforms that report
// them. Elsewhere it reports true and Subscribe decides.
func canNotify(ch any) bool {
	p, ok := ch.(interface{ Properties() uint32 })
	if !ok {
		return true
	}
	return notifyProperties&p.Properties() != 0
}

func (c *gattConn) Subscribe(uuid string, out chan<- session.Notification) error {
	uuid = beacon.NormalizeUUID(uuid)
	c.mu.Lock()
	ch, ok := c.chars[uuid]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("characteristic %s not discovered", uuid)
	}

	return ch.EnableNotifications(func(buf []byte) {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		n := session.Notification{
			Characteristic: uuid,
			Data:           append([]byte(nil), buf...),
			At:             time.Now(),
		}
		select {
		case out <- n:
		default:
		}
	})
}

func (c *gattConn) Done() <-chan struct{} { return c.done }

func (c *gattConn) drop() {
	c.dropOnce.Do(func() { close(c.done) })
}

func (c *gattConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.drop()
	return c.device.Disconnect()
}
