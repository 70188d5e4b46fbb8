package bluetooth

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"scale-scanner.klederson.com/internal/beacon"
	"scale-scanner.klederson.com/internal/session"
)

// demoLinkCycles is how many step-on cycles a demo link lasts before the
// simulated radio drops it.
const demoLinkCycles = 2

// Dial opens a simulated notification link to the first demo scale. The
// link streams weight measurements and drops after a few people weighed in,
// so reconnects can be watched without hardware.
func (s *DemoScale) Dial(ctx context.Context, deviceID string) (session.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &demoConn{scale: s, every: s.every, done: make(chan struct{}), stop: make(chan struct{})}, nil
}

// Address is the id of the demo scale that Dial connects to.
func (s *DemoScale) Address() string {
	return s.devices[0].mac
}

type demoConn struct {
	scale *DemoScale
	every time.Duration

	once     sync.Once
	dropOnce sync.Once
	stopOnce sync.Once
	done     chan struct{}
	stop     chan struct{}
}

func (c *demoConn) Characteristics(context.Context) ([]string, error) {
	return []string{beacon.CharWeightMeasurement, beacon.NormalizeUUID("2a19")}, nil
}

func (c *demoConn) Subscribe(uuid string, out chan<- session.Notification) error {
	if beacon.NormalizeUUID(uuid) != beacon.CharWeightMeasurement {
		return fmt.Errorf("characteristic %s does not notify", uuid)
	}
	c.once.Do(func() { go c.run(out) })
	return nil
}

func (c *demoConn) run(out chan<- session.Notification) {
	ticker := time.NewTicker(c.every)
	defer ticker.Stop()

	d := c.scale.devices[0]
	for step := 0; step < demoLinkCycles*demoCycle; step++ {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}
		if step%demoCycle == 0 {
			c.scale.pickPerson(d)
		}
		weight, _, off := c.scale.reading(d, step%demoCycle)
		if off {
			continue
		}
		// Weight Measurement: flags 0 (SI), weight in 5 g steps.
		data := binary.LittleEndian.AppendUint16([]byte{0x00}, uint16(math.Round(weight*200)))
		select {
		case out <- session.Notification{Characteristic: beacon.CharWeightMeasurement, Data: data, At: time.Now()}:
		case <-c.stop:
			return
		}
	}
	c.dropOnce.Do(func() { close(c.done) })
}

func (c *demoConn) Done() <-chan struct{} { return c.done }

func (c *demoConn) Close() error {
	c.dropOnce.Do(func() { close(c.done) })
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}
