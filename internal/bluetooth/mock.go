package bluetooth

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand"
	"time"

	"scale-scanner.klederson.com/internal/beacon"
	"scale-scanner.klederson.com/internal/config"
	"scale-scanner.klederson.com/internal/measure"
)

type demoFormat int

const (
	demoLegacy demoFormat = iota
	demoPlainObjects
	demoEncryptedCompact
	demoBystander
)

var demoTemplates = []struct {
	Name   string
	Format demoFormat
}{
	{"MIBCS", demoLegacy},
	{"MIBFS", demoPlainObjects},
	{"XMTZC05HM", demoEncryptedCompact},
	{"iPhone 15 Pro", demoBystander},
	{"Galaxy Buds Pro", demoBystander},
	{"Apple Watch", demoBystander},
}

// Step-on cycle, in ticks: settle, hold, step off.
const (
	demoRamp  = 5
	demoHold  = 5
	demoCycle = demoRamp + demoHold + 2
)

type demoDevice struct {
	mac      string
	addr     beacon.Address
	name     string
	format   demoFormat
	key      [beacon.KeySize]byte
	baseRSSI float64
	phase    float64

	target    float64
	impedance float64
	heartRate int
	seq       byte
	counter   uint32
}

// DemoScale synthesizes scale advertisements for --demo: a legacy scale, a
// plain object-stream beacon, an encrypted compact beacon and a few
// bystanders with no scale data.
type DemoScale struct {
	rnd     *rand.Rand
	devices []*demoDevice
	tick    int
	every   time.Duration
}

func NewDemoScale(seed int64) *DemoScale {
	rnd := rand.New(rand.NewSource(seed))
	s := &DemoScale{rnd: rnd, every: config.DemoInterval}
	for _, tmpl := range demoTemplates {
		b := make([]byte, 6)
		rnd.Read(b)
		addr := beacon.Address(b)
		d := &demoDevice{
			mac:      addr.String(),
			addr:     addr,
			name:     tmpl.Name,
			format:   tmpl.Format,
			baseRSSI: -45 - rnd.Float64()*40,
			phase:    rnd.Float64() * 2 * math.Pi,
		}
		rnd.Read(d.key[:])
		s.pickPerson(d)
		s.devices = append(s.devices, d)
	}
	return s
}

func (s *DemoScale) pickPerson(d *demoDevice) {
	d.target = math.Round((55+s.rnd.Float64()*40)*10) / 10
	d.impedance = float64(400 + s.rnd.Intn(300))
	d.heartRate = 60 + s.rnd.Intn(30)
}

// Keys returns the hex bind key of every encrypting demo device by id.
func (s *DemoScale) Keys() map[string]string {
	out := make(map[string]string)
	for _, d := range s.devices {
		if d.format == demoEncryptedCompact {
			out[d.mac] = hex.EncodeToString(d.key[:])
		}
	}
	return out
}

// Scan emits one round of advertisements per interval until ctx is done.
func (s *DemoScale) Scan(ctx context.Context, handle func(Advertisement)) error {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, adv := range s.Tick() {
				handle(adv)
			}
		}
	}
}

// Tick advances the simulation one step and returns what was advertised.
func (s *DemoScale) Tick() []Advertisement {
	s.tick++
	now := time.Now()
	step := s.tick % demoCycle

	out := make([]Advertisement, 0, len(s.devices))
	for _, d := range s.devices {
		rssi := d.baseRSSI + 6*math.Sin(float64(s.tick)*0.3+d.phase) + (s.rnd.Float64()-0.5)*3
		adv := Advertisement{Address: d.mac, Name: d.name, RSSI: int16(rssi), At: now}

		if d.format == demoBystander {
			adv.Manufacturer = []ManufacturerData{{CompanyID: 0x004C, Data: []byte{0x10, 0x05, 0x01, byte(s.tick)}}}
			out = append(out, adv)
			continue
		}

		if step == 0 {
			s.pickPerson(d)
		}
		weight, settled, off := s.reading(d, step)
		sd, err := s.encode(d, weight, settled, off)
		if err != nil {
			continue
		}
		adv.ServiceData = []ServiceData{sd}
		out = append(out, adv)
	}
	return out
}

func (s *DemoScale) reading(d *demoDevice, step int) (weight float64, settled, off bool) {
	switch {
	case step < demoRamp:
		frac := float64(step+1) / demoRamp
		noise := (s.rnd.Float64() - 0.5) * 2 * (1 - frac)
		return math.Round((d.target*frac+noise)*10) / 10, false, false
	case step < demoRamp+demoHold:
		return d.target, true, false
	default:
		return d.target, true, true
	}
}

func (s *DemoScale) encode(d *demoDevice, weight float64, settled, off bool) (ServiceData, error) {
	switch d.format {
	case demoLegacy:
		data := make([]byte, 15)
		ctrl := byte(0x80)
		if settled {
			ctrl |= 0x10
		}
		if off {
			ctrl |= 0x20
		}
		data[0] = ctrl
		binary.LittleEndian.PutUint16(data[1:3], uint16(math.Round(weight*100)))
		binary.LittleEndian.PutUint16(data[13:15], uint16(d.impedance))
		return ServiceData{UUID: beacon.ServiceBodyComposition, Data: data}, nil

	case demoPlainObjects:
		var payload []byte
		payload = measure.AppendObject(payload, measure.ObjectWeight,
			binary.LittleEndian.AppendUint16(nil, uint16(math.Round(weight*100))))
		if settled {
			payload = measure.AppendObject(payload, measure.ObjectImpedance,
				binary.LittleEndian.AppendUint16(nil, uint16(d.impedance)))
		}
		d.seq++
		f := beacon.Frame{ProductID: 0x0a83, Sequence: d.seq, Address: d.addr, EmbedAddress: true, Payload: payload}
		return ServiceData{UUID: beacon.ServiceMiBeacon, Data: f.Plain()}, nil

	case demoEncryptedCompact:
		var hr, imp uint32
		if settled {
			hr = uint32(d.heartRate - 50)
			imp = uint32(d.impedance * 10)
		}
		d.seq++
		d.counter++
		f := beacon.Frame{
			ProductID:    0x2a5f,
			Sequence:     d.seq,
			Address:      d.addr,
			EmbedAddress: d.seq%2 == 0,
			Payload:      measure.PackCompact(1, uint32(math.Round(weight*10)), hr, imp, uint32(time.Now().Unix())),
		}
		f.Counter = [3]byte{byte(d.counter), byte(d.counter >> 8), byte(d.counter >> 16)}
		data, err := f.Encrypt(d.key)
		if err != nil {
			return ServiceData{}, fmt.Errorf("demo encrypt: %w", err)
		}
		return ServiceData{UUID: beacon.ServiceMiBeacon, Data: data}, nil
	}
	return ServiceData{}, fmt.Errorf("unknown demo format %d", d.format)
}
