package bluetooth

import (
	"sort"
	"sync"
	"time"

	"scale-scanner.klederson.com/internal/beacon"
	"scale-scanner.klederson.com/internal/config"
	"scale-scanner.klederson.com/internal/measure"
)

type entry struct {
	dev     Device
	history *WeightRing
}

// DeviceStore is a thread-safe store for seen devices and their readings.
type DeviceStore struct {
	mu      sync.RWMutex
	devices map[string]*entry
	now     func() time.Time
}

func NewDeviceStore() *DeviceStore {
	return &DeviceStore{
		devices: make(map[string]*entry),
		now:     time.Now,
	}
}

// Upsert records a sighting and reports whether the device is new.
// RSSI is smoothed using EMA.
func (s *DeviceStore) Upsert(id, name string, rssi float64, scale bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.devices[id]; ok {
		e.dev.RSSI = e.dev.RSSI*(1-config.SmoothingAlpha) + rssi*config.SmoothingAlpha
		e.dev.LastSeen = now
		e.dev.Scale = e.dev.Scale || scale
		if name != "" {
			e.dev.Name = name
		}
		return false
	}

	s.devices[id] = &entry{
		dev: Device{
			ID:        id,
			Name:      name,
			RSSI:      rssi,
			FirstSeen: now,
			LastSeen:  now,
			Scale:     scale,
		},
		history: NewWeightRing(config.WeightHistory),
	}
	return true
}

// Record attaches a decoded measurement to a device, creating it if needed.
func (s *DeviceStore) Record(id string, kind beacon.FrameKind, m *measure.Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(id)
	e.dev.Kind = kind
	e.dev.Last = m
	e.dev.Readings++
	e.dev.Problem = ""
	e.dev.Scale = true
	if m != nil && m.WeightKg != nil {
		e.history.Push(*m.WeightKg)
	}
}

// Fail notes a decode problem worth showing.
func (s *DeviceStore) Fail(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryLocked(id).dev.Problem = err.Error()
}

func (s *DeviceStore) entryLocked(id string) *entry {
	if e, ok := s.devices[id]; ok {
		e.dev.LastSeen = s.now()
		return e
	}
	now := s.now()
	e := &entry{
		dev:     Device{ID: id, FirstSeen: now, LastSeen: now, RSSI: -100},
		history: NewWeightRing(config.WeightHistory),
	}
	s.devices[id] = e
	return e
}

// Evict removes devices not seen within the timeout duration.
// Returns the number of evicted devices.
func (s *DeviceStore) Evict(timeout time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-timeout)
	count := 0
	for id, e := range s.devices {
		if e.dev.LastSeen.Before(cutoff) {
			delete(s.devices, id)
			count++
		}
	}
	return count
}

// Snapshot returns copies of all devices: scales first, then strongest RSSI.
func (s *DeviceStore) Snapshot() []*Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Device, 0, len(s.devices))
	for _, e := range s.devices {
		cp := e.dev
		cp.History = e.history.Values()
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Scale != result[j].Scale {
			return result[i].Scale
		}
		if result[i].RSSI != result[j].RSSI {
			return result[i].RSSI > result[j].RSSI
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (s *DeviceStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}

// CountScales returns how many devices look like scales and how many of
// those produced a measurement.
func (s *DeviceStore) CountScales() (scales, measuring int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.devices {
		if e.dev.Scale {
			scales++
		}
		if e.dev.Last != nil {
			measuring++
		}
	}
	return
}
