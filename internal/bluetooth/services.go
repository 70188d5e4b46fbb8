package bluetooth

import (
	"context"
	"fmt"
	"sort"

	"tinygo.org/x/bluetooth"

	"scale-scanner.klederson.com/internal/beacon"
)

// Service is one GATT service and its characteristics, for listing.
type Service struct {
	UUID            string
	Characteristics []string
}

// Services connects to deviceID and enumerates its GATT table.
func (d *GATTDialer) Services(ctx context.Context, deviceID string) ([]Service, error) {
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
	defer func() { _ = device.Disconnect() }()

	svcs, err := device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}

	out := make([]Service, 0, len(svcs))
	for _, svc := range svcs {
		s := Service{UUID: beacon.NormalizeUUID(svc.UUID().String())}
		chars, err := svc.DiscoverCharacteristics(nil)
		if err == nil {
			for _, ch := range chars {
				s.Characteristics = append(s.Characteristics, beacon.NormalizeUUID(ch.UUID().String()))
			}
			sort.Strings(s.Characteristics)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out, nil
}
