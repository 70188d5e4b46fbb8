package bluetooth

import (
	"time"

	"scale-scanner.klederson.com/internal/beacon"
	"scale-scanner.klederson.com/internal/pipeline"
)

// ServiceData is one 16-bit service data element of an advertisement.
type ServiceData struct {
	UUID uint16
	Data []byte
}

// ManufacturerData is one manufacturer specific element.
type ManufacturerData struct {
	CompanyID uint16
	Data      []byte
}

// Advertisement is a scan result reduced to what decoding needs.
type Advertisement struct {
	Address      string
	Name         string
	RSSI         int16
	ServiceData  []ServiceData
	Manufacturer []ManufacturerData
	At           time.Time
}

// Frames splits the advertisement into one frame per data element.
func (a Advertisement) Frames() []pipeline.Frame {
	frames := make([]pipeline.Frame, 0, len(a.ServiceData)+len(a.Manufacturer))
	for _, sd := range a.ServiceData {
		frames = append(frames, a.frame(beacon.ServiceData(sd.UUID), sd.Data))
	}
	for _, md := range a.Manufacturer {
		frames = append(frames, a.frame(beacon.Manufacturer(md.CompanyID), md.Data))
	}
	return frames
}

func (a Advertisement) frame(origin beacon.Origin, data []byte) pipeline.Frame {
	return pipeline.Frame{
		DeviceID:   a.Address,
		DeviceName: a.Name,
		Origin:     origin,
		Data:       data,
		RSSI:       a.RSSI,
		At:         a.At,
	}
}

// CarriesScaleData reports whether any element sits under a scale service
// or the vendor company id.
func (a Advertisement) CarriesScaleData() bool {
	for _, sd := range a.ServiceData {
		switch sd.UUID {
		case beacon.ServiceBodyComposition, beacon.ServiceWeightScale, beacon.ServiceMiBeacon:
			return true
		}
	}
	for _, md := range a.Manufacturer {
		if md.CompanyID == beacon.VendorCompanyID {
			return true
		}
	}
	return false
}
