package beacon

import (
	"fmt"
	"strings"
)

// Assigned numbers the classifier routes on.
const (
	ServiceBodyComposition uint16 = 0x181B
	ServiceWeightScale     uint16 = 0x181D
	ServiceMiBeacon        uint16 = 0xFE95

	VendorCompanyID uint16 = 0x0157

	legacyMinLen = 10
)

// Characteristic UUIDs in the lower-case 128-bit form.
const (
	CharWeightMeasurement          = "00002a9d-0000-1000-8000-00805f9b34fb"
	CharBodyCompositionMeasurement = "00002a9c-0000-1000-8000-00805f9b34fb"
	CharVendorHistory              = "00002a2f-0000-3512-2118-0009af100700"

	baseUUIDSuffix = "-0000-1000-8000-00805f9b34fb"
)

type OriginKind int

const (
	OriginServiceData OriginKind = iota + 1
	OriginManufacturer
	OriginCharacteristic
)

// Origin tags a buffer with where the radio found it.
type Origin struct {
	Kind           OriginKind
	ServiceUUID    uint16
	CompanyID      uint16
	Characteristic string
}

func ServiceData(uuid uint16) Origin {
	return Origin{Kind: OriginServiceData, ServiceUUID: uuid}
}

func Manufacturer(companyID uint16) Origin {
	return Origin{Kind: OriginManufacturer, CompanyID: companyID}
}

func Characteristic(uuid string) Origin {
	return Origin{Kind: OriginCharacteristic, Characteristic: NormalizeUUID(uuid)}
}

func (o Origin) String() string {
	switch o.Kind {
	case OriginServiceData:
		return fmt.Sprintf("service:%04x", o.ServiceUUID)
	case OriginManufacturer:
		return fmt.Sprintf("manufacturer:%04x", o.CompanyID)
	case OriginCharacteristic:
		return "characteristic:" + o.Characteristic
	default:
		return "unknown"
	}
}

// NormalizeUUID lower-cases a UUID and expands 16-bit short forms onto the
// Bluetooth base UUID.
func NormalizeUUID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	if len(s) == 4 {
		return "0000" + s + baseUUIDSuffix
	}
	return s
}

// FrameKind is the decode strategy family chosen once per buffer.
type FrameKind int

const (
	KindUnrecognized FrameKind = iota
	KindLegacy
	KindMiBeacon
	KindVendorManufacturer
	KindWeightCharacteristic
	KindBodyCompositionCharacteristic
	KindVendorNotification
	KindGenericCharacteristic
)

func (k FrameKind) String() string {
	switch k {
	case KindLegacy:
		return "legacy"
	case KindMiBeacon:
		return "mibeacon"
	case KindVendorManufacturer:
		return "vendor-manufacturer"
	case KindWeightCharacteristic:
		return "weight-measurement"
	case KindBodyCompositionCharacteristic:
		return "body-composition"
	case KindVendorNotification:
		return "vendor-notification"
	case KindGenericCharacteristic:
		return "characteristic"
	default:
		return "unrecognized"
	}
}

// Classify resolves the frame kind from the origin and leading bytes. An
// unrecognized buffer yields ErrUnrecognized, which callers drop silently.
func Classify(origin Origin, data []byte) (FrameKind, []byte, error) {
	switch origin.Kind {
	case OriginServiceData:
		switch origin.ServiceUUID {
		case ServiceWeightScale, ServiceBodyComposition:
			if len(data) >= legacyMinLen {
				return KindLegacy, data, nil
			}
		case ServiceMiBeacon:
			if _, err := ParseFrameControl(data); err != nil {
				return KindUnrecognized, nil, err
			}
			return KindMiBeacon, data, nil
		}
	case OriginManufacturer:
		if origin.CompanyID == VendorCompanyID {
			return KindVendorManufacturer, data, nil
		}
	case OriginCharacteristic:
		switch NormalizeUUID(origin.Characteristic) {
		case CharWeightMeasurement:
			return KindWeightCharacteristic, data, nil
		case CharBodyCompositionMeasurement:
			return KindBodyCompositionCharacteristic, data, nil
		case CharVendorHistory:
			return KindVendorNotification, data, nil
		default:
			return KindGenericCharacteristic, data, nil
		}
	}
	return KindUnrecognized, nil, ErrUnrecognized
}
