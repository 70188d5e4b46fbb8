package bluetooth

import "scale-scanner.klederson.com/internal/beacon"

// LookupManufacturer returns a human-readable name for a Bluetooth SIG company ID.
// See: https://www.bluetooth.com/specifications/assigned-numbers/
func LookupManufacturer(companyID uint16) string {
	if name, ok := companyNames[companyID]; ok {
		return name
	}
	return ""
}

// Vendors whose scales or wearables commonly show up next to a scale.
var companyNames = map[uint16]string{
	beacon.VendorCompanyID: "Huami",
	0x038F:                 "Xiaomi",
	0x0310:                 "Xiaomi",
	0x004C:                 "Apple",
	0x0006:                 "Microsoft",
	0x00E0:                 "Google",
	0x0075:                 "Samsung",
	0x0087:                 "Garmin",
	0x0473:                 "Withings",
	0x03DA:                 "Fitbit",
	0x0822:                 "Tuya",
	0x0269:                 "Oura",
	0x0499:                 "Ruuvi",
	0x0059:                 "Nordic",
	0x015D:                 "Espressif",
}
