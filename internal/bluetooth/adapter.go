package bluetooth

import (
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// DefaultAdapterID names the adapter used when none is chosen.
const DefaultAdapterID = "hci0"

var (
	enableOnce sync.Once
	enableErr  error
)

// enable powers the adapter once per process.
func enable(adapter *bluetooth.Adapter) error {
	enableOnce.Do(func() {
		if err := adapter.Enable(); err != nil {
			enableErr = fmt.Errorf("failed to enable BLE adapter: %w (try running with sudo or setcap cap_net_admin+ep)", err)
		}
	})
	return enableErr
}

// fromScanResult copies the parts of a scan result decoding needs. Buffers
// are copied since the radio may reuse them.
func fromScanResult(result bluetooth.ScanResult) Advertisement {
	adv := Advertisement{
		Address: result.Address.String(),
		Name:    result.LocalName(),
		RSSI:    result.RSSI,
	}
	for _, sd := range result.ServiceData() {
		if !sd.UUID.Is16Bit() {
			continue
		}
		adv.ServiceData = append(adv.ServiceData, ServiceData{
			UUID: sd.UUID.Get16Bit(),
			Data: append([]byte(nil), sd.Data...),
		})
	}
	for _, md := range result.ManufacturerData() {
		adv.Manufacturer = append(adv.Manufacturer, ManufacturerData{
			CompanyID: md.CompanyID,
			Data:      append([]byte(nil), md.Data...),
		})
	}
	return adv
}
