package bluetooth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tinygo.org/x/bluetooth"
)

// BLEScanner handles Bluetooth Low Energy scanning.
type BLEScanner struct {
	adapter *bluetooth.Adapter
	logger  *slog.Logger
}

// NewBLEScanner scans on the adapter named adapterID; empty means the default.
func NewBLEScanner(adapterID string, logger *slog.Logger) *BLEScanner {
	return &BLEScanner{
		adapter: adapterFor(adapterID, logger),
		logger:  logger,
	}
}

// Scan delivers advertisements to handle until ctx is done. handle runs on
// the radio callback and must not block.
func (s *BLEScanner) Scan(ctx context.Context, handle func(Advertisement)) error {
	if err := enable(s.adapter); err != nil {
		return err
	}

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.adapter.StopScan()
		case <-stopped:
		}
	}()

	s.logger.Info("scan started")
	err := s.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if ctx.Err() != nil {
			return
		}
		adv := fromScanResult(result)
		adv.At = time.Now()
		if adv.Name == "" {
			adv.Name = vendorName(result)
		}
		handle(adv)
	})
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ble scan: %w", err)
	}
	return nil
}

// vendorName labels unnamed advertisers by manufacturer, e.g. "Xiaomi EE:FF".
func vendorName(result bluetooth.ScanResult) string {
	mfrs := result.ManufacturerData()
	if len(mfrs) == 0 {
		return ""
	}
	name := LookupManufacturer(mfrs[0].CompanyID)
	if name == "" {
		return ""
	}
	mac := result.Address.String()
	if len(mac) < 17 {
		return name
	}
	return name + " " + mac[12:]
}
