//go:build !linux

package bluetooth

import (
	"log/slog"

	"tinygo.org/x/bluetooth"
)

// adapterFor always returns the system adapter; only BlueZ names adapters.
func adapterFor(id string, logger *slog.Logger) *bluetooth.Adapter {
	if id != "" && id != DefaultAdapterID {
		logger.Warn("adapter selection is only supported on Linux, using the default adapter", "adapter", id)
	}
	return bluetooth.DefaultAdapter
}
