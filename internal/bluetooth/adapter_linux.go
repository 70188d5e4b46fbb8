package bluetooth

import (
	"log/slog"

	"tinygo.org/x/bluetooth"
)

// adapterFor returns the BlueZ adapter named id, such as "hci1".
func adapterFor(id string, _ *slog.Logger) *bluetooth.Adapter {
	if id == "" || id == DefaultAdapterID {
		return bluetooth.DefaultAdapter
	}
	return bluetooth.NewAdapter(id)
}
