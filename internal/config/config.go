package config

import "time"

const (
	// Stability and dedup
	StableThreshold        = 3    // Consecutive matching weights before a reading is stable
	StableTolerance        = 0.05 // kg
	AdvertisementDedup     = 0.1  // kg, passive mode
	NotificationDedup      = 0.05 // kg, connected mode
	DefaultScanDuration    = 30 * time.Second
	DefaultListenScanLimit = 15 * time.Second // How long listen searches for the target

	// Reconnect
	ReconnectBaseDelay   = 1 * time.Second
	ReconnectMaxDelay    = 30 * time.Second
	ReconnectMaxAttempts = 10

	// Device management
	DeviceTimeout  = 60 * time.Second // Remove devices not seen for this long
	EvictInterval  = 5 * time.Second  // How often to run eviction
	SmoothingAlpha = 0.3              // EMA smoothing factor (30% new, 70% old)
	WeightHistory  = 40               // Readings kept per device for the sparkline

	// Live view
	TargetFPS = 10

	// Demo mode
	DemoInterval = 700 * time.Millisecond

	// App
	AppName    = "SCALE-SCANNER"
	AppVersion = "1.0"
)
