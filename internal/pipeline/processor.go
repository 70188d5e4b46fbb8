package pipeline

import (
	"errors"
	"log/slog"

	"scale-scanner.klederson.com/internal/beacon"
	"scale-scanner.klederson.com/internal/measure"
)

// Config tunes the per-device stages after decoding.
type Config struct {
	StableThreshold int
	StableTolerance float64
	DedupTolerance  float64
	// ReportDropped also surfaces malformed frames, for debug output.
	ReportDropped bool
}

func DefaultConfig() Config {
	return Config{
		StableThreshold: measure.DefaultStableThreshold,
		StableTolerance: measure.DefaultStableTolerance,
		DedupTolerance:  measure.AdvertisementTolerance,
	}
}

// Update is what a processor hands outward: either a measurement worth
// emitting or a decode failure a human should see.
type Update struct {
	DeviceID    string
	DeviceName  string
	RSSI        int16
	Kind        beacon.FrameKind
	Measurement *measure.Measurement
	Err         error
}

// Processor is the per-device session record: stability and dedup state for
// one device, fed sequentially. It is not safe for concurrent use.
type Processor struct {
	decoder   *Decoder
	stability *measure.StabilityTracker
	dedup     *measure.Deduper
	reported  map[error]bool
	logger    *slog.Logger

	reportDropped bool
}

func NewProcessor(decoder *Decoder, cfg Config, logger *slog.Logger) *Processor {
	return &Processor{
		decoder:   decoder,
		stability: measure.NewStabilityTracker(cfg.StableThreshold, cfg.StableTolerance),
		dedup:     measure.NewDeduper(cfg.DedupTolerance),
		reported:  make(map[error]bool),
		logger:    logger,

		reportDropped: cfg.ReportDropped,
	}
}

// reportable failures surface once per device; everything else is radio noise.
var reportable = []error{beacon.ErrMissingKeyMaterial, beacon.ErrAuthenticationFailed}

// Process decodes one frame and reports whether the result should be emitted.
func (p *Processor) Process(f Frame) (Update, bool) {
	kind, m, err := p.decoder.Decode(f)
	u := Update{DeviceID: f.DeviceID, DeviceName: f.DeviceName, RSSI: f.RSSI, Kind: kind}

	if err != nil {
		for _, target := range reportable {
			if errors.Is(err, target) {
				if p.reported[target] {
					p.logger.Debug("repeated decode failure", "device", f.DeviceID, "error", err)
					return u, false
				}
				p.reported[target] = true
				u.Err = err
				return u, true
			}
		}
		if !errors.Is(err, beacon.ErrUnrecognized) {
			p.logger.Debug("frame dropped", "device", f.DeviceID, "origin", f.Origin.String(), "kind", kind.String(), "error", err)
			if p.reportDropped {
				u.Err = err
				return u, true
			}
		}
		return u, false
	}
	if m == nil {
		return u, false
	}

	p.stability.Annotate(m)
	if !p.dedup.Changed(m) {
		return u, false
	}
	u.Measurement = m
	return u, true
}

// Reset starts a fresh session, as after a reconnect.
func (p *Processor) Reset() {
	p.stability.Reset()
	p.dedup.Reset()
}
