package core

// Config tunes the timing core. Zero fields take the defaults below.
type Config struct {
	// CalibrationCycles is N, the number of reference cycles measured per
	// calibration. 0 selects 512.
	CalibrationCycles uint32

	// CalibrationIntervalMs is how often the factor is refreshed.
	// 0 selects 30 minutes.
	CalibrationIntervalMs uint32

	// CalibrationTimeoutMs bounds the wait for the reference counter.
	// 0 selects twice the nominal measurement plus 10 ms.
	CalibrationTimeoutMs uint32

	// ReferenceSharesTicker is set when the wake counter runs from the same
	// clock as the ticker, in which case calibration is skipped and the
	// nominal factor is used.
	ReferenceSharesTicker bool

	// ModeCeiling is the deepest mode hibernate may use.
	// The zero value is Light, so DefaultConfig sets Max.
	ModeCeiling SleepMode

	// PersistIntervalMs is how often the emulated epoch is written to the
	// EpochStore. 0 selects 60 s.
	PersistIntervalMs uint32

	// UptimeAtInit seeds the uptime origin, for warm restarts that carry
	// uptime over. Usually 0.
	UptimeAtInit uint32
}

const (
	defaultCalibrationCycles   = 512
	defaultCalibrationInterval = 30 * 60 * 1000
	defaultPersistInterval     = 60 * 1000
	calibrationMarginMs        = 2
)

// DefaultConfig returns the configuration used when the target supplies none.
func DefaultConfig() Config {
	cfg := Config{ModeCeiling: Max}
	cfg.applyDefaults(0)
	return cfg
}

// applyDefaults fills in missing values. refHz is the wake counter's
// nominal rate, needed to size the calibration timeout.
func (c *Config) applyDefaults(refHz uint32) {
	if c.CalibrationCycles == 0 {
		c.CalibrationCycles = defaultCalibrationCycles
	}
	if c.CalibrationIntervalMs == 0 {
		c.CalibrationIntervalMs = defaultCalibrationInterval
	}
	if c.PersistIntervalMs == 0 {
		c.PersistIntervalMs = defaultPersistInterval
	}
	if c.CalibrationTimeoutMs == 0 && refHz != 0 {
		c.CalibrationTimeoutMs = 2*nominalFactor(c.CalibrationCycles, refHz) + 10
	}
}

// Validate reports out-of-range settings.
func (c *Config) Validate() error {
	if c.ModeCeiling > Max {
		return opErr(BadArgument, "mode ceiling", nil)
	}
	if c.CalibrationCycles == 0 {
		return opErr(BadArgument, "calibration cycles", nil)
	}
	return nil
}

// nominalFactor is the ticker ms that N reference cycles should take at the
// oscillator's nominal rate. Never 0.
func nominalFactor(cycles, refHz uint32) uint32 {
	if refHz == 0 {
		refHz = 1
	}
	f := uint64(cycles) * 1000 / uint64(refHz)
	if f == 0 {
		return 1
	}
	if f > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(f)
}
