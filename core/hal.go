package core

// SleepMode selects how deep the CPU goes while waiting for an interrupt.
// Modes are ordered: a larger value is a deeper state.
type SleepMode uint8

const (
	Light SleepMode = iota // core clock gated, peripherals running
	Deep                   // high-speed clocks stopped, reference oscillator running
	Max                    // everything but the wake source powered down
)

func (m SleepMode) String() string {
	switch m {
	case Light:
		return "light"
	case Deep:
		return "deep"
	case Max:
		return "max"
	default:
		return "mode(" + itoa(int(m)) + ")"
	}
}

// PeriodicSource is the hardware interrupt that drives the Ticker.
type PeriodicSource interface {
	// EnableIRQ starts (or resumes) the periodic interrupt.
	EnableIRQ()

	// DisableIRQ stops the periodic interrupt. No tick may be delivered
	// after it returns.
	DisableIRQ()

	// RateHz reports the true interrupt rate. Backends whose divider cannot
	// hit 1000 Hz exactly must report what they actually run at.
	RateHz() uint32
}

// WakeCounter is the one-shot counter on the reference oscillator that
// wakes the core from low power. Periods are in native reference cycles.
type WakeCounter interface {
	// Start programs the counter to fire after period+1 native cycles and
	// enables its interrupt.
	Start(period uint32)

	// Stop halts the counter and reports how many native cycles elapsed
	// since Start. The value is capped at period+1.
	Stop() (elapsed uint32)

	// Armed reports whether the counter is running and has not fired.
	Armed() bool

	// Fired reports whether the counter reached its period since the last
	// Start. It stays set until the next Start.
	Fired() bool

	// MaxPeriod is the largest value Start accepts (register width).
	MaxPeriod() uint32

	// RateHz is the nominal reference oscillator rate.
	RateHz() uint32
}

// RTCCounter is a dedicated real-time-clock peripheral counting seconds.
type RTCCounter interface {
	// Present reports whether the peripheral answered. When it returns
	// false the emulated wall clock is used instead.
	Present() bool

	ReadSeconds() (uint32, error)
	WriteSeconds(s uint32) error
}

// LowPowerCPU issues the wait-for-interrupt instruction in a given mode.
// It returns after any interrupt, including ones masked by PRIMASK.
type LowPowerCPU interface {
	WaitForInterrupt(mode SleepMode)
}

// Monotonic is the clock bounded polls are measured against.
type Monotonic interface {
	Read() uint64
}

// EpochStore persists the emulated wall clock across warm resets
// (backup registers, retained RAM, watchdog scratch).
type EpochStore interface {
	LoadEpoch() (seconds uint32, ok bool)
	SaveEpoch(seconds uint32) error
}

// Hardware bundles the peripherals the timing core is built on.
// RTC, Store and Relax are optional.
type Hardware struct {
	Ticker PeriodicSource
	Wake   WakeCounter
	RTC    RTCCounter
	CPU    LowPowerCPU
	Store  EpochStore

	// Relax is called on every iteration of a busy poll. On hardware it is
	// usually nil or a single nop.
	Relax func()
}

func (hw *Hardware) validate() error {
	if hw.Ticker == nil || hw.Wake == nil || hw.CPU == nil {
		return opErr(BadArgument, "hardware", nil)
	}
	if hw.Ticker.RateHz() == 0 {
		return opErr(BadArgument, "ticker rate", nil)
	}
	return nil
}

func (hw *Hardware) relax() {
	if hw.Relax != nil {
		hw.Relax()
	}
}
