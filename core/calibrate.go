package core

import "tickhal/x/mathx"

// Calibrator measures how many ticker milliseconds elapse during N cycles of
// the reference oscillator. The result is the CalibrationFactor used to turn
// a sleep request in ms into native wake counter cycles.
type Calibrator struct {
	mono     Monotonic
	ticker   *Ticker
	ref      WakeCounter
	relax    func()
	cycles   uint32
	factor   uint32
	interval uint64
	timeout  uint64
	shared   bool

	last     uint64 // Ticker.Elapsed at the last attempt
	measured bool   // factor came from a measurement
	runs     uint32
	failures uint32
}

// NewCalibrator seeds the factor from the oscillator's nominal rate, so it
// is usable before the first measurement.
func NewCalibrator(ticker *Ticker, ref WakeCounter, cfg Config, relax func()) *Calibrator {
	return &Calibrator{
		mono:     ticker,
		ticker:   ticker,
		ref:      ref,
		relax:    relax,
		cycles:   cfg.CalibrationCycles,
		factor:   nominalFactor(cfg.CalibrationCycles, ref.RateHz()),
		interval: uint64(cfg.CalibrationIntervalMs),
		timeout:  uint64(cfg.CalibrationTimeoutMs),
		shared:   cfg.ReferenceSharesTicker,
	}
}

// Factor returns the current CalibrationFactor. Always > 0.
func (c *Calibrator) Factor() uint32 { return c.factor }

// Cycles returns N.
func (c *Calibrator) Cycles() uint32 { return c.cycles }

// Measured reports whether the factor has been measured at least once.
func (c *Calibrator) Measured() bool { return c.measured }

// Stats returns the number of measurements stored and absorbed failures.
func (c *Calibrator) Stats() (runs, failures uint32) { return c.runs, c.failures }

// SetInterval changes the refresh period.
func (c *Calibrator) SetInterval(ms uint32) { c.interval = uint64(ms) }

// Due reports whether a refresh is needed at now, a Ticker.Elapsed reading.
// A reference that shares the ticker's source is never due.
func (c *Calibrator) Due(now uint64) bool {
	if c.shared {
		return false
	}
	if c.runs == 0 && c.failures == 0 {
		return true
	}
	return now-c.last >= c.interval
}

// Cost is the wall time a calibration is expected to take, in ms.
func (c *Calibrator) Cost() uint32 {
	return c.factor + calibrationMarginMs
}

// Calibrate measures the factor now. On failure the previous factor is kept
// and the error is returned for the caller to log.
func (c *Calibrator) Calibrate() error {
	return c.calibrate(c.timeout)
}

// calibrate polls the reference for at most limitMs of ticker time.
func (c *Calibrator) calibrate(limitMs uint64) error {
	if c.shared {
		return nil
	}
	if !c.ticker.IsEnabled() {
		return opErr(NotInitialized, "calibrate", nil)
	}
	if c.ref.Armed() {
		return opErr(BadArgument, "calibrate: counter busy", nil)
	}

	t0 := c.ticker.Read()
	c.last = c.ticker.Elapsed()
	start := c.mono.Read()
	c.ref.Start(c.cycles - 1)
	for !c.ref.Fired() {
		if c.mono.Read()-start >= limitMs {
			c.ref.Stop()
			c.failures++
			RecordTiming(EvtCalFail, Light, c.ticker.Read(), c.factor, 0)
			return opErr(Timeout, "calibrate", nil)
		}
		if c.relax != nil {
			c.relax()
		}
	}
	t1 := c.ticker.Read()
	c.ref.Stop()

	measured := t1 - t0
	if measured == 0 {
		measured = 1
	}
	if measured > 0xFFFFFFFF {
		measured = 0xFFFFFFFF
	}
	c.factor = uint32(measured)
	c.measured = true
	c.runs++
	RecordTiming(EvtCalibrate, Light, t1, c.factor, c.cycles)
	return nil
}

// MaybeCalibrate refreshes the factor if it is due and the caller's budget
// can absorb the cost. The measurement gives up once the budget is used, so
// it never outlasts the caller's sleep. It returns the ms spent, which the
// caller must take out of its budget. Failures are absorbed.
func (c *Calibrator) MaybeCalibrate(budgetMs uint64) (spentMs uint64) {
	if !c.Due(c.ticker.Elapsed()) || budgetMs <= uint64(c.Cost()) {
		return 0
	}
	start := c.ticker.Read()
	if err := c.calibrate(mathx.Min(c.timeout, budgetMs)); err != nil {
		DebugPrintln("[CAL] " + err.Error() + ", keeping factor " + utoa(c.factor))
	}
	return c.ticker.Read() - start
}
