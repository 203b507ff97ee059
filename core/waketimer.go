package core

import "tickhal/x/mathx"

// WakeTimer arms the reference-oscillator counter for a one-shot wake and
// accounts for the span in milliseconds using the calibration factor.
type WakeTimer struct {
	hw  WakeCounter
	cal *Calibrator

	armed   bool
	fired   bool // set by the wake ISR
	native  uint64
	armedMs uint32
	clamps  uint32
}

// NewWakeTimer binds a counter to the calibrator whose factor converts ms.
func NewWakeTimer(hw WakeCounter, cal *Calibrator) *WakeTimer {
	return &WakeTimer{hw: hw, cal: cal}
}

// HandleInterrupt is the body of the wake ISR.
func (w *WakeTimer) HandleInterrupt() {
	if w.armed {
		w.fired = true
	}
}

// maxNative is the longest span the counter can hold, in native cycles.
// The period register holds cycles-1.
func (w *WakeTimer) maxNative() uint64 {
	return uint64(w.hw.MaxPeriod()) + 1
}

func (w *WakeTimer) toMs(native uint64) uint64 {
	return mathx.CeilDiv(native*uint64(w.cal.Factor()), uint64(w.cal.Cycles()))
}

// MaxSpanMs is the longest span Arm can program with the current factor.
func (w *WakeTimer) MaxSpanMs() uint32 {
	ms := w.maxNative() * uint64(w.cal.Factor()) / uint64(w.cal.Cycles())
	return uint32(mathx.Min(ms, 0xFFFFFFFF))
}

// Arm programs a wake after ms and returns the span actually armed, which
// is what the caller must account for. Requests past the counter's range
// are clamped. 0 means nothing was armed: the request is shorter than one
// native cycle.
func (w *WakeTimer) Arm(ms uint32) uint32 {
	if w.armed {
		w.Disarm()
	}
	n := uint64(w.cal.Cycles())
	native := uint64(ms) * n / uint64(w.cal.Factor())
	clamped := false
	if limit := w.maxNative(); native > limit {
		native = limit
		clamped = true
	}
	if native == 0 {
		return 0
	}
	armedMs := uint32(mathx.Min(w.toMs(native), uint64(ms)))
	if clamped {
		w.clamps++
		RecordTiming(EvtClamp, Light, 0, ms, armedMs)
	}

	state := disableInterrupts()
	w.native = native
	w.armedMs = armedMs
	w.fired = false
	w.armed = true
	// Register convention: a period of p fires after p+1 cycles.
	w.hw.Start(uint32(native - 1))
	restoreInterrupts(state)
	return armedMs
}

// Pending reports whether the timer is armed and has not fired yet.
func (w *WakeTimer) Pending() bool {
	state := disableInterrupts()
	p := w.armed && !w.fired
	restoreInterrupts(state)
	return p
}

// Disarm stops the counter and reports how much of the armed span elapsed.
// A fire that raced the stop counts as the full span.
func (w *WakeTimer) Disarm() uint32 {
	state := disableInterrupts()
	if !w.armed {
		restoreInterrupts(state)
		return 0
	}
	fired := w.fired
	elapsed := uint64(w.hw.Stop())
	if !fired && w.hw.Fired() {
		fired = true
	}
	w.armed = false
	w.fired = false
	armedMs := w.armedMs
	restoreInterrupts(state)

	if fired || elapsed >= w.native {
		return armedMs
	}
	ms := elapsed * uint64(w.cal.Factor()) / uint64(w.cal.Cycles())
	return uint32(mathx.Min(ms, uint64(armedMs)))
}

// Clamps counts requests that exceeded the counter's range.
func (w *WakeTimer) Clamps() uint32 { return w.clamps }
