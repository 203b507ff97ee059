package core

// Ticker is the free-running millisecond counter driven by a periodic
// interrupt. The counter is 64 bits wide, so on 32-bit cores every access
// happens with interrupts masked to avoid a torn read.
type Ticker struct {
	src     PeriodicSource
	rate    uint32
	ticks   uint64
	slept   uint64 // ms credited for spans the ticker sat out
	enabled bool
}

// NewTicker wraps a periodic interrupt source. The ticker starts disabled.
func NewTicker(src PeriodicSource) *Ticker {
	rate := src.RateHz()
	if rate == 0 {
		rate = 1000
	}
	return &Ticker{src: src, rate: rate}
}

// HandleInterrupt is the body of the tick ISR.
func (t *Ticker) HandleInterrupt() {
	if t.enabled {
		t.ticks++
	}
}

// Enable resumes counting. Time spent disabled is not recovered.
func (t *Ticker) Enable() {
	state := disableInterrupts()
	t.enabled = true
	restoreInterrupts(state)
	t.src.EnableIRQ()
}

// Disable stops the periodic interrupt so it cannot end a low-power wait.
func (t *Ticker) Disable() {
	t.src.DisableIRQ()
	state := disableInterrupts()
	t.enabled = false
	restoreInterrupts(state)
}

// IsEnabled reports whether the ticker is counting.
func (t *Ticker) IsEnabled() bool {
	state := disableInterrupts()
	on := t.enabled
	restoreInterrupts(state)
	return on
}

// Ticks returns the raw interrupt count.
func (t *Ticker) Ticks() uint64 {
	state := disableInterrupts()
	n := t.ticks
	restoreInterrupts(state)
	return n
}

// Read returns MonotonicTick: milliseconds since boot, excluding time the
// ticker spent disabled.
func (t *Ticker) Read() uint64 {
	n := t.Ticks()
	if t.rate == 1000 {
		return n
	}
	// Split to keep n*1000 from overflowing on long uptimes.
	r := uint64(t.rate)
	return (n/r)*1000 + (n%r)*1000/r
}

// Credit adds ms of low-power time to Elapsed. Read is unaffected.
func (t *Ticker) Credit(ms uint32) {
	state := disableInterrupts()
	t.slept += uint64(ms)
	restoreInterrupts(state)
}

// Elapsed returns Read plus every credited sleep span: milliseconds since
// boot including time spent hibernating. Housekeeping intervals run on it.
func (t *Ticker) Elapsed() uint64 {
	state := disableInterrupts()
	slept := t.slept
	restoreInterrupts(state)
	return t.Read() + slept
}

// RateHz reports the true tick rate of the backing source.
func (t *Ticker) RateHz() uint32 {
	return t.rate
}
