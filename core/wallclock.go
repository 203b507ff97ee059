package core

// WallClock counts seconds since the Unix epoch. AddMillis and
// SubtractMillis exist for the sleep scheduler's reconciliation step only.
type WallClock interface {
	Seconds() uint32
	SetSeconds(s uint32) error
	AddMillis(ms uint32)
	SubtractMillis(ms uint32)
}

// EmulatedClock is a wall clock built on the Ticker for parts without an
// RTC peripheral. Time the ticker spends disabled must be credited back
// with AddMillis.
type EmulatedClock struct {
	mono      Monotonic
	seconds   uint32
	remainder int32 // ms not yet rolled into seconds; never negative
	last      uint64
}

// NewEmulatedClock starts counting from seconds.
func NewEmulatedClock(mono Monotonic, seconds uint32) *EmulatedClock {
	return &EmulatedClock{mono: mono, seconds: seconds, last: mono.Read()}
}

// long gaps are folded with one division before the subtraction loop
const foldThresholdMs = 1 << 16

// update moves ticker progress into the remainder and rolls whole seconds.
// Reads normally happen about once a second, so the roll is a short loop.
func (c *EmulatedClock) update() {
	now := c.mono.Read()
	delta := now - c.last
	c.last = now
	if delta >= foldThresholdMs {
		c.seconds += uint32(delta / 1000)
		delta %= 1000
	}
	c.remainder += int32(delta)
	for c.remainder >= 1000 {
		c.remainder -= 1000
		c.seconds++
	}
}

func (c *EmulatedClock) Seconds() uint32 {
	c.update()
	return c.seconds
}

// Millis returns the sub-second remainder after the last roll.
func (c *EmulatedClock) Millis() uint32 {
	c.update()
	return uint32(c.remainder)
}

func (c *EmulatedClock) SetSeconds(s uint32) error {
	c.update()
	c.seconds = s
	return nil
}

func (c *EmulatedClock) AddMillis(ms uint32) {
	c.update()
	c.seconds += ms / 1000
	c.remainder += int32(ms % 1000)
	for c.remainder >= 1000 {
		c.remainder -= 1000
		c.seconds++
	}
}

// SubtractMillis corrects the remainder downward. The correction never
// reaches into seconds already rolled: it clamps at zero.
func (c *EmulatedClock) SubtractMillis(ms uint32) {
	c.update()
	if ms >= uint32(c.remainder) {
		c.remainder = 0
		return
	}
	c.remainder -= int32(ms)
}

// HardwareClock delegates to an RTC peripheral. A failed read returns the
// last good value advanced by the ticker, so a flaky bus never moves time
// backwards.
type HardwareClock struct {
	rtc      RTCCounter
	mono     Monotonic
	cached   uint32
	cachedAt uint64
}

// NewHardwareClock wraps rtc. mono is used only to age the cached value.
func NewHardwareClock(rtc RTCCounter, mono Monotonic) *HardwareClock {
	c := &HardwareClock{rtc: rtc, mono: mono}
	if s, err := rtc.ReadSeconds(); err == nil {
		c.cached = s
		c.cachedAt = mono.Read()
	}
	return c
}

func (c *HardwareClock) Seconds() uint32 {
	now := c.mono.Read()
	s, err := c.rtc.ReadSeconds()
	if err != nil {
		est := c.cached + uint32((now-c.cachedAt)/1000)
		RecordTiming(EvtRTCFail, Light, now, est, 0)
		DebugPrintln("[CLOCK] rtc read failed: " + err.Error())
		return est
	}
	if s < c.cached {
		// The peripheral stepped backwards without a SetSeconds; hold.
		return c.cached
	}
	c.cached = s
	c.cachedAt = now
	return s
}

func (c *HardwareClock) SetSeconds(s uint32) error {
	if err := c.rtc.WriteSeconds(s); err != nil {
		code := CodeOf(err)
		if code == Unknown {
			code = NotInitialized
		}
		return opErr(code, "rtc write", err)
	}
	c.cached = s
	c.cachedAt = c.mono.Read()
	return nil
}

// The RTC keeps counting through every sleep mode; nothing to reconcile.
func (c *HardwareClock) AddMillis(ms uint32)      {}
func (c *HardwareClock) SubtractMillis(ms uint32) {}
