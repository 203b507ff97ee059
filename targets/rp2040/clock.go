//go:build rp2040

package main

import (
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"device/rp"

	"tickhal/core"
)

// RP2040 timer peripheral. TIMERAWL counts microseconds from clk_ref, so the
// ticker and the wake counter share one source.
const (
	timerBase     = 0x40054000
	timerALARM0   = timerBase + 0x10
	timerALARM1   = timerBase + 0x14
	timerARMED    = timerBase + 0x20
	timerTIMERAWL = timerBase + 0x28
	timerINTR     = timerBase + 0x34
	timerINTE     = timerBase + 0x38

	alarmTick = 1 << 0
	alarmWake = 1 << 1

	tickPeriodUs = 1000
	timerRateHz  = 1000000
)

var (
	alarm0  = (*volatile.Register32)(unsafe.Pointer(uintptr(timerALARM0)))
	alarm1  = (*volatile.Register32)(unsafe.Pointer(uintptr(timerALARM1)))
	armed   = (*volatile.Register32)(unsafe.Pointer(uintptr(timerARMED)))
	rawLow  = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
	intr    = (*volatile.Register32)(unsafe.Pointer(uintptr(timerINTR)))
	inte    = (*volatile.Register32)(unsafe.Pointer(uintptr(timerINTE)))
	tickSrc = &tickSource{}
	wakeCtr = &alarmCounter{}
	tickIRQ interrupt.Interrupt
	wakeIRQ interrupt.Interrupt
)

// InitClock installs the alarm 0 and alarm 1 vectors. Alarm 3 belongs to
// the TinyGo runtime.
func InitClock() {
	tickIRQ = interrupt.New(rp.IRQ_TIMER_IRQ_0, tickISR)
	tickIRQ.SetPriority(0x40)
	tickIRQ.Enable()

	wakeIRQ = interrupt.New(rp.IRQ_TIMER_IRQ_1, wakeISR)
	wakeIRQ.SetPriority(0x40)
	wakeIRQ.Enable()
}

// tickSource drives the millisecond ticker from alarm 0.
type tickSource struct {
	next uint32
}

func (t *tickSource) EnableIRQ() {
	t.next = rawLow.Get() + tickPeriodUs
	alarm0.Set(t.next)
	inte.SetBits(alarmTick)
}

func (t *tickSource) DisableIRQ() {
	inte.ClearBits(alarmTick)
	armed.Set(alarmTick)
	intr.Set(alarmTick)
}

func (t *tickSource) RateHz() uint32 { return 1000 }

// rearm schedules the next tick. The alarm compares for equality, so a
// target already in the past would not match for another 71 minutes.
func (t *tickSource) rearm() {
	t.next += tickPeriodUs
	if now := rawLow.Get(); int32(t.next-now) <= 0 {
		t.next = now + tickPeriodUs
	}
	alarm0.Set(t.next)
}

func tickISR(interrupt.Interrupt) {
	intr.Set(alarmTick)
	tickSrc.rearm()
	if s := core.Current(); s != nil {
		s.HandleTickInterrupt()
	}
}

// alarmCounter is the one-shot wake counter on alarm 1, in microseconds.
type alarmCounter struct {
	start  uint32
	period uint32
	fired  bool
}

func (a *alarmCounter) Start(period uint32) {
	intr.Set(alarmWake)
	a.fired = false
	a.period = period
	a.start = rawLow.Get()
	alarm1.Set(a.start + period + 1)
	inte.SetBits(alarmWake)
}

func (a *alarmCounter) Stop() uint32 {
	inte.ClearBits(alarmWake)
	armed.Set(alarmWake)
	elapsed := rawLow.Get() - a.start
	if a.fired || elapsed > a.period {
		return a.period + 1
	}
	return elapsed
}

func (a *alarmCounter) Armed() bool { return armed.HasBits(alarmWake) }

func (a *alarmCounter) Fired() bool { return a.fired || intr.HasBits(alarmWake) }

// MaxPeriod leaves room for period+1 in 32 bits.
func (a *alarmCounter) MaxPeriod() uint32 { return 0xFFFFFFFE }

func (a *alarmCounter) RateHz() uint32 { return timerRateHz }

func wakeISR(interrupt.Interrupt) {
	intr.Set(alarmWake)
	wakeCtr.fired = true
	if s := core.Current(); s != nil {
		s.HandleWakeInterrupt()
	}
}
