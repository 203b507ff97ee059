//go:build rp2040

package main

import (
	"device/arm"
	"runtime/volatile"
	"unsafe"

	"tickhal/core"
)

const (
	scbSCR       = 0xE000ED10
	scrSleepDeep = 1 << 2
)

var scr = (*volatile.Register32)(unsafe.Pointer(uintptr(scbSCR)))

// cortexM0 enters sleep with WFI. In deep sleep the clocks named in the
// CLOCKS SLEEP_EN registers keep running; those stay at their reset value
// so USB remains enumerated, which makes Deep and Max equivalent here.
type cortexM0 struct{}

func (cortexM0) WaitForInterrupt(mode core.SleepMode) {
	if mode >= core.Deep {
		scr.SetBits(scrSleepDeep)
	} else {
		scr.ClearBits(scrSleepDeep)
	}
	arm.Asm("wfi")
	scr.ClearBits(scrSleepDeep)
}

// Watchdog scratch registers survive a watchdog or soft reset but not a
// power cycle. SCRATCH4-7 are used by the boot ROM.
const (
	watchdogBase = 0x40058000
	wdSCRATCH0   = watchdogBase + 0x0C
	wdSCRATCH1   = watchdogBase + 0x10

	scratchMagic    = 0x71C40000
	scratchMagicMsk = 0xFFFF0000
	scratchEpochOK  = 1 << 0
	scratchEraOK    = 1 << 1
	scratchEraShift = 8
)

var (
	scratchEpoch = (*volatile.Register32)(unsafe.Pointer(uintptr(wdSCRATCH0)))
	scratchMeta  = (*volatile.Register32)(unsafe.Pointer(uintptr(wdSCRATCH1)))
)

// scratchStore keeps the emulated epoch and the DS3231 era.
type scratchStore struct{}

func (scratchStore) meta() uint32 {
	m := scratchMeta.Get()
	if m&scratchMagicMsk != scratchMagic {
		return scratchMagic
	}
	return m
}

func (s scratchStore) LoadEpoch() (uint32, bool) {
	if s.meta()&scratchEpochOK == 0 {
		return 0, false
	}
	return scratchEpoch.Get(), true
}

func (s scratchStore) SaveEpoch(seconds uint32) error {
	scratchEpoch.Set(seconds)
	scratchMeta.Set(s.meta() | scratchEpochOK)
	return nil
}

func (s scratchStore) LoadEra() (uint8, bool) {
	m := s.meta()
	if m&scratchEraOK == 0 {
		return 0, false
	}
	return uint8(m >> scratchEraShift), true
}

func (s scratchStore) SaveEra(era uint8) error {
	m := s.meta() &^ (0xFF << scratchEraShift)
	scratchMeta.Set(m | uint32(era)<<scratchEraShift | scratchEraOK)
	return nil
}
