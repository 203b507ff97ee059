//go:build rp2040

package main

import (
	"machine"

	"tickhal/rtc"
)

// openRTC brings up I2C0 on its default pins (SDA=GP4, SCL=GP5) and probes
// for a DS3231. It returns nil when no chip answers.
func openRTC(store rtc.EraStore) *rtc.DS3231 {
	bus := machine.I2C0
	err := bus.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.GPIO4,
		SCL:       machine.GPIO5,
	})
	if err != nil {
		DebugPrintln("[RTC] i2c0: " + err.Error())
		return nil
	}
	clock := rtc.New(bus, store)
	if err := clock.Configure(); err != nil {
		DebugPrintln("[RTC] " + err.Error() + ", using emulated clock")
		return nil
	}
	if !clock.Valid() {
		DebugPrintln("[RTC] oscillator stopped since last set, time is stale")
	}
	return clock
}
