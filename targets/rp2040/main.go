//go:build rp2040

package main

import (
	"machine"
	"time"

	"tickhal/core"
)

// wakePin ends an interruptible hibernate on a falling edge.
const wakePin = machine.GPIO15

var (
	link usbLink
	rx   [64]byte
)

func main() {
	// Clear any watchdog state left by the previous boot.
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitDebugUART()
	InitUSB()
	InitClock()

	store := scratchStore{}
	hw := core.Hardware{
		Ticker: tickSrc,
		Wake:   wakeCtr,
		CPU:    cortexM0{},
		Store:  store,
	}
	if clock := openRTC(store); clock != nil {
		hw.RTC = clock
	}

	cfg := core.DefaultConfig()
	// Alarm 1 counts the same microseconds as the ticker. One full second
	// of cycles makes the factor exactly 1000.
	cfg.ReferenceSharesTicker = true
	cfg.CalibrationCycles = timerRateHz

	sys, err := core.Init(hw, cfg)
	if err != nil {
		DebugPrintln("[BOOT] " + err.Error())
		for {
			time.Sleep(time.Second)
		}
	}

	wakePin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	wakePin.SetInterrupt(machine.PinFalling, func(machine.Pin) {
		core.MustSystem().HandleExternalInterrupt()
	})

	reg := core.NewCommandRegistry()
	session := core.NewSession(reg, &link)
	core.RegisterTimeCommands(session, sys)
	session.SetResetHandler(func() {
		DebugPrintln("[LINK] host reset")
	})
	DebugPrintln("[BOOT] " + itoa(reg.Count()) + " commands, wall clock " + itoa(int(sys.Clock.Seconds())))

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					DebugPrintln("[LINK] recovered from panic")
					core.DumpTimingRing()
				}
			}()
			if n := link.Read(rx[:]); n > 0 {
				session.Receive(rx[:n])
			}
			sys.Poll()
		}()
		time.Sleep(100 * time.Microsecond)
	}
}

// itoa avoids strconv in the firmware image.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	negative := i < 0
	if negative {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if negative {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
