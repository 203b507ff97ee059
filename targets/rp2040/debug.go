//go:build rp2040

package main

import (
	"machine"

	"tickhal/core"
)

var debugUART *machine.UART

// InitDebugUART puts debug output on UART0 (TX=GP0, RX=GP1) at 115200 baud.
func InitDebugUART() {
	uart := machine.UART0
	err := uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO0,
		RX:       machine.GPIO1,
	})
	if err != nil {
		return
	}
	debugUART = uart
	core.SetDebugWriter(DebugPrintln)
	core.SetDebugEnabled(true)
	DebugPrintln("=== tickhal rp2040 ===")
}

// DebugPrintln writes a line to the debug UART, if configured.
func DebugPrintln(s string) {
	if debugUART == nil {
		return
	}
	debugUART.Write([]byte(s))
	debugUART.Write([]byte("\r\n"))
}
