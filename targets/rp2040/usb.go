//go:build rp2040

package main

import "machine"

// InitUSB configures USB CDC, which TinyGo exposes as machine.Serial.
func InitUSB() {
	machine.Serial.Configure(machine.UARTConfig{})
}

// usbLink adapts machine.Serial to the session's reader and writer.
type usbLink struct {
	failures uint32
}

// Read drains what is buffered without blocking.
func (u *usbLink) Read(p []byte) int {
	n := 0
	for n < len(p) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			break
		}
		p[n] = b
		n++
	}
	return n
}

// Write sends everything or gives up after repeated stalls, which usually
// means the host closed the port. The session treats the link as lossy.
func (u *usbLink) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := machine.Serial.Write(p[written:])
		if err != nil || n == 0 {
			u.failures++
			return written, err
		}
		written += n
	}
	u.failures = 0
	return written, nil
}
