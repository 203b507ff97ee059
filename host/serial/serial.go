// Package serial opens the link to the device's USB CDC port.
package serial

import (
	"io"
	"net"
	"time"
)

// Port is a byte link to the device.
type Port interface {
	io.ReadWriteCloser

	// Flush discards unread input.
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// USB CDC ignores the rate; UART bridges do not.
	Baud int

	// ReadTimeout bounds each Read; 0 blocks.
	ReadTimeout time.Duration
}

// DefaultConfig returns the settings the firmware's UART fallback uses.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Pipe returns two connected in-memory ports. Writes on one end block until
// the other end reads them.
func Pipe() (Port, Port) {
	a, b := net.Pipe()
	return pipePort{a}, pipePort{b}
}

type pipePort struct{ net.Conn }

func (pipePort) Flush() error { return nil }
