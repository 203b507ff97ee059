package core

import "sync/atomic"

// Status holds the flags the sleep scheduler consults. Bits are set from
// interrupt context and read from foreground code.
type Status struct {
	bits uint32 // atomic
}

const (
	statusInhibitDeep uint32 = 1 << iota // force Light sleep
	statusIRQPending                     // external event waiting for foreground
)

func (s *Status) set(bit uint32, on bool) {
	for {
		old := atomic.LoadUint32(&s.bits)
		nv := old &^ bit
		if on {
			nv = old | bit
		}
		if atomic.CompareAndSwapUint32(&s.bits, old, nv) {
			return
		}
	}
}

func (s *Status) has(bit uint32) bool {
	return atomic.LoadUint32(&s.bits)&bit != 0
}

// SetInhibit forces every sleep to Light while set, e.g. while USB is
// enumerated or a peripheral transfer is in flight.
func (s *Status) SetInhibit(on bool) { s.set(statusInhibitDeep, on) }

// Inhibited reports the inhibit flag.
func (s *Status) Inhibited() bool { return s.has(statusInhibitDeep) }

// SetInterruptPending is called from an external ISR to end an
// interruptible hibernate at the next span boundary.
func (s *Status) SetInterruptPending() { s.set(statusIRQPending, true) }

// ClearInterruptPending acknowledges the external event.
func (s *Status) ClearInterruptPending() { s.set(statusIRQPending, false) }

// InterruptPending reports the external event flag.
func (s *Status) InterruptPending() bool { return s.has(statusIRQPending) }
